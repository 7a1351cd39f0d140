package main

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"ecogame/internal/ledger"
)

// Config is the server configuration, read from the environment after
// .env has been loaded.
type Config struct {
	Port          string
	DataDir       string
	LedgerMode    string
	LedgerDBPath  string
	LedgerURL     string
	LedgerTimeout time.Duration
	// LedgerPolicy is how game rounds merge into totals. The HTTP
	// leaderboard always merges best-of.
	LedgerPolicy    ledger.Policy
	SerializeWrites bool

	SessionTimeout   time.Duration
	CookieMaxAge     time.Duration
	SessionSweep     time.Duration
	RateLimitRPS     int
	RateLimitBurst   int
	FrameInterval    time.Duration
	AutosaveInterval time.Duration
	SaveRetention    time.Duration
}

func loadConfig() Config {
	dataDir := getEnvString("DATA_DIR", "data")
	mode := strings.ToLower(getEnvString("LEDGER_MODE", LedgerModeServer))
	switch mode {
	case LedgerModeServer, LedgerModeLocal, LedgerModeRemote:
	default:
		logWarn("Unknown LEDGER_MODE %q, using %s", mode, LedgerModeServer)
		mode = LedgerModeServer
	}

	defaultPolicy := "best-of"
	if mode == LedgerModeLocal {
		defaultPolicy = "additive"
	}
	policy, err := ledger.ParsePolicy(getEnvString("LEDGER_POLICY", defaultPolicy))
	if err != nil {
		logWarn("%v, using %s", err, defaultPolicy)
		policy, _ = ledger.ParsePolicy(defaultPolicy)
	}

	return Config{
		Port:             getEnvString("PORT", "8080"),
		DataDir:          dataDir,
		LedgerMode:       mode,
		LedgerDBPath:     getEnvString("LEDGER_DB_PATH", filepath.Join(dataDir, "leaderboard.db")),
		LedgerURL:        getEnvString("LEDGER_URL", "http://localhost:3000"),
		LedgerTimeout:    getEnvDuration("LEDGER_TIMEOUT", ledger.DefaultTimeout),
		LedgerPolicy:     policy,
		SerializeWrites:  getEnvBool("LEDGER_SERIALIZE_WRITES", false),
		SessionTimeout:   getEnvDuration("SESSION_TIMEOUT", 2*time.Hour),
		CookieMaxAge:     getEnvDuration("COOKIE_MAX_AGE", 2*time.Hour),
		SessionSweep:     getEnvDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		RateLimitRPS:     getEnvInt("RATE_LIMIT_RPS", 10),
		RateLimitBurst:   getEnvInt("RATE_LIMIT_BURST", 20),
		FrameInterval:    getEnvDuration("FRAME_INTERVAL", 50*time.Millisecond),
		AutosaveInterval: getEnvDuration("AUTOSAVE_INTERVAL", 5*time.Second),
		SaveRetention:    getEnvDuration("SAVE_RETENTION", 90*24*time.Hour),
	}
}

func isProductionEnv() bool {
	return os.Getenv("GIN_MODE") == "release" || os.Getenv("ENV") == "production"
}
