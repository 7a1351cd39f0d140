package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	ginGzip "github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/time/rate"

	"ecogame/internal/economy"
	"ecogame/internal/ledger"
	"ecogame/internal/round"
	"ecogame/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg := loadConfig()
	app, err := newApp(cfg)
	if err != nil {
		logFatal("Failed to initialise: %v", err)
	}
	logInfo("Starting eco games in %s mode, ledger %s (%s)",
		map[bool]string{true: "production", false: "development"}[app.IsProduction],
		cfg.LedgerMode, cfg.LedgerPolicy)

	if fkv, ok := app.KV.(*storage.FileKV); ok {
		if n, err := fkv.CleanupOlderThan(economy.SaveKeyPrefix, cfg.SaveRetention); err != nil {
			logWarn("Forest save cleanup failed: %v", err)
		} else if n > 0 {
			logInfo("Removed %d stale forest save%s", n, plural(n))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go app.sweepSessions(ctx)

	startServer(app, setupRouter(app), func() {
		cancel()
		app.closeSessions()
		if err := app.Close(); err != nil {
			logWarn("Closing ledger store: %v", err)
		}
	})
}

// newApp opens the data directory and the ledger selected by LEDGER_MODE.
func newApp(cfg Config) (*App, error) {
	if !dirExists(cfg.DataDir) {
		logInfo("Creating data directory %s", cfg.DataDir)
		if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}
	kv, err := storage.NewFileKV(filepath.Join(cfg.DataDir, "kv"))
	if err != nil {
		return nil, fmt.Errorf("open kv: %w", err)
	}

	var opts []ledger.Option
	if cfg.SerializeWrites {
		opts = append(opts, ledger.Serialized())
	}

	switch cfg.LedgerMode {
	case LedgerModeRemote:
		client := ledger.NewClient(cfg.LedgerURL, cfg.LedgerTimeout)
		logInfo("Using remote leaderboard at %s", cfg.LedgerURL)
		return buildApp(cfg, kv, client, client, nil), nil

	case LedgerModeLocal:
		store := ledger.NewKVStore(kv)
		games := ledger.NewSnapshot(store, cfg.LedgerPolicy, opts...)
		return buildApp(cfg, kv, games, bestOfBoard(games), nil), nil

	default:
		db, err := ledger.OpenSQLite(cfg.LedgerDBPath)
		if err != nil {
			return nil, fmt.Errorf("open leaderboard db: %w", err)
		}
		logInfo("Leaderboard database at %s", cfg.LedgerDBPath)
		games := ledger.NewSnapshot(db, cfg.LedgerPolicy, opts...)
		return buildApp(cfg, kv, games, bestOfBoard(games), db), nil
	}
}

// bestOfBoard returns the snapshot serving POST /api/leaderboard, which
// always merges best-of over the same store as the game ledger.
func bestOfBoard(games *ledger.Snapshot) ledger.Board {
	if games.Policy() == ledger.BestOf {
		return games
	}
	return games.Sibling(ledger.BestOf)
}

func buildApp(cfg Config, kv storage.KV, l ledger.Ledger, board ledger.Board, closer io.Closer) *App {
	switchCfg := round.DefaultSwitchOff
	if tick := getEnvDuration("SWITCHOFF_TICK", 0); tick > 0 {
		switchCfg.Tick = tick
	}
	return &App{
		Config:          cfg,
		IsProduction:    isProductionEnv(),
		StartTime:       time.Now(),
		Ledger:          l,
		Board:           board,
		KV:              kv,
		closer:          closer,
		Sessions:        make(map[string]*PlayerSession),
		LimiterMap:      make(map[string]*rate.Limiter),
		SwitchOffConfig: switchCfg,
		SortingConfig:   round.DefaultSorting,
		EconomyConfig:   economy.DefaultConfig(),
	}
}

// Close releases the ledger store, if the app owns one.
func (app *App) Close() error {
	if app.closer == nil {
		return nil
	}
	return app.closer.Close()
}

func setupRouter(app *App) *gin.Engine {
	router := gin.Default()

	router.Use(ginGzip.Gzip(ginGzip.DefaultCompression))

	if err := router.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logWarn("Failed to set trusted proxies: %v", err)
	}
	router.Use(requestIDMiddleware(), app.cacheHeadersMiddleware())

	limited := app.rateLimitMiddleware()

	router.GET(RouteHealthz, app.healthzHandler)
	router.GET(RouteLeaderboard, app.leaderboardHandler)
	router.POST(RouteLeaderboard, limited, app.submitScoreHandler)

	memory := router.Group(RouteMemory)
	memory.POST("/start", limited, app.memoryStartHandler)
	memory.POST("/flip", limited, app.memoryFlipHandler)
	memory.GET("", app.memoryStateHandler)

	sorting := router.Group(RouteSorting)
	sorting.POST("/start", limited, app.sortingStartHandler)
	sorting.POST("/drop", limited, app.sortingDropHandler)
	sorting.POST("/finish", limited, app.sortingFinishHandler)
	sorting.GET("", app.sortingStateHandler)

	switchOff := router.Group(RouteSwitchOff)
	switchOff.POST("/start", limited, app.switchOffStartHandler)
	switchOff.POST("/turn-off", limited, app.switchOffTurnOffHandler)
	switchOff.GET("", app.switchOffStateHandler)

	forest := router.Group(RouteForest)
	forest.POST("/open", limited, app.forestOpenHandler)
	forest.POST("/plant", limited, app.forestPlantHandler)
	forest.POST("/wind", limited, app.forestWindHandler)
	forest.POST("/water", limited, app.forestWaterHandler)
	forest.POST("/sell", limited, app.forestSellHandler)
	forest.POST("/select", limited, app.forestSelectHandler)
	forest.POST("/select-next", limited, app.forestSelectNextHandler)
	forest.POST("/save", limited, app.forestSaveHandler)
	forest.GET("", app.forestStateHandler)

	router.GET(RouteChallenges, app.challengesHandler)
	router.POST(RouteChallenges+"/:id/claim", limited, app.challengeClaimHandler)

	return router
}

// startServer serves until SIGINT or SIGTERM, then runs shutdown once the
// listener has drained.
func startServer(app *App, router *gin.Engine, shutdown func()) {
	srv := &http.Server{
		Addr:              ":" + app.Config.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		sigint := make(chan os.Signal, 1)
		signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
		<-sigint
		logInfo("Shutdown signal received, shutting down server gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logWarn("HTTP server Shutdown: %v", err)
		}
		close(idleConnsClosed)
	}()

	logInfo("Server starting on http://localhost:%s", app.Config.Port)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		logFatal("Server failed to start: %v", err)
	}
	<-idleConnsClosed
	shutdown()
	logInfo("Server shutdown complete")
}
