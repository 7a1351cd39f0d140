package main

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"ecogame/internal/economy"
	"ecogame/internal/ledger"
	"ecogame/internal/round"
	"ecogame/internal/storage"
)

type contextKey string

// App holds the server's shared state
type App struct {
	Config       Config
	IsProduction bool
	StartTime    time.Time

	Ledger ledger.Ledger // games reconcile totals through this
	Board  ledger.Board  // the HTTP leaderboard reads and writes through this
	KV     storage.KV    // forest saves and board
	closer io.Closer

	Sessions     map[string]*PlayerSession
	SessionMutex sync.RWMutex

	LimiterMap   map[string]*rate.Limiter
	LimiterMutex sync.Mutex

	SwitchOffConfig round.SwitchOffConfig
	SortingConfig   round.SortingConfig
	EconomyConfig   economy.Config
}

// PlayerSession is everything one browser session is playing. mu serializes
// every action on the session's rounds.
type PlayerSession struct {
	mu sync.Mutex
	ID string

	Matching *round.Matching

	Sorting *round.Sorting

	SwitchOff  *round.SwitchOff
	stopSwitch context.CancelFunc

	Forest     *economy.Session
	stopForest context.CancelFunc
	forestDone chan struct{}

	LastAccessTime time.Time
}

// leaderboardRequest is the body of POST /api/leaderboard
type leaderboardRequest struct {
	Name  string   `json:"name"`
	Total *float64 `json:"total"`
}

type startRequest struct {
	Name    string `json:"name"`
	Variant string `json:"variant"`
}

type flipRequest struct {
	Index *int `json:"index"`
}

type dropRequest struct {
	Item string `json:"item"`
	Bin  string `json:"bin"`
	Key  string `json:"key"` // 1/2/3 keyboard shortcut, used when Bin is empty
}

type finishRequest struct {
	Name string `json:"name"`
}

type deviceRequest struct {
	Device string `json:"device"`
}

// pointRequest carries an optional position; a missing coordinate means the
// gardener's current spot.
type pointRequest struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type claimRequest struct {
	Name   string   `json:"name"`
	Labels []string `json:"labels"`
}
