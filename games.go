package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"ecogame/internal/economy"
	"ecogame/internal/round"
	"ecogame/internal/scoring"
)

// gameError reports a rejected game action in-band; the request itself
// succeeded.
func gameError(c *gin.Context, msg string, extra ...gin.H) {
	body := gin.H{"error": msg}
	for _, h := range extra {
		for k, v := range h {
			body[k] = v
		}
	}
	c.JSON(http.StatusOK, body)
}

// playerMessage returns the text shown for a rejected action.
func playerMessage(err error) string {
	switch {
	case errors.Is(err, round.ErrAlreadyOff):
		return ErrorAlreadyOff
	case errors.Is(err, economy.ErrNameTooLong):
		return ErrorNameTooLong
	}
	return err.Error()
}

// bindOptionalJSON decodes the body into dst, accepting an empty body.
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil && !errors.Is(err, io.EOF) {
		logRequest(c.Request.Context(), "Rejected malformed body on %s: %v", c.FullPath(), err)
		gameError(c, ErrorBadRequest)
		return false
	}
	return true
}

// persistContext keeps ledger writes alive when the client goes away
// mid-request.
func persistContext(c *gin.Context) context.Context {
	return context.WithoutCancel(c.Request.Context())
}

func newSeed() uint32 {
	return round.SeedFromTime(time.Now())
}

// --- Matching ---

func matchingVariant(name string) (round.MatchingConfig, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "energy", "energy-saver":
		return round.EnergySaverMatching, true
	case "classic":
		return round.ClassicMatching, true
	}
	return round.MatchingConfig{}, false
}

func (app *App) memoryStartHandler(c *gin.Context) {
	var req startRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	cfg, ok := matchingVariant(req.Variant)
	if !ok {
		gameError(c, ErrorUnknownVariant)
		return
	}
	ps := app.playerSession(c)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.Matching = round.NewMatching(cfg, app.Ledger, newSeed())
	ps.Matching.Start(req.Name)
	logRequest(c.Request.Context(), "Session %s started a pairs round", ps.ID)
	c.JSON(http.StatusOK, gin.H{"state": ps.Matching.View()})
}

func (app *App) memoryFlipHandler(c *gin.Context) {
	var req flipRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if req.Index == nil {
		gameError(c, ErrorBadRequest)
		return
	}
	ps := app.playerSession(c)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	m := ps.Matching
	if m == nil {
		gameError(c, ErrorNoRound)
		return
	}
	res := m.Flip(persistContext(c), *req.Index)
	if res.SettleAfter > 0 {
		time.AfterFunc(res.SettleAfter, func() {
			ps.mu.Lock()
			defer ps.mu.Unlock()
			m.Settle()
		})
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "state": m.View()})
}

func (app *App) memoryStateHandler(c *gin.Context) {
	ps := app.playerSession(c)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.Matching == nil {
		gameError(c, ErrorNoRound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": ps.Matching.View()})
}

// --- Sorting ---

func (app *App) sortingStartHandler(c *gin.Context) {
	var req startRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	cfg := app.SortingConfig
	switch strings.ToLower(strings.TrimSpace(req.Variant)) {
	case "", "auto":
		cfg.Mode = round.FinishOnClear
	case "explicit", "finish":
		cfg.Mode = round.FinishExplicit
	default:
		gameError(c, ErrorUnknownVariant)
		return
	}
	ps := app.playerSession(c)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.Sorting = round.NewSorting(cfg, app.Ledger, newSeed())
	ps.Sorting.Start(req.Name)
	logRequest(c.Request.Context(), "Session %s started a sorting round", ps.ID)
	c.JSON(http.StatusOK, gin.H{"state": ps.Sorting.View()})
}

func (app *App) sortingDropHandler(c *gin.Context) {
	var req dropRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	bin := scoring.Bin(req.Bin)
	if req.Bin == "" {
		b, ok := scoring.BinForKey(req.Key)
		if !ok {
			gameError(c, round.ErrUnknownBin.Error())
			return
		}
		bin = b
	}
	ps := app.playerSession(c)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	s := ps.Sorting
	if s == nil {
		gameError(c, ErrorNoRound)
		return
	}
	res, err := s.Drop(persistContext(c), req.Item, bin)
	if err != nil {
		gameError(c, err.Error(), gin.H{"state": s.View()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res, "state": s.View()})
}

func (app *App) sortingFinishHandler(c *gin.Context) {
	var req finishRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	ps := app.playerSession(c)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	s := ps.Sorting
	if s == nil {
		gameError(c, ErrorNoRound)
		return
	}
	rec, err := s.Finish(persistContext(c), req.Name)
	if err != nil {
		gameError(c, err.Error(), gin.H{"state": s.View()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": fmt.Sprintf("Saved! +%d (Total: %d)", s.Score(), rec.Total),
		"record":  rec,
		"state":   s.View(),
	})
}

func (app *App) sortingStateHandler(c *gin.Context) {
	ps := app.playerSession(c)
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.Sorting == nil {
		gameError(c, ErrorNoRound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": ps.Sorting.View()})
}

// --- Switch-off ---

func (app *App) switchOffStartHandler(c *gin.Context) {
	var req startRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	ps := app.playerSession(c)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.stopSwitchOffLocked()
	so := round.NewSwitchOff(app.SwitchOffConfig, app.Ledger)
	so.Start(req.Name, newSeed())
	ctx, cancel := context.WithCancel(context.Background())
	ps.SwitchOff, ps.stopSwitch = so, cancel
	go app.runSwitchOff(ctx, ps.ID, so)

	c.JSON(http.StatusOK, gin.H{"state": so.View()})
}

func (app *App) runSwitchOff(ctx context.Context, sessionID string, so *round.SwitchOff) {
	tick := app.SwitchOffConfig.Tick
	if tick <= 0 {
		tick = round.DefaultSwitchOff.Tick
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	rec, err := so.Run(ctx, ticker.C, nil)
	if err != nil {
		logInfo("Switch-off round for session %s ended early: %v", sessionID, err)
		return
	}
	logInfo("Switch-off round for session %s finished: %s now at %d", sessionID, rec.Name, rec.Total)
}

func (app *App) switchOffTurnOffHandler(c *gin.Context) {
	var req deviceRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	ps := app.playerSession(c)
	ps.mu.Lock()
	so := ps.SwitchOff
	ps.mu.Unlock()
	if so == nil {
		gameError(c, ErrorNoRound)
		return
	}
	delta, err := so.TurnOff(req.Device)
	if err != nil {
		gameError(c, playerMessage(err), gin.H{"state": so.View()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"delta": delta, "state": so.View()})
}

func (app *App) switchOffStateHandler(c *gin.Context) {
	ps := app.playerSession(c)
	ps.mu.Lock()
	so := ps.SwitchOff
	ps.mu.Unlock()
	if so == nil {
		gameError(c, ErrorNoRound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": so.View()})
}

// --- Forest ---

func (app *App) forestOpenHandler(c *gin.Context) {
	var req startRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	ps := app.playerSession(c)
	ps.mu.Lock()
	defer ps.mu.Unlock()

	ps.stopForestLocked()
	fs := economy.NewSession(app.EconomyConfig, app.Ledger, app.KV)
	if err := fs.Open(c.Request.Context(), req.Name); err != nil {
		gameError(c, playerMessage(err))
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		fs.RunLoop(ctx, app.Config.FrameInterval, app.Config.AutosaveInterval)
	}()
	ps.Forest, ps.stopForest, ps.forestDone = fs, cancel, done

	logRequest(c.Request.Context(), "Session %s opened the forest of %q", ps.ID, fs.Name())
	c.JSON(http.StatusOK, gin.H{"state": fs.View()})
}

func (p pointRequest) resolve(e *economy.Economy) economy.Point {
	pt := e.Position()
	if p.X != nil {
		pt.X = *p.X
	}
	if p.Y != nil {
		pt.Y = *p.Y
	}
	return pt
}

// withForest runs act against the session's open forest and replies with
// the resulting state.
func (app *App) withForest(c *gin.Context, act func(ctx context.Context, fs *economy.Session, p pointRequest) error) {
	var req pointRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	ps := app.playerSession(c)
	ps.mu.Lock()
	fs := ps.Forest
	ps.mu.Unlock()
	if fs == nil {
		gameError(c, ErrorNoForest)
		return
	}
	if err := act(persistContext(c), fs, req); err != nil {
		gameError(c, err.Error(), gin.H{"state": fs.View()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": fs.View()})
}

func (app *App) forestPlantHandler(c *gin.Context) {
	app.withForest(c, func(ctx context.Context, fs *economy.Session, p pointRequest) error {
		return fs.Do(ctx, func(e *economy.Economy) error {
			_, err := e.Plant(p.resolve(e))
			return err
		})
	})
}

func (app *App) forestWindHandler(c *gin.Context) {
	app.withForest(c, func(ctx context.Context, fs *economy.Session, p pointRequest) error {
		return fs.Do(ctx, func(e *economy.Economy) error {
			_, err := e.BuildWind(p.resolve(e))
			return err
		})
	})
}

func (app *App) forestWaterHandler(c *gin.Context) {
	app.withForest(c, func(ctx context.Context, fs *economy.Session, _ pointRequest) error {
		return fs.Do(ctx, func(e *economy.Economy) error {
			_, err := e.Water()
			return err
		})
	})
}

func (app *App) forestSellHandler(c *gin.Context) {
	app.withForest(c, func(ctx context.Context, fs *economy.Session, _ pointRequest) error {
		return fs.Do(ctx, func(e *economy.Economy) error { return e.Sell() })
	})
}

// forestSelectHandler selects the tree nearest the click and walks the
// gardener there.
func (app *App) forestSelectHandler(c *gin.Context) {
	app.withForest(c, func(ctx context.Context, fs *economy.Session, p pointRequest) error {
		return fs.Do(ctx, func(e *economy.Economy) error {
			pt := p.resolve(e)
			e.SetTarget(pt)
			e.SelectNearest(pt)
			return nil
		})
	})
}

func (app *App) forestSelectNextHandler(c *gin.Context) {
	app.withForest(c, func(ctx context.Context, fs *economy.Session, _ pointRequest) error {
		return fs.Do(ctx, func(e *economy.Economy) error {
			_, err := e.SelectNext()
			return err
		})
	})
}

func (app *App) forestSaveHandler(c *gin.Context) {
	app.withForest(c, func(ctx context.Context, fs *economy.Session, _ pointRequest) error {
		return fs.Save(ctx)
	})
}

func (app *App) forestStateHandler(c *gin.Context) {
	ps := app.playerSession(c)
	ps.mu.Lock()
	fs := ps.Forest
	ps.mu.Unlock()
	if fs == nil {
		gameError(c, ErrorNoForest)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": fs.View(), "board": fs.Board()})
}

// --- Challenges ---

func (app *App) challengesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, scoring.Challenges)
}

// challengeClaimHandler awards a challenge when any photo label matches
// one of its keywords. Labels come from an external tagger.
func (app *App) challengeClaimHandler(c *gin.Context) {
	ch, ok := scoring.FindChallenge(c.Param("id"))
	if !ok {
		gameError(c, ErrorUnknownChallenge)
		return
	}
	var req claimRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	if !scoring.ChallengeMatches(ch, req.Labels) {
		c.JSON(http.StatusOK, gin.H{"verified": false, "error": ErrorNotVerified})
		return
	}
	rec := app.Ledger.UpsertAndAdd(persistContext(c), req.Name, int64(ch.Points))
	logRequest(c.Request.Context(), "Challenge %s verified for %q", ch.ID, rec.Name)
	c.JSON(http.StatusOK, gin.H{"verified": true, "points": ch.Points, "record": rec})
}
