package main

import (
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"ecogame/internal/ledger"
	"ecogame/internal/types"
)

const (
	maxNameLength = 64
	// maxSubmitTotal is the largest integer a JSON number carries exactly.
	maxSubmitTotal = 1 << 53
)

// validTotal rejects totals that cannot be stored as an int64 score.
func validTotal(total *float64) bool {
	return total != nil && *total >= 0 && *total <= maxSubmitTotal
}

// leaderboardHandler returns every player, highest total first.
func (app *App) leaderboardHandler(c *gin.Context) {
	records, err := app.Board.Records(c.Request.Context())
	if err != nil {
		logWarn("Leaderboard read failed: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": ErrorDatabase})
		return
	}
	c.JSON(http.StatusOK, records)
}

// submitScoreHandler merges a submitted total best-of into the leaderboard.
func (app *App) submitScoreHandler(c *gin.Context) {
	var req leaderboardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrorInvalidData})
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" || len(name) > maxNameLength || !validTotal(req.Total) {
		c.JSON(http.StatusBadRequest, gin.H{"error": ErrorInvalidData})
		return
	}
	total := int64(math.Floor(*req.Total))

	rec, err := app.Board.Upsert(persistContext(c), name, total)
	if err != nil {
		logWarn("Leaderboard write for %q failed: %v", name, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": ErrorDatabase})
		return
	}
	logRequest(c.Request.Context(), "Score %d submitted for %q, total now %d", total, rec.Name, rec.Total)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// healthzHandler returns a JSON health check with server stats.
func (app *App) healthzHandler(c *gin.Context) {
	uptime := time.Since(app.StartTime)
	players := app.Ledger.FetchAll(c.Request.Context())

	app.SessionMutex.RLock()
	sessions := len(app.Sessions)
	app.SessionMutex.RUnlock()

	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"env":         map[bool]string{true: "production", false: "development"}[app.IsProduction],
		"ledger_mode": app.Config.LedgerMode,
		"policy":      app.Config.LedgerPolicy.String(),
		"players":     len(players),
		"top_total":   ledger.Leader(players),
		"sessions":    sessions,
		"active":      lo.CountBy(players, func(p types.PlayerRecord) bool { return time.Since(p.LastPlayed.Time) < time.Hour }),
		"uptime":      formatUptime(uptime),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}
