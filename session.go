package main

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// getOrCreateSession retrieves the session ID from the cookie or creates a new one.
func (app *App) getOrCreateSession(c *gin.Context) string {
	sessionID, err := c.Cookie(SessionCookieName)
	if err != nil || len(sessionID) < 10 {
		sessionID = uuid.NewString()
		c.SetSameSite(http.SameSiteStrictMode)
		secure := app.IsProduction
		c.SetCookie(SessionCookieName, sessionID, int(app.Config.CookieMaxAge.Seconds()), "/", "", secure, true)
		logRequest(c.Request.Context(), "Created new session: %s", sessionID)
	}
	return sessionID
}

// playerSession returns the session for the request's cookie, creating it
// on first use.
func (app *App) playerSession(c *gin.Context) *PlayerSession {
	sessionID := app.getOrCreateSession(c)

	app.SessionMutex.RLock()
	ps, exists := app.Sessions[sessionID]
	app.SessionMutex.RUnlock()
	if exists {
		ps.touch()
		return ps
	}

	app.SessionMutex.Lock()
	defer app.SessionMutex.Unlock()
	if ps, exists = app.Sessions[sessionID]; !exists {
		ps = &PlayerSession{ID: sessionID}
		app.Sessions[sessionID] = ps
	}
	ps.touch()
	return ps
}

func (ps *PlayerSession) touch() {
	ps.mu.Lock()
	ps.LastAccessTime = time.Now()
	ps.mu.Unlock()
}

func (ps *PlayerSession) lastAccess() time.Time {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.LastAccessTime
}

// stopSwitchOffLocked abandons a running switch-off round. Caller holds ps.mu.
func (ps *PlayerSession) stopSwitchOffLocked() {
	if ps.stopSwitch != nil {
		ps.stopSwitch()
		ps.stopSwitch = nil
	}
}

// stopForestLocked ends the forest loop and waits for its final save.
// Caller holds ps.mu.
func (ps *PlayerSession) stopForestLocked() {
	if ps.stopForest == nil {
		return
	}
	ps.stopForest()
	<-ps.forestDone
	ps.stopForest = nil
	ps.forestDone = nil
}

// close stops every background loop the session owns.
func (ps *PlayerSession) close() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.stopSwitchOffLocked()
	ps.stopForestLocked()
}

// expireSessions drops sessions idle for longer than SessionTimeout.
func (app *App) expireSessions() int {
	cutoff := time.Now().Add(-app.Config.SessionTimeout)

	app.SessionMutex.Lock()
	var expired []*PlayerSession
	for id, ps := range app.Sessions {
		if ps.lastAccess().Before(cutoff) {
			expired = append(expired, ps)
			delete(app.Sessions, id)
		}
	}
	app.SessionMutex.Unlock()

	for _, ps := range expired {
		ps.close()
		logInfo("Expired idle session: %s", ps.ID)
	}
	return len(expired)
}

// sweepSessions expires idle sessions until ctx is done.
func (app *App) sweepSessions(ctx context.Context) {
	interval := app.Config.SessionSweep
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := app.expireSessions(); n > 0 {
				logInfo("Session sweep removed %d session%s", n, plural(n))
			}
		}
	}
}

// closeSessions stops every session, flushing forest saves.
func (app *App) closeSessions() {
	app.SessionMutex.Lock()
	sessions := app.Sessions
	app.Sessions = make(map[string]*PlayerSession)
	app.SessionMutex.Unlock()

	for _, ps := range sessions {
		ps.close()
	}
	logInfo("Closed %d session%s", len(sessions), plural(len(sessions)))
}
