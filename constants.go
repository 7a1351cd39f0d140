package main

// Session configuration constants
const (
	SessionCookieName = "session_id"
)

// Route constants
const (
	RouteHealthz     = "/healthz"
	RouteLeaderboard = "/api/leaderboard"
	RouteMemory      = "/api/memory"
	RouteSorting     = "/api/sorting"
	RouteSwitchOff   = "/api/switchoff"
	RouteForest      = "/api/forest"
	RouteChallenges  = "/api/challenges"
)

// Ledger deployment modes
const (
	LedgerModeServer = "server"
	LedgerModeLocal  = "local"
	LedgerModeRemote = "remote"
)

// Error message constants
const (
	ErrorInvalidData      = "Invalid data"
	ErrorDatabase         = "Database error"
	ErrorBadRequest       = "Malformed request."
	ErrorNoRound          = "Start a round first."
	ErrorNoForest         = "Open your forest first."
	ErrorUnknownVariant   = "Unknown game variant."
	ErrorUnknownChallenge = "Unknown challenge."
	ErrorNotVerified      = "No matching items detected. Try another photo."
	ErrorTooManyRequests  = "Too many requests. Please slow down."
	ErrorAlreadyOff       = "Switch can only turn OFF."
	ErrorNameTooLong      = "That name is too long."
)

// Context key constants
const (
	requestIDKey contextKey = "request_id"
)
