package types

import (
	"bytes"
	"encoding/json"
	"strconv"
	"time"
)

// PlayerRecord is one row of the shared leaderboard.
type PlayerRecord struct {
	Name       string    `json:"name"`
	Total      int64     `json:"total"`
	LastPlayed Timestamp `json:"lastPlayed"`
}

// Timestamp encodes as RFC 3339 and decodes from either an RFC 3339 string or
// a millisecond epoch number.
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t in UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

func (ts Timestamp) MarshalJSON() ([]byte, error) {
	if ts.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(ts.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON accepts null, an RFC 3339 string or epoch milliseconds.
func (ts *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		ts.Time = time.Time{}
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			ts.Time = time.Time{}
			return nil
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return err
		}
		ts.Time = t.UTC()
		return nil
	}
	ms, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return err
	}
	ts.Time = time.UnixMilli(int64(ms)).UTC()
	return nil
}

// Tree is a planted tree in the idle forest.
type Tree struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Stage int     `json:"stage"`
}

// Wind is a wind generator producing passive points.
type Wind struct {
	X               float64 `json:"x"`
	Y               float64 `json:"y"`
	Rot             float64 `json:"rot"`
	PointsPerSecond float64 `json:"pointsPerSecond"`
}

// ForestPlayer is the player block of an economy save.
type ForestPlayer struct {
	Name   string  `json:"name"`
	Points float64 `json:"points"`
	Wind   int     `json:"wind"`
}

// ForestSave is the persisted idle-economy blob, keyed by player name.
type ForestSave struct {
	Player ForestPlayer `json:"player"`
	Trees  []Tree       `json:"trees"`
	Winds  []Wind       `json:"winds"`
}

// BoardEntry is a row of the idle game's own board.
type BoardEntry struct {
	Name  string `json:"name"`
	Score int64  `json:"score"`
	Wind  int    `json:"wind"`
	Trees int    `json:"trees"`
}
