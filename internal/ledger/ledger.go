package ledger

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"

	"ecogame/internal/types"
)

// DefaultPlayerName replaces names that are empty after trimming.
const DefaultPlayerName = "Player"

// Ledger is the persisted player-name → total mapping shared by every game.
//
// Both operations fail soft: FetchAll returns an empty slice on any I/O or
// decode error, and callers must read empty as "unknown" rather than "no
// players". UpsertAndAdd falls back to echoing the submitted value.
type Ledger interface {
	FetchAll(ctx context.Context) []types.PlayerRecord
	UpsertAndAdd(ctx context.Context, name string, delta int64) types.PlayerRecord
}

// Board is the error-returning form of a ledger, used where a storage
// failure must reach the caller instead of degrading.
type Board interface {
	Records(ctx context.Context) ([]types.PlayerRecord, error)
	Upsert(ctx context.Context, name string, value int64) (types.PlayerRecord, error)
}

// Policy decides how a submitted value combines with an existing total.
type Policy int

const (
	// Additive sums the submission into the running total (cumulative
	// across sessions).
	Additive Policy = iota
	// BestOf keeps the larger of the stored total and the submission
	// (best-of-session).
	BestOf
)

func (p Policy) String() string {
	switch p {
	case Additive:
		return "additive"
	case BestOf:
		return "best-of"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy accepts "additive" or "best-of"/"max".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "additive", "add", "sum":
		return Additive, nil
	case "best-of", "bestof", "max":
		return BestOf, nil
	}
	return 0, fmt.Errorf("unknown merge policy %q", s)
}

// NormalizeName trims the display name and substitutes DefaultPlayerName
// when nothing is left.
func NormalizeName(name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return DefaultPlayerName
	}
	return n
}

// Key is the comparison key for a display name.
func Key(name string) string {
	return strings.ToLower(NormalizeName(name))
}

func indexOf(records []types.PlayerRecord, name string) int {
	key := Key(name)
	_, idx, ok := lo.FindIndexOf(records, func(r types.PlayerRecord) bool {
		return Key(r.Name) == key
	})
	if !ok {
		return -1
	}
	return idx
}

// Merge applies one submission to a snapshot and returns the new snapshot,
// sorted by total descending, together with the affected record. The input
// slice is not modified.
func Merge(records []types.PlayerRecord, name string, value int64, policy Policy, now time.Time) ([]types.PlayerRecord, types.PlayerRecord) {
	out := slices.Clone(records)
	name = NormalizeName(name)
	i := indexOf(out, name)
	if i < 0 {
		out = append(out, types.PlayerRecord{
			Name:       name,
			Total:      max(0, value),
			LastPlayed: types.NewTimestamp(now),
		})
		i = len(out) - 1
	} else {
		switch policy {
		case BestOf:
			out[i].Total = max(out[i].Total, value)
		default:
			out[i].Total = max(0, out[i].Total+value)
		}
		out[i].LastPlayed = types.NewTimestamp(now)
	}
	rec := out[i]
	Sort(out)
	return out, rec
}

// SetTotal overwrites a player's total, creating the record if needed.
func SetTotal(records []types.PlayerRecord, name string, total int64, now time.Time) ([]types.PlayerRecord, types.PlayerRecord) {
	out := slices.Clone(records)
	name = NormalizeName(name)
	total = max(0, total)
	i := indexOf(out, name)
	if i < 0 {
		out = append(out, types.PlayerRecord{Name: name, Total: total, LastPlayed: types.NewTimestamp(now)})
		i = len(out) - 1
	} else {
		out[i].Total = total
		out[i].LastPlayed = types.NewTimestamp(now)
	}
	rec := out[i]
	Sort(out)
	return out, rec
}

// Sort orders records by total descending. Ties keep their relative order.
func Sort(records []types.PlayerRecord) {
	slices.SortStableFunc(records, func(a, b types.PlayerRecord) int {
		switch {
		case a.Total > b.Total:
			return -1
		case a.Total < b.Total:
			return 1
		}
		return 0
	})
}

// Dedupe collapses records sharing a comparison key, keeping the highest
// total. Used when loading snapshots written by older clients.
func Dedupe(records []types.PlayerRecord) []types.PlayerRecord {
	seen := make(map[string]int, len(records))
	out := make([]types.PlayerRecord, 0, len(records))
	for _, r := range records {
		r.Name = NormalizeName(r.Name)
		r.Total = max(0, r.Total)
		k := Key(r.Name)
		if j, ok := seen[k]; ok {
			if r.Total > out[j].Total {
				out[j].Total = r.Total
			}
			if r.LastPlayed.After(out[j].LastPlayed.Time) {
				out[j].LastPlayed = r.LastPlayed
			}
			continue
		}
		seen[k] = len(out)
		out = append(out, r)
	}
	Sort(out)
	return out
}

// Find returns the record for name, if present.
func Find(records []types.PlayerRecord, name string) (types.PlayerRecord, bool) {
	i := indexOf(records, name)
	if i < 0 {
		return types.PlayerRecord{}, false
	}
	return records[i], true
}

// TotalFor returns the stored total for name, or 0 when unknown.
func TotalFor(ctx context.Context, l Ledger, name string) int64 {
	rec, ok := Find(l.FetchAll(ctx), name)
	if !ok {
		return 0
	}
	return rec.Total
}

// Leader returns the highest total in the ledger, or 0 when empty.
func Leader(records []types.PlayerRecord) int64 {
	if len(records) == 0 {
		return 0
	}
	return lo.MaxBy(records, func(a, b types.PlayerRecord) bool { return a.Total > b.Total }).Total
}
