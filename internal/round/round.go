// Package round implements the per-playthrough state machines of the
// mini-games. A round owns its score and counters and reconciles with the
// shared ledger exactly once, when it completes.
package round

import (
	"context"
	"errors"
	"fmt"
	"log"

	"ecogame/internal/ledger"
	"ecogame/internal/types"
)

// Phase is the lifecycle state of a round.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhasePlaying   Phase = "playing"
	PhaseResolving Phase = "resolving"
	PhaseComplete  Phase = "complete"
)

var (
	ErrNotPlaying     = errors.New("round is not in progress")
	ErrAlreadySaved   = errors.New("round score already saved")
	ErrNameRequired   = errors.New("enter name first")
	ErrPersistPending = errors.New("score submission in progress")
)

// submitter guards the single ledger write a round is allowed.
type submitter struct {
	ledger    ledger.Ledger
	awaiting  bool
	persisted bool
	record    types.PlayerRecord
}

func (s *submitter) reset() {
	s.awaiting = false
	s.persisted = false
	s.record = types.PlayerRecord{}
}

// submit writes score once. Further calls return ErrAlreadySaved or
// ErrPersistPending without touching the ledger.
func (s *submitter) submit(ctx context.Context, player string, score int) (types.PlayerRecord, error) {
	if s.awaiting {
		return types.PlayerRecord{}, ErrPersistPending
	}
	if s.persisted {
		return s.record, ErrAlreadySaved
	}
	s.awaiting = true
	defer func() { s.awaiting = false }()

	if s.ledger == nil {
		s.record = types.PlayerRecord{Name: ledger.NormalizeName(player), Total: int64(score)}
	} else {
		s.record = s.ledger.UpsertAndAdd(ctx, player, int64(score))
	}
	s.persisted = true
	log.Printf("[INFO] Saved round score %d for %q (total %d)", score, s.record.Name, s.record.Total)
	return s.record, nil
}

func savedMessage(score int, rec types.PlayerRecord) string {
	return fmt.Sprintf("Saved! +%d (Total: %d)", score, rec.Total)
}
