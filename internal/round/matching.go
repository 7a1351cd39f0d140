package round

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"

	"ecogame/internal/ledger"
	"ecogame/internal/scoring"
	"ecogame/internal/types"
)

// MatchingConfig parameterizes one pairs game.
type MatchingConfig struct {
	Template    []scoring.Card
	Policy      scoring.MatchPolicy
	UnflipDelay time.Duration
}

var (
	EnergySaverMatching = MatchingConfig{Template: scoring.EnergyPairs, Policy: scoring.EnergySaverMatch, UnflipDelay: 700 * time.Millisecond}
	ClassicMatching     = MatchingConfig{Template: scoring.EnergyPairs, Policy: scoring.ClassicMatch, UnflipDelay: 700 * time.Millisecond}
)

// DeckCard is a card dealt into a round.
type DeckCard struct {
	scoring.Card
	Key      string `json:"key"`
	Flipped  bool   `json:"flipped"`
	Resolved bool   `json:"resolved"`
}

// FlipOutcome classifies the effect of one flip.
type FlipOutcome string

const (
	FlipIgnored  FlipOutcome = "ignored"
	FlipHeld     FlipOutcome = "held"
	FlipMatch    FlipOutcome = "match"
	FlipMismatch FlipOutcome = "mismatch"
)

type FlipResult struct {
	Outcome     FlipOutcome         `json:"outcome"`
	Delta       int                 `json:"delta"`
	Bonus       int                 `json:"bonus,omitempty"`
	Complete    bool                `json:"complete"`
	SettleAfter time.Duration       `json:"settleAfter,omitempty"`
	Message     string              `json:"message,omitempty"`
	Record      *types.PlayerRecord `json:"record,omitempty"`
}

// Matching is the pairs-game round: Idle → Playing → (Resolving ⇄ Playing)
// → Complete.
type Matching struct {
	cfg MatchingConfig
	rng *LCG
	sub submitter

	phase  Phase
	player string
	deck   []DeckCard
	first  int
	second int
	locked bool

	moves int
	score int
	pairs int
}

// NewMatching returns an idle round whose deck is shuffled from seed.
func NewMatching(cfg MatchingConfig, l ledger.Ledger, seed uint32) *Matching {
	return &Matching{
		cfg:    cfg,
		rng:    NewLCG(seed),
		sub:    submitter{ledger: l},
		phase:  PhaseIdle,
		first:  -1,
		second: -1,
	}
}

// Start deals a freshly shuffled deck and resets every counter.
func (m *Matching) Start(player string) {
	deck := lo.Map(m.cfg.Template, func(c scoring.Card, i int) DeckCard {
		return DeckCard{Card: c, Key: fmt.Sprintf("%s-%s-%d", c.ID, c.Kind, i)}
	})
	Shuffle(m.rng.Rand(), deck)

	m.player = ledger.NormalizeName(player)
	m.deck = deck
	m.phase = PhasePlaying
	m.first, m.second = -1, -1
	m.locked = false
	m.moves, m.score, m.pairs = 0, 0, 0
	m.sub.reset()
}

func (m *Matching) TotalPairs() int { return len(m.cfg.Template) / 2 }

// Flip turns card i face up. Flips while locked, on face-up or resolved
// cards, or outside Playing are no-ops.
func (m *Matching) Flip(ctx context.Context, i int) FlipResult {
	ignored := FlipResult{Outcome: FlipIgnored}
	if m.phase != PhasePlaying || m.locked || m.sub.awaiting {
		return ignored
	}
	if i < 0 || i >= len(m.deck) || m.deck[i].Flipped || m.deck[i].Resolved {
		return ignored
	}

	m.deck[i].Flipped = true
	if m.first < 0 {
		m.first = i
		return FlipResult{Outcome: FlipHeld}
	}
	m.second = i
	m.moves++

	a, b := m.deck[m.first], m.deck[m.second]
	if a.ID != b.ID {
		delta := m.cfg.Policy.Pair(false)
		m.score += delta
		m.locked = true
		m.phase = PhaseResolving
		msg := "Not a pair."
		if delta != 0 {
			msg = fmt.Sprintf("Wrong %d", delta)
		}
		return FlipResult{Outcome: FlipMismatch, Delta: delta, SettleAfter: m.cfg.UnflipDelay, Message: msg}
	}

	delta := m.cfg.Policy.Pair(true)
	m.deck[m.first].Resolved = true
	m.deck[m.second].Resolved = true
	m.pairs++
	m.score += delta
	m.first, m.second = -1, -1
	res := FlipResult{Outcome: FlipMatch, Delta: delta, Message: fmt.Sprintf("Correct! +%d", delta)}

	if m.pairs == m.TotalPairs() {
		res.Bonus = m.cfg.Policy.EfficiencyBonus(m.moves, m.TotalPairs())
		m.score += res.Bonus
		m.phase = PhaseComplete
		res.Complete = true
		rec, err := m.sub.submit(ctx, m.player, m.score)
		if err == nil {
			res.Record = &rec
			res.Message = savedMessage(m.score, rec)
		}
	}
	return res
}

// Settle turns a mismatched pair face down again and unlocks input. The
// caller invokes it once FlipResult.SettleAfter has elapsed.
func (m *Matching) Settle() {
	if m.phase != PhaseResolving {
		return
	}
	if m.first >= 0 {
		m.deck[m.first].Flipped = false
	}
	if m.second >= 0 {
		m.deck[m.second].Flipped = false
	}
	m.first, m.second = -1, -1
	m.locked = false
	m.phase = PhasePlaying
}

// MatchingView is the observable state of a pairs round. Face-down cards
// carry no content.
type MatchingView struct {
	Phase      Phase               `json:"phase"`
	Player     string              `json:"player"`
	Cards      []DeckCard          `json:"cards"`
	Moves      int                 `json:"moves"`
	Score      int                 `json:"score"`
	Pairs      int                 `json:"pairs"`
	TotalPairs int                 `json:"totalPairs"`
	Locked     bool                `json:"locked"`
	Record     *types.PlayerRecord `json:"record,omitempty"`
}

// View reports the deck with face-down cards hidden.
func (m *Matching) View() MatchingView {
	cards := lo.Map(m.deck, func(c DeckCard, i int) DeckCard {
		if c.Flipped || c.Resolved {
			return c
		}
		return DeckCard{Key: fmt.Sprintf("card-%d", i)}
	})
	v := MatchingView{
		Phase:      m.phase,
		Player:     m.player,
		Cards:      cards,
		Moves:      m.moves,
		Score:      m.score,
		Pairs:      m.pairs,
		TotalPairs: m.TotalPairs(),
		Locked:     m.locked,
	}
	if m.sub.persisted {
		rec := m.sub.record
		v.Record = &rec
	}
	return v
}

func (m *Matching) Phase() Phase { return m.phase }
func (m *Matching) Score() int   { return m.score }
func (m *Matching) Moves() int   { return m.moves }
func (m *Matching) Pairs() int   { return m.pairs }

// Deck returns a copy of the dealt cards, face-down ones included.
func (m *Matching) Deck() []DeckCard {
	return append([]DeckCard(nil), m.deck...)
}
