package round

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/samber/lo"

	"ecogame/internal/ledger"
	"ecogame/internal/scoring"
	"ecogame/internal/types"
)

var (
	ErrUnknownItem  = errors.New("unknown item")
	ErrItemResolved = errors.New("item already sorted")
	ErrUnknownBin   = errors.New("unknown bin")
)

// FinishMode selects when a sorting round is persisted.
type FinishMode int

const (
	// FinishOnClear saves as soon as the last item is sorted.
	FinishOnClear FinishMode = iota
	// FinishExplicit waits for Finish, which needs a player name.
	FinishExplicit
)

type SortingConfig struct {
	Items     map[string]scoring.Bin
	Policy    scoring.SortPolicy
	Mode      FinishMode
	Area      Area
	Placement PlacementConfig
}

var DefaultSorting = SortingConfig{
	Items:     scoring.WasteItems,
	Policy:    scoring.DefaultSort,
	Mode:      FinishOnClear,
	Area:      DefaultArea,
	Placement: DefaultPlacement,
}

type DropResult struct {
	Correct    bool                `json:"correct"`
	Delta      int                 `json:"delta"`
	Score      int                 `json:"score"`
	CorrectBin scoring.Bin         `json:"correctBin"`
	Message    string              `json:"message"`
	Complete   bool                `json:"complete"`
	Record     *types.PlayerRecord `json:"record,omitempty"`
}

// Sorting is the bin-sorting round. Its visible set only shrinks.
type Sorting struct {
	cfg SortingConfig
	rng *LCG
	sub submitter

	phase     Phase
	player    string
	visible   map[string]bool
	positions map[string]Position
	score     int
	sorted    int
}

// NewSorting returns an idle round whose items are placed from seed.
func NewSorting(cfg SortingConfig, l ledger.Ledger, seed uint32) *Sorting {
	return &Sorting{cfg: cfg, rng: NewLCG(seed), sub: submitter{ledger: l}, phase: PhaseIdle}
}

// Start shows every item at a new random position and zeroes the score.
func (s *Sorting) Start(player string) {
	s.player = strings.TrimSpace(player)
	if s.cfg.Mode == FinishOnClear {
		s.player = ledger.NormalizeName(player)
	}
	ids := lo.Keys(s.cfg.Items)
	s.visible = lo.SliceToMap(ids, func(id string) (string, bool) { return id, true })
	s.positions = Place(sortedStrings(ids), s.cfg.Area, s.cfg.Placement, s.rng.Rand())
	s.score = 0
	s.sorted = 0
	s.phase = PhasePlaying
	s.sub.reset()
}

// Drop scores dropping item into bin.
func (s *Sorting) Drop(ctx context.Context, item string, bin scoring.Bin) (DropResult, error) {
	if s.phase != PhasePlaying {
		return DropResult{}, ErrNotPlaying
	}
	item = scoring.Normalize(item)
	correct, ok := s.cfg.Items[item]
	if !ok {
		return DropResult{}, ErrUnknownItem
	}
	if !s.visible[item] {
		return DropResult{}, ErrItemResolved
	}
	bin, ok = scoring.ParseBin(string(bin))
	if !ok {
		return DropResult{}, ErrUnknownBin
	}

	before := s.score
	res := DropResult{CorrectBin: correct}
	if bin == correct {
		res.Correct = true
		s.score = s.cfg.Policy.Apply(s.score, true)
		s.sorted++
		delete(s.visible, item)
		res.Message = scoring.Praise(bin)
	} else {
		s.score = s.cfg.Policy.Apply(s.score, false)
		res.Message = scoring.Critique(item)
	}
	res.Delta = s.score - before
	res.Score = s.score

	if len(s.visible) == 0 {
		s.phase = PhaseComplete
		res.Complete = true
		if s.cfg.Mode == FinishOnClear {
			rec, err := s.sub.submit(ctx, s.player, s.score)
			if err == nil {
				res.Record = &rec
			}
		}
	}
	return res, nil
}

// Finish saves the round under name, or under the name given at Start when
// name is blank. It may be called before every item is sorted.
func (s *Sorting) Finish(ctx context.Context, name string) (types.PlayerRecord, error) {
	if s.phase == PhaseIdle {
		return types.PlayerRecord{}, ErrNotPlaying
	}
	if n := strings.TrimSpace(name); n != "" {
		s.player = n
	}
	if s.player == "" {
		return types.PlayerRecord{}, ErrNameRequired
	}
	rec, err := s.sub.submit(ctx, s.player, s.score)
	if err != nil {
		return rec, err
	}
	s.phase = PhaseComplete
	return rec, nil
}

type SortingView struct {
	Phase     Phase               `json:"phase"`
	Player    string              `json:"player"`
	Score     int                 `json:"score"`
	Sorted    int                 `json:"sorted"`
	Remaining int                 `json:"remaining"`
	Items     map[string]Position `json:"items"`
	Record    *types.PlayerRecord `json:"record,omitempty"`
}

// View reports the items still on the floor.
func (s *Sorting) View() SortingView {
	items := lo.PickBy(s.positions, func(id string, _ Position) bool { return s.visible[id] })
	v := SortingView{
		Phase:     s.phase,
		Player:    s.player,
		Score:     s.score,
		Sorted:    s.sorted,
		Remaining: len(s.visible),
		Items:     items,
	}
	if s.sub.persisted {
		rec := s.sub.record
		v.Record = &rec
	}
	return v
}

func (s *Sorting) Phase() Phase { return s.phase }
func (s *Sorting) Score() int   { return s.score }

// Visible lists unsorted items in name order.
func (s *Sorting) Visible() []string {
	return sortedStrings(lo.Keys(s.visible))
}

func sortedStrings(in []string) []string {
	out := slices.Clone(in)
	slices.Sort(out)
	return out
}
