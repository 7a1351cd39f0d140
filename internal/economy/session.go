package economy

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	"ecogame/internal/ledger"
	"ecogame/internal/storage"
	"ecogame/internal/types"
)

const (
	SaveKeyPrefix = "idealforest.save."
	BoardKey      = "idealforest.lb"

	// MaxNameLength bounds forest names in runes, matching the leaderboard.
	MaxNameLength = 64
)

var ErrNameTooLong = errors.New("name is too long")

// TotalSetter overwrites a player's shared total. Ledgers without it are
// synced through UpsertAndAdd, which only raises a best-of total.
type TotalSetter interface {
	SetTotal(ctx context.Context, name string, total int64) types.PlayerRecord
}

// SaveKey is the storage key of a player's forest.
func SaveKey(name string) string {
	if name == "" {
		name = "player"
	}
	return SaveKeyPrefix + strings.ToLower(name)
}

// CleanName collapses runs of whitespace and trims.
func CleanName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// Session owns one player's economy and serializes access to it.
type Session struct {
	mu     sync.Mutex
	cfg    Config
	ledger ledger.Ledger
	kv     storage.KV

	name       string
	eco        *Economy
	lastSynced int64
	now        func() time.Time
}

// NewSession returns a session on the default player. Call Open to load a
// named forest.
func NewSession(cfg Config, l ledger.Ledger, kv storage.KV) *Session {
	return &Session{
		cfg:        cfg,
		ledger:     l,
		kv:         kv,
		name:       ledger.DefaultPlayerName,
		eco:        New(cfg),
		lastSynced: -1,
		now:        time.Now,
	}
}

// Open switches the session to name. Points come from the shared ledger
// total (the starting balance when the player has none); trees and
// generators come from the player's save.
func (s *Session) Open(ctx context.Context, name string) error {
	name = CleanName(name)
	if name == "" {
		name = ledger.DefaultPlayerName
	}
	if utf8.RuneCountInString(name) > MaxNameLength {
		return ErrNameTooLong
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.name = name
	s.eco = New(s.cfg)
	if s.ledger != nil {
		if total := ledger.TotalFor(ctx, s.ledger, name); total > 0 {
			s.eco.SetPoints(decimal.NewFromInt(total))
		}
	}
	s.lastSynced = s.eco.DisplayPoints()

	save, err := s.loadSave(name)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return nil
	case err != nil:
		log.Printf("[WARN] Ignoring forest save for %q: %v", name, err)
		return nil
	}
	s.eco.Import(save, true)
	log.Printf("[INFO] Opened forest for %q: %d pts, %d trees, %d winds", name, s.eco.DisplayPoints(), len(save.Trees), len(save.Winds))
	return nil
}

func (s *Session) loadSave(name string) (types.ForestSave, error) {
	var save types.ForestSave
	if s.kv == nil {
		return save, storage.ErrNotFound
	}
	raw, err := s.kv.Get(SaveKey(name))
	if err != nil {
		return save, err
	}
	if err := json.Unmarshal(raw, &save); err != nil {
		return types.ForestSave{}, err
	}
	return save, nil
}

// Frame advances the economy by dt and mirrors the floored balance into the
// shared ledger whenever it changed.
func (s *Session) Frame(ctx context.Context, dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.eco.Advance(dt)
	s.syncLocked(ctx)
}

func (s *Session) syncLocked(ctx context.Context) {
	pts := s.eco.DisplayPoints()
	if pts == s.lastSynced || s.ledger == nil {
		return
	}
	if ts, ok := s.ledger.(TotalSetter); ok {
		ts.SetTotal(ctx, s.name, pts)
	} else {
		s.ledger.UpsertAndAdd(ctx, s.name, pts)
	}
	s.lastSynced = pts
}

// Save writes the forest and refreshes the player's row on the forest board.
func (s *Session) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx)
}

func (s *Session) saveLocked(_ context.Context) error {
	if s.kv == nil {
		return nil
	}
	blob, err := json.Marshal(s.eco.Export(s.name))
	if err != nil {
		return err
	}
	if err := s.kv.Set(SaveKey(s.name), blob); err != nil {
		return err
	}

	board := loadBoard(s.kv)
	entry := types.BoardEntry{
		Name:  s.name,
		Score: s.eco.DisplayPoints(),
		Wind:  s.eco.WindCount(),
		Trees: len(s.eco.trees),
	}
	_, i, found := lo.FindIndexOf(board, func(b types.BoardEntry) bool {
		return strings.EqualFold(b.Name, s.name)
	})
	if found {
		board[i] = entry
	} else {
		board = append(board, entry)
	}
	slices.SortStableFunc(board, func(a, b types.BoardEntry) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})
	raw, err := json.Marshal(board)
	if err != nil {
		return err
	}
	return s.kv.Set(BoardKey, raw)
}

func loadBoard(kv storage.KV) []types.BoardEntry {
	raw, err := kv.Get(BoardKey)
	if err != nil {
		return []types.BoardEntry{}
	}
	var board []types.BoardEntry
	if err := json.Unmarshal(raw, &board); err != nil {
		log.Printf("[WARN] Forest board unreadable, starting fresh: %v", err)
		return []types.BoardEntry{}
	}
	return board
}

// Board returns the forest board, best first.
func (s *Session) Board() []types.BoardEntry {
	if s.kv == nil {
		return []types.BoardEntry{}
	}
	return loadBoard(s.kv)
}

// RunLoop drives frames and autosaves until ctx ends, then saves once more.
func (s *Session) RunLoop(ctx context.Context, frameEvery, autosaveEvery time.Duration) error {
	frames := time.NewTicker(frameEvery)
	defer frames.Stop()
	saves := time.NewTicker(autosaveEvery)
	defer saves.Stop()

	last := s.now()
	for {
		select {
		case <-ctx.Done():
			if err := s.Save(context.WithoutCancel(ctx)); err != nil {
				log.Printf("[WARN] Final forest save for %q failed: %v", s.Name(), err)
			}
			return ctx.Err()
		case <-frames.C:
			now := s.now()
			s.Frame(ctx, now.Sub(last))
			last = now
		case <-saves.C:
			if err := s.Save(ctx); err != nil {
				log.Printf("[WARN] Autosave for %q failed: %v", s.Name(), err)
			}
		}
	}
}

func (s *Session) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Do runs fn against the economy under the session lock and syncs the
// ledger afterwards.
func (s *Session) Do(ctx context.Context, fn func(e *Economy) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := fn(s.eco)
	s.syncLocked(ctx)
	return err
}

type View struct {
	Name        string           `json:"name"`
	Points      int64            `json:"points"`
	ExactPoints string           `json:"exactPoints"`
	Wind        int              `json:"wind"`
	Trees       []types.Tree     `json:"trees"`
	Winds       []types.Wind     `json:"winds"`
	Selected    int              `json:"selected"`
	Position    Point            `json:"position"`
	GrowthBoost float64          `json:"growthBoost"`
	Costs       map[string]int64 `json:"costs"`
}

// View snapshots the forest for rendering.
func (s *Session) View() View {
	board := s.Board()
	leader := int64(0)
	if len(board) > 0 {
		leader = lo.MaxBy(board, func(a, b types.BoardEntry) bool { return a.Score > b.Score }).Score
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		Name:        s.name,
		Points:      s.eco.DisplayPoints(),
		ExactPoints: s.eco.Points().StringFixed(4),
		Wind:        s.eco.WindCount(),
		Trees:       s.eco.Trees(),
		Winds:       s.eco.Winds(),
		Selected:    s.eco.Selected(),
		Position:    s.eco.Position(),
		GrowthBoost: GrowthBoost(leader),
		Costs: map[string]int64{
			"tree":  s.cfg.Costs.Tree.IntPart(),
			"water": s.cfg.Costs.Water.IntPart(),
			"wind":  s.cfg.Costs.Wind.IntPart(),
			"sell":  s.cfg.Costs.SellRefund.IntPart(),
		},
	}
}
