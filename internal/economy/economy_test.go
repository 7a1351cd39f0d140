package economy

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ecogame/internal/ledger"
	"ecogame/internal/storage"
	"ecogame/internal/types"
)

func withPoints(n int64) *Economy {
	e := New(DefaultConfig())
	e.SetPoints(decimal.NewFromInt(n))
	return e
}

func TestPlantCostBoundary(t *testing.T) {
	e := withPoints(999)
	if _, err := e.Plant(Point{X: 100, Y: 300}); !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("plant at 999 err = %v", err)
	}
	if e.DisplayPoints() != 999 || len(e.Trees()) != 0 {
		t.Errorf("rejected plant changed state: %d pts, %d trees", e.DisplayPoints(), len(e.Trees()))
	}

	e = withPoints(1000)
	tree, err := e.Plant(Point{X: 100, Y: 300})
	if err != nil {
		t.Fatal(err)
	}
	if !e.Points().IsZero() || tree.Stage != 1 {
		t.Errorf("after plant: points=%s tree=%+v", e.Points(), tree)
	}
}

func TestPlantClampsPosition(t *testing.T) {
	tests := []struct {
		in   Point
		want Point
	}{
		{Point{X: 0, Y: 0}, Point{X: 40, Y: 200}},
		{Point{X: 5000, Y: 5000}, Point{X: 1240, Y: 680}},
		{Point{X: 640, Y: 400}, Point{X: 640, Y: 400}},
	}
	for _, tt := range tests {
		e := withPoints(1000)
		tree, err := e.Plant(tt.in)
		if err != nil {
			t.Fatal(err)
		}
		if tree.X != tt.want.X || tree.Y != tt.want.Y {
			t.Errorf("Plant(%+v) at (%v, %v), want %+v", tt.in, tree.X, tree.Y, tt.want)
		}
	}
}

func TestWaterGrowsOneStage(t *testing.T) {
	e := withPoints(3000)
	e.Plant(Point{X: 100, Y: 300})

	if _, err := e.Water(); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("water without selection err = %v", err)
	}
	if e.SelectNearest(Point{X: 500, Y: 500}) != -1 {
		t.Fatal("far click should not select")
	}
	if e.SelectNearest(Point{X: 110, Y: 310}) != 0 {
		t.Fatal("near click should select the tree")
	}
	for want := 2; want <= 3; want++ {
		tree, err := e.Water()
		if err != nil || tree.Stage != want {
			t.Fatalf("water: %+v, %v", tree, err)
		}
	}
	if _, err := e.Water(); !errors.Is(err, ErrFullyGrown) {
		t.Errorf("water at stage 3 err = %v", err)
	}
	if e.DisplayPoints() != 1000 {
		t.Errorf("points = %d, want 1000", e.DisplayPoints())
	}
}

func TestWaterNeedsPoints(t *testing.T) {
	e := withPoints(1400)
	e.Plant(Point{X: 100, Y: 300})
	e.SelectNext()
	if _, err := e.Water(); !errors.Is(err, ErrInsufficientPoints) {
		t.Fatalf("err = %v", err)
	}
	if e.Trees()[0].Stage != 1 {
		t.Error("rejected water grew the tree")
	}
}

func TestSellRefundsAndClearsSelection(t *testing.T) {
	e := withPoints(2000)
	e.Plant(Point{X: 100, Y: 300})
	e.Plant(Point{X: 300, Y: 300})
	if err := e.Sell(); !errors.Is(err, ErrNoSelection) {
		t.Fatalf("sell without selection err = %v", err)
	}
	e.SelectNext()
	e.SelectNext()
	if err := e.Sell(); err != nil {
		t.Fatal(err)
	}
	if e.DisplayPoints() != 5 || len(e.Trees()) != 1 || e.Selected() != -1 {
		t.Errorf("after sell: %d pts, %d trees, selected %d", e.DisplayPoints(), len(e.Trees()), e.Selected())
	}
	if e.Trees()[0].X != 100 {
		t.Error("sold the wrong tree")
	}
}

func TestSelectNextCycles(t *testing.T) {
	e := withPoints(3000)
	if _, err := e.SelectNext(); !errors.Is(err, ErrNoTrees) {
		t.Fatalf("err = %v", err)
	}
	for i := 0; i < 3; i++ {
		e.Plant(Point{X: float64(100 + i*100), Y: 300})
	}
	var got []int
	for i := 0; i < 4; i++ {
		idx, _ := e.SelectNext()
		got = append(got, idx)
	}
	want := []int{0, 1, 2, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("SelectNext sequence = %v, want %v", got, want)
		}
	}
}

func TestWindAccrual(t *testing.T) {
	e := withPoints(5000)
	if _, err := e.BuildWind(Point{X: 0, Y: 0}); err != nil {
		t.Fatal(err)
	}
	if e.WindCount() != 1 || !e.Points().IsZero() {
		t.Fatalf("wind=%d points=%s", e.WindCount(), e.Points())
	}
	// 1800 steps of 50ms is 90s of income at 1/1800 pts/s.
	for i := 0; i < 1800; i++ {
		e.Advance(50 * time.Millisecond)
	}
	got := e.Points().InexactFloat64()
	if got < 0.0499 || got > 0.0501 {
		t.Errorf("points after 90s = %f, want 0.05", got)
	}
	if e.DisplayPoints() != 0 {
		t.Error("display points should floor fractional income")
	}
}

func TestAdvanceClampsStep(t *testing.T) {
	e := withPoints(5000)
	e.BuildWind(Point{X: 200, Y: 300})
	earned := e.Advance(time.Hour)
	limit := decimal.NewFromFloat(1.0 / 1800 * 0.05)
	if earned.Sub(limit).Abs().GreaterThan(decimal.New(1, -12)) {
		t.Errorf("earned %s in one clamped step, want %s", earned, limit)
	}
	if !e.Advance(-time.Second).IsZero() {
		t.Error("negative dt should earn nothing")
	}
}

func TestAdvanceMovesTowardTarget(t *testing.T) {
	e := New(DefaultConfig())
	start := e.Position()
	e.SetTarget(Point{X: start.X + 100, Y: start.Y})
	e.Advance(50 * time.Millisecond)
	if got := e.Position().X - start.X; got < 12.9 || got > 13.1 {
		t.Errorf("moved %f px in 50ms, want 13", got)
	}
}

func TestGrowthBoost(t *testing.T) {
	tests := []struct {
		leader int64
		want   float64
	}{
		{0, 1}, {500, 1.5}, {1000, 2}, {99999, 2}, {-5, 1},
	}
	for _, tt := range tests {
		if got := GrowthBoost(tt.leader); got != tt.want {
			t.Errorf("GrowthBoost(%d) = %v, want %v", tt.leader, got, tt.want)
		}
	}
}

func TestImportClampsStages(t *testing.T) {
	e := withPoints(42)
	e.Import(types.ForestSave{
		Player: types.ForestPlayer{Name: "x", Points: 9000, Wind: 2},
		Trees:  []types.Tree{{X: 1, Y: 2, Stage: 0}, {X: 3, Y: 4, Stage: 7}, {X: 5, Y: 6, Stage: 2}},
	}, true)
	stages := []int{1, 3, 2}
	for i, tr := range e.Trees() {
		if tr.Stage != stages[i] {
			t.Errorf("tree %d stage = %d, want %d", i, tr.Stage, stages[i])
		}
	}
	if e.DisplayPoints() != 42 || e.WindCount() != 2 {
		t.Errorf("keepPoints import: %d pts, %d winds", e.DisplayPoints(), e.WindCount())
	}
	e.Import(types.ForestSave{Player: types.ForestPlayer{Points: 12.5}}, false)
	if e.Points().String() != "12.5" {
		t.Errorf("points = %s", e.Points())
	}
}

type setterLedger struct {
	*ledger.Snapshot
	sets int
}

func (l *setterLedger) SetTotal(ctx context.Context, name string, total int64) types.PlayerRecord {
	l.sets++
	return l.Snapshot.SetTotal(ctx, name, total)
}

func newSetterLedger() *setterLedger {
	return &setterLedger{Snapshot: ledger.NewSnapshot(ledger.NewKVStore(storage.NewMemoryKV()), ledger.Additive)}
}

func TestSessionOpenLoadsLedgerTotalAndSave(t *testing.T) {
	ctx := context.Background()
	l := newSetterLedger()
	l.UpsertAndAdd(ctx, "Olive", 2500)
	kv := storage.NewMemoryKV()

	s := NewSession(DefaultConfig(), l, kv)
	if err := s.Open(ctx, "  Olive  "); err != nil {
		t.Fatal(err)
	}
	if v := s.View(); v.Points != 2500 || v.Name != "Olive" {
		t.Fatalf("view after open = %+v", v)
	}
	s.Do(ctx, func(e *Economy) error {
		_, err := e.Plant(Point{X: 300, Y: 300})
		return err
	})
	if err := s.Save(ctx); err != nil {
		t.Fatal(err)
	}
	if got := ledger.TotalFor(ctx, l, "olive"); got != 1500 {
		t.Errorf("shared total after plant = %d, want 1500", got)
	}

	again := NewSession(DefaultConfig(), l, kv)
	again.Open(ctx, "OLIVE")
	v := again.View()
	if len(v.Trees) != 1 || v.Points != 1500 {
		t.Errorf("reopened view = %+v", v)
	}

	var board []types.BoardEntry
	raw, _ := kv.Get(BoardKey)
	json.Unmarshal(raw, &board)
	if len(board) != 1 || board[0].Score != 1500 || board[0].Trees != 1 {
		t.Errorf("board = %+v", board)
	}
}

func TestSessionOpenNewPlayerGetsStartPoints(t *testing.T) {
	s := NewSession(DefaultConfig(), newSetterLedger(), storage.NewMemoryKV())
	s.Open(context.Background(), "New   Player")
	v := s.View()
	if v.Points != 100 || v.Name != "New Player" {
		t.Errorf("view = %+v", v)
	}
}

func TestSessionOpenLongNames(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	kv, err := storage.NewFileKV(dir)
	if err != nil {
		t.Fatal(err)
	}

	l := newSetterLedger()
	name := strings.Repeat("🌳", MaxNameLength)
	l.UpsertAndAdd(ctx, name, 2500)

	s := NewSession(DefaultConfig(), l, kv)
	if err := s.Open(ctx, strings.Repeat("a", MaxNameLength+1)); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("Open(65 runes) error = %v, want ErrNameTooLong", err)
	}

	if err := s.Open(ctx, name); err != nil {
		t.Fatalf("Open(64 emoji) failed: %v", err)
	}
	s.Do(ctx, func(e *Economy) error {
		_, err := e.Plant(Point{X: 300, Y: 300})
		return err
	})
	if err := s.Save(ctx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	again := NewSession(DefaultConfig(), nil, kv)
	if err := again.Open(ctx, name); err != nil {
		t.Fatal(err)
	}
	if v := again.View(); len(v.Trees) != 1 {
		t.Errorf("reopened trees = %d, want 1", len(v.Trees))
	}
}

func TestSessionCorruptSaveFallsBack(t *testing.T) {
	kv := storage.NewMemoryKV()
	kv.Set(SaveKey("pia"), []byte("{not json"))
	s := NewSession(DefaultConfig(), nil, kv)
	if err := s.Open(context.Background(), "Pia"); err != nil {
		t.Fatal(err)
	}
	if v := s.View(); len(v.Trees) != 0 || v.Points != 100 {
		t.Errorf("view = %+v", v)
	}
}

func TestSessionFrameSyncsOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	l := newSetterLedger()
	l.UpsertAndAdd(ctx, "Quinn", 5000)
	s := NewSession(DefaultConfig(), l, nil)
	s.Open(ctx, "Quinn")

	for i := 0; i < 10; i++ {
		s.Frame(ctx, 16*time.Millisecond)
	}
	if l.sets != 0 {
		t.Fatalf("synced %d times without a change", l.sets)
	}
	s.Do(ctx, func(e *Economy) error {
		_, err := e.BuildWind(Point{X: 300, Y: 300})
		return err
	})
	if l.sets != 1 || ledger.TotalFor(ctx, l, "Quinn") != 0 {
		t.Errorf("sets=%d total=%d", l.sets, ledger.TotalFor(ctx, l, "Quinn"))
	}
}

func TestRunLoopSavesOnCancel(t *testing.T) {
	kv := storage.NewMemoryKV()
	s := NewSession(DefaultConfig(), nil, kv)
	s.Open(context.Background(), "Rae")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.RunLoop(ctx, time.Millisecond, time.Hour) }()
	time.Sleep(10 * time.Millisecond)
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("RunLoop err = %v", err)
	}
	if _, err := kv.Get(SaveKey("Rae")); err != nil {
		t.Errorf("no final save: %v", err)
	}
}
