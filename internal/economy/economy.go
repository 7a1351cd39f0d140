// Package economy implements the idle forest: points accrue from wind
// generators and are spent on planting, watering and building.
package economy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"ecogame/internal/types"
)

var (
	ErrInsufficientPoints = errors.New("not enough points")
	ErrNoSelection        = errors.New("select a plant first")
	ErrFullyGrown         = errors.New("this tree is fully grown")
	ErrNoTrees            = errors.New("there are no plants to select")
)

const MaxStage = 3

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Costs struct {
	Tree       decimal.Decimal
	Water      decimal.Decimal
	Wind       decimal.Decimal
	SellRefund decimal.Decimal
}

type Config struct {
	Costs       Costs
	WindRate    decimal.Decimal // points per second per generator
	StartPoints decimal.Decimal
	MaxStep     time.Duration
	Width       float64
	Height      float64
	// SelectRadius bounds SelectNearest.
	SelectRadius float64
	// Speed is how fast the gardener walks toward its target, in px/s.
	Speed float64
}

// DefaultConfig returns the stock economy tuning.
func DefaultConfig() Config {
	return Config{
		Costs: Costs{
			Tree:       decimal.NewFromInt(1000),
			Water:      decimal.NewFromInt(500),
			Wind:       decimal.NewFromInt(5000),
			SellRefund: decimal.NewFromInt(5),
		},
		WindRate:     decimal.NewFromInt(1).Div(decimal.NewFromInt(1800)),
		StartPoints:  decimal.NewFromInt(100),
		MaxStep:      50 * time.Millisecond,
		Width:        1280,
		Height:       720,
		SelectRadius: 42,
		Speed:        260,
	}
}

// Economy is one player's forest. It is not safe for concurrent use; see
// Session.
type Economy struct {
	cfg Config

	points    decimal.Decimal
	trees     []types.Tree
	winds     []types.Wind
	windCount int
	selected  int

	pos    Point
	target Point
}

// New returns an empty forest with the starting balance and the player
// near the bottom of the field.
func New(cfg Config) *Economy {
	start := Point{X: cfg.Width * 0.5, Y: cfg.Height * 0.8}
	return &Economy{
		cfg:      cfg,
		points:   cfg.StartPoints,
		selected: -1,
		pos:      start,
		target:   start,
	}
}

// Advance runs one frame of dt, clamped to MaxStep, and returns the points
// earned.
func (e *Economy) Advance(dt time.Duration) decimal.Decimal {
	if dt <= 0 {
		return decimal.Zero
	}
	dt = min(dt, e.cfg.MaxStep)
	secs := dt.Seconds()

	dx, dy := e.target.X-e.pos.X, e.target.Y-e.pos.Y
	if d := math.Hypot(dx, dy); d > 2 {
		step := math.Min(d, e.cfg.Speed*secs)
		e.pos.X += dx / d * step
		e.pos.Y += dy / d * step
	}

	passive := decimal.Zero
	for _, w := range e.winds {
		passive = passive.Add(decimal.NewFromFloat(w.PointsPerSecond))
	}
	earned := passive.Mul(decimal.NewFromFloat(secs))
	e.points = e.points.Add(earned)
	return earned
}

func (e *Economy) spend(cost decimal.Decimal, what string) error {
	if e.points.LessThan(cost) {
		return fmt.Errorf("%w: need %s pts to %s", ErrInsufficientPoints, cost.String(), what)
	}
	e.points = e.points.Sub(cost)
	return nil
}

// Plant puts a stage 1 tree at p, clamped to the planting strip.
func (e *Economy) Plant(p Point) (types.Tree, error) {
	if err := e.spend(e.cfg.Costs.Tree, "plant"); err != nil {
		return types.Tree{}, err
	}
	t := types.Tree{
		X:     clamp(p.X, 40, e.cfg.Width-40),
		Y:     clamp(p.Y, 200, e.cfg.Height-40),
		Stage: 1,
	}
	e.trees = append(e.trees, t)
	return t, nil
}

// Water grows the selected tree by one stage.
func (e *Economy) Water() (types.Tree, error) {
	if !e.hasSelection() {
		return types.Tree{}, ErrNoSelection
	}
	t := &e.trees[e.selected]
	if t.Stage >= MaxStage {
		return *t, ErrFullyGrown
	}
	if err := e.spend(e.cfg.Costs.Water, "water"); err != nil {
		return *t, err
	}
	t.Stage++
	return *t, nil
}

// BuildWind adds a generator at p, clamped to the build area.
func (e *Economy) BuildWind(p Point) (types.Wind, error) {
	if err := e.spend(e.cfg.Costs.Wind, "build a windmill"); err != nil {
		return types.Wind{}, err
	}
	w := types.Wind{
		X:               clamp(p.X, 60, e.cfg.Width-60),
		Y:               clamp(p.Y, 240, e.cfg.Height-60),
		PointsPerSecond: e.cfg.WindRate.InexactFloat64(),
	}
	e.winds = append(e.winds, w)
	e.windCount++
	return w, nil
}

// Sell removes the selected tree for a flat refund and clears the selection.
func (e *Economy) Sell() error {
	if !e.hasSelection() {
		return ErrNoSelection
	}
	e.trees = append(e.trees[:e.selected], e.trees[e.selected+1:]...)
	e.points = e.points.Add(e.cfg.Costs.SellRefund)
	e.selected = -1
	return nil
}

// SelectNearest selects the closest tree within SelectRadius of p, or clears
// the selection when none is close enough.
func (e *Economy) SelectNearest(p Point) int {
	best, bd := -1, e.cfg.SelectRadius*e.cfg.SelectRadius
	for i, t := range e.trees {
		dx, dy := t.X-p.X, t.Y-p.Y
		if d := dx*dx + dy*dy; d <= bd {
			best, bd = i, d
		}
	}
	e.selected = best
	return best
}

// SelectNext cycles the selection through the trees.
func (e *Economy) SelectNext() (int, error) {
	if len(e.trees) == 0 {
		return -1, ErrNoTrees
	}
	e.selected = (e.selected + 1) % len(e.trees)
	return e.selected, nil
}

// SetTarget clamps p to the field; Advance walks toward it.
func (e *Economy) SetTarget(p Point) {
	e.target = Point{X: clamp(p.X, 0, e.cfg.Width), Y: clamp(p.Y, 0, e.cfg.Height)}
}

func (e *Economy) hasSelection() bool {
	return e.selected >= 0 && e.selected < len(e.trees)
}

func (e *Economy) Points() decimal.Decimal { return e.points }

// DisplayPoints is the floored point balance.
func (e *Economy) DisplayPoints() int64 { return e.points.Floor().IntPart() }

func (e *Economy) SetPoints(p decimal.Decimal) { e.points = decimal.Max(p, decimal.Zero) }

func (e *Economy) Trees() []types.Tree { return append([]types.Tree(nil), e.trees...) }
func (e *Economy) Winds() []types.Wind { return append([]types.Wind(nil), e.winds...) }
func (e *Economy) WindCount() int      { return e.windCount }
func (e *Economy) Selected() int       { return e.selected }
func (e *Economy) Position() Point     { return e.pos }

// Export captures the economy as a save blob for name.
func (e *Economy) Export(name string) types.ForestSave {
	return types.ForestSave{
		Player: types.ForestPlayer{Name: name, Points: e.points.InexactFloat64(), Wind: e.windCount},
		Trees:  e.Trees(),
		Winds:  e.Winds(),
	}
}

// Import restores trees and generators from a save. Points are restored
// only when keepPoints is false.
func (e *Economy) Import(s types.ForestSave, keepPoints bool) {
	if !keepPoints {
		e.SetPoints(decimal.NewFromFloat(s.Player.Points))
	}
	e.windCount = max(0, s.Player.Wind)
	e.trees = make([]types.Tree, 0, len(s.Trees))
	for _, t := range s.Trees {
		stage := t.Stage
		if stage == 0 {
			stage = 1
		}
		t.Stage = min(MaxStage, max(1, stage))
		e.trees = append(e.trees, t)
	}
	e.winds = append([]types.Wind(nil), s.Winds...)
	e.selected = -1
}

// GrowthBoost is the display multiplier derived from the forest board
// leader. It does not change accrual.
func GrowthBoost(leader int64) float64 {
	return 1 + math.Min(1, float64(max(0, leader))/1000)
}

func clamp(v, lo, hi float64) float64 {
	if hi < lo {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
