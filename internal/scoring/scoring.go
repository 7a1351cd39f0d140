// Package scoring holds the static game content and the pure functions that
// turn a game action into a signed point delta.
package scoring

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
)

// MatchPolicy scores the pair-matching game.
type MatchPolicy struct {
	MatchPoints    int
	MismatchPoints int
	// BonusCap is the efficiency bonus for a perfect game; zero disables it.
	BonusCap int
}

// Pair returns the delta for one comparison.
func (p MatchPolicy) Pair(matched bool) int {
	if matched {
		return p.MatchPoints
	}
	return p.MismatchPoints
}

// EfficiencyBonus is max(0, cap − max(0, moves − totalPairs)).
func (p MatchPolicy) EfficiencyBonus(moves, totalPairs int) int {
	if p.BonusCap <= 0 {
		return 0
	}
	return max(0, p.BonusCap-max(0, moves-totalPairs))
}

var (
	// EnergySaverMatch is the pairs game shipped with the energy page.
	EnergySaverMatch = MatchPolicy{MatchPoints: 2, MismatchPoints: 0, BonusCap: 6}
	// ClassicMatch is the standalone pairs game.
	ClassicMatch = MatchPolicy{MatchPoints: 10, MismatchPoints: -1}
)

// SortPolicy scores the waste-sorting game.
type SortPolicy struct {
	CorrectPoints int
	PenaltyPoints int
}

// DefaultSort awards 10 per correct drop and takes 5 per wrong one.
var DefaultSort = SortPolicy{CorrectPoints: 10, PenaltyPoints: 5}

// Apply returns the new score after a drop. Penalties floor at zero; gains
// are never capped.
func (p SortPolicy) Apply(score int, correct bool) int {
	if correct {
		return score + p.CorrectPoints
	}
	return max(0, score-p.PenaltyPoints)
}

// SwitchPolicy scores the timed switch-off game.
type SwitchPolicy struct {
	PointsPerOff int
}

var DefaultSwitch = SwitchPolicy{PointsPerOff: 10}

// TurnOff returns the delta for one accepted switch-off.
func (p SwitchPolicy) TurnOff() int { return p.PointsPerOff }

// ActionsPerSecond is offCount / totalSeconds; zero for an empty round.
func ActionsPerSecond(offCount int, totalSeconds float64) float64 {
	if totalSeconds <= 0 {
		return 0
	}
	return float64(offCount) / totalSeconds
}

// Card is one entry of the pairs template. Two cards with the same ID form a
// pair.
type Card struct {
	ID   string `json:"id"`
	Kind string `json:"kind"`
	Text string `json:"text"`
}

const (
	KindGood = "good"
	KindBad  = "bad"
)

// EnergyPairs is the fixed 12-card template.
var EnergyPairs = []Card{
	{ID: "lights", Kind: KindBad, Text: "Leave lights on"},
	{ID: "lights", Kind: KindGood, Text: "Turn off lights"},
	{ID: "water", Kind: KindBad, Text: "Long shower"},
	{ID: "water", Kind: KindGood, Text: "5-minute shower"},
	{ID: "charger", Kind: KindBad, Text: "Charger always plugged"},
	{ID: "charger", Kind: KindGood, Text: "Unplug when full"},
	{ID: "ac", Kind: KindBad, Text: "AC at 18°C"},
	{ID: "ac", Kind: KindGood, Text: "Set 24–26°C"},
	{ID: "laundry", Kind: KindBad, Text: "Half-load hot"},
	{ID: "laundry", Kind: KindGood, Text: "Full-load cold"},
	{ID: "transport", Kind: KindBad, Text: "Short car trip"},
	{ID: "transport", Kind: KindGood, Text: "Walk / cycle"},
}

// ValidatePairs checks that every card ID appears exactly twice.
func ValidatePairs(cards []Card) error {
	counts := lo.CountValuesBy(cards, func(c Card) string { return c.ID })
	for id, n := range counts {
		if n != 2 {
			return fmt.Errorf("card %q appears %d times, want 2", id, n)
		}
	}
	if len(cards) == 0 {
		return fmt.Errorf("empty card template")
	}
	return nil
}

func init() {
	if err := ValidatePairs(EnergyPairs); err != nil {
		panic(err)
	}
	if err := validateBins(); err != nil {
		panic(err)
	}
}

// Normalize lower-cases and trims a lookup key.
func Normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
