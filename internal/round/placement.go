package round

import (
	"math"
	"math/rand/v2"
	"slices"
)

// Area is the playable surface in pixels.
type Area struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

var DefaultArea = Area{Width: 1280, Height: 720}

type PlacementConfig struct {
	ItemWidth   float64
	ItemHeight  float64
	Padding     float64
	BottomSafe  float64 // reserved for the bins
	MinDistance float64
	MaxTries    int
}

var DefaultPlacement = PlacementConfig{
	ItemWidth:   72,
	ItemHeight:  72,
	Padding:     16,
	BottomSafe:  140,
	MinDistance: 60,
	MaxTries:    12,
}

// Position is an item's top-left corner in pixels and as a percentage of
// the area.
type Position struct {
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	LeftPct float64 `json:"leftPct"`
	TopPct  float64 `json:"topPct"`
}

// Place scatters ids over the area in shuffled order. Each item retries up
// to MaxTries candidates to keep MinDistance from already placed items, then
// takes the last candidate regardless.
func Place(ids []string, area Area, cfg PlacementConfig, r *rand.Rand) map[string]Position {
	maxLeft := math.Max(0, area.Width-cfg.ItemWidth-cfg.Padding*2)
	maxTop := math.Max(0, area.Height-cfg.BottomSafe-cfg.ItemHeight-cfg.Padding*2)

	order := slices.Clone(ids)
	Shuffle(r, order)

	placed := make([]Position, 0, len(order))
	out := make(map[string]Position, len(order))
	for _, id := range order {
		var x, y float64
		for tries := 0; ; {
			x = r.Float64()*maxLeft + cfg.Padding
			y = r.Float64()*maxTop + cfg.Padding
			tries++
			if tries >= cfg.MaxTries || !collides(placed, x, y, cfg.MinDistance) {
				break
			}
		}
		p := Position{X: x, Y: y}
		if area.Width > 0 {
			p.LeftPct = round2(x / area.Width * 100)
		}
		if area.Height > 0 {
			p.TopPct = round2(y / area.Height * 100)
		}
		placed = append(placed, p)
		out[id] = p
	}
	return out
}

func collides(placed []Position, x, y, minDist float64) bool {
	return slices.ContainsFunc(placed, func(p Position) bool {
		return math.Hypot(p.X-x, p.Y-y) < minDist
	})
}

// KeepInBounds clamps percentage coordinates to [0, 98] after a resize.
func KeepInBounds(p Position) Position {
	p.LeftPct = min(98, max(0, p.LeftPct))
	p.TopPct = min(98, max(0, p.TopPct))
	return p
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
