package scoring

import (
	"slices"

	"github.com/samber/lo"
)

// Devices are the appliances of the switch-off room, in draw order.
var Devices = []string{"bigbulb", "fancylight", "lamp", "tv"}

// Challenge is a real-world task verified from photo labels.
type Challenge struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Points      int      `json:"points"`
	Icon        string   `json:"icon"`
	Keywords    []string `json:"keywords"`
}

var Challenges = []Challenge{
	{
		ID:          "plant-sapling",
		Title:       "Plant a Sapling",
		Description: "Plant a tree in your garden or a community area.",
		Points:      60,
		Icon:        "🌳",
		Keywords:    []string{"tree", "plant", "sapling", "gardening", "soil", "leaf"},
	},
	{
		ID:          "waste-free-day",
		Title:       "Waste-Free Wednesday",
		Description: "Go an entire day without using any single-use plastics.",
		Points:      60,
		Icon:        "♻️",
		Keywords:    []string{"reusable", "bottle", "cup", "container", "bag", "flask"},
	},
	{
		ID:          "mini-composter",
		Title:       "Build a Mini Composter",
		Description: "Create a small compost bin for your kitchen scraps.",
		Points:      60,
		Icon:        "🌱",
		Keywords:    []string{"compost", "jar", "soil", "peel", "food", "bin"},
	},
}

// FindChallenge looks a challenge up by ID.
func FindChallenge(id string) (Challenge, bool) {
	return lo.Find(Challenges, func(c Challenge) bool { return c.ID == Normalize(id) })
}

// ChallengeMatches reports whether any label equals one of the keywords.
func ChallengeMatches(c Challenge, labels []string) bool {
	normalized := lo.Map(labels, func(l string, _ int) string { return Normalize(l) })
	return lo.SomeBy(c.Keywords, func(k string) bool { return slices.Contains(normalized, k) })
}
