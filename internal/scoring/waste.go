package scoring

import (
	"fmt"
	"slices"

	"github.com/samber/lo"
)

// Bin is a waste category.
type Bin string

const (
	Compost   Bin = "compost"
	Recycle   Bin = "recycle"
	Hazardous Bin = "hazardous"
)

// Bins lists every bin in keyboard order.
var Bins = []Bin{Compost, Recycle, Hazardous}

// ParseBin maps a bin name to a Bin.
func ParseBin(s string) (Bin, bool) {
	b := Bin(Normalize(s))
	return b, slices.Contains(Bins, b)
}

// BinForKey maps the 1/2/3 keyboard shortcuts to bins.
func BinForKey(key string) (Bin, bool) {
	switch key {
	case "1":
		return Compost, true
	case "2":
		return Recycle, true
	case "3":
		return Hazardous, true
	}
	return "", false
}

// WasteItems maps each of the 14 sortable items to its correct bin.
var WasteItems = map[string]Bin{
	"banana":     Compost,
	"battery":    Hazardous,
	"paper":      Recycle,
	"bottle":     Recycle,
	"apple":      Compost,
	"fishbone":   Compost,
	"plasticbag": Recycle,
	"chips":      Recycle,
	"phone":      Hazardous,
	"cloth":      Recycle,
	"glass":      Recycle,
	"cardboard":  Recycle,
	"joystick":   Hazardous,
	"bone":       Compost,
}

// WasteItemIDs returns the item IDs in a stable order.
func WasteItemIDs() []string {
	ids := lo.Keys(WasteItems)
	slices.Sort(ids)
	return ids
}

// CorrectBin returns the bin an item belongs in.
func CorrectBin(item string) (Bin, bool) {
	b, ok := WasteItems[Normalize(item)]
	return b, ok
}

var praise = map[Bin]string{
	Recycle:   "Great! Recycling saves energy.",
	Compost:   "Nice! Compost turns scraps into soil.",
	Hazardous: "Good job! Hazardous waste kept safe.",
}

// Praise is shown after a correct drop.
func Praise(b Bin) string {
	if msg, ok := praise[b]; ok {
		return msg
	}
	return "Well done!"
}

var critique = map[string]string{
	"banana":     "Food scraps belong in compost.",
	"battery":    "Batteries are hazardous, never bin normally.",
	"paper":      "Paper goes to recycling.",
	"bottle":     "Plastics go to recycling.",
	"apple":      "Food scraps belong in compost.",
	"fishbone":   "Organic waste should be composted.",
	"plasticbag": "Bags go to recycling.",
	"chips":      "Wrappers go to recycling if accepted.",
	"phone":      "E-waste is hazardous; use e-waste bins.",
	"cloth":      "Textiles: send to textile recycling if available.",
	"glass":      "Glass belongs in recycling.",
	"cardboard":  "Cardboard goes to recycling.",
	"joystick":   "E-waste is hazardous; use e-waste bins.",
	"bone":       "Bones are organic; compost them.",
}

// BinLabel is the bin name as used in sentences.
func BinLabel(b Bin) string {
	if b == Recycle {
		return "recycling"
	}
	return string(b)
}

// Critique explains a wrong drop and names the bin the item belongs in.
func Critique(item string) string {
	why, ok := critique[Normalize(item)]
	if !ok {
		why = "Not quite."
	}
	if b, ok := CorrectBin(item); ok {
		return fmt.Sprintf("%s Try %s.", why, BinLabel(b))
	}
	return why
}

func validateBins() error {
	for item, b := range WasteItems {
		if !slices.Contains(Bins, b) {
			return fmt.Errorf("item %q maps to unknown bin %q", item, b)
		}
		if _, ok := critique[item]; !ok {
			return fmt.Errorf("item %q has no critique message", item)
		}
	}
	for _, b := range Bins {
		if _, ok := praise[b]; !ok {
			return fmt.Errorf("bin %q has no praise message", b)
		}
	}
	return nil
}
