package report

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"depot-backend/internal/models"
)

var volumePattern = regexp.MustCompile(`(?i)^\s*(\d+(?:[.,]\d+)?)\s*(ml|l|lt|ltr|litre|liter|litres|liters)?\s*$`)

// ParseVolume reads labels such as "500ml", "1.5 L", "2,5ltr" or "330" (millilitres).
func ParseVolume(label string) (ml float64, ok bool) {
	m := volumePattern.FindStringSubmatch(label)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.Replace(m[1], ",", ".", 1), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(m[2]) {
	case "", "ml":
		return v, true
	default:
		return v * 1000, true
	}
}

// SizeLabelLess orders by volume; labels that are not volumes go last, alphabetically.
func SizeLabelLess(a, b string) bool {
	va, okA := ParseVolume(a)
	vb, okB := ParseVolume(b)
	switch {
	case okA && okB && va != vb:
		return va < vb
	case okA != okB:
		return okA
	}
	return strings.ToLower(a) < strings.ToLower(b)
}

// SortItems orders items by size label, then name.
func SortItems(items []models.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].SizeLabel != items[j].SizeLabel {
			return SizeLabelLess(items[i].SizeLabel, items[j].SizeLabel)
		}
		return strings.ToLower(items[i].Name) < strings.ToLower(items[j].Name)
	})
}
