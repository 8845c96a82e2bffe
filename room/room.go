package room

import (
	"math/rand"
	"strconv"

	"github.com/hovercast/hovercast-coordinator/types"
)

// Palette is the fixed set of display colors participants are assigned
// from. Colors are room-unique while the palette lasts, then reused
// round-robin.
var Palette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8", "#f58231",
	"#911eb4", "#46f0f0", "#f032e6", "#bcf60c", "#fabebe",
	"#008080", "#e6beff", "#9a6324", "#fffac8", "#800000",
	"#aaffc3", "#808000", "#ffd8b1", "#000075", "#808080",
}

// PickColor returns a random palette color not currently in use in the
// room. When the palette is exhausted it falls back to round-robin over
// the full palette, keyed by the roster size.
func PickColor(used []string) string {
	inUse := make(map[string]struct{}, len(used))
	for _, c := range used {
		inUse[c] = struct{}{}
	}
	free := make([]string, 0, len(Palette))
	for _, c := range Palette {
		if _, ok := inUse[c]; !ok {
			free = append(free, c)
		}
	}
	if len(free) == 0 {
		return Palette[len(used)%len(Palette)]
	}
	return free[rand.Intn(len(free))]
}

// ValidColor reports whether a client-requested color is in the palette.
func ValidColor(color string) bool {
	for _, c := range Palette {
		if c == color {
			return true
		}
	}
	return false
}

// ValidateHandle enforces the handle rules: 1..maxLen characters out of
// [A-Za-z0-9_-]. Violations surface as InvalidInput before any roster
// mutation happens.
func ValidateHandle(handle string, maxLen int) error {
	if len(handle) == 0 || len(handle) > maxLen {
		return types.ErrInvalidInput(types.ErrorContextBanner, "ERR_HANDLE_LENGTH: handle must be 1 to "+strconv.Itoa(maxLen)+" characters")
	}
	for _, r := range handle {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_' || r == '-':
		default:
			return types.ErrInvalidInput(types.ErrorContextBanner, "ERR_HANDLE_CHARSET: handle may only contain letters, digits, _ and -")
		}
	}
	return nil
}
