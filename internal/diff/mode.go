package diff

import (
	"fmt"
	"strings"
)

// Mode selects which pair of snapshots is compared
type Mode string

const (
	// Prev compares the last two saved snapshots.
	Prev Mode = "prev"
	// Now compares the last saved snapshot to the live unsaved buffer.
	Now Mode = "now"
)

// ParseMode accepts "prev" or "now" in any case. The empty string selects Now.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Prev:
		return Prev, nil
	case Now, "":
		return Now, nil
	}
	return "", fmt.Errorf("unknown diff mode %q (want prev or now)", s)
}

// Label returns the caption for a diff in this mode
func (m Mode) Label(noDifferences bool) string {
	if m == Prev {
		return "Edits made by most recent save"
	}
	if noDifferences {
		return "No unsaved edits"
	}
	return "Unsaved edits"
}

// Versions is the three-slot view of a file the modes read from
type Versions struct {
	PreviousSaved *string
	CurrentSaved  string
	LiveUnsaved   *string
}

// Compute runs the engine for the given mode.
//
// Prev diffs PreviousSaved (or "" if there is none) against CurrentSaved.
// Now diffs CurrentSaved against LiveUnsaved, falling back to CurrentSaved
// when the buffer is clean, which yields NoDifferences.
func Compute(v Versions, mode Mode) Result {
	switch mode {
	case Prev:
		prev := ""
		if v.PreviousSaved != nil {
			prev = *v.PreviousSaved
		}
		return newResult(Prev, Lines(prev, v.CurrentSaved))
	default:
		live := v.CurrentSaved
		if v.LiveUnsaved != nil {
			live = *v.LiveUnsaved
		}
		return newResult(Now, Lines(v.CurrentSaved, live))
	}
}
