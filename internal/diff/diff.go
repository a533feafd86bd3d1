// internal/diff/diff.go
package diff

import (
	"bytes"
	"fmt"
	"strings"
)

// Kind indicates whether a line was added, removed, or left unchanged
type Kind int

const (
	Unchanged Kind = iota
	Removed
	Added
)

func (k Kind) String() string {
	switch k {
	case Removed:
		return "removed"
	case Added:
		return "added"
	default:
		return "unchanged"
	}
}

// Line is a single line-level change record
type Line struct {
	Kind Kind   `json:"kind"`
	Text string `json:"text"`
}

// Stats summarizes a diff
type Stats struct {
	Unchanged int `json:"unchanged"`
	Additions int `json:"additions"`
	Deletions int `json:"deletions"`
}

// Changes is the number of added plus removed lines
func (s Stats) Changes() int {
	return s.Additions + s.Deletions
}

// SplitLines splits text on "\n", dropping a trailing "\r" from each line.
// The empty string has no lines.
func SplitLines(text string) []string {
	if text == "" {
		return nil
	}
	lines := strings.Split(text, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	return lines
}

// Lines computes a positional line diff between oldText and newText.
//
// Index i of the old text is compared with index i of the new text only; no
// alignment is attempted, so an inserted line makes every following line show
// up as a removed/added pair. Callers rely on this line-count alignment.
func Lines(oldText, newText string) []Line {
	oldLines := SplitLines(oldText)
	newLines := SplitLines(newText)

	n := max(len(oldLines), len(newLines))
	out := make([]Line, 0, n)
	for i := 0; i < n; i++ {
		hasOld := i < len(oldLines)
		hasNew := i < len(newLines)

		if hasOld && hasNew && oldLines[i] == newLines[i] {
			out = append(out, Line{Kind: Unchanged, Text: oldLines[i]})
			continue
		}
		if hasOld {
			out = append(out, Line{Kind: Removed, Text: oldLines[i]})
		}
		if hasNew {
			out = append(out, Line{Kind: Added, Text: newLines[i]})
		}
	}
	return out
}

// Result contains the complete diff for one mode
type Result struct {
	Mode          Mode   `json:"mode"`
	Lines         []Line `json:"lines"`
	Stats         Stats  `json:"stats"`
	NoDifferences bool   `json:"no_differences"`
	computed      bool
}

// Computed reports whether the result came from running the engine, as
// opposed to the zero Result.
func (r Result) Computed() bool {
	return r.computed
}

// Label returns the caption shown above the rendered diff
func (r Result) Label() string {
	return r.Mode.Label(r.NoDifferences)
}

func newResult(mode Mode, lines []Line) Result {
	r := Result{Mode: mode, Lines: lines, computed: true}
	for _, l := range lines {
		switch l.Kind {
		case Added:
			r.Stats.Additions++
		case Removed:
			r.Stats.Deletions++
		default:
			r.Stats.Unchanged++
		}
	}
	r.NoDifferences = r.Stats.Changes() == 0
	return r
}

// Format returns a string representation of the diff
func (r Result) Format() string {
	var buf bytes.Buffer

	for _, line := range r.Lines {
		buf.WriteString(Prefix(line.Kind))
		buf.WriteString(line.Text)
		buf.WriteString("\n")
	}

	return buf.String()
}

// Prefix is the two-column marker written before a line of the given kind
func Prefix(k Kind) string {
	switch k {
	case Added:
		return "+ "
	case Removed:
		return "- "
	default:
		return "  "
	}
}

// Summary is a one-line description of the stats, e.g. "+2 -1"
func (r Result) Summary() string {
	return fmt.Sprintf("+%d -%d", r.Stats.Additions, r.Stats.Deletions)
}
