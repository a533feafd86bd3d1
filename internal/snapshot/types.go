// internal/snapshot/types.go
package snapshot

import (
	"context"
	"strings"
	"time"

	"precursor/internal/diff"
)

// UntrackedPrefix starts the synthetic path of a buffer with no backing file
const UntrackedPrefix = "unsaved/"

// IsUntrackedPath reports whether path names a buffer with no backing file
func IsUntrackedPath(path string) bool {
	return strings.HasPrefix(path, UntrackedPrefix)
}

// Record is the three-slot version state of one file
type Record struct {
	Path          string    `json:"path"`
	PreviousSaved *string   `json:"previous_saved"`
	CurrentSaved  string    `json:"current_saved"`
	LiveUnsaved   *string   `json:"live_unsaved"`
	LastModified  time.Time `json:"last_modified"`
	IsUntracked   bool      `json:"is_untracked"`

	// Detached is set when the buffer closed while dirty.
	Detached bool `json:"detached"`
	// Seq orders records by first observation.
	Seq uint64 `json:"seq"`
}

// IsDirty reports whether the record holds unsaved buffer content
func (r Record) IsDirty() bool {
	return r.LiveUnsaved != nil
}

// Content is what an editor currently shows for the file
func (r Record) Content() string {
	if r.LiveUnsaved != nil {
		return *r.LiveUnsaved
	}
	return r.CurrentSaved
}

// Versions exposes the slots to the diff engine
func (r Record) Versions() diff.Versions {
	return diff.Versions{
		PreviousSaved: r.PreviousSaved,
		CurrentSaved:  r.CurrentSaved,
		LiveUnsaved:   r.LiveUnsaved,
	}
}

// Diff runs the diff engine on this record
func (r Record) Diff(mode diff.Mode) diff.Result {
	return diff.Compute(r.Versions(), mode)
}

// clone returns a copy that shares no pointers with r
func (r Record) clone() Record {
	c := r
	c.PreviousSaved = copyString(r.PreviousSaved)
	c.LiveUnsaved = copyString(r.LiveUnsaved)
	return c
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// Notifier receives every committed mutation, in commit order
type Notifier interface {
	Changed(rec Record)
	Removed(path string)
}

// Sink receives detached records on flush
type Sink interface {
	Archive(ctx context.Context, rec Record) error
}

type nopNotifier struct{}

func (nopNotifier) Changed(Record)  {}
func (nopNotifier) Removed(string) {}
