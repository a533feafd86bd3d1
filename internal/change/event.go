// internal/change/event.go
package change

import (
	"fmt"

	"precursor/internal/errors"
)

// Kind names an environment notification
type Kind string

const (
	Opened     Kind = "opened"
	Changed    Kind = "changed"
	Saved      Kind = "saved"
	Closed     Kind = "closed"
	DiskWrite  Kind = "disk_write"
	DiskRemove Kind = "disk_remove"
)

// Event is one raw notification from the editor or the file system.
// Content and Dirty apply to Opened, Changed and Saved; WasDirty to Closed.
type Event struct {
	Kind     Kind   `json:"kind"`
	Path     string `json:"path"`
	Content  string `json:"content,omitempty"`
	Dirty    bool   `json:"dirty,omitempty"`
	WasDirty bool   `json:"was_dirty,omitempty"`
	// Untitled marks a buffer with no backing file. Path is then the buffer
	// name; an untitled Opened event may leave it empty to get a fresh name.
	Untitled bool `json:"untitled,omitempty"`
}

// Validate checks the event has what its kind needs
func (e Event) Validate() error {
	switch e.Kind {
	case Opened, Changed, Saved, Closed:
		if e.Path == "" && !(e.Untitled && e.Kind == Opened) {
			return errors.ValidationError("path is required", e.Kind)
		}
	case DiskWrite, DiskRemove:
		if e.Path == "" {
			return errors.ValidationError("path is required", e.Kind)
		}
	default:
		return errors.ValidationError(fmt.Sprintf("unknown event kind %q", e.Kind), nil)
	}
	return nil
}

func (e Event) String() string {
	return fmt.Sprintf("%s %s", e.Kind, e.Path)
}
