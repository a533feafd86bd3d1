// internal/view/surface.go
package view

import (
	"fmt"
	"io"
	"sync"

	"precursor/internal/bridge"
	"precursor/internal/diff"
	"precursor/internal/errors"
	"precursor/internal/snapshot"

	"github.com/fatih/color"
	"go.uber.org/zap"
)

// Surface is the receiving side of the bridge. It caches the file list,
// tracks which path is in view under which mode, and re-runs the diff
// locally when a message for that path arrives.
type Surface struct {
	mu      sync.Mutex
	entries map[string]bridge.Entry
	order   []string
	viewing string
	mode    diff.Mode
	result  diff.Result
	logger  *zap.Logger
}

// New returns an empty surface in Now mode
func New(logger *zap.Logger) *Surface {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Surface{
		entries: make(map[string]bridge.Entry),
		mode:    diff.Now,
		logger:  logger,
	}
}

// Hydrate replaces the file list with a serialized payload. A payload that
// cannot be decoded leaves the surface with an empty list.
func (s *Surface) Hydrate(payload []byte) []bridge.Entry {
	entries, err := bridge.DecodeEntries(payload)
	if err != nil {
		s.logger.Warn("hydration payload rejected", zap.Error(err))
		entries = nil
	}
	s.Load(entries)
	return s.Files()
}

// Load replaces the file list. The path in view is kept if it is still listed.
func (s *Surface) Load(entries []bridge.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loadLocked(entries)
}

func (s *Surface) loadLocked(entries []bridge.Entry) {
	s.entries = make(map[string]bridge.Entry, len(entries))
	s.order = s.order[:0]
	for _, e := range entries {
		if _, dup := s.entries[e.Path]; !dup {
			s.order = append(s.order, e.Path)
		}
		s.entries[e.Path] = e
	}

	if _, ok := s.entries[s.viewing]; !ok {
		s.viewing = ""
		s.result = diff.Result{}
		return
	}
	s.recompute()
}

// Files returns the cached list in arrival order
func (s *Surface) Files() []bridge.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]bridge.Entry, 0, len(s.order))
	for _, p := range s.order {
		out = append(out, s.entries[p])
	}
	return out
}

// Entry returns the cached entry for path
func (s *Surface) Entry(path string) (bridge.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	return e, ok
}

// View puts path in view and computes its diff in the current mode
func (s *Surface) View(path string) (diff.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.entries[path]; !ok {
		return diff.Result{}, errors.NotFound(fmt.Sprintf("file %s not listed", path))
	}
	s.viewing = path
	s.recompute()
	return s.result, nil
}

// Back leaves the file view
func (s *Surface) Back() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.viewing = ""
	s.result = diff.Result{}
}

// SetMode switches between Prev and Now and recomputes the view
func (s *Surface) SetMode(mode diff.Mode) diff.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mode = mode
	if s.viewing != "" {
		s.recompute()
	}
	return s.result
}

// Viewing is the path in view, or ""
func (s *Surface) Viewing() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewing
}

// Mode is the selected diff mode
func (s *Surface) Mode() diff.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// Result is the diff currently shown
func (s *Surface) Result() diff.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Apply handles one bridge message. It reports true when the message touched
// the path in view, along with the view's new diff.
func (s *Surface) Apply(msg bridge.Message) (diff.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch m := msg.(type) {
	case bridge.DocumentContent:
		rec := snapshot.Record{
			Path:          m.Path,
			PreviousSaved: m.PreviousSaved,
			CurrentSaved:  m.CurrentSaved,
			LiveUnsaved:   m.LiveUnsaved,
			IsUntracked:   m.IsUntracked,
		}
		if _, ok := s.entries[m.Path]; !ok {
			s.order = append(s.order, m.Path)
		}
		s.entries[m.Path] = bridge.NewEntry(rec)

		if m.Path != s.viewing {
			return diff.Result{}, false
		}
		s.recompute()
		return s.result, true

	case bridge.RemoveUnsavedContent:
		if _, ok := s.entries[m.Path]; ok {
			delete(s.entries, m.Path)
			for i, p := range s.order {
				if p == m.Path {
					s.order = append(s.order[:i], s.order[i+1:]...)
					break
				}
			}
		}
		if m.Path != s.viewing {
			return diff.Result{}, false
		}
		s.viewing = ""
		s.result = diff.Result{}
		return s.result, true

	case bridge.FileList:
		s.loadLocked(m.Files)
		return s.result, s.viewing != ""
	}

	s.logger.Warn("unhandled message", zap.String("type", msg.Type()))
	return diff.Result{}, false
}

// recompute runs the diff engine for the path in view. Caller holds mu.
func (s *Surface) recompute() {
	e := s.entries[s.viewing]
	s.result = diff.Compute(e.Record().Versions(), s.mode)
}

var (
	addedColor   = color.New(color.FgGreen)
	removedColor = color.New(color.FgRed)
	headerColor  = color.New(color.Bold)
	labelColor   = color.New(color.FgCyan)
)

// Render writes the view: the file header, the mode caption and the diff
func (s *Surface) Render(w io.Writer) error {
	s.mu.Lock()
	viewing, result := s.viewing, s.result
	s.mu.Unlock()

	if viewing == "" {
		_, err := fmt.Fprintln(w, "No file in view")
		return err
	}

	headerColor.Fprintln(w, viewing)
	labelColor.Fprintf(w, "%s  %s\n", result.Label(), result.Summary())
	return RenderLines(w, result.Lines)
}

// RenderLines writes diff lines with their prefixes, colored by kind
func RenderLines(w io.Writer, lines []diff.Line) error {
	for _, l := range lines {
		text := diff.Prefix(l.Kind) + l.Text
		var err error
		switch l.Kind {
		case diff.Added:
			_, err = addedColor.Fprintln(w, text)
		case diff.Removed:
			_, err = removedColor.Fprintln(w, text)
		default:
			_, err = fmt.Fprintln(w, text)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
