// internal/snapshot/store.go
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Store owns the record table. All mutations go through its methods and
// notifications are issued under the same lock, so the Notifier sees them in
// commit order.
type Store struct {
	mu       sync.Mutex
	records  map[string]*Record
	seq      uint64
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Store
type Option func(*Store)

// WithNotifier sets where change notifications go
func WithNotifier(n Notifier) Option {
	return func(s *Store) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithClock overrides time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store
func NewStore(logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		records:  make(map[string]*Record),
		notifier: nopNotifier{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetNotifier replaces the notifier. Used when the bridge is built after the store.
func (s *Store) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

// insert adds a fresh record. Caller holds mu.
func (s *Store) insert(path string) *Record {
	s.seq++
	rec := &Record{Path: path, Seq: s.seq}
	s.records[path] = rec
	return rec
}

// commit stamps rec and notifies. Caller holds mu.
func (s *Store) commit(rec *Record) {
	rec.LastModified = s.now()
	s.notifier.Changed(rec.clone())
}

// remove evicts path and notifies. Caller holds mu.
func (s *Store) remove(path string) {
	delete(s.records, path)
	s.notifier.Removed(path)
}

// RecordLiveEdit stores the content of a dirty buffer. An empty string is a
// real edit. Unknown paths are left alone and false is returned.
func (s *Store) RecordLiveEdit(path, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[path]
	if !ok {
		s.logger.Debug("live edit for unknown path ignored", zap.String("path", path))
		return false
	}
	if rec.LiveUnsaved != nil && *rec.LiveUnsaved == content {
		return true
	}

	rec.LiveUnsaved = &content
	s.commit(rec)
	return true
}

// RecordSave promotes content to the current saved slot, shifting the old
// current into previous and clearing the live buffer in one step. A path with
// no record gets one with no previous version.
func (s *Store) RecordSave(path, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[path]
	if !ok {
		rec = s.insert(path)
		rec.CurrentSaved = content
		s.commit(rec)
		return
	}

	prev := rec.CurrentSaved
	if rec.PreviousSaved != nil && *rec.PreviousSaved == prev &&
		prev == content && rec.LiveUnsaved == nil {
		return
	}

	rec.PreviousSaved = &prev
	rec.CurrentSaved = content
	rec.LiveUnsaved = nil
	s.commit(rec)
}

// RecordSaveIfAbsent creates a record with content as its current saved
// version unless path is already tracked. It reports whether a record was
// created. Used by the directory scan, which must not shift existing records.
func (s *Store) RecordSaveIfAbsent(path, content string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[path]; ok {
		return false
	}
	rec := s.insert(path)
	rec.CurrentSaved = content
	s.commit(rec)
	return true
}

// RecordBaseline establishes the saved content of a buffer that was already
// clean, such as a file being opened. previousSaved is never shifted. A new
// record is created when the path is unknown.
func (s *Store) RecordBaseline(path, content string, untracked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[path]
	if !ok {
		rec = s.insert(path)
		rec.CurrentSaved = content
		rec.IsUntracked = untracked
		s.commit(rec)
		return
	}

	if rec.CurrentSaved == content && rec.LiveUnsaved == nil {
		return
	}
	rec.CurrentSaved = content
	rec.LiveUnsaved = nil
	s.commit(rec)
}

// RecordRevert marks a buffer clean again without a save, e.g. after undoing
// back to the saved state. The saved slots are untouched.
func (s *Store) RecordRevert(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[path]
	if !ok || rec.LiveUnsaved == nil {
		return ok
	}
	rec.LiveUnsaved = nil
	s.commit(rec)
	return true
}

// RecordClose evicts a clean record. A dirty record is retained and marked
// detached so its unsaved content survives until Flush. Closing an unknown
// path is a no-op.
func (s *Store) RecordClose(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[path]
	if !ok {
		return
	}
	if rec.LiveUnsaved == nil {
		s.remove(path)
		return
	}
	rec.Detached = true
}

// Attach clears the detached flag when a closed dirty buffer is reopened
func (s *Store) Attach(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[path]; ok {
		rec.Detached = false
	}
}

// Get returns a copy of the record for path
func (s *Store) Get(path string) (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[path]
	if !ok {
		return Record{}, false
	}
	return rec.clone(), true
}

// Has reports whether path is tracked
func (s *Store) Has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[path]
	return ok
}

// All returns copies of every record in first-observation order
func (s *Store) All() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(func(*Record) bool { return true })
}

// Detached returns the records closed while dirty
func (s *Store) Detached() []Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked(func(r *Record) bool { return r.Detached })
}

func (s *Store) sortedLocked(keep func(*Record) bool) []Record {
	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if keep(rec) {
			out = append(out, rec.clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Len is the number of tracked records
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Flush archives every detached record into sink and evicts it. Records the
// sink rejects stay in the store; the number flushed is returned along with
// the first error.
func (s *Store) Flush(ctx context.Context, sink Sink) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := s.sortedLocked(func(r *Record) bool { return r.Detached })
	flushed := 0
	var firstErr error
	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return flushed, err
		}
		if err := s.archiveLocked(ctx, rec, sink); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		flushed++
	}
	return flushed, firstErr
}

// FlushPath archives the record for path if it is detached and evicts it.
// It reports whether a record was archived.
func (s *Store) FlushPath(ctx context.Context, path string, sink Sink) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[path]
	if !ok || !rec.Detached {
		return false, nil
	}
	if err := s.archiveLocked(ctx, rec.clone(), sink); err != nil {
		return false, err
	}
	return true, nil
}

// archiveLocked hands rec to sink and evicts it on success. Caller holds mu.
func (s *Store) archiveLocked(ctx context.Context, rec Record, sink Sink) error {
	if err := sink.Archive(ctx, rec); err != nil {
		s.logger.Warn("archiving unsaved content failed",
			zap.String("path", rec.Path), zap.Error(err))
		return fmt.Errorf("archiving %s: %w", rec.Path, err)
	}
	s.remove(rec.Path)
	return nil
}

// Reset drops every record, notifying a removal for each
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range s.sortedLocked(func(*Record) bool { return true }) {
		s.remove(rec.Path)
	}
	s.seq = 0
}
