// internal/change/listener.go
package change

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"precursor/internal/errors"
	"precursor/internal/snapshot"

	"go.uber.org/zap"
)

// binarySniffLen is how much of a file is checked for NUL bytes
const binarySniffLen = 8000

// ErrListenerStopped is returned by Submit once Run has returned
var ErrListenerStopped = fmt.Errorf("listener stopped")

type result struct {
	path string
	err  error
}

type request struct {
	ev   Event
	done chan result
}

// Listener classifies environment events into store transitions. Events are
// applied one at a time, in arrival order, by the goroutine running Run.
type Listener struct {
	Root   string
	store  *snapshot.Store
	ignore *IgnorePolicy
	logger *zap.Logger

	queue    chan request
	stopped  chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	untitled int

	sink snapshot.Sink

	readFile func(string) ([]byte, error)
}

// ListenerOption configures a Listener
type ListenerOption func(*Listener)

// WithArchive sets where a buffer closed with unsaved edits goes when it is
// reopened clean
func WithArchive(sink snapshot.Sink) ListenerOption {
	return func(l *Listener) {
		l.sink = sink
	}
}

// NewListener creates a listener rooted at root. queueSize bounds the number
// of events waiting for the loop.
func NewListener(root string, store *snapshot.Store, ignore *IgnorePolicy, logger *zap.Logger, queueSize int, opts ...ListenerOption) (*Listener, error) {
	if root == "" {
		return nil, fmt.Errorf("root path cannot be empty")
	}
	if store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving root: %w", err)
	}
	if ignore == nil {
		ignore = NewIgnorePolicy()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if queueSize <= 0 {
		queueSize = 64
	}

	l := &Listener{
		Root:     absRoot,
		store:    store,
		ignore:   ignore,
		logger:   logger,
		queue:    make(chan request, queueSize),
		stopped:  make(chan struct{}),
		readFile: os.ReadFile,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Run applies queued events until ctx is done
func (l *Listener) Run(ctx context.Context) error {
	defer l.stopOnce.Do(func() { close(l.stopped) })

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case req := <-l.queue:
			path, err := l.handle(ctx, req.ev)
			if err != nil {
				l.logger.Warn("event not applied", zap.Stringer("event", req.ev), zap.Error(err))
			}
			if req.done != nil {
				req.done <- result{path: path, err: err}
			}
		}
	}
}

// Submit queues ev and waits until the loop has applied it. It returns the
// store path the event resolved to.
func (l *Listener) Submit(ctx context.Context, ev Event) (string, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}
	req := request{ev: ev, done: make(chan result, 1)}

	select {
	case l.queue <- req:
	case <-l.stopped:
		return "", ErrListenerStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}

	select {
	case res := <-req.done:
		return res.path, res.err
	case <-l.stopped:
		return "", ErrListenerStopped
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Post queues ev without waiting for it to be applied
func (l *Listener) Post(ctx context.Context, ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	select {
	case l.queue <- request{ev: ev}:
		return nil
	case <-l.stopped:
		return ErrListenerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle applies one event to the store and returns the resolved path.
// It is what Run calls for each event; callers outside the loop must not
// interleave it with a running loop.
func (l *Listener) Handle(ev Event) (string, error) {
	return l.handle(context.Background(), ev)
}

func (l *Listener) handle(ctx context.Context, ev Event) (string, error) {
	if err := ev.Validate(); err != nil {
		return "", err
	}

	if ev.Untitled {
		path := l.UntitledPath(ev.Path)
		return path, l.handleUntitled(ctx, path, ev)
	}

	path, err := l.RelPath(ev.Path)
	if err != nil {
		return "", err
	}
	if l.ignore.ShouldIgnore(path) {
		return path, nil
	}

	switch ev.Kind {
	case Opened:
		return path, l.handleOpened(ctx, path, ev)
	case Changed:
		return path, l.handleChanged(path, ev)
	case Saved:
		l.handleSaved(path, ev.Content)
	case Closed:
		l.store.RecordClose(path)
	case DiskWrite:
		return path, l.handleDiskWrite(path)
	case DiskRemove:
		l.store.RecordClose(path)
	}
	return path, nil
}

func (l *Listener) handleOpened(ctx context.Context, path string, ev Event) error {
	if !ev.Dirty {
		if err := l.archiveDetached(ctx, path); err != nil {
			return err
		}
	}
	l.store.Attach(path)

	if !l.store.Has(path) {
		base := ev.Content
		if ev.Dirty {
			// A buffer restored dirty; its saved content is what is on disk.
			disk, err := l.readText(path)
			if err != nil {
				l.logger.Warn("reading saved content for dirty buffer", zap.String("path", path), zap.Error(err))
				base = ""
			} else {
				base = disk
			}
		}
		l.store.RecordBaseline(path, base, false)
	} else if !ev.Dirty {
		l.store.RecordBaseline(path, ev.Content, false)
	}

	if ev.Dirty {
		l.store.RecordLiveEdit(path, ev.Content)
	}
	return nil
}

// archiveDetached moves the unsaved content of a buffer closed dirty into the
// archive before a clean reopen replaces it. Without an archive the record is
// left detached and the open is refused.
func (l *Listener) archiveDetached(ctx context.Context, path string) error {
	rec, ok := l.store.Get(path)
	if !ok || !rec.Detached || rec.LiveUnsaved == nil {
		return nil
	}
	if l.sink == nil {
		return errors.ValidationError("file was closed with unsaved edits; flush before reopening it clean", path)
	}
	if _, err := l.store.FlushPath(ctx, path, l.sink); err != nil {
		return errors.Internal("archiving unsaved edits", err)
	}
	l.logger.Info("archived unsaved edits on reopen", zap.String("path", path))
	return nil
}

func (l *Listener) handleChanged(path string, ev Event) error {
	if !ev.Dirty {
		l.store.RecordRevert(path)
		return nil
	}

	if !l.store.Has(path) {
		disk, err := l.readText(path)
		if err != nil {
			// The file stays untracked until it can be read.
			return err
		}
		l.store.RecordBaseline(path, disk, false)
	}
	l.store.RecordLiveEdit(path, ev.Content)
	return nil
}

// handleSaved shifts versions only when the buffer had live unsaved content.
// A save of a clean buffer is an initialization and refreshes currentSaved in
// place.
func (l *Listener) handleSaved(path, content string) {
	rec, ok := l.store.Get(path)
	if ok && rec.LiveUnsaved != nil {
		l.store.RecordSave(path, content)
		return
	}
	l.store.RecordBaseline(path, content, false)
}

// handleDiskWrite refreshes the saved content of a clean record in place.
// A dirty record is left alone: the editor's Saved event does the shift, and
// intermediate writes such as a truncate must not become a version.
func (l *Listener) handleDiskWrite(path string) error {
	rec, ok := l.store.Get(path)
	if ok && rec.LiveUnsaved != nil {
		return nil
	}
	content, err := l.readText(path)
	if err != nil {
		return err
	}
	if !ok {
		l.store.RecordSaveIfAbsent(path, content)
		return nil
	}
	l.store.RecordBaseline(path, content, false)
	return nil
}

func (l *Listener) handleUntitled(ctx context.Context, path string, ev Event) error {
	switch ev.Kind {
	case Opened:
		if !ev.Dirty && ev.Content == "" {
			if err := l.archiveDetached(ctx, path); err != nil {
				return err
			}
		}
		l.store.Attach(path)
		if !l.store.Has(path) {
			l.store.RecordBaseline(path, "", true)
		}
		if ev.Content != "" || ev.Dirty {
			l.store.RecordLiveEdit(path, ev.Content)
		}
	case Changed:
		if !l.store.Has(path) {
			l.store.RecordBaseline(path, "", true)
		}
		if ev.Dirty {
			l.store.RecordLiveEdit(path, ev.Content)
		} else {
			l.store.RecordRevert(path)
		}
	case Saved:
		l.handleSaved(path, ev.Content)
	case Closed:
		l.store.RecordClose(path)
	default:
		return errors.ValidationError(fmt.Sprintf("%s does not apply to untitled buffers", ev.Kind), path)
	}
	return nil
}

// UntitledPath returns the synthetic store path for an untitled buffer. An
// empty name gets the next Untitled-N from a per-session counter.
func (l *Listener) UntitledPath(name string) string {
	name = strings.TrimPrefix(filepath.ToSlash(name), snapshot.UntrackedPrefix)
	if name == "" {
		l.mu.Lock()
		l.untitled++
		name = fmt.Sprintf("Untitled-%d", l.untitled)
		l.mu.Unlock()
	}
	return snapshot.UntrackedPrefix + name
}

// RelPath converts an absolute or root-relative path to the slash-separated
// path used as the store key. Files outside the root keep their absolute path.
func (l *Listener) RelPath(path string) (string, error) {
	if path == "" {
		return "", errors.ValidationError("path is required", nil)
	}
	if !filepath.IsAbs(path) {
		return filepath.ToSlash(filepath.Clean(path)), nil
	}
	rel, err := filepath.Rel(l.Root, path)
	if err != nil {
		return "", fmt.Errorf("getting relative path: %w", err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return filepath.ToSlash(path), nil
	}
	return filepath.ToSlash(rel), nil
}

// AbsPath maps a store key back to a file on disk
func (l *Listener) AbsPath(path string) string {
	if filepath.IsAbs(filepath.FromSlash(path)) {
		return filepath.FromSlash(path)
	}
	return filepath.Join(l.Root, filepath.FromSlash(path))
}

// readText reads a text file. Unreadable and binary files are ReadFailures.
func (l *Listener) readText(path string) (string, error) {
	data, err := l.readFile(l.AbsPath(path))
	if err != nil {
		return "", errors.ReadFailure(path, err)
	}
	if isBinary(data) {
		return "", errors.ReadFailure(path, fmt.Errorf("binary content"))
	}
	return string(data), nil
}

func isBinary(data []byte) bool {
	if len(data) > binarySniffLen {
		data = data[:binarySniffLen]
	}
	return bytes.IndexByte(data, 0) >= 0
}
