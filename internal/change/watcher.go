// internal/change/watcher.go
package change

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher feeds file system changes under the listener's root into the
// listener as DiskWrite and DiskRemove events
type Watcher struct {
	listener *Listener
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
}

// NewWatcher creates a watcher and registers every non-ignored directory
func NewWatcher(listener *Listener, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &Watcher{
		listener: listener,
		watcher:  fw,
		logger:   logger,
	}

	if err := w.addTree(listener.Root); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watching %s: %w", listener.Root, err)
	}
	return w, nil
}

// addTree adds dir and its non-ignored subdirectories to the watcher
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			w.logger.Warn("watch: skipping entry", zap.String("path", path), zap.Error(err))
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && w.listener.ignore.IgnoreDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("adding directory to watcher: %w", err)
		}
		return nil
	})
}

// Run processes filesystem events until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleFSEvent(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("watcher error", zap.Error(err))
		}
	}
}

// handleFSEvent translates one fsnotify event
func (w *Watcher) handleFSEvent(ctx context.Context, event fsnotify.Event) {
	relPath, err := w.listener.RelPath(event.Name)
	if err != nil {
		w.logger.Error("getting relative path", zap.Error(err))
		return
	}
	if w.listener.ignore.ShouldIgnore(relPath) {
		return
	}

	var ev Event
	switch {
	case event.Has(fsnotify.Create):
		info, err := os.Stat(event.Name)
		if err != nil {
			return
		}
		if info.IsDir() {
			if err := w.addTree(event.Name); err != nil {
				w.logger.Error("adding new directory to watcher", zap.Error(err))
			}
			return
		}
		ev = Event{Kind: DiskWrite, Path: event.Name}
	case event.Has(fsnotify.Write):
		ev = Event{Kind: DiskWrite, Path: event.Name}
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		ev = Event{Kind: DiskRemove, Path: event.Name}
	default:
		return
	}

	if err := w.listener.Post(ctx, ev); err != nil {
		w.logger.Debug("dropping file event", zap.Stringer("event", ev), zap.Error(err))
	}
}

// Close cleans up resources
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
