// internal/archive/archive.go
package archive

import (
	"context"
	"fmt"
	"sort"
	"time"

	"precursor/internal/snapshot"
	"precursor/internal/storage"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Prefix is the key prefix archived entries are stored under
const Prefix = "unsaved"

// Entry is one flushed record. Slot contents live in the blob store and are
// referenced by hash.
type Entry struct {
	ID           string    `json:"id"`
	Path         string    `json:"path"`
	PreviousHash *string   `json:"previous_hash,omitempty"`
	CurrentHash  string    `json:"current_hash"`
	LiveHash     *string   `json:"live_hash,omitempty"`
	IsUntracked  bool      `json:"is_untracked"`
	LastModified time.Time `json:"last_modified"`
	ArchivedAt   time.Time `json:"archived_at"`
}

func (e *Entry) GetID() string { return e.ID }

// Options configures an Archive
type Options struct {
	CacheSize   int
	Compression CompressionOptions
	Logger      *zap.Logger
}

// Archive keeps the unsaved content of buffers that were closed dirty. It is
// the snapshot.Sink used by Flush.
type Archive struct {
	entries *storage.BadgerStore
	blobs   *BlobStore
	logger  *zap.Logger
	now     func() time.Time
}

var _ snapshot.Sink = (*Archive)(nil)

// New creates an archive on db
func New(db *badger.DB, opts Options) (*Archive, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	blobs, err := newBlobStore(db, opts.CacheSize, opts.Compression)
	if err != nil {
		return nil, fmt.Errorf("creating blob store: %w", err)
	}

	return &Archive{
		entries: storage.NewBadgerStore(db, Prefix),
		blobs:   blobs,
		logger:  opts.Logger,
		now:     time.Now,
	}, nil
}

// Archive stores rec's three slots and an entry pointing at them
func (a *Archive) Archive(ctx context.Context, rec snapshot.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var stored []string
	put := func(content string) (string, error) {
		hash, err := a.blobs.Put([]byte(content))
		if err != nil {
			return "", err
		}
		stored = append(stored, hash)
		return hash, nil
	}
	rollback := func() {
		for _, h := range stored {
			if err := a.blobs.Release(h); err != nil {
				a.logger.Warn("releasing blob after failed archive", zap.String("hash", h), zap.Error(err))
			}
		}
	}

	entry := &Entry{
		ID:           uuid.New().String(),
		Path:         rec.Path,
		IsUntracked:  rec.IsUntracked,
		LastModified: rec.LastModified,
		ArchivedAt:   a.now(),
	}

	var err error
	if entry.CurrentHash, err = put(rec.CurrentSaved); err != nil {
		return err
	}
	if rec.PreviousSaved != nil {
		h, err := put(*rec.PreviousSaved)
		if err != nil {
			rollback()
			return err
		}
		entry.PreviousHash = &h
	}
	if rec.LiveUnsaved != nil {
		h, err := put(*rec.LiveUnsaved)
		if err != nil {
			rollback()
			return err
		}
		entry.LiveHash = &h
	}

	if err := a.entries.Create(entry); err != nil {
		rollback()
		return fmt.Errorf("storing archive entry: %w", err)
	}

	a.logger.Info("unsaved content archived",
		zap.String("id", entry.ID),
		zap.String("path", entry.Path))
	return nil
}

// List returns every entry, oldest first
func (a *Archive) List() ([]Entry, error) {
	entries := []Entry{}
	if err := a.entries.List(&entries); err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].ArchivedAt.Before(entries[j].ArchivedAt)
	})
	return entries, nil
}

// Get returns one entry
func (a *Archive) Get(id string) (Entry, error) {
	var e Entry
	err := a.entries.Get(id, &e)
	return e, err
}

// Content resolves a blob hash to its text
func (a *Archive) Content(hash string) (string, error) {
	data, err := a.blobs.Get(hash)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Restore rebuilds the record an entry was made from
func (a *Archive) Restore(id string) (snapshot.Record, error) {
	e, err := a.Get(id)
	if err != nil {
		return snapshot.Record{}, err
	}

	rec := snapshot.Record{
		Path:         e.Path,
		IsUntracked:  e.IsUntracked,
		LastModified: e.LastModified,
	}
	if rec.CurrentSaved, err = a.Content(e.CurrentHash); err != nil {
		return snapshot.Record{}, err
	}
	if e.PreviousHash != nil {
		prev, err := a.Content(*e.PreviousHash)
		if err != nil {
			return snapshot.Record{}, err
		}
		rec.PreviousSaved = &prev
	}
	if e.LiveHash != nil {
		live, err := a.Content(*e.LiveHash)
		if err != nil {
			return snapshot.Record{}, err
		}
		rec.LiveUnsaved = &live
	}
	return rec, nil
}

// Delete removes an entry and releases its blobs
func (a *Archive) Delete(id string) error {
	e, err := a.Get(id)
	if err != nil {
		return err
	}
	if err := a.entries.Delete(id); err != nil {
		return err
	}

	hashes := []string{e.CurrentHash}
	if e.PreviousHash != nil {
		hashes = append(hashes, *e.PreviousHash)
	}
	if e.LiveHash != nil {
		hashes = append(hashes, *e.LiveHash)
	}
	for _, h := range hashes {
		if err := a.blobs.Release(h); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the compressor. The database is owned by the caller.
func (a *Archive) Close() {
	a.blobs.close()
}
