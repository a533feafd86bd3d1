package bridge

import (
	"encoding/json"
	"path"

	"precursor/internal/errors"
	"precursor/internal/snapshot"
)

// UnsavedFolderLabel groups buffers that have no backing file
const UnsavedFolderLabel = "Unsaved"

// Entry is one file in the hydration payload of a display surface
type Entry struct {
	Path          string  `json:"path"`
	DisplayName   string  `json:"displayName"`
	FolderLabel   string  `json:"folderLabel"`
	PreviousSaved *string `json:"previousSaved"`
	CurrentSaved  string  `json:"currentSaved"`
	LiveUnsaved   *string `json:"liveUnsaved"`
	IsUntracked   bool    `json:"isUntracked"`
}

// IsDirty reports whether the entry holds unsaved buffer content
func (e Entry) IsDirty() bool {
	return e.LiveUnsaved != nil
}

// Record converts the entry back into the store's shape
func (e Entry) Record() snapshot.Record {
	return snapshot.Record{
		Path:          e.Path,
		PreviousSaved: e.PreviousSaved,
		CurrentSaved:  e.CurrentSaved,
		LiveUnsaved:   e.LiveUnsaved,
		IsUntracked:   e.IsUntracked,
	}
}

// Source is anything that can list records in display order
type Source interface {
	All() []snapshot.Record
}

// NewEntry builds the hydration entry for rec
func NewEntry(rec snapshot.Record) Entry {
	folder := path.Dir(rec.Path)
	switch {
	case rec.IsUntracked || snapshot.IsUntrackedPath(rec.Path):
		folder = UnsavedFolderLabel
	case folder == ".":
		folder = ""
	}

	return Entry{
		Path:          rec.Path,
		DisplayName:   path.Base(rec.Path),
		FolderLabel:   folder,
		PreviousSaved: rec.PreviousSaved,
		CurrentSaved:  rec.CurrentSaved,
		LiveUnsaved:   rec.LiveUnsaved,
		IsUntracked:   rec.IsUntracked,
	}
}

// SerializeAll lists every record for the initial hydration of a surface
func SerializeAll(src Source) []Entry {
	records := src.All()
	entries := make([]Entry, 0, len(records))
	for _, rec := range records {
		entries = append(entries, NewEntry(rec))
	}
	return entries
}

// DecodeEntries parses a hydration payload
func DecodeEntries(data []byte) ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, errors.SerializationFailure("decoding file list", err)
	}
	return entries, nil
}
