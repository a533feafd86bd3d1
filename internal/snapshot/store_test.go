package snapshot

import (
	"context"
	"fmt"
	"testing"
	"time"

	"precursor/internal/diff"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingNotifier captures notifications in arrival order
type recordingNotifier struct {
	events []string
	last   map[string]Record
}

func newRecordingNotifier() *recordingNotifier {
	return &recordingNotifier{last: make(map[string]Record)}
}

func (n *recordingNotifier) Changed(rec Record) {
	n.events = append(n.events, "changed:"+rec.Path)
	n.last[rec.Path] = rec
}

func (n *recordingNotifier) Removed(path string) {
	n.events = append(n.events, "removed:"+path)
	delete(n.last, path)
}

type memorySink struct {
	archived []Record
	failOn   string
}

func (m *memorySink) Archive(_ context.Context, rec Record) error {
	if rec.Path == m.failOn {
		return fmt.Errorf("sink unavailable")
	}
	m.archived = append(m.archived, rec)
	return nil
}

func setupStore(t *testing.T) (*Store, *recordingNotifier) {
	t.Helper()
	n := newRecordingNotifier()
	return NewStore(nil, WithNotifier(n)), n
}

func TestStore_SaveTwiceShiftsPrevious(t *testing.T) {
	store, _ := setupStore(t)

	store.RecordSave("a.txt", "c1")
	store.RecordSave("a.txt", "c2")

	rec, ok := store.Get("a.txt")
	require.True(t, ok)
	require.NotNil(t, rec.PreviousSaved)
	assert.Equal(t, "c1", *rec.PreviousSaved)
	assert.Equal(t, "c2", rec.CurrentSaved)
	assert.Nil(t, rec.LiveUnsaved)
}

func TestStore_SaveCreatesMissingRecord(t *testing.T) {
	store, n := setupStore(t)

	store.RecordSave("new.txt", "hello")

	rec, ok := store.Get("new.txt")
	require.True(t, ok)
	assert.Nil(t, rec.PreviousSaved)
	assert.Equal(t, "hello", rec.CurrentSaved)
	assert.Equal(t, []string{"changed:new.txt"}, n.events)
}

func TestStore_LiveEditLeavesSavedSlots(t *testing.T) {
	store, _ := setupStore(t)
	store.RecordSave("a.txt", "v1")
	store.RecordSave("a.txt", "v2")

	for _, content := range []string{"draft", "", "v2"} {
		assert.True(t, store.RecordLiveEdit("a.txt", content))

		rec, _ := store.Get("a.txt")
		require.NotNil(t, rec.LiveUnsaved)
		assert.Equal(t, content, *rec.LiveUnsaved)
		assert.Equal(t, "v1", *rec.PreviousSaved)
		assert.Equal(t, "v2", rec.CurrentSaved)
	}
}

func TestStore_LiveEditUnknownPathIsNoop(t *testing.T) {
	store, n := setupStore(t)

	assert.False(t, store.RecordLiveEdit("ghost.txt", "x"))
	assert.False(t, store.Has("ghost.txt"))
	assert.Empty(t, n.events)
}

func TestStore_EditThenSaveScenario(t *testing.T) {
	store, _ := setupStore(t)

	store.RecordSave("a.txt", "line1\nline2")
	rec, _ := store.Get("a.txt")
	assert.Nil(t, rec.PreviousSaved)
	assert.Equal(t, "line1\nline2", rec.CurrentSaved)
	assert.Nil(t, rec.LiveUnsaved)

	store.RecordLiveEdit("a.txt", "line1\nline2x")
	rec, _ = store.Get("a.txt")
	assert.Equal(t, "line1\nline2x", *rec.LiveUnsaved)

	store.RecordSave("a.txt", "line1\nline2x")
	rec, _ = store.Get("a.txt")
	assert.Equal(t, "line1\nline2", *rec.PreviousSaved)
	assert.Equal(t, "line1\nline2x", rec.CurrentSaved)
	assert.Nil(t, rec.LiveUnsaved)

	res := rec.Diff(diff.Prev)
	assert.Equal(t, []diff.Line{
		{Kind: diff.Unchanged, Text: "line1"},
		{Kind: diff.Removed, Text: "line2"},
		{Kind: diff.Added, Text: "line2x"},
	}, res.Lines)

	now := rec.Diff(diff.Now)
	assert.True(t, now.NoDifferences)
}

func TestStore_CloseCleanEvicts(t *testing.T) {
	store, n := setupStore(t)
	store.RecordSave("a.txt", "x")

	store.RecordClose("a.txt")
	assert.False(t, store.Has("a.txt"))
	assert.Equal(t, []string{"changed:a.txt", "removed:a.txt"}, n.events)

	// Closing again is a no-op.
	store.RecordClose("a.txt")
	store.RecordClose("a.txt")
	assert.Len(t, n.events, 2)
}

func TestStore_CloseDirtyRetains(t *testing.T) {
	store, n := setupStore(t)
	store.RecordSave("a.txt", "x")
	store.RecordLiveEdit("a.txt", "xy")
	before := len(n.events)

	store.RecordClose("a.txt")

	rec, ok := store.Get("a.txt")
	require.True(t, ok)
	assert.True(t, rec.Detached)
	assert.Equal(t, "xy", *rec.LiveUnsaved)
	assert.Equal(t, "x", rec.CurrentSaved)
	assert.Len(t, n.events, before, "retaining a dirty record changes no slot")

	store.Attach("a.txt")
	rec, _ = store.Get("a.txt")
	assert.False(t, rec.Detached)
}

func TestStore_BaselineDoesNotShiftPrevious(t *testing.T) {
	store, n := setupStore(t)

	store.RecordBaseline("a.txt", "disk", false)
	store.RecordBaseline("a.txt", "disk", false)
	assert.Len(t, n.events, 1, "unchanged baseline does not notify")

	store.RecordBaseline("a.txt", "reloaded", false)
	rec, _ := store.Get("a.txt")
	assert.Nil(t, rec.PreviousSaved)
	assert.Equal(t, "reloaded", rec.CurrentSaved)
}

func TestStore_BaselineUntracked(t *testing.T) {
	store, _ := setupStore(t)

	store.RecordBaseline("unsaved/Untitled-1", "", true)
	rec, ok := store.Get("unsaved/Untitled-1")
	require.True(t, ok)
	assert.True(t, rec.IsUntracked)
	assert.Equal(t, "", rec.CurrentSaved)
}

func TestStore_RevertClearsLive(t *testing.T) {
	store, _ := setupStore(t)
	store.RecordSave("a.txt", "x")
	store.RecordLiveEdit("a.txt", "xx")

	assert.True(t, store.RecordRevert("a.txt"))
	rec, _ := store.Get("a.txt")
	assert.Nil(t, rec.LiveUnsaved)
	assert.Equal(t, "x", rec.CurrentSaved)
	assert.Nil(t, rec.PreviousSaved)

	assert.False(t, store.RecordRevert("missing.txt"))
}

func TestStore_ResaveWithoutChangesIsQuiet(t *testing.T) {
	store, n := setupStore(t)
	store.RecordSave("a.txt", "x")
	store.RecordSave("a.txt", "x")
	require.Len(t, n.events, 2, "first re-save copies current into previous")

	store.RecordSave("a.txt", "x")
	assert.Len(t, n.events, 2)
}

func TestStore_AllKeepsInsertionOrder(t *testing.T) {
	store, _ := setupStore(t)
	for _, p := range []string{"c.txt", "a.txt", "b.txt"} {
		store.RecordSave(p, p)
	}
	store.RecordSave("a.txt", "again")

	var paths []string
	for _, rec := range store.All() {
		paths = append(paths, rec.Path)
	}
	assert.Equal(t, []string{"c.txt", "a.txt", "b.txt"}, paths)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	store, _ := setupStore(t)
	store.RecordSave("a.txt", "x")
	store.RecordLiveEdit("a.txt", "y")

	rec, _ := store.Get("a.txt")
	*rec.LiveUnsaved = "mutated"

	again, _ := store.Get("a.txt")
	assert.Equal(t, "y", *again.LiveUnsaved)
}

func TestStore_NotificationOrderMatchesCommits(t *testing.T) {
	store, n := setupStore(t)

	store.RecordSave("a.txt", "1")
	store.RecordSave("b.txt", "1")
	store.RecordLiveEdit("a.txt", "2")
	store.RecordClose("b.txt")
	store.RecordSave("a.txt", "2")

	assert.Equal(t, []string{
		"changed:a.txt",
		"changed:b.txt",
		"changed:a.txt",
		"removed:b.txt",
		"changed:a.txt",
	}, n.events)
}

func TestStore_Flush(t *testing.T) {
	store, n := setupStore(t)
	store.RecordSave("keep.txt", "k")
	store.RecordSave("gone.txt", "g")
	store.RecordLiveEdit("gone.txt", "g2")
	store.RecordSave("stuck.txt", "s")
	store.RecordLiveEdit("stuck.txt", "s2")
	store.RecordClose("gone.txt")
	store.RecordClose("stuck.txt")

	sink := &memorySink{failOn: "stuck.txt"}
	flushed, err := store.Flush(context.Background(), sink)

	assert.Error(t, err)
	assert.Equal(t, 1, flushed)
	require.Len(t, sink.archived, 1)
	assert.Equal(t, "g2", *sink.archived[0].LiveUnsaved)
	assert.False(t, store.Has("gone.txt"))
	assert.True(t, store.Has("stuck.txt"))
	assert.True(t, store.Has("keep.txt"))
	assert.Contains(t, n.events, "removed:gone.txt")
}

func TestStore_FlushPath(t *testing.T) {
	store, _ := setupStore(t)
	store.RecordSave("open.txt", "o")
	store.RecordLiveEdit("open.txt", "o2")
	store.RecordSave("closed.txt", "c")
	store.RecordLiveEdit("closed.txt", "c2")
	store.RecordClose("closed.txt")
	sink := &memorySink{}

	ok, err := store.FlushPath(context.Background(), "open.txt", sink)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, store.Has("open.txt"))

	ok, err = store.FlushPath(context.Background(), "closed.txt", sink)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, store.Has("closed.txt"))
	require.Len(t, sink.archived, 1)
	assert.Equal(t, "c2", *sink.archived[0].LiveUnsaved)

	store.RecordSave("stuck.txt", "s")
	store.RecordLiveEdit("stuck.txt", "s2")
	store.RecordClose("stuck.txt")
	ok, err = store.FlushPath(context.Background(), "stuck.txt", &memorySink{failOn: "stuck.txt"})
	assert.Error(t, err)
	assert.False(t, ok)
	assert.True(t, store.Has("stuck.txt"))
}

func TestStore_Reset(t *testing.T) {
	store, n := setupStore(t)
	store.RecordSave("a.txt", "1")
	store.RecordSave("b.txt", "1")

	store.Reset()

	assert.Equal(t, 0, store.Len())
	assert.Equal(t, []string{"changed:a.txt", "changed:b.txt", "removed:a.txt", "removed:b.txt"}, n.events)
}

func TestStore_LastModifiedUsesClock(t *testing.T) {
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	store := NewStore(nil, WithClock(func() time.Time { return fixed }))

	store.RecordSave("a.txt", "x")
	rec, _ := store.Get("a.txt")
	assert.Equal(t, fixed, rec.LastModified)
}

func TestStore_RecordSaveIfAbsent(t *testing.T) {
	store, _ := setupStore(t)
	store.RecordSave("a.txt", "open buffer")

	assert.False(t, store.RecordSaveIfAbsent("a.txt", "disk"))
	assert.True(t, store.RecordSaveIfAbsent("b.txt", "disk"))

	rec, _ := store.Get("a.txt")
	assert.Equal(t, "open buffer", rec.CurrentSaved)
	assert.Nil(t, rec.PreviousSaved)
	rec, _ = store.Get("b.txt")
	assert.Equal(t, "disk", rec.CurrentSaved)
}
