package view

import (
	"bytes"
	"encoding/json"
	"testing"

	"precursor/internal/bridge"
	"precursor/internal/diff"
	"precursor/internal/errors"
	"precursor/internal/snapshot"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func hydrated(t *testing.T) *Surface {
	t.Helper()
	store := snapshot.NewStore(nil)
	store.RecordSave("a.txt", "line1\nline2")
	store.RecordSave("a.txt", "line1\nline2x")
	store.RecordSave("b.txt", "b")

	payload, err := json.Marshal(bridge.SerializeAll(store))
	require.NoError(t, err)

	s := New(nil)
	files := s.Hydrate(payload)
	require.Len(t, files, 2)
	return s
}

func TestSurface_DefaultsToNowMode(t *testing.T) {
	s := New(nil)
	assert.Equal(t, diff.Now, s.Mode())
	assert.Equal(t, "", s.Viewing())
	assert.False(t, s.Result().Computed())
}

func TestSurface_MalformedHydrationYieldsEmptyList(t *testing.T) {
	s := hydrated(t)
	files := s.Hydrate([]byte(`{"not":"a list"`))
	assert.Empty(t, files)
	assert.Empty(t, s.Files())
	assert.Equal(t, "", s.Viewing())
}

func TestSurface_ViewAndSwitchModes(t *testing.T) {
	s := hydrated(t)

	res, err := s.View("a.txt")
	require.NoError(t, err)
	assert.Equal(t, diff.Now, res.Mode)
	assert.True(t, res.NoDifferences)

	res = s.SetMode(diff.Prev)
	assert.Equal(t, []diff.Line{
		{Kind: diff.Unchanged, Text: "line1"},
		{Kind: diff.Removed, Text: "line2"},
		{Kind: diff.Added, Text: "line2x"},
	}, res.Lines)

	_, err = s.View("missing.txt")
	assert.True(t, errors.Is(err, errors.ErrorTypeNotFound))
	assert.Equal(t, "a.txt", s.Viewing())
}

func TestSurface_ApplyRecomputesOnlyThePathInView(t *testing.T) {
	s := hydrated(t)
	_, err := s.View("a.txt")
	require.NoError(t, err)

	_, touched := s.Apply(bridge.DocumentContent{Path: "b.txt", CurrentSaved: "b", LiveUnsaved: strPtr("bb"), IsDirty: true})
	assert.False(t, touched)
	e, ok := s.Entry("b.txt")
	require.True(t, ok)
	assert.True(t, e.IsDirty())

	res, touched := s.Apply(bridge.DocumentContent{
		Path:          "a.txt",
		PreviousSaved: strPtr("line1\nline2"),
		CurrentSaved:  "line1\nline2x",
		LiveUnsaved:   strPtr("line1\nline2x\nline3"),
		IsDirty:       true,
	})
	assert.True(t, touched)
	assert.False(t, res.NoDifferences)
	assert.Equal(t, 1, res.Stats.Additions)
	assert.Equal(t, res, s.Result())
}

func TestSurface_ApplyAddsNewFiles(t *testing.T) {
	s := hydrated(t)
	s.Apply(bridge.DocumentContent{Path: "unsaved/Untitled-1", IsUntracked: true})

	files := s.Files()
	require.Len(t, files, 3)
	assert.Equal(t, "unsaved/Untitled-1", files[2].Path)
	assert.Equal(t, bridge.UnsavedFolderLabel, files[2].FolderLabel)
}

func TestSurface_RemovalClearsCacheAndView(t *testing.T) {
	s := hydrated(t)
	_, err := s.View("b.txt")
	require.NoError(t, err)

	_, touched := s.Apply(bridge.RemoveUnsavedContent{Path: "a.txt"})
	assert.False(t, touched)
	_, ok := s.Entry("a.txt")
	assert.False(t, ok)
	assert.Equal(t, "b.txt", s.Viewing())

	res, touched := s.Apply(bridge.RemoveUnsavedContent{Path: "b.txt"})
	assert.True(t, touched)
	assert.False(t, res.Computed())
	assert.Equal(t, "", s.Viewing())
	assert.Empty(t, s.Files())

	// Removing something never listed is harmless.
	_, touched = s.Apply(bridge.RemoveUnsavedContent{Path: "zzz"})
	assert.False(t, touched)
}

func TestSurface_LoadKeepsViewWhenStillListed(t *testing.T) {
	s := hydrated(t)
	_, err := s.View("a.txt")
	require.NoError(t, err)

	s.Load([]bridge.Entry{{Path: "a.txt", CurrentSaved: "fresh"}})
	assert.Equal(t, "a.txt", s.Viewing())
	assert.True(t, s.Result().NoDifferences)

	s.Load(nil)
	assert.Equal(t, "", s.Viewing())
}

func TestSurface_ApplyFileListReplacesList(t *testing.T) {
	s := hydrated(t)
	_, err := s.View("a.txt")
	require.NoError(t, err)

	res, touched := s.Apply(bridge.FileList{Files: []bridge.Entry{
		{Path: "a.txt", CurrentSaved: "line1", LiveUnsaved: strPtr("line1\nline2")},
		{Path: "c.txt", CurrentSaved: "c"},
	}})
	assert.True(t, touched)
	assert.Equal(t, 1, res.Stats.Additions)

	files := s.Files()
	require.Len(t, files, 2)
	assert.Equal(t, "c.txt", files[1].Path)
	_, ok := s.Entry("b.txt")
	assert.False(t, ok)
}

func TestSurface_Render(t *testing.T) {
	color.NoColor = true
	s := hydrated(t)

	var buf bytes.Buffer
	require.NoError(t, s.Render(&buf))
	assert.Equal(t, "No file in view\n", buf.String())

	_, err := s.View("a.txt")
	require.NoError(t, err)
	s.SetMode(diff.Prev)

	buf.Reset()
	require.NoError(t, s.Render(&buf))
	assert.Equal(t,
		"a.txt\n"+
			"Edits made by most recent save  +1 -1\n"+
			"  line1\n"+
			"- line2\n"+
			"+ line2x\n",
		buf.String())
}
