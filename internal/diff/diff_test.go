package diff

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestLines(t *testing.T) {
	tests := []struct {
		name string
		old  string
		new  string
		want []Line
	}{
		{
			name: "both empty",
			old:  "",
			new:  "",
			want: []Line{},
		},
		{
			name: "identical",
			old:  "a\nb\nc",
			new:  "a\nb\nc",
			want: []Line{
				{Kind: Unchanged, Text: "a"},
				{Kind: Unchanged, Text: "b"},
				{Kind: Unchanged, Text: "c"},
			},
		},
		{
			name: "changed last line",
			old:  "line1\nline2",
			new:  "line1\nline2x",
			want: []Line{
				{Kind: Unchanged, Text: "line1"},
				{Kind: Removed, Text: "line2"},
				{Kind: Added, Text: "line2x"},
			},
		},
		{
			name: "appended lines",
			old:  "a",
			new:  "a\nb\nc",
			want: []Line{
				{Kind: Unchanged, Text: "a"},
				{Kind: Added, Text: "b"},
				{Kind: Added, Text: "c"},
			},
		},
		{
			name: "truncated",
			old:  "a\nb",
			new:  "a",
			want: []Line{
				{Kind: Unchanged, Text: "a"},
				{Kind: Removed, Text: "b"},
			},
		},
		{
			name: "from empty",
			old:  "",
			new:  "x",
			want: []Line{{Kind: Added, Text: "x"}},
		},
		{
			name: "insert shifts following lines",
			old:  "a\nb",
			new:  "z\na\nb",
			want: []Line{
				{Kind: Removed, Text: "a"},
				{Kind: Added, Text: "z"},
				{Kind: Removed, Text: "b"},
				{Kind: Added, Text: "a"},
				{Kind: Added, Text: "b"},
			},
		},
		{
			name: "crlf is ignored",
			old:  "a\r\nb",
			new:  "a\nb",
			want: []Line{
				{Kind: Unchanged, Text: "a"},
				{Kind: Unchanged, Text: "b"},
			},
		},
		{
			name: "blank lines are compared",
			old:  "a\n\nb",
			new:  "a\nx\nb",
			want: []Line{
				{Kind: Unchanged, Text: "a"},
				{Kind: Removed, Text: ""},
				{Kind: Added, Text: "x"},
				{Kind: Unchanged, Text: "b"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Lines(tt.old, tt.new))
		})
	}
}

func TestLines_SameInputOnlyUnchanged(t *testing.T) {
	inputs := []string{"x", "one\ntwo", "a\n\n\nb\n", "trailing\n"}
	for _, in := range inputs {
		got := Lines(in, in)
		require.Len(t, got, len(SplitLines(in)))
		for _, l := range got {
			assert.Equal(t, Unchanged, l.Kind)
		}
	}
}

func TestCompute_PrevMode(t *testing.T) {
	v := Versions{
		PreviousSaved: strPtr("line1\nline2"),
		CurrentSaved:  "line1\nline2x",
	}

	res := Compute(v, Prev)
	assert.True(t, res.Computed())
	assert.False(t, res.NoDifferences)
	assert.Equal(t, []Line{
		{Kind: Unchanged, Text: "line1"},
		{Kind: Removed, Text: "line2"},
		{Kind: Added, Text: "line2x"},
	}, res.Lines)
	assert.Equal(t, 1, res.Stats.Additions)
	assert.Equal(t, 1, res.Stats.Deletions)
	assert.Equal(t, "Edits made by most recent save", res.Label())
}

func TestCompute_PrevModeWithoutPrevious(t *testing.T) {
	res := Compute(Versions{CurrentSaved: "a\nb"}, Prev)
	assert.Equal(t, []Line{{Kind: Added, Text: "a"}, {Kind: Added, Text: "b"}}, res.Lines)
}

func TestCompute_NowMode(t *testing.T) {
	t.Run("clean buffer", func(t *testing.T) {
		res := Compute(Versions{CurrentSaved: "a\nb"}, Now)
		assert.True(t, res.Computed())
		assert.True(t, res.NoDifferences)
		assert.Equal(t, "No unsaved edits", res.Label())
		assert.Len(t, res.Lines, 2)
	})

	t.Run("dirty buffer", func(t *testing.T) {
		res := Compute(Versions{CurrentSaved: "a", LiveUnsaved: strPtr("a\nb")}, Now)
		assert.False(t, res.NoDifferences)
		assert.Equal(t, "Unsaved edits", res.Label())
		assert.Equal(t, "+1 -0", res.Summary())
	})

	t.Run("edited to empty", func(t *testing.T) {
		res := Compute(Versions{CurrentSaved: "a", LiveUnsaved: strPtr("")}, Now)
		assert.Equal(t, []Line{{Kind: Removed, Text: "a"}}, res.Lines)
	})
}

func TestResult_ZeroIsNotComputed(t *testing.T) {
	var r Result
	assert.False(t, r.Computed())
	assert.False(t, r.NoDifferences)
}

func TestResult_Format(t *testing.T) {
	res := Compute(Versions{PreviousSaved: strPtr("a\nb"), CurrentSaved: "a\nc"}, Prev)
	assert.Equal(t, "  a\n- b\n+ c\n", res.Format())
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("PREV")
	require.NoError(t, err)
	assert.Equal(t, Prev, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, Now, m)

	_, err = ParseMode("later")
	assert.Error(t, err)
}
