package diff

import (
	"bytes"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestBuildDiff(t *testing.T) {
	tests := []struct {
		name     string
		expected []byte
		actual   []byte
		want     Diff
		wantText string
	}{
		{
			name:     "single byte",
			expected: []byte{0, 0, 0, 0},
			actual:   []byte{0, 0, 7, 0},
			want:     Diff{ExpectedLen: 4, ActualLen: 4, First: 2, Last: 2},
			wantText: "differs in [2, 2] (1 bytes)",
		},
		{
			name:     "range with equal bytes inside",
			expected: []byte{1, 2, 3, 4, 5, 6},
			actual:   []byte{1, 9, 3, 4, 9, 6},
			want:     Diff{ExpectedLen: 6, ActualLen: 6, First: 1, Last: 4},
			wantText: "differs in [1, 4] (4 bytes)",
		},
		{
			name:     "size mismatch",
			expected: []byte{1, 2, 3},
			actual:   []byte{1, 2},
			want:     Diff{ExpectedLen: 3, ActualLen: 2, First: -1, Last: -1},
			wantText: "size mismatch: expected 3 bytes, got 2",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildDiff(tt.expected, tt.actual)
			require.Equal(t, tt.want, got)
			require.Equal(t, tt.wantText, got.String())
		})
	}
}

func TestBuildDiff_PanicsOnIdenticalArrays(t *testing.T) {
	a := []byte{1, 2, 3}
	require.Panics(t, func() { BuildDiff(a, append([]byte(nil), a...)) })
}

func TestDescribeDiff(t *testing.T) {
	old := []byte{0, 0, 0, 0, 0, 0, 0, 0}
	nu := []byte{0, 0, 1, 1, 1, 1, 0, 0}
	actual := []byte{0, 0, 1, 1, 0, 0, 9, 0}

	got := DescribeDiff(old, "acknowledged", nu, "pending", actual)

	wantSpans := []Span{
		{Start: 0, End: 2, Match: Both},
		{Start: 2, End: 4, Match: "pending"},
		{Start: 4, End: 6, Match: "acknowledged"},
		{Start: 6, End: 7, Match: Neither},
		{Start: 7, End: 8, Match: Both},
	}
	if diff := cmp.Diff(wantSpans, got.Spans); diff != "" {
		t.Errorf("spans mismatch (-want +got):\n%s", diff)
	}
	require.Equal(t, map[string]int{Both: 3, "pending": 2, "acknowledged": 2, Neither: 1}, got.Totals)

	text := got.String()
	require.Contains(t, text, "pending=2")
	require.Contains(t, text, "[6,7) neither")
	require.NotContains(t, text, "[0,2)")
}

func TestDescribeDiff_ShorterCandidate(t *testing.T) {
	got := DescribeDiff([]byte{1}, "a", nil, "b", []byte{1, 1})
	require.Equal(t, []Span{{0, 1, "a"}, {1, 2, Neither}}, got.Spans)
}

func TestDescription_StringTruncatesSpans(t *testing.T) {
	actual := make([]byte, 100)
	old := make([]byte, 100)
	for i := 0; i < 100; i += 2 {
		actual[i] = 1
	}
	got := DescribeDiff(old, "old", old, "new", actual)
	text := got.String()
	require.True(t, strings.HasSuffix(text, "; ..."), text)
	require.Equal(t, maxListedSpans, strings.Count(text, ") neither"))
}

func TestClassifyPages(t *testing.T) {
	const ps = 4
	before := make([]byte, 16)
	after := bytes.Repeat([]byte{0xAA}, 16)
	after[12], after[13], after[14], after[15] = 0, 0, 0, 0 // page 3 unchanged by the write

	actual := make([]byte, 16)
	copy(actual[0:4], after[0:4]) // page 0 new
	// page 1 old
	copy(actual[8:10], after[8:10]) // page 2 mixed

	got := ClassifyPages(before, after, actual, ps)
	require.Equal(t, PageReport{New: []int{0}, Old: []int{1}, Mixed: []int{2}}, got)
	require.True(t, got.Torn())
	require.False(t, PageComposed(before, after, actual, ps))

	copy(actual[8:12], before[8:12])
	require.True(t, PageComposed(before, after, actual, ps))
}

func TestPageComposed_LengthMismatch(t *testing.T) {
	require.False(t, PageComposed([]byte{1}, []byte{1, 2}, []byte{1, 2}, 1))
}
