// Package diff compares an expected byte-array state against the state
// recovered from a backend, for diagnostics after a failed verification.
package diff

import (
	"bytes"
	"fmt"
	"strings"
)

// Diff is the coarse difference between two byte arrays.
type Diff struct {
	ExpectedLen int
	ActualLen   int

	// First and Last are the inclusive bounds of the differing range.
	// They are -1 on a size mismatch.
	First int
	Last  int
}

// SizeMismatch reports whether the arrays have different lengths.
func (d Diff) SizeMismatch() bool {
	return d.ExpectedLen != d.ActualLen
}

func (d Diff) String() string {
	if d.SizeMismatch() {
		return fmt.Sprintf("size mismatch: expected %d bytes, got %d", d.ExpectedLen, d.ActualLen)
	}
	return fmt.Sprintf("differs in [%d, %d] (%d bytes)", d.First, d.Last, d.Last-d.First+1)
}

// BuildDiff locates where actual differs from expected. The arrays must
// differ; calling it with equal arrays is a caller bug and panics.
func BuildDiff(expected, actual []byte) Diff {
	if bytes.Equal(expected, actual) {
		panic("diff: BuildDiff called with identical arrays")
	}
	d := Diff{ExpectedLen: len(expected), ActualLen: len(actual), First: -1, Last: -1}
	if d.SizeMismatch() {
		return d
	}
	for i := range expected {
		if expected[i] != actual[i] {
			d.First = i
			break
		}
	}
	for i := len(expected) - 1; i >= 0; i-- {
		if expected[i] != actual[i] {
			d.Last = i
			break
		}
	}
	return d
}

// Attribution labels for spans where actual matches both candidates or neither.
const (
	Both    = "both"
	Neither = "neither"
)

// Span is a maximal run of bytes with the same attribution.
type Span struct {
	Start int
	End   int // exclusive
	Match string
}

// Len returns the span length in bytes.
func (s Span) Len() int { return s.End - s.Start }

// Description attributes every byte of an actual state to the candidate
// states it matches.
type Description struct {
	Spans  []Span
	Totals map[string]int
}

// maxListedSpans caps the span list rendered by String.
const maxListedSpans = 16

func (d Description) String() string {
	var sb strings.Builder
	labels := make([]string, 0, len(d.Totals))
	for _, s := range d.Spans {
		if !contains(labels, s.Match) {
			labels = append(labels, s.Match)
		}
	}
	sb.WriteString("attribution:")
	for _, l := range labels {
		fmt.Fprintf(&sb, " %s=%d", l, d.Totals[l])
	}

	listed := 0
	for _, s := range d.Spans {
		if s.Match == Both {
			continue
		}
		if listed == maxListedSpans {
			sb.WriteString("; ...")
			break
		}
		fmt.Fprintf(&sb, "; [%d,%d) %s", s.Start, s.End, s.Match)
		listed++
	}
	return sb.String()
}

// DescribeDiff walks actual left to right and attributes each contiguous
// span to name1, name2, Both or Neither depending on which expected array
// it matches. Bytes past the end of an expected array never match it.
func DescribeDiff(expected1 []byte, name1 string, expected2 []byte, name2 string, actual []byte) Description {
	d := Description{Totals: make(map[string]int)}
	for i := range actual {
		m1 := i < len(expected1) && expected1[i] == actual[i]
		m2 := i < len(expected2) && expected2[i] == actual[i]

		label := Neither
		switch {
		case m1 && m2:
			label = Both
		case m1:
			label = name1
		case m2:
			label = name2
		}

		d.Totals[label]++
		if n := len(d.Spans); n > 0 && d.Spans[n-1].Match == label {
			d.Spans[n-1].End = i + 1
			continue
		}
		d.Spans = append(d.Spans, Span{Start: i, End: i + 1, Match: label})
	}
	return d
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
