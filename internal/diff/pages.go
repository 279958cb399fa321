package diff

import (
	"bytes"
	"fmt"
)

// PageReport classifies the pages touched by a write that was in flight
// during a crash.
type PageReport struct {
	// Old, New and Mixed hold page indexes whose recovered bytes equal the
	// pre-write page, the post-write page, or neither.
	Old   []int
	New   []int
	Mixed []int
}

// Torn reports whether some pages committed and others did not.
func (r PageReport) Torn() bool {
	return len(r.Old) > 0 && len(r.New) > 0
}

func (r PageReport) String() string {
	return fmt.Sprintf("pages old=%v new=%v mixed=%v", r.Old, r.New, r.Mixed)
}

// ClassifyPages compares actual with the before and after candidate states
// page by page. Pages where both candidates agree with actual are skipped.
// The three arrays must have the same length.
func ClassifyPages(before, after, actual []byte, pageSize int) PageReport {
	var r PageReport
	for start := 0; start < len(actual); start += pageSize {
		end := start + pageSize
		if end > len(actual) {
			end = len(actual)
		}
		o, n, a := before[start:end], after[start:end], actual[start:end]
		idx := start / pageSize

		matchOld, matchNew := bytes.Equal(a, o), bytes.Equal(a, n)
		switch {
		case matchOld && matchNew:
		case matchOld:
			r.Old = append(r.Old, idx)
		case matchNew:
			r.New = append(r.New, idx)
		default:
			r.Mixed = append(r.Mixed, idx)
		}
	}
	return r
}

// PageComposed reports whether every page of actual equals either the before
// or the after page, i.e. the backend committed the write page-atomically.
func PageComposed(before, after, actual []byte, pageSize int) bool {
	if len(before) != len(actual) || len(after) != len(actual) {
		return false
	}
	return len(ClassifyPages(before, after, actual, pageSize).Mixed) == 0
}
