package report

import (
	"sync"
	"time"
)

// Kind classifies a recorded result.
type Kind string

const (
	// KindVerified: recovered state equals the acknowledged state.
	KindVerified Kind = "verified"
	// KindAdopted: recovered state equals a candidate whose Ok was never seen.
	KindAdopted Kind = "adopted"
	// KindFailure: recovered or read state matches no candidate.
	KindFailure Kind = "failure"
	// KindAnomaly: unexpected but non-fatal event, such as a worker exiting
	// before its scheduled kill.
	KindAnomaly Kind = "anomaly"
	// KindProtocol: a corrupt frame; the harness itself is broken.
	KindProtocol Kind = "protocol"
	// KindError: any other error while driving the worker.
	KindError Kind = "error"
)

// Fatal reports whether a result of this kind ends the run.
func (k Kind) Fatal() bool {
	return k == KindFailure || k == KindProtocol || k == KindError
}

// Result is one recorded interaction outcome.
type Result struct {
	Epoch   int       `json:"epoch"`
	Success bool      `json:"success"`
	Kind    Kind      `json:"kind"`
	Label   string    `json:"label"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

// Log is an append-only list of results, safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	results []Result
}

// Append records a result, stamping At if unset.
func (l *Log) Append(r Result) {
	if r.At.IsZero() {
		r.At = time.Now()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.results = append(l.results, r)
}

// Results returns a copy of the recorded results.
func (l *Log) Results() []Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Result{}, l.results...)
}

// Failed reports whether any fatal result was recorded.
func (l *Log) Failed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, r := range l.results {
		if r.Kind.Fatal() {
			return true
		}
	}
	return false
}

// Count returns the number of results of the given kind.
func (l *Log) Count(kind Kind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, r := range l.results {
		if r.Kind == kind {
			n++
		}
	}
	return n
}
