package report

import (
	"time"

	"github.com/google/uuid"
)

// Settings is the part of the run configuration needed to reproduce it.
type Settings struct {
	MaxCapacity          int    `json:"max_capacity"`
	PageSize             int    `json:"page_size"`
	EnforcePerPageWrites bool   `json:"enforce_per_page_writes"`
	MmapWriteMode        string `json:"mmap_write_mode"`
	TimesToKill          int    `json:"times_to_kill"`
	AcceptPageTears      bool   `json:"accept_page_tears"`
}

// Report is the outcome of one controller run against one backend.
type Report struct {
	RunID      string    `json:"run_id"`
	Backend    string    `json:"backend"`
	Seed       int64     `json:"seed"`
	Settings   Settings  `json:"settings"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// Epochs counts started epochs, including the final recovery check.
	Epochs    int      `json:"epochs"`
	Passed    bool     `json:"passed"`
	Anomalies int      `json:"anomalies"`
	Results   []Result `json:"results"`
}

// New starts a report with a fresh run id.
func New(backend string, seed int64, settings Settings) Report {
	return Report{
		RunID:     uuid.NewString(),
		Backend:   backend,
		Seed:      seed,
		Settings:  settings,
		StartedAt: time.Now(),
	}
}

// Finish copies the log into the report and derives the verdict.
func (r *Report) Finish(log *Log, epochs int) {
	r.FinishedAt = time.Now()
	r.Epochs = epochs
	r.Results = log.Results()
	r.Passed = !log.Failed()
	r.Anomalies = log.Count(KindAnomaly)
}

// FirstFailure returns the first fatal result, if any.
func (r Report) FirstFailure() (Result, bool) {
	for _, res := range r.Results {
		if res.Kind.Fatal() {
			return res, true
		}
	}
	return Result{}, false
}
