package history

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hkuds/autopy/internal/refine"
)

// NewRunID returns a new lexically sortable run identifier.
func NewRunID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String()
}

// Run is a persisted refinement run.
type Run struct {
	ID         string                   `json:"id"`
	Task       string                   `json:"task"`
	Provider   string                   `json:"provider,omitempty"`
	Model      string                   `json:"model,omitempty"`
	Status     refine.Status            `json:"status"`
	Reason     refine.Reason            `json:"reason,omitempty"`
	LogFile    string                   `json:"logFile,omitempty"`
	StartedAt  time.Time                `json:"startedAt"`
	FinishedAt time.Time                `json:"finishedAt"`
	Iterations int                      `json:"iterations"`
	Records    []refine.IterationRecord `json:"-"`
}

// NewRun creates a Run for task starting now.
func NewRun(id, task string) *Run {
	return &Run{ID: id, Task: task, StartedAt: time.Now()}
}

// Complete copies the terminal state of out into the run.
func (r *Run) Complete(out refine.Outcome) {
	r.Status = out.Status
	r.Reason = out.Reason
	r.Iterations = out.Iterations
	r.Records = out.Records
	r.FinishedAt = time.Now()
}

// Info returns the run summary.
func (r *Run) Info() RunInfo {
	var d time.Duration
	if !r.FinishedAt.IsZero() {
		d = r.FinishedAt.Sub(r.StartedAt)
	}
	return RunInfo{
		ID:          r.ID,
		Task:        r.Task,
		Model:       r.Model,
		Status:      r.Status,
		Reason:      r.Reason,
		StartedAt:   r.StartedAt,
		Duration:    d,
		Iterations:  r.Iterations,
		RecordCount: len(r.Records),
	}
}

// RunInfo summarizes a run without its records.
type RunInfo struct {
	ID          string
	Task        string
	Model       string
	Status      refine.Status
	Reason      refine.Reason
	StartedAt   time.Time
	Duration    time.Duration
	Iterations  int
	RecordCount int
}
