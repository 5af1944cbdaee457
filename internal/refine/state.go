package refine

import (
	"time"

	"github.com/hkuds/autopy/internal/sandbox"
)

// State is a phase of the refinement loop.
type State string

const (
	StateGenerating State = "generating"
	StateExtracting State = "extracting"
	StateExecuting  State = "executing"
	StateDeciding   State = "deciding"
	StateRetrying   State = "retrying"
	StateSuccess    State = "success"
	StateAborted    State = "aborted"
)

// Terminal reports whether no further transitions follow s.
func (s State) Terminal() bool {
	return s == StateSuccess || s == StateAborted
}

// Status is the terminal result of a run.
type Status string

const (
	StatusSuccess Status = "success"
	StatusAborted Status = "aborted"
)

// Reason explains why a run was aborted.
type Reason string

const (
	ReasonNone             Reason = ""
	ReasonGenerationFailed Reason = "generation_failed"
	ReasonNoCodeBlock      Reason = "no_code_block"
	ReasonInfrastructure   Reason = "infrastructure_failure"
	ReasonMaxIterations    Reason = "max_iterations"
	ReasonCancelled        Reason = "cancelled"
)

// IterationRecord captures one generate-execute round.
type IterationRecord struct {
	Index        int             `json:"index"`
	Task         string          `json:"task"`
	Completion   string          `json:"completion,omitempty"`
	Artifact     string          `json:"artifact,omitempty"`
	Dependencies []string        `json:"dependencies,omitempty"`
	Packages     []string        `json:"packages,omitempty"`
	Result       *sandbox.Result `json:"result,omitempty"`
	// Error is set when the round ended before execution.
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

// Event is delivered to an Observer on every transition, and once more per
// iteration with Record set (and State empty) when the iteration finishes,
// whether or not the program ran.
type Event struct {
	Iteration int
	State     State
	Record    *IterationRecord
}

// Observer receives loop events. It is called synchronously from the loop.
type Observer func(Event)
