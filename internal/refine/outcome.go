package refine

import (
	"errors"
	"fmt"

	"github.com/hkuds/autopy/internal/sandbox"
)

// ErrAborted is returned by Outcome.Err for runs that did not succeed.
var ErrAborted = errors.New("refinement aborted")

// Outcome is the terminal result of Loop.Run.
type Outcome struct {
	Status Status
	Reason Reason
	// Artifact and Output are set only on success.
	Artifact string
	Output   string
	// Iterations is the number of generation attempts made.
	Iterations int
	Records    []IterationRecord
	// LastFailure is the most recent execution failure, if any.
	LastFailure *sandbox.Failure
	// Cause is the error that ended an aborted run, if there was one.
	Cause error
}

// Succeeded reports whether the run produced working code.
func (o Outcome) Succeeded() bool {
	return o.Status == StatusSuccess
}

// Err returns nil on success, or an error wrapping ErrAborted.
func (o Outcome) Err() error {
	if o.Succeeded() {
		return nil
	}
	if o.Cause != nil {
		return fmt.Errorf("%w (%s): %w", ErrAborted, o.Reason, o.Cause)
	}
	return fmt.Errorf("%w (%s)", ErrAborted, o.Reason)
}
