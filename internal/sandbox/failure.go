package sandbox

import (
	"fmt"
	"time"
)

// Kind classifies why an execution did not succeed.
type Kind int

const (
	// KindNone marks a successful execution.
	KindNone Kind = iota
	// KindRuntimeUnavailable means the container runtime could not be
	// reached or its client was never initialized.
	KindRuntimeUnavailable
	// KindInfrastructure means the runtime was reachable but failed to
	// provision or isolate the sandbox (image pull, create, start, network).
	KindInfrastructure
	// KindExecution means the program ran and exited with an error.
	KindExecution
	// KindUnexpected covers timeouts, stream errors and resource kills.
	KindUnexpected
)

var kindNames = map[Kind]string{
	KindNone:               "None",
	KindRuntimeUnavailable: "ContainerRuntimeUnavailable",
	KindInfrastructure:     "InfrastructureError",
	KindExecution:          "ContainerExecutionError",
	KindUnexpected:         "UnexpectedError",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Fatal reports whether a failure of this kind must end the run. Fatal kinds
// are properties of the environment that regenerating code cannot fix.
func (k Kind) Fatal() bool {
	return k == KindRuntimeUnavailable || k == KindInfrastructure
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name produced by MarshalText.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown failure kind %q", text)
}

// Failure is a classified execution failure.
type Failure struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s: %s", f.Kind, f.Message)
}

// Result is the outcome of one sandboxed execution. Exactly one of a
// successful Output or a non-nil Failure is meaningful.
type Result struct {
	Output      string        `json:"output,omitempty"`
	Failure     *Failure      `json:"failure,omitempty"`
	ExitCode    int           `json:"exitCode"`
	Installed   []string      `json:"installed,omitempty"`
	ContainerID string        `json:"containerId,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// Success reports whether the program ran to a zero exit status.
func (r Result) Success() bool {
	return r.Failure == nil
}

func failed(kind Kind, format string, args ...any) Result {
	return Result{
		ExitCode: -1,
		Failure:  &Failure{Kind: kind, Message: fmt.Sprintf(format, args...)},
	}
}
