package refine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hkuds/autopy/internal/deps"
	"github.com/hkuds/autopy/internal/extract"
	"github.com/hkuds/autopy/internal/log"
	"github.com/hkuds/autopy/internal/sandbox"
)

const (
	// DefaultMaxIterations bounds generation attempts per run.
	DefaultMaxIterations = 3
	// DefaultRetryDelay is the fixed pause between iterations.
	DefaultRetryDelay = time.Second

	feedbackPrefix = "\nPlease correct the following error:\n"
)

// Generator turns a task description into a raw completion.
type Generator interface {
	Generate(ctx context.Context, task string) (string, error)
}

// Executor runs an artifact in isolation.
type Executor interface {
	Run(ctx context.Context, req sandbox.Request) sandbox.Result
}

// Extractor pulls the code block out of a raw completion.
type Extractor interface {
	Extract(raw string) (string, error)
}

// Scanner finds the modules an artifact imports.
type Scanner interface {
	Scan(src string) (deps.Set, error)
}

// Config is the configuration of a Loop.
type Config struct {
	Generator Generator
	Executor  Executor
	// Extractor defaults to a python block extractor.
	Extractor Extractor
	// Scanner defaults to the tree-sitter import scanner.
	Scanner Scanner
	Logger  log.Logger

	MaxIterations int
	RetryDelay    time.Duration
	// InstallDependencies passes the discovered packages to the Executor.
	InstallDependencies bool

	Observer Observer
	// Sleep waits between iterations. It must return early with the
	// context error when ctx is done.
	Sleep func(ctx context.Context, d time.Duration) error
}

func (c *Config) defaults() error {
	if c.Generator == nil {
		return fmt.Errorf("generator is required")
	}
	if c.Executor == nil {
		return fmt.Errorf("executor is required")
	}
	if c.Extractor == nil {
		c.Extractor = extract.New(extract.DefaultLanguage)
	}
	if c.Scanner == nil {
		c.Scanner = deps.NewScanner()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "refine.Loop"})
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.RetryDelay < 0 {
		c.RetryDelay = 0
	}
	if c.Observer == nil {
		c.Observer = func(Event) {}
	}
	if c.Sleep == nil {
		c.Sleep = sleepContext
	}
	return nil
}

// Loop drives generate, extract, execute and refine rounds until the code
// runs or the iteration budget is spent. A Loop holds no per-run state and
// may be reused for sequential runs.
type Loop struct {
	cfg Config
}

// New creates a Loop.
func New(cfg Config) (*Loop, error) {
	if err := cfg.defaults(); err != nil {
		return nil, err
	}
	return &Loop{cfg: cfg}, nil
}

// MaxIterations returns the configured iteration budget.
func (l *Loop) MaxIterations() int {
	return l.cfg.MaxIterations
}

// Run refines task until its generated code executes successfully.
func (l *Loop) Run(ctx context.Context, task string) Outcome {
	r := &run{loop: l, task: task, logger: l.cfg.Logger}
	return r.execute(ctx)
}

// run holds the state of one Loop.Run call.
type run struct {
	loop    *Loop
	task    string
	records []IterationRecord
	last    *sandbox.Failure
	logger  log.Logger
}

func (r *run) execute(ctx context.Context) Outcome {
	cfg := r.loop.cfg
	r.logger.Infof("Starting run: max iterations %d", cfg.MaxIterations)

	for iter := 1; iter <= cfg.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return r.abort(iter-1, ReasonCancelled, err)
		}

		logger := r.logger.WithValues(log.Kv{"iteration": iter})
		rec := IterationRecord{Index: iter, Task: r.task, StartedAt: time.Now()}

		r.notify(iter, StateGenerating, nil)
		logger.Debugf("Task: %s", r.task)
		raw, err := cfg.Generator.Generate(ctx, r.task)
		if err != nil {
			r.finish(&rec, err)
			if ctx.Err() != nil {
				return r.abort(iter, ReasonCancelled, err)
			}
			logger.Errorf("Generation failed: %v", err)
			return r.abort(iter, ReasonGenerationFailed, err)
		}
		rec.Completion = raw
		logger.Infof("Raw completion: %s", raw)

		r.notify(iter, StateExtracting, nil)
		code, err := cfg.Extractor.Extract(raw)
		if err != nil {
			r.finish(&rec, err)
			logger.Errorf("No code block in completion: %v", err)
			return r.abort(iter, ReasonNoCodeBlock, err)
		}
		rec.Artifact = code
		logger.Infof("Extracted code:\n%s", code)

		rec.Dependencies, rec.Packages = r.dependencies(logger, code)

		r.notify(iter, StateExecuting, nil)
		req := sandbox.Request{Source: code}
		if cfg.InstallDependencies {
			req.Packages = rec.Packages
		}
		res := cfg.Executor.Run(ctx, req)
		rec.Result = &res
		r.finish(&rec, nil)

		r.notify(iter, StateDeciding, nil)
		if res.Success() {
			logger.Infof("Execution succeeded")
			r.notify(iter, StateSuccess, nil)
			return Outcome{
				Status:     StatusSuccess,
				Artifact:   code,
				Output:     res.Output,
				Iterations: iter,
				Records:    r.records,
			}
		}

		failure := res.Failure
		r.last = failure
		logger.WithValues(log.Kv{"kind": failure.Kind.String()}).Warningf("Execution failed: %s", failure.Message)

		// A cancelled run often surfaces as a failed container API call.
		if ctx.Err() != nil {
			return r.abort(iter, ReasonCancelled, ctx.Err())
		}
		if failure.Kind.Fatal() {
			return r.abort(iter, ReasonInfrastructure, failure)
		}
		if iter == cfg.MaxIterations {
			break
		}

		r.task += feedbackPrefix + failure.Message
		r.notify(iter, StateRetrying, nil)
		if err := cfg.Sleep(ctx, cfg.RetryDelay); err != nil {
			return r.abort(iter, ReasonCancelled, err)
		}
	}

	r.logger.Errorf("Giving up after %d iterations", cfg.MaxIterations)
	return r.abort(cfg.MaxIterations, ReasonMaxIterations, nil)
}

// dependencies scans code for imports. A syntax error yields no packages.
func (r *run) dependencies(logger log.Logger, code string) ([]string, []string) {
	set, err := r.loop.cfg.Scanner.Scan(code)
	if err != nil {
		logger.Warningf("Dependency scan failed, continuing without packages: %v", err)
		return nil, nil
	}
	packages := deps.Packages(set)
	if set.Len() > 0 {
		logger.Debugf("Imports: %s; packages: %s", strings.Join(set.Sorted(), ", "), strings.Join(packages, ", "))
	}
	return set.Sorted(), packages
}

func (r *run) finish(rec *IterationRecord, err error) {
	if err != nil {
		rec.Error = err.Error()
	}
	rec.Duration = time.Since(rec.StartedAt)
	r.records = append(r.records, *rec)
	r.notify(rec.Index, "", rec)
}

func (r *run) notify(iter int, state State, rec *IterationRecord) {
	r.loop.cfg.Observer(Event{Iteration: iter, State: state, Record: rec})
}

func (r *run) abort(iter int, reason Reason, cause error) Outcome {
	r.logger.WithValues(log.Kv{"reason": string(reason)}).Warningf("Run aborted after %d iterations", iter)
	r.notify(iter, StateAborted, nil)
	return Outcome{
		Status:      StatusAborted,
		Reason:      reason,
		Iterations:  iter,
		Records:     r.records,
		LastFailure: r.last,
		Cause:       cause,
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// IsAborted reports whether err came from an aborted run.
func IsAborted(err error) bool {
	return errors.Is(err, ErrAborted)
}
