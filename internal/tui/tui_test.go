package tui

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/hkuds/autopy/internal/config"
	"github.com/hkuds/autopy/internal/history"
	"github.com/hkuds/autopy/internal/refine"
	"github.com/hkuds/autopy/internal/sandbox"
)

func TestResolveTask(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"", "default"},
		{"   \n", "default"},
		{"  print hello  ", "print hello"},
	}
	for _, tt := range tests {
		if got := ResolveTask(tt.input, "default"); got != tt.want {
			t.Errorf("ResolveTask(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestMaskAPIKey(t *testing.T) {
	if got := maskAPIKey("short"); got != "****" {
		t.Errorf("maskAPIKey(short) = %q, want ****", got)
	}
	if got := maskAPIKey("sk-1234567890abcd"); got != "sk-1****abcd" {
		t.Errorf("maskAPIKey() = %q, want %q", got, "sk-1****abcd")
	}
}

func TestRenderOutcomeSuccess(t *testing.T) {
	out := refine.Outcome{
		Status:     refine.StatusSuccess,
		Artifact:   "print('hi')",
		Output:     "hi",
		Iterations: 1,
	}
	got := RenderOutcome(out, "/tmp/run.log")

	for _, want := range []string{"print('hi')", "hi", "1 iteration"} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderOutcome() missing %q in:\n%s", want, got)
		}
	}
	if strings.Contains(got, FailureMessage) {
		t.Error("RenderOutcome() on success contains the failure message")
	}
}

func TestRenderOutcomeFailure(t *testing.T) {
	out := refine.Outcome{
		Status:      refine.StatusAborted,
		Reason:      refine.ReasonMaxIterations,
		Iterations:  3,
		LastFailure: &sandbox.Failure{Kind: sandbox.KindExecution, Message: "Traceback\nNameError: x"},
	}
	got := RenderOutcome(out, "/tmp/run.log")

	for _, want := range []string{FailureMessage, "Check the log at /tmp/run.log", "NameError: x", "3 iterations"} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderOutcome() missing %q in:\n%s", want, got)
		}
	}
}

func TestRenderPlain(t *testing.T) {
	ok := RenderPlain(refine.Outcome{Status: refine.StatusSuccess, Artifact: "x = 1", Output: "done"}, "")
	if !strings.Contains(ok, "x = 1") || !strings.Contains(ok, "done") {
		t.Errorf("RenderPlain(success) = %q", ok)
	}

	failed := RenderPlain(refine.Outcome{Status: refine.StatusAborted}, "/var/log/a.log")
	want := "Failed to generate a working script. Check the log at /var/log/a.log for details.\n"
	if failed != want {
		t.Errorf("RenderPlain(failure) = %q, want %q", failed, want)
	}
}

func TestProgressModel(t *testing.T) {
	m := newProgressModel(3)

	next, _ := m.Update(eventMsg{Iteration: 2, State: refine.StateExecuting})
	m = next.(progressModel)
	if m.iteration != 2 || m.state != refine.StateExecuting {
		t.Errorf("model = %d/%s, want 2/executing", m.iteration, m.state)
	}
	if view := m.View(); !strings.Contains(view, "Iteration 2/3") || !strings.Contains(view, "executing") {
		t.Errorf("View() = %q", view)
	}

	rec := refine.IterationRecord{
		Index:  2,
		Result: &sandbox.Result{Failure: &sandbox.Failure{Kind: sandbox.KindExecution, Message: "Traceback\nZeroDivisionError: division by zero"}},
	}
	next, _ = m.Update(eventMsg{Iteration: 2, Record: &rec})
	m = next.(progressModel)
	if len(m.lines) != 1 || !strings.Contains(m.lines[0], "ZeroDivisionError") {
		t.Errorf("lines = %q, want a failure summary", m.lines)
	}

	next, cmd := m.Update(doneMsg{})
	m = next.(progressModel)
	if !m.done || cmd == nil {
		t.Error("doneMsg should finish the model and quit")
	}
	if strings.Contains(m.View(), "Iteration") {
		t.Errorf("final View() = %q, want summaries only", m.View())
	}
}

func TestSummarizeRecord(t *testing.T) {
	tests := []struct {
		name string
		rec  refine.IterationRecord
		want string
	}{
		{"generation error", refine.IterationRecord{Index: 1, Error: "no code block found"}, "no code block found"},
		{"success", refine.IterationRecord{Index: 1, Result: &sandbox.Result{Duration: 1500 * time.Millisecond}}, "ran in 1.5s"},
		{"failure", refine.IterationRecord{Index: 3, Result: &sandbox.Result{Failure: &sandbox.Failure{Kind: sandbox.KindUnexpected, Message: "timed out"}}}, "UnexpectedError: timed out"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := summarizeRecord(tt.rec); !strings.Contains(got, tt.want) {
				t.Errorf("summarizeRecord() = %q, want it to contain %q", got, tt.want)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 10); got != "abcdef" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("abcdefghij", 6); got != "abc..." {
		t.Errorf("truncate() = %q, want %q", got, "abc...")
	}
}

func TestRenderStatus(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers.OpenAI.APIKey = "sk-1234567890abcd"

	got := RenderStatus(cfg, "/home/u/.autopy/config.json", RuntimeStatus{})
	for _, want := range []string{"OPENAI", "sk-1****abcd", "reachable", "python:3.9"} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderStatus() missing %q", want)
		}
	}

	got = RenderStatus(config.DefaultConfig(), "", RuntimeStatus{Err: errors.New("dial unix: no such file")})
	for _, want := range []string{"No provider configured", "unavailable"} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderStatus() missing %q", want)
		}
	}
}

func TestRenderHistory(t *testing.T) {
	if got := RenderHistory(nil); !strings.Contains(got, "No runs") {
		t.Errorf("RenderHistory(nil) = %q", got)
	}

	runs := []history.RunInfo{
		{ID: "01HXRUN1", Task: "print fib", Status: refine.StatusSuccess, Iterations: 1, StartedAt: time.Now()},
		{ID: "01HXRUN2", Task: "scrape\nmultiline", Status: refine.StatusAborted, Iterations: 5, StartedAt: time.Now()},
	}
	got := RenderHistory(runs)
	for _, want := range []string{"01HXRUN1", "01HXRUN2", "print fib", "aborted"} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderHistory() missing %q", want)
		}
	}
	if strings.Contains(got, "multiline") {
		t.Error("RenderHistory() should show only the first task line")
	}
}

func TestRenderRun(t *testing.T) {
	run := &history.Run{
		ID:     "01HXRUN1",
		Task:   "print fib",
		Status: refine.StatusSuccess,
		Records: []refine.IterationRecord{
			{Index: 1, Artifact: "print(1)", Dependencies: []string{"numpy"}, Result: &sandbox.Result{Output: "1"}},
		},
	}
	got := RenderRun(run)
	for _, want := range []string{"Run 01HXRUN1", "print(1)", "imports: numpy", "#1"} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderRun() missing %q", want)
		}
	}
}
