package tui

import (
	"fmt"
	"strings"

	"github.com/hkuds/autopy/internal/refine"
)

// FailureMessage is shown when no working script was produced.
const FailureMessage = "Failed to generate a working script."

// RenderOutcome renders the final result of a run.
func RenderOutcome(out refine.Outcome, logPath string) string {
	if !out.Succeeded() {
		return renderFailure(out, logPath)
	}

	var sb strings.Builder
	sb.WriteString(successStyle.Render(fmt.Sprintf("✓ Working script after %d %s", out.Iterations, plural(out.Iterations, "iteration"))))
	sb.WriteString("\n\n")
	sb.WriteString(sectionStyle.Render("Code"))
	sb.WriteString("\n")
	sb.WriteString(codeBoxStyle.Render(out.Artifact))
	sb.WriteString("\n\n")
	sb.WriteString(sectionStyle.Render("Output"))
	sb.WriteString("\n")
	output := out.Output
	if output == "" {
		output = subtitleStyle.Render("(no output)")
	}
	sb.WriteString(outputBoxStyle.Render(output))
	sb.WriteString("\n")
	return sb.String()
}

func renderFailure(out refine.Outcome, logPath string) string {
	var sb strings.Builder
	sb.WriteString(errorStyle.Render("✗ " + FailureMessage))
	sb.WriteString("\n")
	sb.WriteString(subtitleStyle.Render(fmt.Sprintf("Stopped after %d %s: %s", out.Iterations, plural(out.Iterations, "iteration"), describeReason(out.Reason))))
	sb.WriteString("\n")
	if out.LastFailure != nil {
		sb.WriteString(warningStyle.Render(truncate(out.LastFailure.Kind.String()+": "+lastLine(out.LastFailure.Message), 120)))
		sb.WriteString("\n")
	}
	if logPath != "" {
		sb.WriteString(fmt.Sprintf("Check the log at %s for details.\n", logPath))
	}
	return sb.String()
}

// RenderPlain renders the outcome without styling, for pipes and scripts.
func RenderPlain(out refine.Outcome, logPath string) string {
	if !out.Succeeded() {
		msg := FailureMessage
		if logPath != "" {
			msg += fmt.Sprintf(" Check the log at %s for details.", logPath)
		}
		return msg + "\n"
	}
	return fmt.Sprintf("Final script:\n%s\n\nOutput:\n%s\n", out.Artifact, out.Output)
}

func describeReason(r refine.Reason) string {
	switch r {
	case refine.ReasonGenerationFailed:
		return "the code generation request failed"
	case refine.ReasonNoCodeBlock:
		return "the response contained no python code block"
	case refine.ReasonInfrastructure:
		return "the sandbox could not run the code"
	case refine.ReasonMaxIterations:
		return "iteration limit reached"
	case refine.ReasonCancelled:
		return "cancelled"
	}
	return string(r)
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
