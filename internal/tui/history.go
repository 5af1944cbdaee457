package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hkuds/autopy/internal/history"
	"github.com/hkuds/autopy/internal/refine"
)

var tableHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(lipgloss.Color("39"))

// RenderHistory renders run summaries as a table, newest first.
func RenderHistory(runs []history.RunInfo) string {
	if len(runs) == 0 {
		return subtitleStyle.Render("No runs recorded yet.") + "\n"
	}

	var sb strings.Builder
	sb.WriteString(tableHeaderStyle.Render(fmt.Sprintf("%-26s  %-16s  %-8s  %-5s  %s", "ID", "STARTED", "STATUS", "ITER", "TASK")))
	sb.WriteString("\n")
	for _, r := range runs {
		status := successStyle.Render(fmt.Sprintf("%-8s", r.Status))
		if r.Status != refine.StatusSuccess {
			status = errorStyle.Render(fmt.Sprintf("%-8s", r.Status))
		}
		sb.WriteString(fmt.Sprintf("%-26s  %-16s  %s  %-5d  %s\n",
			r.ID,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
			status,
			r.Iterations,
			truncate(firstLine(r.Task), 48),
		))
	}
	return sb.String()
}

// RenderRun renders a single run with every iteration record.
func RenderRun(run *history.Run) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("Run " + run.ID))
	sb.WriteString("\n")
	sb.WriteString(renderStatusRow("Task", statusValueStyle.Render(truncate(firstLine(run.Task), 60))))
	if run.Model != "" {
		sb.WriteString(renderStatusRow("Model", statusValueStyle.Render(run.Model)))
	}
	status := string(run.Status)
	if run.Reason != "" {
		status += " (" + string(run.Reason) + ")"
	}
	sb.WriteString(renderStatusRow("Status", statusValueStyle.Render(status)))
	sb.WriteString(renderStatusRow("Started", statusValueStyle.Render(run.StartedAt.Local().Format(time.RFC3339))))
	if run.LogFile != "" {
		sb.WriteString(renderStatusRow("Log", statusValueStyle.Render(run.LogFile)))
	}

	for _, rec := range run.Records {
		sb.WriteString("\n")
		sb.WriteString(summarizeRecord(rec))
		sb.WriteString("\n")
		if len(rec.Dependencies) > 0 {
			sb.WriteString(subtitleStyle.Render("imports: " + strings.Join(rec.Dependencies, ", ")))
			sb.WriteString("\n")
		}
		if rec.Artifact != "" {
			sb.WriteString(codeBoxStyle.Render(rec.Artifact))
			sb.WriteString("\n")
		}
		if rec.Result != nil {
			text := rec.Result.Output
			if rec.Result.Failure != nil {
				text = rec.Result.Failure.Message
			}
			if text != "" {
				sb.WriteString(outputBoxStyle.Render(text))
				sb.WriteString("\n")
			}
		}
	}
	return sb.String()
}
