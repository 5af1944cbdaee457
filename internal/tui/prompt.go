package tui

import (
	"strings"

	"github.com/charmbracelet/huh"
)

// PromptTask asks for a task description. An empty answer selects
// defaultTask.
func PromptTask(defaultTask string) (string, error) {
	var input string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewText().
				Title("What should the script do?").
				Description("Press Enter on an empty field to use the example task").
				Placeholder(defaultTask).
				CharLimit(4000).
				Lines(3).
				Value(&input),
		),
	)

	if err := form.Run(); err != nil {
		return "", err
	}
	return ResolveTask(input, defaultTask), nil
}

// ResolveTask returns input trimmed, or defaultTask when input is blank.
func ResolveTask(input, defaultTask string) string {
	if task := strings.TrimSpace(input); task != "" {
		return task
	}
	return defaultTask
}
