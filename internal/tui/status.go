package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hkuds/autopy/internal/config"
)

// Status display styles.
var (
	statusBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2)

	statusLabelStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("252")).
				Width(18)

	statusValueStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("255"))

	statusDisabledStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240"))
)

// RuntimeStatus describes the container runtime as seen at startup.
type RuntimeStatus struct {
	// Err is nil when the daemon answered a ping.
	Err error
}

// RenderStatus renders the configuration and runtime status.
func RenderStatus(cfg *config.Config, configPath string, runtime RuntimeStatus) string {
	var sb strings.Builder

	sb.WriteString(titleStyle.Render("AutoPy Status"))
	sb.WriteString("\n")

	sb.WriteString(sectionStyle.Render("Provider"))
	sb.WriteString("\n")
	sb.WriteString(renderProviderStatus(cfg))
	sb.WriteString("\n")

	sb.WriteString(sectionStyle.Render("Sandbox"))
	sb.WriteString("\n")
	sb.WriteString(renderSandboxStatus(cfg, runtime))
	sb.WriteString("\n")

	sb.WriteString(sectionStyle.Render("Loop"))
	sb.WriteString("\n")
	sb.WriteString(renderStatusRow("Max Iterations", statusValueStyle.Render(fmt.Sprintf("%d", cfg.Loop.MaxIterations))))
	sb.WriteString(renderStatusRow("Retry Delay", statusValueStyle.Render(cfg.RetryDelay().String())))
	sb.WriteString("\n")

	sb.WriteString(sectionStyle.Render("Files"))
	sb.WriteString("\n")
	sb.WriteString(renderStatusRow("Config", statusValueStyle.Render(configPath)))
	sb.WriteString(renderStatusRow("Logs", statusValueStyle.Render(cfg.LogDir())))
	if cfg.History.Enabled {
		sb.WriteString(renderStatusRow("History", statusValueStyle.Render(cfg.HistoryDir())))
	} else {
		sb.WriteString(renderStatusRow("History", statusDisabledStyle.Render("disabled")))
	}

	return statusBoxStyle.Render(sb.String())
}

// renderProviderStatus renders the provider configuration status.
func renderProviderStatus(cfg *config.Config) string {
	var sb strings.Builder

	providerName, apiKey, apiBase := cfg.GetActiveProvider()
	if cfg.Generator.Provider != "" {
		providerName = cfg.Generator.Provider
	}

	if providerName == "" {
		sb.WriteString(renderStatusRow("Status", errorStyle.Render("No provider configured")))
		sb.WriteString(renderStatusRow("", warningStyle.Render("Set "+config.EnvAIMLAPIKey+" or "+config.EnvOpenAIKey)))
		return sb.String()
	}

	sb.WriteString(renderStatusRow("Active", successStyle.Render(strings.ToUpper(providerName))))
	if cfg.Generator.Model != "" {
		sb.WriteString(renderStatusRow("Model", statusValueStyle.Render(cfg.Generator.Model)))
	}
	if apiBase != "" {
		sb.WriteString(renderStatusRow("API Base", statusValueStyle.Render(apiBase)))
	}
	if apiKey != "" {
		sb.WriteString(renderStatusRow("API Key", statusValueStyle.Render(maskAPIKey(apiKey))))
	}

	return sb.String()
}

// renderSandboxStatus renders the sandbox configuration and daemon state.
func renderSandboxStatus(cfg *config.Config, runtime RuntimeStatus) string {
	var sb strings.Builder

	if runtime.Err == nil {
		sb.WriteString(renderStatusRow("Docker", successStyle.Render("reachable")))
	} else {
		sb.WriteString(renderStatusRow("Docker", errorStyle.Render("unavailable")))
		sb.WriteString(renderStatusRow("", warningStyle.Render(truncate(runtime.Err.Error(), 60))))
	}

	sb.WriteString(renderStatusRow("Image", statusValueStyle.Render(cfg.Sandbox.Image)))
	sb.WriteString(renderStatusRow("Memory", statusValueStyle.Render(fmt.Sprintf("%d MB", cfg.Sandbox.MemoryMB))))
	sb.WriteString(renderStatusRow("Timeout", statusValueStyle.Render(cfg.SandboxTimeout().String())))
	if cfg.Sandbox.InstallDependencies {
		sb.WriteString(renderStatusRow("Dependencies", successStyle.Render("installed on demand")))
	} else {
		sb.WriteString(renderStatusRow("Dependencies", statusDisabledStyle.Render("disabled")))
	}
	if cfg.Sandbox.UseGVisor {
		sb.WriteString(renderStatusRow("Runtime", statusValueStyle.Render("gVisor (runsc)")))
	}

	return sb.String()
}

// renderStatusRow renders a label-value row.
func renderStatusRow(label, value string) string {
	if label == "" {
		return fmt.Sprintf("  %s\n", value)
	}
	return fmt.Sprintf("  %s %s\n",
		statusLabelStyle.Render(label+":"),
		value,
	)
}

// maskAPIKey masks an API key for display.
func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
