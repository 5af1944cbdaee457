package sandbox

import "time"

// Default configuration values.
const (
	DefaultImage          = "python:3.9"
	DefaultInterpreter    = "python"
	DefaultMemoryMB       = 128
	DefaultCPUPercent     = 0.5
	DefaultMaxProcesses   = 64
	DefaultTimeout        = 30 * time.Second
	DefaultInstallTimeout = 2 * time.Minute
	DefaultWorkDir        = "/workspace"
	DefaultDepsDir        = "/opt/autopy/deps"
)

// Config holds configuration for the sandbox environment.
type Config struct {
	// Image is the container image the program runs in.
	// Default: python:3.9
	Image string

	// Interpreter is the python executable inside the image.
	// Default: python
	Interpreter string

	// MemoryMB is the memory ceiling in megabytes. Swap is disabled.
	// Default: 128
	MemoryMB int64

	// CPUPercent is the CPU limit as a fraction (0.0-1.0).
	// Default: 0.5 (50% of one CPU)
	CPUPercent float64

	// MaxProcesses is the maximum number of PIDs allowed in the container.
	// Default: 64
	MaxProcesses int64

	// UseGVisor enables gVisor runtime (runsc) if available.
	// Default: false
	UseGVisor bool

	// InstallDependencies enables the install phase for packages passed in
	// a Request. When false no network is ever attached.
	// Default: true
	InstallDependencies bool

	// WorkDir is the working directory inside the container.
	// Default: /workspace
	WorkDir string

	// DepsDir is the writable directory packages are installed into. It is
	// placed on PYTHONPATH for the program.
	// Default: /opt/autopy/deps
	DepsDir string

	// Timeout bounds the program run.
	// Default: 30s
	Timeout time.Duration

	// InstallTimeout bounds each package install.
	// Default: 2m
	InstallTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Image:               DefaultImage,
		Interpreter:         DefaultInterpreter,
		MemoryMB:            DefaultMemoryMB,
		CPUPercent:          DefaultCPUPercent,
		MaxProcesses:        DefaultMaxProcesses,
		UseGVisor:           false,
		InstallDependencies: true,
		WorkDir:             DefaultWorkDir,
		DepsDir:             DefaultDepsDir,
		Timeout:             DefaultTimeout,
		InstallTimeout:      DefaultInstallTimeout,
	}
}

// WithImage returns a copy of the config with the specified image.
func (c Config) WithImage(image string) Config {
	c.Image = image
	return c
}

// WithMemoryMB returns a copy of the config with the specified memory limit.
func (c Config) WithMemoryMB(mb int64) Config {
	c.MemoryMB = mb
	return c
}

// WithCPUPercent returns a copy of the config with the specified CPU limit.
func (c Config) WithCPUPercent(pct float64) Config {
	c.CPUPercent = pct
	return c
}

// WithMaxProcesses returns a copy of the config with the specified PID limit.
func (c Config) WithMaxProcesses(max int64) Config {
	c.MaxProcesses = max
	return c
}

// WithGVisor returns a copy of the config with gVisor enabled or disabled.
func (c Config) WithGVisor(enabled bool) Config {
	c.UseGVisor = enabled
	return c
}

// WithInstallDependencies returns a copy of the config with the install phase
// enabled or disabled.
func (c Config) WithInstallDependencies(enabled bool) Config {
	c.InstallDependencies = enabled
	return c
}

// WithTimeout returns a copy of the config with the specified run timeout.
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.Timeout = timeout
	return c
}

// WithInstallTimeout returns a copy of the config with the specified
// per-package install timeout.
func (c Config) WithInstallTimeout(timeout time.Duration) Config {
	c.InstallTimeout = timeout
	return c
}

// Validate applies defaults to unset or out-of-range values.
func (c *Config) Validate() {
	if c.Image == "" {
		c.Image = DefaultImage
	}
	if c.Interpreter == "" {
		c.Interpreter = DefaultInterpreter
	}
	if c.MemoryMB <= 0 {
		c.MemoryMB = DefaultMemoryMB
	}
	if c.CPUPercent <= 0 || c.CPUPercent > 1.0 {
		c.CPUPercent = DefaultCPUPercent
	}
	if c.MaxProcesses <= 0 {
		c.MaxProcesses = DefaultMaxProcesses
	}
	if c.WorkDir == "" {
		c.WorkDir = DefaultWorkDir
	}
	if c.DepsDir == "" {
		c.DepsDir = DefaultDepsDir
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.InstallTimeout <= 0 {
		c.InstallTimeout = DefaultInstallTimeout
	}
}
