package sandbox

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/kballard/go-shellquote"
	"github.com/oklog/ulid/v2"

	"github.com/hkuds/autopy/internal/log"
)

const (
	// installNetwork is attached only while packages are installed.
	installNetwork = "bridge"

	// exitCodeKilled is reported when the kernel OOM killer or a timeout
	// sends SIGKILL to the program.
	exitCodeKilled = 137

	managedLabel = "io.autopy.managed"
)

// bootstrap reads one base64 line from stdin and runs it as __main__, so
// program text never passes through a shell, argv or a shared file. The
// program sees stdin at EOF afterwards.
const bootstrap = "import base64,sys;" +
	"src=base64.b64decode(sys.stdin.readline()).decode('utf-8');" +
	"exec(compile(src,'main.py','exec'),{'__name__':'__main__'})"

// Request is one program to run.
type Request struct {
	// Source is the program text.
	Source string
	// Packages are distributions to install before running. Ignored when
	// the executor's Config disables the install phase.
	Packages []string
}

// ExecutorConfig is the configuration for an Executor.
type ExecutorConfig struct {
	// Client talks to the container runtime.
	Client DockerClient
	// InitErr records a failed client initialization. When set, or when
	// Client is nil, every Run fails with KindRuntimeUnavailable.
	InitErr error
	Sandbox Config
	Logger  log.Logger
}

func (c *ExecutorConfig) defaults() {
	c.Sandbox.Validate()
	if c.Client == nil && c.InitErr == nil {
		c.InitErr = errors.New("docker client is not initialized")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "sandbox.Executor"})
}

// Executor runs programs in a fresh, resource-limited container per call.
// The container is always removed before Run returns.
type Executor struct {
	client  DockerClient
	initErr error
	cfg     Config
	logger  log.Logger
}

// NewExecutor creates an Executor.
func NewExecutor(cfg ExecutorConfig) *Executor {
	cfg.defaults()
	return &Executor{
		client:  cfg.Client,
		initErr: cfg.InitErr,
		cfg:     cfg.Sandbox,
		logger:  cfg.Logger,
	}
}

// Config returns a copy of the sandbox configuration.
func (e *Executor) Config() Config {
	return e.cfg
}

// Ping checks if the Docker daemon is accessible.
func (e *Executor) Ping(ctx context.Context) error {
	if e.initErr != nil {
		return e.initErr
	}
	_, err := e.client.Ping(ctx)
	return err
}

// Run executes req in a new sandbox and returns the classified result.
func (e *Executor) Run(ctx context.Context, req Request) Result {
	start := time.Now()
	res := e.run(ctx, req)
	res.Duration = time.Since(start)

	if res.Success() {
		e.logger.Infof("Execution succeeded in %s", res.Duration)
	} else {
		e.logger.WithValues(log.Kv{"kind": res.Failure.Kind.String()}).
			Warningf("Execution failed: %s", res.Failure.Message)
	}
	return res
}

func (e *Executor) run(ctx context.Context, req Request) Result {
	if e.initErr != nil {
		return failed(KindRuntimeUnavailable, "container runtime unavailable: %v", e.initErr)
	}

	packages := e.allowedPackages(req.Packages)
	installing := len(packages) > 0

	containerID, err := e.createContainer(ctx, installing)
	if err != nil {
		return classifyRuntimeErr("create container", err)
	}
	defer e.removeContainer(containerID)

	if err := e.client.ContainerStart(ctx, containerID, container.StartOptions{}); err != nil {
		res := classifyRuntimeErr("start container", err)
		res.ContainerID = containerID
		return res
	}

	var installed []string
	if installing {
		installed = e.install(ctx, containerID, packages)
		if err := e.client.NetworkDisconnect(ctx, installNetwork, containerID, true); err != nil {
			res := classifyRuntimeErr("detach install network", err)
			res.ContainerID = containerID
			return res
		}
		e.logger.Debugf("Detached %s network from %s", installNetwork, containerID)
	}

	res := e.execute(ctx, containerID, req.Source)
	res.ContainerID = containerID
	res.Installed = installed
	return res
}

// allowedPackages drops packages rejected by GuardPackage. It returns nil
// when the install phase is disabled.
func (e *Executor) allowedPackages(packages []string) []string {
	if !e.cfg.InstallDependencies {
		return nil
	}
	var out []string
	for _, pkg := range packages {
		if reason := GuardPackage(pkg); reason != "" {
			e.logger.Warningf("Skipping package %q: %s", pkg, reason)
			continue
		}
		out = append(out, pkg)
	}
	return out
}

// createContainer creates the sandbox container, pulling the image if the
// runtime does not have it.
func (e *Executor) createContainer(ctx context.Context, withNetwork bool) (string, error) {
	containerCfg, hostCfg := e.buildContainerConfig(withNetwork)
	name := "autopy-" + strings.ToLower(ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String())

	resp, err := e.client.ContainerCreate(ctx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	if err != nil && errdefs.IsNotFound(err) {
		if pullErr := e.pullImage(ctx); pullErr != nil {
			return "", pullErr
		}
		resp, err = e.client.ContainerCreate(ctx, containerCfg, hostCfg, &network.NetworkingConfig{}, nil, name)
	}
	if err != nil {
		return "", err
	}

	e.logger.Debugf("Created container %s (%s)", name, resp.ID)
	return resp.ID, nil
}

func (e *Executor) pullImage(ctx context.Context) error {
	e.logger.Infof("Pulling image: %s", e.cfg.Image)
	reader, err := e.client.ImagePull(ctx, e.cfg.Image, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", e.cfg.Image, err)
	}
	defer reader.Close()

	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", e.cfg.Image, err)
	}
	return nil
}

// buildContainerConfig creates the container and host configurations.
func (e *Executor) buildContainerConfig(withNetwork bool) (*container.Config, *container.HostConfig) {
	containerCfg := &container.Config{
		Image:      e.cfg.Image,
		WorkingDir: e.cfg.WorkDir,
		User:       "nobody",
		Tty:        false,
		Env: []string{
			"HOME=/tmp",
			"PYTHONPATH=" + e.cfg.DepsDir,
			"PYTHONUNBUFFERED=1",
			"PYTHONDONTWRITEBYTECODE=1",
		},
		Labels: map[string]string{managedLabel: "true"},
		// Keep the container alive so install and run share one instance.
		Cmd: []string{"sleep", "infinity"},
	}

	hostCfg := &container.HostConfig{
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges:true"},
		Resources: container.Resources{
			Memory: e.cfg.MemoryMB * 1024 * 1024,
			// Same as Memory to disable swap.
			MemorySwap: e.cfg.MemoryMB * 1024 * 1024,
			CPUQuota:   int64(e.cfg.CPUPercent * 100000),
			CPUPeriod:  100000,
			PidsLimit:  &e.cfg.MaxProcesses,
		},
		Tmpfs: map[string]string{
			"/tmp":        "rw,noexec,nosuid,mode=1777,size=64m",
			e.cfg.WorkDir: "rw,noexec,nosuid,mode=1777,size=64m",
			e.cfg.DepsDir: "rw,exec,nosuid,mode=1777,size=512m",
		},
		NetworkMode: "none",
	}

	if withNetwork {
		hostCfg.NetworkMode = installNetwork
	}
	if e.cfg.UseGVisor {
		hostCfg.Runtime = "runsc"
	}

	return containerCfg, hostCfg
}

// install installs each package on its own. Failures are logged and left
// to surface as import errors when the program runs.
func (e *Executor) install(ctx context.Context, containerID string, packages []string) []string {
	var installed []string
	for _, pkg := range packages {
		cmd := []string{
			e.cfg.Interpreter, "-m", "pip", "install",
			"--quiet", "--disable-pip-version-check", "--no-cache-dir",
			"--target", e.cfg.DepsDir, pkg,
		}
		e.logger.Debugf("Installing: %s", shellquote.Join(cmd...))

		out, err := e.exec(ctx, containerID, cmd, "", e.cfg.InstallTimeout)
		switch {
		case err != nil:
			e.logger.Warningf("Install of %s failed: %v", pkg, err)
		case out.exitCode != 0:
			e.logger.Warningf("Install of %s exited with status %d: %s", pkg, out.exitCode, strings.TrimSpace(out.stderr))
		default:
			installed = append(installed, pkg)
		}
	}
	return installed
}

// execute runs the program and classifies its outcome.
func (e *Executor) execute(ctx context.Context, containerID, source string) Result {
	payload := base64.StdEncoding.EncodeToString([]byte(source))
	cmd := []string{e.cfg.Interpreter, "-c", bootstrap}
	e.logger.Debugf("Running: %s <stdin %d bytes>", shellquote.Join(cmd...), len(payload))

	out, err := e.exec(ctx, containerID, cmd, payload+"\n", e.cfg.Timeout)
	if err != nil {
		var rerr *runtimeError
		switch {
		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			return failed(KindUnexpected, "execution timed out after %s", e.cfg.Timeout)
		case errors.As(err, &rerr) && ctx.Err() == nil:
			return classifyRuntimeErr(rerr.op, rerr.err)
		}
		return failed(KindUnexpected, "execution error: %v", err)
	}

	switch out.exitCode {
	case 0:
		return Result{Output: decode(out.combined)}
	case exitCodeKilled:
		res := failed(KindUnexpected, "program was killed (exit status %d), likely exceeding the %d MB memory limit", exitCodeKilled, e.cfg.MemoryMB)
		res.ExitCode = out.exitCode
		return res
	}

	msg := decode(out.stderr)
	if msg == "" {
		msg = decode(out.combined)
	}
	if msg == "" {
		msg = fmt.Sprintf("program exited with status %d", out.exitCode)
	}
	res := failed(KindExecution, "%s", msg)
	res.ExitCode = out.exitCode
	return res
}

type execOutput struct {
	stdout   string
	stderr   string
	combined string
	exitCode int
}

// runtimeError is a Docker API failure while driving an exec, as opposed to
// a timeout or a broken output stream.
type runtimeError struct {
	op  string
	err error
}

func (e *runtimeError) Error() string { return "failed to " + e.op + ": " + e.err.Error() }
func (e *runtimeError) Unwrap() error { return e.err }

// exec runs cmd inside the container and waits for it up to timeout. A
// non-empty stdin is written to the process, then its stdin is closed.
func (e *Executor) exec(ctx context.Context, containerID string, cmd []string, stdin string, timeout time.Duration) (execOutput, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	execResp, err := e.client.ContainerExecCreate(execCtx, containerID, container.ExecOptions{
		Cmd:          cmd,
		AttachStdin:  stdin != "",
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   e.cfg.WorkDir,
		User:         "nobody",
	})
	if err != nil {
		return execOutput{exitCode: -1}, &runtimeError{op: "create exec", err: err}
	}

	attachResp, err := e.client.ContainerExecAttach(execCtx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return execOutput{exitCode: -1}, &runtimeError{op: "attach to exec", err: err}
	}
	defer attachResp.Close()

	if stdin != "" {
		go func() {
			if _, err := io.WriteString(attachResp.Conn, stdin); err != nil {
				e.logger.Debugf("Writing program to stdin failed: %v", err)
				return
			}
			if err := attachResp.CloseWrite(); err != nil {
				e.logger.Debugf("Closing program stdin failed: %v", err)
			}
		}()
	}

	// Frames arrive in order, so writing both streams into combined keeps
	// the interleaving the program produced.
	var stdoutBuf, stderrBuf, combinedBuf bytes.Buffer
	outputDone := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(
			io.MultiWriter(&stdoutBuf, &combinedBuf),
			io.MultiWriter(&stderrBuf, &combinedBuf),
			attachResp.Reader,
		)
		outputDone <- err
	}()

	select {
	case err := <-outputDone:
		if err != nil {
			return execOutput{exitCode: -1}, fmt.Errorf("failed to read output: %w", err)
		}
	case <-execCtx.Done():
		return execOutput{exitCode: -1}, execCtx.Err()
	}

	inspectResp, err := e.client.ContainerExecInspect(execCtx, execResp.ID)
	if err != nil {
		return execOutput{exitCode: -1}, &runtimeError{op: "inspect exec", err: err}
	}

	return execOutput{
		stdout:   stdoutBuf.String(),
		stderr:   stderrBuf.String(),
		combined: combinedBuf.String(),
		exitCode: inspectResp.ExitCode,
	}, nil
}

// removeContainer force-removes the container with a fresh context so
// cleanup happens even when the caller's context is done.
func (e *Executor) removeContainer(containerID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err := e.client.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !errdefs.IsNotFound(err) {
		e.logger.Errorf("Failed to remove container %s: %v", containerID, err)
		return
	}
	e.logger.Debugf("Removed container %s", containerID)
}

// classifyRuntimeErr maps a Docker API error to a fatal failure kind.
func classifyRuntimeErr(op string, err error) Result {
	if client.IsErrConnectionFailed(err) {
		return failed(KindRuntimeUnavailable, "docker daemon unreachable during %s: %v", op, err)
	}
	return failed(KindInfrastructure, "failed to %s: %v", op, err)
}

func decode(s string) string {
	return strings.TrimSpace(strings.ToValidUTF8(s, "�"))
}
