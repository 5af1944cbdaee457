package sandbox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/errdefs"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
)

// fakeExec is the scripted outcome of one exec.
type fakeExec struct {
	stdout string
	stderr string
	exit   int
	block  bool
}

type disconnectCall struct {
	network     string
	containerID string
}

// fakeDocker implements DockerClient in memory.
type fakeDocker struct {
	mu sync.Mutex

	handler      func(cmd []string) fakeExec
	missingImage bool
	createErr    error
	startErr     error
	disconnErr   error
	execErr      error
	attachErr    error
	inspectErr   error

	pulled      []string
	hostConfigs []*container.HostConfig
	configs     []*container.Config
	started     []string
	removed     []string
	disconnects []disconnectCall
	execCmds    [][]string
	execs       map[string]fakeExec
	execOpts    map[string]container.ExecOptions
	stdins      []string
}

func newFakeDocker(handler func(cmd []string) fakeExec) *fakeDocker {
	return &fakeDocker{
		handler:  handler,
		execs:    make(map[string]fakeExec),
		execOpts: make(map[string]container.ExecOptions),
	}
}

func (f *fakeDocker) Ping(ctx context.Context) (types.Ping, error) {
	return types.Ping{APIVersion: "1.47"}, nil
}

func (f *fakeDocker) ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulled = append(f.pulled, ref)
	f.missingImage = false
	return io.NopCloser(strings.NewReader(`{"status":"Downloaded"}`)), nil
}

func (f *fakeDocker) ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return container.CreateResponse{}, f.createErr
	}
	if f.missingImage {
		return container.CreateResponse{}, errdefs.NotFound(errors.New("no such image: " + config.Image))
	}
	f.configs = append(f.configs, config)
	f.hostConfigs = append(f.hostConfigs, hostConfig)
	return container.CreateResponse{ID: fmt.Sprintf("ctr-%d", len(f.configs))}, nil
}

func (f *fakeDocker) ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.started = append(f.started, containerID)
	return nil
}

func (f *fakeDocker) ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, containerID)
	return nil
}

func (f *fakeDocker) ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (types.IDResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execCmds = append(f.execCmds, options.Cmd)
	if f.execErr != nil {
		return types.IDResponse{}, f.execErr
	}
	id := fmt.Sprintf("exec-%d", len(f.execCmds))
	f.execs[id] = f.handler(options.Cmd)
	f.execOpts[id] = options
	return types.IDResponse{ID: id}, nil
}

// hookConn runs onClose when the executor closes the hijacked response.
type hookConn struct {
	net.Conn
	onClose func()
}

func (c hookConn) Close() error {
	c.onClose()
	return c.Conn.Close()
}

// gatedReader blocks reads until ready is closed.
type gatedReader struct {
	ready <-chan struct{}
	r     io.Reader
}

func (g gatedReader) Read(p []byte) (int, error) {
	<-g.ready
	return g.r.Read(p)
}

func (f *fakeDocker) ContainerExecAttach(ctx context.Context, execID string, config container.ExecStartOptions) (types.HijackedResponse, error) {
	f.mu.Lock()
	ex, opts, attachErr := f.execs[execID], f.execOpts[execID], f.attachErr
	f.mu.Unlock()
	if attachErr != nil {
		return types.HijackedResponse{}, attachErr
	}

	local, remote := net.Pipe()

	// Output is released only once stdin has been consumed, so the
	// recorded stdin is complete when Run returns.
	stdinRead := make(chan struct{})
	if opts.AttachStdin {
		go func() {
			defer close(stdinRead)
			line, _ := bufio.NewReader(remote).ReadString('\n')
			f.mu.Lock()
			f.stdins = append(f.stdins, line)
			f.mu.Unlock()
		}()
	} else {
		close(stdinRead)
	}

	if ex.block {
		// Reads block until the executor closes the response.
		pr, pw := io.Pipe()
		conn := hookConn{Conn: local, onClose: func() { pw.Close(); remote.Close() }}
		return types.HijackedResponse{Conn: conn, Reader: bufio.NewReader(pr)}, nil
	}

	var buf bytes.Buffer
	if ex.stdout != "" {
		stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(ex.stdout))
	}
	if ex.stderr != "" {
		stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(ex.stderr))
	}
	conn := hookConn{Conn: local, onClose: func() { remote.Close() }}
	return types.HijackedResponse{Conn: conn, Reader: bufio.NewReader(gatedReader{ready: stdinRead, r: &buf})}, nil
}

func (f *fakeDocker) ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inspectErr != nil {
		return container.ExecInspect{}, f.inspectErr
	}
	return container.ExecInspect{ExecID: execID, ExitCode: f.execs[execID].exit}, nil
}

func (f *fakeDocker) NetworkDisconnect(ctx context.Context, networkID, containerID string, force bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, disconnectCall{network: networkID, containerID: containerID})
	return f.disconnErr
}

// runCmds returns the execs that ran the program, skipping installs.
func (f *fakeDocker) runCmds() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out [][]string
	for _, cmd := range f.execCmds {
		if len(cmd) > 1 && cmd[1] == "-c" {
			out = append(out, cmd)
		}
	}
	return out
}

// programSource decodes the program the i-th run wrote to stdin.
func (f *fakeDocker) programSource(t *testing.T, i int) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if i >= len(f.stdins) {
		t.Fatalf("stdin writes = %d, want more than %d", len(f.stdins), i)
	}
	line := f.stdins[i]
	if !strings.HasSuffix(line, "\n") {
		t.Errorf("stdin = %q, want a newline-terminated line", line)
	}
	src, err := base64.StdEncoding.DecodeString(strings.TrimSuffix(line, "\n"))
	if err != nil {
		t.Fatalf("payload decode error = %v", err)
	}
	return string(src)
}

func reply(ex fakeExec) func([]string) fakeExec {
	return func([]string) fakeExec { return ex }
}

func newTestExecutor(fake *fakeDocker, cfg Config) *Executor {
	return NewExecutor(ExecutorConfig{Client: fake, Sandbox: cfg})
}

func TestExecutorRunSuccess(t *testing.T) {
	fake := newFakeDocker(reply(fakeExec{stdout: "0 1 1 2 3 5 8\n"}))
	exec := newTestExecutor(fake, DefaultConfig())

	source := "print('0 1 1 2 3 5 8')"
	res := exec.Run(context.Background(), Request{Source: source})

	if !res.Success() {
		t.Fatalf("Run() failure = %v, want success", res.Failure)
	}
	if res.Output != "0 1 1 2 3 5 8" {
		t.Errorf("Output = %q, want %q", res.Output, "0 1 1 2 3 5 8")
	}
	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if res.ContainerID != "ctr-1" {
		t.Errorf("ContainerID = %q, want %q", res.ContainerID, "ctr-1")
	}

	runs := fake.runCmds()
	if len(runs) != 1 {
		t.Fatalf("program execs = %d, want 1", len(runs))
	}
	if len(runs[0]) != 3 {
		t.Errorf("program argv = %q, want interpreter, -c and bootstrap only", runs[0])
	}
	if got := fake.programSource(t, 0); got != source {
		t.Errorf("program on stdin = %q, want %q", got, source)
	}
	if len(fake.removed) != 1 || fake.removed[0] != "ctr-1" {
		t.Errorf("removed = %v, want [ctr-1]", fake.removed)
	}
}

func TestExecutorContainerHardening(t *testing.T) {
	fake := newFakeDocker(reply(fakeExec{}))
	exec := newTestExecutor(fake, DefaultConfig().WithGVisor(true))

	exec.Run(context.Background(), Request{Source: "pass"})

	if len(fake.hostConfigs) != 1 {
		t.Fatalf("containers created = %d, want 1", len(fake.hostConfigs))
	}
	host := fake.hostConfigs[0]
	if host.NetworkMode != "none" {
		t.Errorf("NetworkMode = %q, want none", host.NetworkMode)
	}
	if !host.ReadonlyRootfs {
		t.Error("ReadonlyRootfs should be true")
	}
	if host.Memory != DefaultMemoryMB*1024*1024 {
		t.Errorf("Memory = %d, want %d", host.Memory, DefaultMemoryMB*1024*1024)
	}
	if host.MemorySwap != host.Memory {
		t.Errorf("MemorySwap = %d, want %d", host.MemorySwap, host.Memory)
	}
	if host.Runtime != "runsc" {
		t.Errorf("Runtime = %q, want runsc", host.Runtime)
	}
	if len(host.CapDrop) != 1 || host.CapDrop[0] != "ALL" {
		t.Errorf("CapDrop = %v, want [ALL]", host.CapDrop)
	}
	if _, ok := host.Tmpfs[DefaultDepsDir]; !ok {
		t.Errorf("Tmpfs = %v, want %s mounted", host.Tmpfs, DefaultDepsDir)
	}
	if fake.configs[0].Image != DefaultImage {
		t.Errorf("Image = %q, want %q", fake.configs[0].Image, DefaultImage)
	}
}

func TestExecutorRunFailures(t *testing.T) {
	tests := []struct {
		name     string
		ex       fakeExec
		kind     Kind
		exitCode int
		message  string
	}{
		{
			name:     "traceback on stderr",
			ex:       fakeExec{stdout: "partial\n", stderr: "Traceback (most recent call last):\nNameError: name 'x' is not defined\n", exit: 1},
			kind:     KindExecution,
			exitCode: 1,
			message:  "NameError: name 'x' is not defined",
		},
		{
			name:     "error only on stdout",
			ex:       fakeExec{stdout: "fatal: bad input\n", exit: 1},
			kind:     KindExecution,
			exitCode: 1,
			message:  "fatal: bad input",
		},
		{
			name:     "silent non-zero exit",
			ex:       fakeExec{exit: 2},
			kind:     KindExecution,
			exitCode: 2,
			message:  "program exited with status 2",
		},
		{
			name:     "killed",
			ex:       fakeExec{exit: 137},
			kind:     KindUnexpected,
			exitCode: 137,
			message:  "memory limit",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeDocker(reply(tt.ex))
			res := newTestExecutor(fake, DefaultConfig()).Run(context.Background(), Request{Source: "x"})

			if res.Success() {
				t.Fatal("Run() succeeded, want failure")
			}
			if res.Failure.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", res.Failure.Kind, tt.kind)
			}
			if res.ExitCode != tt.exitCode {
				t.Errorf("ExitCode = %d, want %d", res.ExitCode, tt.exitCode)
			}
			if !strings.Contains(res.Failure.Message, tt.message) {
				t.Errorf("Message = %q, want it to contain %q", res.Failure.Message, tt.message)
			}
			if len(fake.removed) != 1 {
				t.Errorf("removed = %v, want one container", fake.removed)
			}
		})
	}
}

func TestExecutorRunTimeout(t *testing.T) {
	fake := newFakeDocker(reply(fakeExec{block: true}))
	exec := newTestExecutor(fake, DefaultConfig().WithTimeout(50*time.Millisecond))

	res := exec.Run(context.Background(), Request{Source: "while True: pass"})

	if res.Success() {
		t.Fatal("Run() succeeded, want timeout")
	}
	if res.Failure.Kind != KindUnexpected {
		t.Errorf("Kind = %s, want %s", res.Failure.Kind, KindUnexpected)
	}
	if !strings.Contains(res.Failure.Message, "timed out") {
		t.Errorf("Message = %q, want timed out", res.Failure.Message)
	}
	if len(fake.removed) != 1 {
		t.Errorf("removed = %v, want one container", fake.removed)
	}
}

func TestExecutorRunCancelled(t *testing.T) {
	fake := newFakeDocker(reply(fakeExec{block: true}))
	exec := newTestExecutor(fake, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := exec.Run(ctx, Request{Source: "pass"})

	if res.Success() || res.Failure.Kind != KindUnexpected {
		t.Fatalf("Run() failure = %v, want %s", res.Failure, KindUnexpected)
	}
	if len(fake.removed) != 1 {
		t.Errorf("removed = %v, want cleanup after cancel", fake.removed)
	}
}

func TestExecutorRuntimeUnavailable(t *testing.T) {
	tests := []struct {
		name string
		cfg  ExecutorConfig
	}{
		{"init error", ExecutorConfig{InitErr: errors.New("cannot connect to the Docker daemon")}},
		{"nil client", ExecutorConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec := NewExecutor(tt.cfg)
			res := exec.Run(context.Background(), Request{Source: "print(1)"})

			if res.Success() {
				t.Fatal("Run() succeeded, want failure")
			}
			if res.Failure.Kind != KindRuntimeUnavailable {
				t.Errorf("Kind = %s, want %s", res.Failure.Kind, KindRuntimeUnavailable)
			}
			if !res.Failure.Kind.Fatal() {
				t.Error("Kind.Fatal() = false, want true")
			}
			if err := exec.Ping(context.Background()); err == nil {
				t.Error("Ping() error = nil, want error")
			}
		})
	}
}

func TestExecutorInfrastructureFailures(t *testing.T) {
	t.Run("create", func(t *testing.T) {
		fake := newFakeDocker(reply(fakeExec{}))
		fake.createErr = errors.New("invalid reference format")

		res := newTestExecutor(fake, DefaultConfig()).Run(context.Background(), Request{Source: "pass"})
		if res.Success() || res.Failure.Kind != KindInfrastructure {
			t.Fatalf("Run() failure = %v, want %s", res.Failure, KindInfrastructure)
		}
		if len(fake.removed) != 0 {
			t.Errorf("removed = %v, want nothing", fake.removed)
		}
	})

	t.Run("start", func(t *testing.T) {
		fake := newFakeDocker(reply(fakeExec{}))
		fake.startErr = errors.New("runtime runsc not found")

		res := newTestExecutor(fake, DefaultConfig()).Run(context.Background(), Request{Source: "pass"})
		if res.Success() || res.Failure.Kind != KindInfrastructure {
			t.Fatalf("Run() failure = %v, want %s", res.Failure, KindInfrastructure)
		}
		if len(fake.removed) != 1 {
			t.Errorf("removed = %v, want one container", fake.removed)
		}
		if len(fake.execCmds) != 0 {
			t.Errorf("execs = %d, want 0", len(fake.execCmds))
		}
	})

	execPhase := []struct {
		name  string
		setup func(f *fakeDocker)
	}{
		{"exec create", func(f *fakeDocker) { f.execErr = errors.New("Error response from daemon: container is not running") }},
		{"exec attach", func(f *fakeDocker) { f.attachErr = errors.New("Error response from daemon: container is paused") }},
		{"exec inspect", func(f *fakeDocker) { f.inspectErr = errors.New("Error response from daemon: no such exec") }},
	}
	for _, tt := range execPhase {
		t.Run(tt.name, func(t *testing.T) {
			fake := newFakeDocker(reply(fakeExec{stdout: "ok"}))
			tt.setup(fake)

			res := newTestExecutor(fake, DefaultConfig()).Run(context.Background(), Request{Source: "print('ok')"})
			if res.Success() || res.Failure.Kind != KindInfrastructure {
				t.Fatalf("Run() failure = %v, want %s", res.Failure, KindInfrastructure)
			}
			if !res.Failure.Kind.Fatal() {
				t.Error("Kind.Fatal() = false, want true")
			}
			if !strings.Contains(res.Failure.Message, tt.name) {
				t.Errorf("Message = %q, want it to name %q", res.Failure.Message, tt.name)
			}
			if len(fake.removed) != 1 {
				t.Errorf("removed = %v, want one container", fake.removed)
			}
		})
	}

	t.Run("network detach", func(t *testing.T) {
		fake := newFakeDocker(reply(fakeExec{}))
		fake.disconnErr = errors.New("network bridge not found")

		res := newTestExecutor(fake, DefaultConfig()).Run(context.Background(), Request{Source: "import requests", Packages: []string{"requests"}})
		if res.Success() || res.Failure.Kind != KindInfrastructure {
			t.Fatalf("Run() failure = %v, want %s", res.Failure, KindInfrastructure)
		}
		if len(fake.runCmds()) != 0 {
			t.Error("program ran with the install network still attached")
		}
		if len(fake.removed) != 1 {
			t.Errorf("removed = %v, want one container", fake.removed)
		}
	})
}

func TestExecutorPullsMissingImage(t *testing.T) {
	fake := newFakeDocker(reply(fakeExec{stdout: "ok"}))
	fake.missingImage = true

	res := newTestExecutor(fake, DefaultConfig().WithImage("python:3.12-slim")).Run(context.Background(), Request{Source: "print('ok')"})

	if !res.Success() {
		t.Fatalf("Run() failure = %v, want success", res.Failure)
	}
	if len(fake.pulled) != 1 || fake.pulled[0] != "python:3.12-slim" {
		t.Errorf("pulled = %v, want [python:3.12-slim]", fake.pulled)
	}
}

func TestExecutorInstallsPackages(t *testing.T) {
	fake := newFakeDocker(func(cmd []string) fakeExec {
		if len(cmd) > 2 && cmd[2] == "pip" {
			if cmd[len(cmd)-1] == "numpy" {
				return fakeExec{stderr: "ERROR: No matching distribution found for numpy", exit: 1}
			}
			return fakeExec{}
		}
		return fakeExec{stdout: "200"}
	})
	exec := newTestExecutor(fake, DefaultConfig())

	res := exec.Run(context.Background(), Request{
		Source:   "import requests, numpy",
		Packages: []string{"requests", "--index-url", "numpy"},
	})

	if !res.Success() {
		t.Fatalf("Run() failure = %v, want success", res.Failure)
	}
	if len(res.Installed) != 1 || res.Installed[0] != "requests" {
		t.Errorf("Installed = %v, want [requests]", res.Installed)
	}
	if fake.hostConfigs[0].NetworkMode != installNetwork {
		t.Errorf("NetworkMode = %q, want %q", fake.hostConfigs[0].NetworkMode, installNetwork)
	}
	if len(fake.disconnects) != 1 || fake.disconnects[0] != (disconnectCall{installNetwork, "ctr-1"}) {
		t.Errorf("disconnects = %v, want one detach of ctr-1", fake.disconnects)
	}
	if got := len(fake.execCmds); got != 3 {
		t.Errorf("execs = %d, want 3 (two installs and one run)", got)
	}
	for _, cmd := range fake.execCmds {
		if cmd[len(cmd)-1] == "--index-url" {
			t.Error("guarded package reached the installer")
		}
	}
}

func TestExecutorInstallDisabled(t *testing.T) {
	fake := newFakeDocker(reply(fakeExec{}))
	exec := newTestExecutor(fake, DefaultConfig().WithInstallDependencies(false))

	res := exec.Run(context.Background(), Request{Source: "import requests", Packages: []string{"requests"}})

	if !res.Success() {
		t.Fatalf("Run() failure = %v, want success", res.Failure)
	}
	if fake.hostConfigs[0].NetworkMode != "none" {
		t.Errorf("NetworkMode = %q, want none", fake.hostConfigs[0].NetworkMode)
	}
	if len(fake.disconnects) != 0 {
		t.Errorf("disconnects = %v, want none", fake.disconnects)
	}
	if len(fake.execCmds) != 1 {
		t.Errorf("execs = %d, want 1", len(fake.execCmds))
	}
}

func TestExecutorPing(t *testing.T) {
	exec := newTestExecutor(newFakeDocker(reply(fakeExec{})), DefaultConfig())
	if err := exec.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}
}

func TestExecutorRunIsRepeatable(t *testing.T) {
	fake := newFakeDocker(reply(fakeExec{stdout: "0 1 1 2 3 5 8 13 21 34 55 89\n"}))
	exec := newTestExecutor(fake, DefaultConfig())

	source := "a, b = 0, 1\nwhile a <= 100:\n    print(a, end=' ')\n    a, b = b, a + b\n"
	first := exec.Run(context.Background(), Request{Source: source})
	second := exec.Run(context.Background(), Request{Source: source})

	if !first.Success() || !second.Success() {
		t.Fatalf("Run() failures = %v, %v, want two successes", first.Failure, second.Failure)
	}
	if first.Output != second.Output {
		t.Errorf("Output = %q then %q, want equal", first.Output, second.Output)
	}
	if first.ContainerID == second.ContainerID {
		t.Errorf("ContainerID = %q for both runs, want a fresh container each", first.ContainerID)
	}
	if len(fake.configs) != 2 {
		t.Errorf("containers created = %d, want 2", len(fake.configs))
	}
	if len(fake.removed) != 2 || fake.removed[0] != first.ContainerID || fake.removed[1] != second.ContainerID {
		t.Errorf("removed = %v, want [%s %s]", fake.removed, first.ContainerID, second.ContainerID)
	}
	for i := 0; i < 2; i++ {
		if got := fake.programSource(t, i); got != source {
			t.Errorf("run %d program = %q, want %q", i+1, got, source)
		}
	}
}

func TestExecutorLargeProgram(t *testing.T) {
	fake := newFakeDocker(reply(fakeExec{stdout: "done"}))
	exec := newTestExecutor(fake, DefaultConfig())

	// Larger than the kernel's 128 KiB limit on a single argument.
	source := "data = '" + strings.Repeat("x", 200*1024) + "'\nprint('done')\n"
	res := exec.Run(context.Background(), Request{Source: source})

	if !res.Success() {
		t.Fatalf("Run() failure = %v, want success", res.Failure)
	}
	for _, arg := range fake.runCmds()[0] {
		if len(arg) > 1024 {
			t.Errorf("argv element of %d bytes, want the program on stdin", len(arg))
		}
	}
	if got := fake.programSource(t, 0); got != source {
		t.Errorf("program on stdin has %d bytes, want %d", len(got), len(source))
	}
}
