// Package sandbox runs untrusted Python programs in disposable Docker
// containers.
//
// Every call to Executor.Run creates a new container from the configured
// image, optionally installs third-party packages into a tmpfs on
// PYTHONPATH, runs the program and force-removes the container. Nothing is
// shared between runs.
//
// # Isolation
//
// Containers are created with:
//   - ReadonlyRootfs, with tmpfs mounts for /tmp, the work dir and the deps dir
//   - NetworkMode "none", except while packages are being installed
//   - CapDrop ALL and "no-new-privileges"
//   - Memory (swap disabled), CPU and PID limits
//   - User "nobody"
//
// Optional gVisor (runsc) runtime support provides additional kernel-level isolation.
//
// When packages are installed the container starts on the default bridge
// network and is detached from it before the program runs.
//
// # Results
//
// Run never returns an error. Its Result carries a Failure whose Kind tells
// the caller whether another attempt can help:
//   - KindRuntimeUnavailable and KindInfrastructure are fatal
//   - KindExecution carries the program's error output
//   - KindUnexpected covers timeouts, stream errors and memory kills
//
// # Usage
//
//	cli, err := sandbox.NewDockerClient()
//	exec := sandbox.NewExecutor(sandbox.ExecutorConfig{
//	    Client:  cli,
//	    InitErr: err,
//	    Sandbox: sandbox.DefaultConfig().WithTimeout(60 * time.Second),
//	})
//
//	res := exec.Run(ctx, sandbox.Request{Source: "print('hi')"})
//	if !res.Success() {
//	    fmt.Println(res.Failure.Kind, res.Failure.Message)
//	}
package sandbox
