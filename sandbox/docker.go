// Package sandbox provides governed execution of untrusted guest code.
//
// The DockerRunner executes guest runs in Docker containers with container
// level ceilings: a memory cap, a CPU-time ulimit, a process count cap, no
// network, and all capabilities dropped. The mounted working directory is
// the only writable surface shared with the host.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// runGrace is the teardown allowance added on top of the run's wall-clock
// budget before the supervisor force-terminates.
const runGrace = 2 * time.Second

// stopTimeout bounds the forced container stop after a deadline fires.
const stopTimeout = 10 * time.Second

// DockerRunner implements Runner using Docker
type DockerRunner struct {
	logger    *zap.Logger
	config    *Config
	cmdRunner CommandRunner
	fs        FileSystem
}

// DockerRunnerOption defines a functional option for DockerRunner
type DockerRunnerOption func(*DockerRunner)

// WithDockerCommandRunner sets the CommandRunner for DockerRunner
func WithDockerCommandRunner(cmdRunner CommandRunner) DockerRunnerOption {
	return func(d *DockerRunner) {
		d.cmdRunner = cmdRunner
	}
}

// WithDockerFileSystem sets the FileSystem for DockerRunner
func WithDockerFileSystem(fs FileSystem) DockerRunnerOption {
	return func(d *DockerRunner) {
		d.fs = fs
	}
}

// NewDockerRunner creates a new DockerRunner with default implementations and optional interfaces
func NewDockerRunner(logger *zap.Logger, config *Config, opts ...DockerRunnerOption) *DockerRunner {
	runner := &DockerRunner{
		logger:    logger,
		config:    config,
		cmdRunner: &RealCommandRunner{},
		fs:        &RealFileSystem{},
	}

	for _, opt := range opts {
		opt(runner)
	}

	return runner
}

// Run executes the guest source in a Docker container
func (d *DockerRunner) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	runID := uuid.NewString()

	ws, err := prepareWorkspace(d.fs, req, d.config)
	if err != nil {
		return RunResult{}, err
	}
	defer ws.release(d.fs, d.logger)

	containerName := "pycell-run-" + runID
	cpuSeconds := int(req.Timeout / time.Second)

	cmdArgs := []string{
		"docker", "run",
		"--name", containerName,
		"--rm",
		"-v", fmt.Sprintf("%s:/workdir", ws.workdir),
		"--workdir", "/workdir",
		"--memory", fmt.Sprintf("%dm", d.config.MemoryMB),
		"--network", "none",
		"--ulimit", fmt.Sprintf("cpu=%d", cpuSeconds),
		"--ulimit", "fsize=100000000",
		"--pids-limit", "128",
		"--security-opt", "no-new-privileges:true",
		"--cap-drop", "ALL",
		d.config.Image,
		"python3", HarnessFilename,
	}

	runCtx, cancel := context.WithTimeout(ctx, req.Timeout+runGrace)
	defer cancel()

	d.logger.Debug("starting governed run",
		zap.String("run_id", runID),
		zap.String("backend", "docker"),
		zap.Duration("timeout", req.Timeout))

	start := time.Now()
	stdout, stderr, truncated, exitCode, err := d.cmdRunner.RunCommand(runCtx, "", cmdArgs, d.config.MaxOutputBytes)
	elapsed := time.Since(start)

	// Any context termination forces the container down: the docker run
	// client dying does not stop the container itself.
	deadlineHit := waitCancelled(runCtx)
	if runCtx.Err() != nil {
		d.stopContainer(containerName)
	}

	if err != nil {
		return RunResult{}, fmt.Errorf("failed to execute container: %w", err)
	}

	if !deadlineHit && runCtx.Err() != nil {
		return RunResult{}, fmt.Errorf("run cancelled: %w", runCtx.Err())
	}

	return finishRun(d.fs, d.config, ws, runID, deadlineHit, exitCode, stdout, stderr, truncated, elapsed, d.logger), nil
}

// stopContainer force-kills a container whose run outlived its deadline.
// Cleanup must happen even when the original caller has gone away, so this
// runs on its own context.
func (d *DockerRunner) stopContainer(containerName string) {
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if _, _, _, _, err := d.cmdRunner.RunCommand(stopCtx, "", []string{"docker", "kill", containerName}, 4096); err != nil {
		d.logger.Warn("failed to stop container after timeout", zap.String("container", containerName), zap.Error(err))
	}
}
