// Package sandbox provides governed execution of untrusted guest code.
//
// The PodmanRunner executes guest runs in Podman containers with ceilings
// matching the Docker runner. Rootless podman is the expected deployment,
// so the working directory mount carries an explicit SELinux-friendly
// relabel flag.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PodmanRunner implements Runner using Podman
type PodmanRunner struct {
	logger    *zap.Logger
	config    *Config
	cmdRunner CommandRunner
	fs        FileSystem
}

// PodmanRunnerOption defines a functional option for PodmanRunner
type PodmanRunnerOption func(*PodmanRunner)

// WithPodmanCommandRunner sets the CommandRunner for PodmanRunner
func WithPodmanCommandRunner(cmdRunner CommandRunner) PodmanRunnerOption {
	return func(p *PodmanRunner) {
		p.cmdRunner = cmdRunner
	}
}

// WithPodmanFileSystem sets the FileSystem for PodmanRunner
func WithPodmanFileSystem(fs FileSystem) PodmanRunnerOption {
	return func(p *PodmanRunner) {
		p.fs = fs
	}
}

// NewPodmanRunner creates a new PodmanRunner with default implementations and optional interfaces
func NewPodmanRunner(logger *zap.Logger, config *Config, opts ...PodmanRunnerOption) *PodmanRunner {
	runner := &PodmanRunner{
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

// Run executes the guest source in a Podman container
func (p *PodmanRunner) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	runID := uuid.NewString()

	ws, err := prepareWorkspace(p.fs, req, p.config)
	if err != nil {
		return RunResult{}, err
	}
	defer ws.release(p.fs, p.logger)

	containerName := "pycell-run-" + runID
	cpuSeconds := int(req.Timeout / time.Second)

	cmdArgs := []string{
		"podman", "run",
		"--name", containerName,
		"--rm",
		"-v", fmt.Sprintf("%s:/workdir:Z", ws.workdir),
		"--workdir", "/workdir",
		"--memory", fmt.Sprintf("%dm", p.config.MemoryMB),
		"--network", "none",
		"--ulimit", fmt.Sprintf("cpu=%d", cpuSeconds),
		"--ulimit", "fsize=100000000",
		"--pids-limit", "128",
		"--security-opt", "no-new-privileges:true",
		"--cap-drop", "ALL",
		p.config.Image,
		"python3", HarnessFilename,
	}

	runCtx, cancel := context.WithTimeout(ctx, req.Timeout+runGrace)
	defer cancel()

	p.logger.Debug("starting governed run",
		zap.String("run_id", runID),
		zap.String("backend", "podman"),
		zap.Duration("timeout", req.Timeout))

	start := time.Now()
	stdout, stderr, truncated, exitCode, err := p.cmdRunner.RunCommand(runCtx, "", cmdArgs, p.config.MaxOutputBytes)
	elapsed := time.Since(start)

	// Any context termination forces the container down: the podman run
	// client dying does not stop the container itself.
	deadlineHit := waitCancelled(runCtx)
	if runCtx.Err() != nil {
		p.stopContainer(containerName)
	}

	if err != nil {
		return RunResult{}, fmt.Errorf("failed to execute container: %w", err)
	}

	if !deadlineHit && runCtx.Err() != nil {
		return RunResult{}, fmt.Errorf("run cancelled: %w", runCtx.Err())
	}

	return finishRun(p.fs, p.config, ws, runID, deadlineHit, exitCode, stdout, stderr, truncated, elapsed, p.logger), nil
}

func (p *PodmanRunner) stopContainer(containerName string) {
	stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	if _, _, _, _, err := p.cmdRunner.RunCommand(stopCtx, "", []string{"podman", "kill", containerName}, 4096); err != nil {
		p.logger.Warn("failed to stop container after timeout", zap.String("container", containerName), zap.Error(err))
	}
}
