// Package sandbox provides governed execution of untrusted guest code.
//
// The LocalRunner executes guest runs directly on the host (for development
// only). CPU and memory ceilings come from the rlimits the harness applies
// to itself; when the platform refuses them the result carries a degraded
// guarantee flag instead of a silent claim of enforcement.
package sandbox

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LocalRunner implements Runner using local execution (for development only)
type LocalRunner struct {
	logger    *zap.Logger
	config    *Config
	cmdRunner CommandRunner
	fs        FileSystem
}

// LocalRunnerOption defines a functional option for LocalRunner
type LocalRunnerOption func(*LocalRunner)

// WithLocalCommandRunner sets the CommandRunner for LocalRunner
func WithLocalCommandRunner(cmdRunner CommandRunner) LocalRunnerOption {
	return func(l *LocalRunner) {
		l.cmdRunner = cmdRunner
	}
}

// WithLocalFileSystem sets the FileSystem for LocalRunner
func WithLocalFileSystem(fs FileSystem) LocalRunnerOption {
	return func(l *LocalRunner) {
		l.fs = fs
	}
}

// NewLocalRunner creates a new LocalRunner with default implementations and optional interfaces
func NewLocalRunner(logger *zap.Logger, config *Config, opts ...LocalRunnerOption) *LocalRunner {
	runner := &LocalRunner{
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

// Run executes the guest source on the host (WARNING: weaker isolation than
// the container backends; gated behind sandbox.enable_local_backend)
func (l *LocalRunner) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	runID := uuid.NewString()

	ws, err := prepareWorkspace(l.fs, req, l.config)
	if err != nil {
		return RunResult{}, err
	}
	defer ws.release(l.fs, l.logger)

	runCtx, cancel := context.WithTimeout(ctx, req.Timeout+runGrace)
	defer cancel()

	l.logger.Debug("starting governed run",
		zap.String("run_id", runID),
		zap.String("backend", "local"),
		zap.Duration("timeout", req.Timeout))

	start := time.Now()
	stdout, stderr, truncated, exitCode, err := l.cmdRunner.RunCommand(runCtx, ws.workdir, []string{"python3", HarnessFilename}, l.config.MaxOutputBytes)
	elapsed := time.Since(start)

	deadlineHit := waitCancelled(runCtx)

	if err != nil {
		return RunResult{}, fmt.Errorf("failed to execute command: %w", err)
	}

	// The harness process is already dead here (exec.CommandContext kills
	// it), so a cancelled caller only needs the honest error.
	if !deadlineHit && runCtx.Err() != nil {
		return RunResult{}, fmt.Errorf("run cancelled: %w", runCtx.Err())
	}

	result := finishRun(l.fs, l.config, ws, runID, deadlineHit, exitCode, stdout, stderr, truncated, elapsed, l.logger)

	// Without a container around the process, the rlimits the harness sets
	// on itself are the only ceilings. The report says whether they took.
	if result.Report != nil {
		result.Degraded = !result.Report.Enforcement.CPULimit || !result.Report.Enforcement.MemoryLimit
	}

	return result, nil
}
