// Package sandbox provides governed execution of untrusted guest code.
//
// The sandbox package implements the execution engine for running untrusted
// Python analysis snippets in isolated environments. It supports multiple
// backends including Docker, Podman, and local execution (for development).
package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"
)

// RunRequest represents one governed execution of guest source against a
// freshly built namespace.
type RunRequest struct {
	Source    string
	Namespace *Namespace
	Timeout   time.Duration
}

// RunState is the terminal state of a governed run.
type RunState int

const (
	// StateCompleted means the guest returned normally before the deadline
	// and within limits.
	StateCompleted RunState = iota
	// StateTimedOut means the wall-clock deadline or CPU ceiling fired and
	// the run was forcibly terminated.
	StateTimedOut
	// StateFaulted means the guest code itself raised.
	StateFaulted
	// StateLimitExceeded means the memory ceiling was breached.
	StateLimitExceeded
)

func (s RunState) String() string {
	switch s {
	case StateCompleted:
		return "completed"
	case StateTimedOut:
		return "timed_out"
	case StateFaulted:
		return "faulted"
	case StateLimitExceeded:
		return "limit_exceeded"
	default:
		return "unknown"
	}
}

// Artifact is a rendered figure collected from the run's working directory.
type Artifact struct {
	Label  string
	Format string
	Data   []byte
}

// RunResult represents the outcome of a governed run. Stdout and Stderr are
// capped at the configured output budget; Truncated reports whether anything
// was dropped.
type RunResult struct {
	RunID           string
	State           RunState
	GuestErrType    string
	GuestErrMessage string
	Stdout          string
	Stderr          string
	Truncated       bool
	ExitCode        int
	Elapsed         time.Duration
	Degraded        bool
	Report          *Report
	Artifacts       []Artifact
}

// Runner defines the interface for governed sandbox execution.
type Runner interface {
	Run(ctx context.Context, req RunRequest) (RunResult, error)
}

// Config holds static settings shared by all runner backends. It is derived
// from the process-wide limits at startup and never mutated per request.
type Config struct {
	Image            string
	MemoryMB         int
	MaxOutputBytes   int
	MaxVariableChars int
	MaxArtifacts     int
	MaxArtifactBytes int
}

// CommandRunner defines an interface for executing system commands with
// bounded output capture.
type CommandRunner interface {
	RunCommand(ctx context.Context, dir string, args []string, maxOutputBytes int) (stdout, stderr string, truncated bool, exitCode int, err error)
}

// RealCommandRunner implements CommandRunner using actual exec commands
type RealCommandRunner struct{}

// RunCommand executes the given command with arguments, capping each output
// stream at maxOutputBytes.
func (RealCommandRunner) RunCommand(ctx context.Context, dir string, args []string, maxOutputBytes int) (stdout, stderr string, truncated bool, exitCode int, err error) {
	if len(args) < 1 {
		return "", "", false, 0, fmt.Errorf("no command provided")
	}

	cmd := exec.CommandContext(ctx, args[0], args[1:]...) //nolint:gosec // Safe as this is controlled input
	cmd.Dir = dir

	stdoutBuf := newCappedBuffer(maxOutputBytes)
	stderrBuf := newCappedBuffer(maxOutputBytes)
	cmd.Stdout = stdoutBuf
	cmd.Stderr = stderrBuf

	err = cmd.Run()

	exitCode = 0
	if err != nil {
		if exitError, ok := err.(*exec.ExitError); ok {
			exitCode = exitError.ExitCode()
			err = nil
		} else if ctx.Err() != nil {
			// Killed by the supervisor's deadline; partial output stands.
			exitCode = -1
			err = nil
		} else {
			return "", "", false, 0, err
		}
	}

	return stdoutBuf.String(), stderrBuf.String(), stdoutBuf.Truncated() || stderrBuf.Truncated(), exitCode, nil
}

// cappedBuffer accepts writes indefinitely but retains at most limit bytes,
// so a guest flooding its output can never grow host memory unboundedly.
type cappedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newCappedBuffer(limit int) *cappedBuffer {
	return &cappedBuffer{limit: limit}
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	room := b.limit - b.buf.Len()
	if room <= 0 {
		b.truncated = true
		return len(p), nil
	}
	if len(p) > room {
		b.buf.Write(p[:room])
		b.truncated = true
		return len(p), nil
	}
	b.buf.Write(p)
	return len(p), nil
}

func (b *cappedBuffer) String() string { return b.buf.String() }

func (b *cappedBuffer) Truncated() bool { return b.truncated }

// FileSystem defines an interface for file system operations
type FileSystem interface {
	MkdirTemp(dir, pattern string) (string, error)
	MkdirAll(path string, perm os.FileMode) error
	WriteFile(filename string, data []byte, perm os.FileMode) error
	ReadFile(filename string) ([]byte, error)
	RemoveAll(path string) error
	FileExists(path string) (bool, error)
}

// RealFileSystem implements FileSystem using actual file system operations
type RealFileSystem struct{}

func (RealFileSystem) MkdirTemp(dir, pattern string) (string, error) {
	return os.MkdirTemp(dir, pattern)
}

func (RealFileSystem) MkdirAll(path string, perm os.FileMode) error {
	return os.MkdirAll(path, perm)
}

func (RealFileSystem) WriteFile(filename string, data []byte, perm os.FileMode) error {
	return os.WriteFile(filename, data, perm)
}

func (RealFileSystem) ReadFile(filename string) ([]byte, error) {
	return os.ReadFile(filename)
}

func (RealFileSystem) RemoveAll(path string) error {
	return os.RemoveAll(path)
}

func (RealFileSystem) FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// File permission constants
const (
	DirPermission  = 0755
	FilePermission = 0600
)
