package sandbox

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/arclabs/pycell/config"
)

// recordedCall captures one CommandRunner invocation for later assertions.
type recordedCall struct {
	dir            string
	args           []string
	maxOutputBytes int
}

// MockCommandRunner implements CommandRunner without spawning any process.
type MockCommandRunner struct {
	calls []recordedCall

	stdout    string
	stderr    string
	truncated bool
	exitCode  int
	err       error
}

func (m *MockCommandRunner) RunCommand(_ context.Context, dir string, args []string, maxOutputBytes int) (string, string, bool, int, error) {
	m.calls = append(m.calls, recordedCall{dir: dir, args: append([]string(nil), args...), maxOutputBytes: maxOutputBytes})
	return m.stdout, m.stderr, m.truncated, m.exitCode, m.err
}

// MockFileSystem implements FileSystem backed by in-memory maps.
type MockFileSystem struct {
	tempDir         string
	mkdirTempErr    error
	mkdirAllErr     error
	writeFileErr    error
	writtenFiles    map[string][]byte
	readFileResults map[string][]byte
	removedPaths    []string
}

func (m *MockFileSystem) MkdirTemp(_, _ string) (string, error) {
	if m.mkdirTempErr != nil {
		return "", m.mkdirTempErr
	}
	if m.tempDir == "" {
		return "/tmp/pycell-test", nil
	}
	return m.tempDir, nil
}

func (m *MockFileSystem) MkdirAll(string, os.FileMode) error {
	return m.mkdirAllErr
}

func (m *MockFileSystem) WriteFile(filename string, data []byte, _ os.FileMode) error {
	if m.writeFileErr != nil {
		return m.writeFileErr
	}
	if m.writtenFiles == nil {
		m.writtenFiles = make(map[string][]byte)
	}
	m.writtenFiles[filename] = data
	return nil
}

func (m *MockFileSystem) ReadFile(filename string) ([]byte, error) {
	data, ok := m.readFileResults[filename]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", filename)
	}
	return data, nil
}

func (m *MockFileSystem) RemoveAll(path string) error {
	m.removedPaths = append(m.removedPaths, path)
	return nil
}

func (m *MockFileSystem) FileExists(path string) (bool, error) {
	_, ok := m.readFileResults[path]
	return ok, nil
}

func testRunnerConfig() *Config {
	return &Config{
		Image:            "python:3.11-slim",
		MemoryMB:         256,
		MaxOutputBytes:   10000,
		MaxVariableChars: 500,
		MaxArtifacts:     8,
		MaxArtifactBytes: 2 << 20,
	}
}

func testRunRequest(t *testing.T) RunRequest {
	t.Helper()
	return RunRequest{
		Source:    "x = 1\nprint(x)",
		Namespace: NewNamespace(),
		Timeout:   10 * time.Second,
	}
}

func TestNewDockerRunner(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testRunnerConfig()

	t.Run("Defaults", func(t *testing.T) {
		runner := NewDockerRunner(logger, cfg)
		assert.IsType(t, &RealCommandRunner{}, runner.cmdRunner)
		assert.IsType(t, &RealFileSystem{}, runner.fs)
	})

	t.Run("WithOptions", func(t *testing.T) {
		cmdRunner := &MockCommandRunner{}
		fs := &MockFileSystem{}
		runner := NewDockerRunner(logger, cfg, WithDockerCommandRunner(cmdRunner), WithDockerFileSystem(fs))
		assert.Same(t, cmdRunner, runner.cmdRunner)
	})
}

func TestDockerRunnerRun(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testRunnerConfig()

	t.Run("CompletedRun", func(t *testing.T) {
		fs := &MockFileSystem{
			readFileResults: map[string][]byte{
				"/tmp/pycell-test/workdir/report.json":  []byte(`{"ok": true, "variables": [{"name": "x", "type": "int", "value": "1"}], "figures": [{"file": "figure-1.png", "label": "Figure 1", "size": 3}], "enforcement": {"cpu_limit": true, "memory_limit": true}}`),
				"/tmp/pycell-test/workdir/figure-1.png": []byte("png"),
			},
		}
		cmdRunner := &MockCommandRunner{stdout: "1\n"}
		runner := NewDockerRunner(logger, cfg, WithDockerCommandRunner(cmdRunner), WithDockerFileSystem(fs))

		result, err := runner.Run(context.Background(), testRunRequest(t))
		require.NoError(t, err)

		assert.Equal(t, StateCompleted, result.State)
		assert.NotEmpty(t, result.RunID)
		assert.Equal(t, "1\n", result.Stdout)
		assert.False(t, result.Truncated)
		require.NotNil(t, result.Report)
		require.Len(t, result.Artifacts, 1)
		assert.Equal(t, "Figure 1", result.Artifacts[0].Label)

		// The harness must have been written before the container started.
		assert.Contains(t, fs.writtenFiles, "/tmp/pycell-test/workdir/"+HarnessFilename)

		require.Len(t, cmdRunner.calls, 1)
		args := cmdRunner.calls[0].args
		assert.Equal(t, "docker", args[0])
		assert.Equal(t, "run", args[1])
		assert.Contains(t, args, "--rm")
		assert.Contains(t, args, "/tmp/pycell-test/workdir:/workdir")
		assert.Contains(t, args, "--memory")
		assert.Contains(t, args, "256m")
		assert.Contains(t, args, "--network")
		assert.Contains(t, args, "none")
		assert.Contains(t, args, "cpu=10")
		assert.Contains(t, args, "--pids-limit")
		assert.Contains(t, args, "--cap-drop")
		assert.Contains(t, args, "ALL")
		assert.Contains(t, args, "no-new-privileges:true")
		assert.Contains(t, args, "python:3.11-slim")
		assert.Equal(t, HarnessFilename, args[len(args)-1])
		assert.Equal(t, cfg.MaxOutputBytes, cmdRunner.calls[0].maxOutputBytes)

		// Workspace cleanup runs on every exit path.
		assert.Contains(t, fs.removedPaths, "/tmp/pycell-test")
	})

	t.Run("GuestFault", func(t *testing.T) {
		fs := &MockFileSystem{
			readFileResults: map[string][]byte{
				"/tmp/pycell-test/workdir/report.json": []byte(`{"ok": false, "error": {"kind": "exception", "type": "ZeroDivisionError", "message": "division by zero"}}`),
			},
		}
		cmdRunner := &MockCommandRunner{stderr: ""}
		runner := NewDockerRunner(logger, cfg, WithDockerCommandRunner(cmdRunner), WithDockerFileSystem(fs))

		result, err := runner.Run(context.Background(), testRunRequest(t))
		require.NoError(t, err)
		assert.Equal(t, StateFaulted, result.State)
		assert.Equal(t, "ZeroDivisionError", result.GuestErrType)
		assert.Equal(t, "division by zero", result.GuestErrMessage)
	})

	t.Run("OOMKilled", func(t *testing.T) {
		fs := &MockFileSystem{}
		cmdRunner := &MockCommandRunner{exitCode: 137}
		runner := NewDockerRunner(logger, cfg, WithDockerCommandRunner(cmdRunner), WithDockerFileSystem(fs))

		result, err := runner.Run(context.Background(), testRunRequest(t))
		require.NoError(t, err)
		assert.Equal(t, StateLimitExceeded, result.State)
		assert.Nil(t, result.Report)
		assert.Empty(t, result.Artifacts)
	})

	t.Run("DeadlineFiresAndContainerIsKilled", func(t *testing.T) {
		fs := &MockFileSystem{}
		cmdRunner := &MockCommandRunner{stdout: "partial", exitCode: -1}
		runner := NewDockerRunner(logger, cfg, WithDockerCommandRunner(cmdRunner), WithDockerFileSystem(fs))

		req := testRunRequest(t)
		req.Timeout = -5 * time.Second // make the supervisor deadline fire immediately

		result, err := runner.Run(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, StateTimedOut, result.State)
		assert.Equal(t, "partial", result.Stdout)

		// Second invocation is the forced kill.
		require.Len(t, cmdRunner.calls, 2)
		killArgs := cmdRunner.calls[1].args
		assert.Equal(t, "docker", killArgs[0])
		assert.Equal(t, "kill", killArgs[1])
		assert.True(t, strings.HasPrefix(killArgs[2], "pycell-run-"))
	})

	t.Run("CallerCancelledKillsContainer", func(t *testing.T) {
		fs := &MockFileSystem{}
		cmdRunner := &MockCommandRunner{exitCode: -1}
		runner := NewDockerRunner(logger, cfg, WithDockerCommandRunner(cmdRunner), WithDockerFileSystem(fs))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := runner.Run(ctx, testRunRequest(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "run cancelled")

		// The container outlives the run client, so the forced kill must
		// happen even though no deadline fired.
		require.Len(t, cmdRunner.calls, 2)
		killArgs := cmdRunner.calls[1].args
		assert.Equal(t, "docker", killArgs[0])
		assert.Equal(t, "kill", killArgs[1])
		assert.True(t, strings.HasPrefix(killArgs[2], "pycell-run-"))

		assert.Contains(t, fs.removedPaths, "/tmp/pycell-test")
	})

	t.Run("CommandError", func(t *testing.T) {
		fs := &MockFileSystem{}
		cmdRunner := &MockCommandRunner{err: fmt.Errorf("docker not found")}
		runner := NewDockerRunner(logger, cfg, WithDockerCommandRunner(cmdRunner), WithDockerFileSystem(fs))

		_, err := runner.Run(context.Background(), testRunRequest(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to execute container")
		assert.Contains(t, fs.removedPaths, "/tmp/pycell-test")
	})

	t.Run("WorkspaceError", func(t *testing.T) {
		fs := &MockFileSystem{mkdirTempErr: fmt.Errorf("disk full")}
		cmdRunner := &MockCommandRunner{}
		runner := NewDockerRunner(logger, cfg, WithDockerCommandRunner(cmdRunner), WithDockerFileSystem(fs))

		_, err := runner.Run(context.Background(), testRunRequest(t))
		require.Error(t, err)
		assert.Empty(t, cmdRunner.calls)
	})
}

func TestPodmanRunnerRun(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testRunnerConfig()

	t.Run("CompletedRun", func(t *testing.T) {
		fs := &MockFileSystem{
			readFileResults: map[string][]byte{
				"/tmp/pycell-test/workdir/report.json": []byte(`{"ok": true, "enforcement": {"cpu_limit": true, "memory_limit": true}}`),
			},
		}
		cmdRunner := &MockCommandRunner{}
		runner := NewPodmanRunner(logger, cfg, WithPodmanCommandRunner(cmdRunner), WithPodmanFileSystem(fs))

		result, err := runner.Run(context.Background(), testRunRequest(t))
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, result.State)

		require.Len(t, cmdRunner.calls, 1)
		args := cmdRunner.calls[0].args
		assert.Equal(t, "podman", args[0])
		assert.Contains(t, args, "/tmp/pycell-test/workdir:/workdir:Z")
		assert.Contains(t, args, "--network")
		assert.Contains(t, args, "none")
	})

	t.Run("CallerCancelledKillsContainer", func(t *testing.T) {
		fs := &MockFileSystem{}
		cmdRunner := &MockCommandRunner{exitCode: -1}
		runner := NewPodmanRunner(logger, cfg, WithPodmanCommandRunner(cmdRunner), WithPodmanFileSystem(fs))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := runner.Run(ctx, testRunRequest(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "run cancelled")

		require.Len(t, cmdRunner.calls, 2)
		killArgs := cmdRunner.calls[1].args
		assert.Equal(t, "podman", killArgs[0])
		assert.Equal(t, "kill", killArgs[1])
		assert.True(t, strings.HasPrefix(killArgs[2], "pycell-run-"))
	})
}

func TestLocalRunnerRun(t *testing.T) {
	logger := zaptest.NewLogger(t)
	cfg := testRunnerConfig()

	t.Run("RunsHarnessInWorkdir", func(t *testing.T) {
		fs := &MockFileSystem{
			readFileResults: map[string][]byte{
				"/tmp/pycell-test/workdir/report.json": []byte(`{"ok": true, "enforcement": {"cpu_limit": true, "memory_limit": true}}`),
			},
		}
		cmdRunner := &MockCommandRunner{}
		runner := NewLocalRunner(logger, cfg, WithLocalCommandRunner(cmdRunner), WithLocalFileSystem(fs))

		result, err := runner.Run(context.Background(), testRunRequest(t))
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, result.State)
		assert.False(t, result.Degraded)

		require.Len(t, cmdRunner.calls, 1)
		assert.Equal(t, "/tmp/pycell-test/workdir", cmdRunner.calls[0].dir)
		assert.Equal(t, []string{"python3", HarnessFilename}, cmdRunner.calls[0].args)
	})

	t.Run("CallerCancelled", func(t *testing.T) {
		fs := &MockFileSystem{}
		cmdRunner := &MockCommandRunner{exitCode: -1}
		runner := NewLocalRunner(logger, cfg, WithLocalCommandRunner(cmdRunner), WithLocalFileSystem(fs))

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := runner.Run(ctx, testRunRequest(t))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "run cancelled")
		assert.Contains(t, fs.removedPaths, "/tmp/pycell-test")
	})

	t.Run("DegradedWhenCeilingsRefused", func(t *testing.T) {
		fs := &MockFileSystem{
			readFileResults: map[string][]byte{
				"/tmp/pycell-test/workdir/report.json": []byte(`{"ok": true, "enforcement": {"cpu_limit": true, "memory_limit": false}}`),
			},
		}
		cmdRunner := &MockCommandRunner{}
		runner := NewLocalRunner(logger, cfg, WithLocalCommandRunner(cmdRunner), WithLocalFileSystem(fs))

		result, err := runner.Run(context.Background(), testRunRequest(t))
		require.NoError(t, err)
		assert.Equal(t, StateCompleted, result.State)
		assert.True(t, result.Degraded)
	})
}

func TestCappedBuffer(t *testing.T) {
	buf := newCappedBuffer(10)

	n, err := buf.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.False(t, buf.Truncated())

	n, err = buf.Write([]byte("world!!!"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.True(t, buf.Truncated())
	assert.Equal(t, "helloworld", buf.String())

	// Further writes are accepted and dropped.
	_, err = buf.Write([]byte("more"))
	require.NoError(t, err)
	assert.Equal(t, "helloworld", buf.String())
}

func TestNewRunner(t *testing.T) {
	logger := zaptest.NewLogger(t)

	baseConfig := func(backend string) *config.Config {
		cfg := &config.Config{}
		cfg.Sandbox.Backend = backend
		cfg.Sandbox.Image = "python:3.11-slim"
		cfg.Limits.MemoryMB = 256
		cfg.Limits.MaxOutputChars = 10000
		cfg.Limits.MaxVariableChars = 500
		cfg.Limits.MaxArtifacts = 8
		cfg.Limits.MaxArtifactSizeKB = 2048
		return cfg
	}

	t.Run("Docker", func(t *testing.T) {
		runner, err := NewRunner(logger, baseConfig("docker"))
		require.NoError(t, err)
		assert.IsType(t, &DockerRunner{}, runner)
	})

	t.Run("Podman", func(t *testing.T) {
		runner, err := NewRunner(logger, baseConfig("podman"))
		require.NoError(t, err)
		assert.IsType(t, &PodmanRunner{}, runner)
	})

	t.Run("Local", func(t *testing.T) {
		runner, err := NewRunner(logger, baseConfig("local"))
		require.NoError(t, err)
		assert.IsType(t, &LocalRunner{}, runner)
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, err := NewRunner(logger, baseConfig("firecracker"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported backend")
	})
}
