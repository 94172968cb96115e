package sandbox

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Report is the document the harness writes into the run's working directory
// after the guest finishes. A missing report means the run was killed before
// the harness could complete its post-run pass.
type Report struct {
	OK          bool             `json:"ok"`
	Error       *ReportError     `json:"error"`
	Variables   []ReportVariable `json:"variables"`
	Figures     []ReportFigure   `json:"figures"`
	Enforcement Enforcement      `json:"enforcement"`
}

// ReportError describes why the guest run failed, as recorded by the harness.
// Kind is "exception" for guest-raised errors and "memory" for a breached
// memory ceiling.
type ReportError struct {
	Kind    string `json:"kind"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ReportVariable is one bounded snapshot of a guest-created binding.
type ReportVariable struct {
	Name      string `json:"name"`
	Type      string `json:"type"`
	Value     string `json:"value"`
	Truncated bool   `json:"truncated"`
}

// ReportFigure references one rendered figure file in the working directory.
type ReportFigure struct {
	File  string `json:"file"`
	Label string `json:"label"`
	Size  int64  `json:"size"`
}

// Enforcement records which in-process ceilings the harness managed to apply.
type Enforcement struct {
	CPULimit    bool `json:"cpu_limit"`
	MemoryLimit bool `json:"memory_limit"`
}

// ParseReport decodes a harness report document.
func ParseReport(data []byte) (*Report, error) {
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode harness report: %w", err)
	}
	return &report, nil
}

// readReport loads the report from the working directory if the harness got
// far enough to write one.
func readReport(fs FileSystem, workdir string) (*Report, error) {
	reportPath := filepath.Join(workdir, ReportFilename)
	exists, err := fs.FileExists(reportPath)
	if err != nil || !exists {
		return nil, err
	}
	data, err := fs.ReadFile(reportPath)
	if err != nil {
		return nil, err
	}
	return ParseReport(data)
}

// Exit statuses delivered by the enforcement mechanisms when the run dies
// without a report: SIGKILL from the OOM killer, SIGXCPU from the CPU rlimit.
const (
	exitKilled = 137
	exitXCPU   = 152
)

// classifyRun maps the raw run evidence onto a terminal state. The supervisor
// deadline wins over everything; a well-formed report is authoritative below
// that; exit status is the fallback when the process died reportless.
func classifyRun(report *Report, deadlineHit bool, exitCode int, stderr string) (RunState, string, string) {
	if deadlineHit {
		return StateTimedOut, "", ""
	}
	if report != nil {
		if report.OK {
			return StateCompleted, "", ""
		}
		if report.Error != nil {
			if report.Error.Kind == "memory" {
				return StateLimitExceeded, report.Error.Type, report.Error.Message
			}
			return StateFaulted, report.Error.Type, report.Error.Message
		}
		return StateFaulted, "", "guest run failed without detail"
	}
	switch exitCode {
	case 0:
		return StateFaulted, "", "guest run produced no report"
	case exitKilled:
		return StateLimitExceeded, "", "memory limit exceeded"
	case exitXCPU:
		return StateTimedOut, "", ""
	default:
		return StateFaulted, "", stderrTail(stderr)
	}
}

// stderrTail returns the last few lines of stderr for use as an error message
// when the harness left no structured detail behind.
func stderrTail(stderr string) string {
	trimmed := strings.TrimSpace(stderr)
	if trimmed == "" {
		return "guest run exited abnormally"
	}
	lines := strings.Split(trimmed, "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	return strings.Join(lines, "\n")
}

// collectFigures reads the figure files the report references, applying the
// configured count and per-item size caps a second time on the host side.
func collectFigures(fs FileSystem, workdir string, report *Report, maxCount int, maxBytes int) []Artifact {
	if report == nil {
		return nil
	}
	var artifacts []Artifact
	for _, fig := range report.Figures {
		if len(artifacts) >= maxCount {
			break
		}
		name := filepath.Base(fig.File)
		if fig.Size > int64(maxBytes) {
			continue
		}
		data, err := fs.ReadFile(filepath.Join(workdir, name))
		if err != nil || len(data) == 0 || len(data) > maxBytes {
			continue
		}
		artifacts = append(artifacts, Artifact{
			Label:  fig.Label,
			Format: "png",
			Data:   data,
		})
	}
	return artifacts
}

// runWorkspace is the per-run scratch area shared by all backends. Its
// release is deferred by the owning runner and runs on every exit path.
type runWorkspace struct {
	tempDir string
	workdir string
}

// prepareWorkspace creates the working directory and writes the rendered
// harness into it.
func prepareWorkspace(fs FileSystem, req RunRequest, cfg *Config) (*runWorkspace, error) {
	harness, err := RenderHarness(req.Namespace, req.Source, HarnessParams{
		CPUSeconds:     int(req.Timeout / time.Second),
		MemoryBytes:    int64(cfg.MemoryMB) << 20,
		VariableBudget: cfg.MaxVariableChars,
		MaxFigures:     cfg.MaxArtifacts,
		MaxFigureBytes: cfg.MaxArtifactBytes,
	})
	if err != nil {
		return nil, err
	}

	tempDir, err := fs.MkdirTemp("", "pycell-run-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	workdir := filepath.Join(tempDir, "workdir")
	if err := fs.MkdirAll(workdir, DirPermission); err != nil {
		_ = fs.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to create workdir: %w", err)
	}

	if err := fs.WriteFile(filepath.Join(workdir, HarnessFilename), []byte(harness), FilePermission); err != nil {
		_ = fs.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to write harness: %w", err)
	}

	return &runWorkspace{tempDir: tempDir, workdir: workdir}, nil
}

// release removes the run's scratch area, logging rather than failing when
// the host refuses.
func (w *runWorkspace) release(fs FileSystem, logger *zap.Logger) {
	if err := fs.RemoveAll(w.tempDir); err != nil {
		logger.Error("failed to remove temp directory", zap.String("path", w.tempDir), zap.Error(err))
	}
}

// finishRun assembles the RunResult once the process has reached a terminal
// state: it loads the report, collects figures, and classifies the outcome.
func finishRun(fs FileSystem, cfg *Config, ws *runWorkspace, runID string, deadlineHit bool, exitCode int, stdout, stderr string, truncated bool, elapsed time.Duration, logger *zap.Logger) RunResult {
	report, err := readReport(fs, ws.workdir)
	if err != nil {
		logger.Warn("failed to read harness report", zap.String("run_id", runID), zap.Error(err))
		report = nil
	}

	state, errType, errMessage := classifyRun(report, deadlineHit, exitCode, stderr)

	var artifacts []Artifact
	if state == StateCompleted || state == StateFaulted {
		artifacts = collectFigures(fs, ws.workdir, report, cfg.MaxArtifacts, cfg.MaxArtifactBytes)
	}

	return RunResult{
		RunID:           runID,
		State:           state,
		GuestErrType:    errType,
		GuestErrMessage: errMessage,
		Stdout:          stdout,
		Stderr:          stderr,
		Truncated:       truncated,
		ExitCode:        exitCode,
		Elapsed:         elapsed,
		Report:          report,
		Artifacts:       artifacts,
	}
}

// waitCancelled reports whether the run context's deadline has fired.
func waitCancelled(ctx context.Context) bool {
	return ctx.Err() == context.DeadlineExceeded
}
