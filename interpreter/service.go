package interpreter

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/arclabs/pycell/config"
	"github.com/arclabs/pycell/sandbox"
	"github.com/arclabs/pycell/telemetry"
)

// Service drives one request through the pipeline: validation, namespace
// construction, governed execution, result extraction, formatting. The steps
// always run in that order and none is skipped. Each request owns its
// namespace exclusively; the only state shared between requests is the
// telemetry collector.
type Service struct {
	cfg       *config.Config
	logger    *zap.Logger
	runner    sandbox.Runner
	validator *Validator
	extractor *Extractor
	formatter *Formatter
	metrics   *telemetry.Collector
	slots     *semaphore.Weighted
}

// NewService creates a Service. The telemetry collector may be nil; counters
// are observability only and not required for correctness.
func NewService(cfg *config.Config, logger *zap.Logger, runner sandbox.Runner, metrics *telemetry.Collector) *Service {
	return &Service{
		cfg:       cfg,
		logger:    logger,
		runner:    runner,
		validator: NewValidator(cfg),
		extractor: NewExtractor(cfg),
		formatter: NewFormatter(),
		metrics:   metrics,
		slots:     semaphore.NewWeighted(int64(cfg.Sandbox.MaxConcurrent)),
	}
}

// Execute runs one request to a terminal state. Rejections and security
// fast-rejects return a *RejectionError before any sandbox resource is
// allocated; any other error is an infrastructure failure. Everything the
// guest itself can do, including raising and exceeding limits, resolves into
// a well-formed outcome.
func (s *Service) Execute(ctx context.Context, req ExecutionRequest) (*ExecutionOutcome, error) {
	timeout, err := s.validator.Validate(req)
	if err != nil {
		var rej *RejectionError
		if r, ok := err.(*RejectionError); ok {
			rej = r
		} else {
			rej = &RejectionError{Class: ClassRejectedRequest, Reason: err.Error()}
		}
		s.logger.Info("request rejected",
			zap.String("class", string(rej.Class)),
			zap.String("reason", rej.Reason))
		if s.metrics != nil {
			s.metrics.Rejection(string(rej.Class))
		}
		return nil, rej
	}

	if err := s.slots.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire execution slot: %w", err)
	}
	defer s.slots.Release(1)

	// Built fresh for this request, discarded after extraction. Never pooled.
	namespace := sandbox.NewNamespace()

	result, err := s.runner.Run(ctx, sandbox.RunRequest{
		Source:    req.SourceCode,
		Namespace: namespace,
		Timeout:   timeout,
	})
	if err != nil {
		s.logger.Error("sandbox run failed", zap.Error(err))
		return nil, fmt.Errorf("sandbox run failed: %w", err)
	}

	outcome := s.buildOutcome(req, result, int(timeout.Seconds()))

	s.logger.Info("execution finished",
		zap.String("run_id", result.RunID),
		zap.String("state", result.State.String()),
		zap.Bool("success", outcome.Success),
		zap.Duration("elapsed", result.Elapsed),
		zap.Int("variables", len(outcome.Variables)),
		zap.Int("artifacts", len(outcome.Artifacts)))

	if s.metrics != nil {
		s.metrics.Execution(result.State.String(), result.Elapsed, len(outcome.Artifacts))
	}

	return outcome, nil
}

// Summary renders the human-readable form of an outcome.
func (s *Service) Summary(outcome *ExecutionOutcome, source string) string {
	return s.formatter.Summary(outcome, source)
}

func (s *Service) buildOutcome(req ExecutionRequest, result sandbox.RunResult, timeoutSec int) *ExecutionOutcome {
	variables, artifacts, modules := s.extractor.Extract(result, req.SourceCode)

	outcome := &ExecutionOutcome{
		RunID:             result.RunID,
		Output:            result.Stdout,
		OutputTruncated:   result.Truncated,
		Elapsed:           result.Elapsed,
		ElapsedSeconds:    result.Elapsed.Seconds(),
		Variables:         variables,
		Artifacts:         artifacts,
		ReferencedModules: modules,
		Degraded:          result.Degraded,
	}

	switch result.State {
	case sandbox.StateCompleted:
		outcome.Success = true
	case sandbox.StateTimedOut:
		outcome.Error = &ExecutionError{
			Class:   ClassTimeout,
			Message: fmt.Sprintf("code execution timed out after %d seconds", timeoutSec),
		}
	case sandbox.StateLimitExceeded:
		message := result.GuestErrMessage
		if message == "" {
			message = "memory limit exceeded"
		}
		outcome.Error = &ExecutionError{Class: ClassResourceLimit, Message: message}
	case sandbox.StateFaulted:
		message := result.GuestErrMessage
		if result.GuestErrType != "" {
			message = fmt.Sprintf("%s: %s", result.GuestErrType, result.GuestErrMessage)
		}
		outcome.Error = &ExecutionError{Class: ClassGuestRuntimeError, Message: message}
	}

	return outcome
}
