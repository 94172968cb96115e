package interpreter

import (
	"fmt"
	"strings"
	"time"

	"github.com/arclabs/pycell/config"
)

// fastRejectPatterns are substrings whose presence refuses a request before
// any sandbox work. This is a cheap pre-filter, not the security boundary:
// the boundary is the allowlisted namespace the sandbox builds, where these
// capabilities do not exist in the first place.
var fastRejectPatterns = []string{
	"import os",
	"import sys",
	"import subprocess",
	"import socket",
	"import ctypes",
	"__builtins__",
	"__import__",
	"__subclasses__",
	"eval(",
	"exec(",
	"compile(",
	"open(",
}

// Validator performs the cheap pre-checks that run before any sandbox
// resource is allocated.
type Validator struct {
	limits config.LimitsConfig
}

// NewValidator creates a Validator bound to the process-wide limits.
func NewValidator(cfg *config.Config) *Validator {
	return &Validator{limits: cfg.Limits}
}

// Validate checks the request against the configured maxima and returns the
// effective wall-clock budget. An absent timeout resolves to the configured
// maximum; explicit values above the maximum are silently clamped and
// explicit values below one second are rejected.
func (v *Validator) Validate(req ExecutionRequest) (time.Duration, error) {
	if strings.TrimSpace(req.SourceCode) == "" {
		return 0, &RejectionError{Class: ClassRejectedRequest, Reason: "code cannot be empty"}
	}

	if len(req.SourceCode) > v.limits.MaxSourceBytes {
		return 0, &RejectionError{
			Class:  ClassRejectedRequest,
			Reason: fmt.Sprintf("code too long (max %d bytes)", v.limits.MaxSourceBytes),
		}
	}

	if lines := strings.Count(req.SourceCode, "\n") + 1; lines > v.limits.MaxSourceLines {
		return 0, &RejectionError{
			Class:  ClassRejectedRequest,
			Reason: fmt.Sprintf("too many lines (max %d)", v.limits.MaxSourceLines),
		}
	}

	if req.GuestLanguage != GuestLanguage {
		return 0, &RejectionError{
			Class:  ClassRejectedRequest,
			Reason: fmt.Sprintf("unsupported language %q, only %q is supported", req.GuestLanguage, GuestLanguage),
		}
	}

	lowered := strings.ToLower(req.SourceCode)
	for _, pattern := range fastRejectPatterns {
		if strings.Contains(lowered, pattern) {
			return 0, &RejectionError{
				Class:  ClassSecurityViolation,
				Reason: fmt.Sprintf("disallowed operation detected: %s", pattern),
			}
		}
	}

	timeoutSec := v.limits.MaxTimeoutSec
	if req.TimeoutSeconds != nil {
		switch {
		case *req.TimeoutSeconds < 1:
			return 0, &RejectionError{Class: ClassRejectedRequest, Reason: "timeout must be at least 1 second"}
		case *req.TimeoutSeconds > v.limits.MaxTimeoutSec:
			// clamp
		default:
			timeoutSec = *req.TimeoutSeconds
		}
	}

	return time.Duration(timeoutSec) * time.Second, nil
}
