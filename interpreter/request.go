package interpreter

import (
	"fmt"
	"time"
)

// GuestLanguage is the single supported guest-language tag. Requests carrying
// any other tag are rejected before sandbox construction.
const GuestLanguage = "python"

// ExecutionRequest is one submission of guest source for governed execution.
// A nil TimeoutSeconds means the caller did not ask for a budget and the
// configured maximum applies; an explicit value below one second is rejected.
type ExecutionRequest struct {
	SourceCode     string `json:"source_code"`
	TimeoutSeconds *int   `json:"timeout_seconds,omitempty"`
	GuestLanguage  string `json:"guest_language"`
}

// ErrorClass classifies why an execution did not succeed.
type ErrorClass string

const (
	ClassRejectedRequest    ErrorClass = "rejected_request"
	ClassSecurityViolation  ErrorClass = "security_violation"
	ClassTimeout            ErrorClass = "timeout"
	ClassResourceLimit      ErrorClass = "resource_limit_exceeded"
	ClassGuestRuntimeError  ErrorClass = "guest_runtime_error"
	ClassInternalFormatting ErrorClass = "internal_formatting_error"
)

// ExecutionError carries the classification and message attached to a failed
// outcome.
type ExecutionError struct {
	Class   ErrorClass `json:"class"`
	Message string     `json:"message"`
}

// RejectionError is returned when a request is refused before any sandbox
// resource is allocated.
type RejectionError struct {
	Class  ErrorClass
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Reason)
}

// ExtractedVariable is a bounded snapshot of one top-level binding the guest
// created or mutated.
type ExtractedVariable struct {
	Name      string `json:"name"`
	TypeTag   string `json:"type"`
	Value     string `json:"value"`
	Truncated bool   `json:"truncated,omitempty"`
}

// CapturedArtifact is one rendered figure captured from the run.
type CapturedArtifact struct {
	Kind      string `json:"kind"`
	Encoding  string `json:"encoding"`
	Label     string `json:"label"`
	SizeBytes int    `json:"size_bytes"`
	Data      string `json:"data,omitempty"`
}

// ExecutionOutcome is the structured result of one governed execution.
// Success false always comes with a non-nil Error.
type ExecutionOutcome struct {
	RunID             string              `json:"run_id"`
	Success           bool                `json:"success"`
	Output            string              `json:"output"`
	OutputTruncated   bool                `json:"output_truncated,omitempty"`
	Error             *ExecutionError     `json:"error,omitempty"`
	Elapsed           time.Duration       `json:"-"`
	ElapsedSeconds    float64             `json:"elapsed_seconds"`
	Variables         []ExtractedVariable `json:"variables,omitempty"`
	Artifacts         []CapturedArtifact  `json:"artifacts,omitempty"`
	ReferencedModules []string            `json:"referenced_modules,omitempty"`
	Degraded          bool                `json:"degraded_guarantees,omitempty"`
}
