package interpreter

import (
	"encoding/base64"

	"github.com/arclabs/pycell/config"
	"github.com/arclabs/pycell/sandbox"
)

// Extractor turns the raw run result into the bounded variable snapshots,
// encoded artifacts, and advisory module references of the outcome. All
// capture logic lives in this one post-run pass.
type Extractor struct {
	limits config.LimitsConfig
}

// NewExtractor creates an Extractor bound to the process-wide limits.
func NewExtractor(cfg *config.Config) *Extractor {
	return &Extractor{limits: cfg.Limits}
}

// Extract inspects the post-execution state. The harness applies the
// variable and artifact budgets inside the sandbox; the report is untrusted,
// so the same caps are applied again on the host side.
func (e *Extractor) Extract(res sandbox.RunResult, source string) ([]ExtractedVariable, []CapturedArtifact, []string) {
	return e.variables(res.Report), e.artifacts(res.Artifacts), ScanReferencedModules(source)
}

func (e *Extractor) variables(report *sandbox.Report) []ExtractedVariable {
	if report == nil {
		return nil
	}
	vars := make([]ExtractedVariable, 0, len(report.Variables))
	for _, rv := range report.Variables {
		value := rv.Value
		truncated := rv.Truncated
		if len(value) > e.limits.MaxVariableChars+len("...") {
			value = value[:e.limits.MaxVariableChars] + "..."
			truncated = true
		}
		vars = append(vars, ExtractedVariable{
			Name:      rv.Name,
			TypeTag:   rv.Type,
			Value:     value,
			Truncated: truncated,
		})
	}
	return vars
}

func (e *Extractor) artifacts(raw []sandbox.Artifact) []CapturedArtifact {
	var artifacts []CapturedArtifact
	for _, a := range raw {
		if len(artifacts) >= e.limits.MaxArtifacts {
			break
		}
		if len(a.Data) == 0 || len(a.Data) > e.limits.MaxArtifactSizeKB*1024 {
			continue
		}
		artifacts = append(artifacts, CapturedArtifact{
			Kind:      "figure",
			Encoding:  "base64/" + a.Format,
			Label:     a.Label,
			SizeBytes: len(a.Data),
			Data:      base64.StdEncoding.EncodeToString(a.Data),
		})
	}
	return artifacts
}
