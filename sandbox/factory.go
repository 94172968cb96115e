package sandbox

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/arclabs/pycell/config"
)

// NewRunner creates the sandbox runner selected by the application
// configuration.
func NewRunner(logger *zap.Logger, cfg *config.Config) (Runner, error) {
	runnerConfig := &Config{
		Image:            cfg.Sandbox.Image,
		MemoryMB:         cfg.Limits.MemoryMB,
		MaxOutputBytes:   cfg.Limits.MaxOutputChars,
		MaxVariableChars: cfg.Limits.MaxVariableChars,
		MaxArtifacts:     cfg.Limits.MaxArtifacts,
		MaxArtifactBytes: cfg.Limits.MaxArtifactSizeKB * 1024,
	}

	switch cfg.Sandbox.Backend {
	case "docker":
		return NewDockerRunner(logger, runnerConfig), nil
	case "podman":
		return NewPodmanRunner(logger, runnerConfig), nil
	case "local":
		return NewLocalRunner(logger, runnerConfig), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s", cfg.Sandbox.Backend)
	}
}
