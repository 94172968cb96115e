package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration. It is loaded once at
// process start and treated as read-only afterwards.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Transport string `mapstructure:"transport"`
	HTTPPort  int    `mapstructure:"http_port"`
}

// SandboxConfig holds sandbox backend configuration
type SandboxConfig struct {
	Backend            string `mapstructure:"backend"`
	Image              string `mapstructure:"image"`
	EnableLocalBackend bool   `mapstructure:"enable_local_backend"`
	MaxConcurrent      int    `mapstructure:"max_concurrent"`
}

// LimitsConfig holds the process-wide execution ceilings applied to every
// guest run. Nothing mutates these per request.
type LimitsConfig struct {
	MaxTimeoutSec     int `mapstructure:"max_timeout_sec"`
	MemoryMB          int `mapstructure:"memory_mb"`
	MaxOutputChars    int `mapstructure:"max_output_chars"`
	MaxSourceBytes    int `mapstructure:"max_source_bytes"`
	MaxSourceLines    int `mapstructure:"max_source_lines"`
	MaxVariableChars  int `mapstructure:"max_variable_chars"`
	MaxArtifacts      int `mapstructure:"max_artifacts"`
	MaxArtifactSizeKB int `mapstructure:"max_artifact_size_kb"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// New loads and validates the application configuration
func New() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set default values
	viper.SetDefault("server.transport", "stdio")
	viper.SetDefault("server.http_port", 8080)
	viper.SetDefault("sandbox.backend", "docker")
	viper.SetDefault("sandbox.image", "python:3.11-slim")
	viper.SetDefault("sandbox.enable_local_backend", false)
	viper.SetDefault("sandbox.max_concurrent", 4)
	viper.SetDefault("limits.max_timeout_sec", 30)
	viper.SetDefault("limits.memory_mb", 256)
	viper.SetDefault("limits.max_output_chars", 10000)
	viper.SetDefault("limits.max_source_bytes", 10000)
	viper.SetDefault("limits.max_source_lines", 200)
	viper.SetDefault("limits.max_variable_chars", 500)
	viper.SetDefault("limits.max_artifacts", 8)
	viper.SetDefault("limits.max_artifact_size_kb", 2048)
	viper.SetDefault("logging.mode", "production")
	viper.SetDefault("logging.level", "info")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Validate configuration
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	supportedBackends := map[string]bool{
		"docker": true,
		"podman": true,
		"local":  c.Sandbox.EnableLocalBackend, // local only enabled if specifically allowed
	}
	if !supportedBackends[c.Sandbox.Backend] {
		return fmt.Errorf("unsupported sandbox.backend: %s", c.Sandbox.Backend)
	}

	if c.Sandbox.MaxConcurrent <= 0 {
		return fmt.Errorf("sandbox.max_concurrent must be positive, got: %d", c.Sandbox.MaxConcurrent)
	}

	if c.Limits.MaxTimeoutSec <= 0 {
		return fmt.Errorf("limits.max_timeout_sec must be positive, got: %d", c.Limits.MaxTimeoutSec)
	}
	if c.Limits.MemoryMB <= 0 {
		return fmt.Errorf("limits.memory_mb must be positive, got: %d", c.Limits.MemoryMB)
	}
	if c.Limits.MaxOutputChars <= 0 {
		return fmt.Errorf("limits.max_output_chars must be positive, got: %d", c.Limits.MaxOutputChars)
	}
	if c.Limits.MaxSourceBytes <= 0 {
		return fmt.Errorf("limits.max_source_bytes must be positive, got: %d", c.Limits.MaxSourceBytes)
	}
	if c.Limits.MaxSourceLines <= 0 {
		return fmt.Errorf("limits.max_source_lines must be positive, got: %d", c.Limits.MaxSourceLines)
	}
	if c.Limits.MaxVariableChars <= 0 {
		return fmt.Errorf("limits.max_variable_chars must be positive, got: %d", c.Limits.MaxVariableChars)
	}
	if c.Limits.MaxArtifacts <= 0 {
		return fmt.Errorf("limits.max_artifacts must be positive, got: %d", c.Limits.MaxArtifacts)
	}
	if c.Limits.MaxArtifactSizeKB <= 0 {
		return fmt.Errorf("limits.max_artifact_size_kb must be positive, got: %d", c.Limits.MaxArtifactSizeKB)
	}

	return nil
}

// MaxTimeout returns the maximum execution timeout as a duration
func (c *Config) MaxTimeout() time.Duration {
	return time.Duration(c.Limits.MaxTimeoutSec) * time.Second
}
