// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes the
// run_python tool for governed execution of untrusted analysis snippets. It
// uses the mark3labs/mcp-go library to handle the protocol details.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/arclabs/pycell/config"
	"github.com/arclabs/pycell/interpreter"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	service   *interpreter.Service
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, service *interpreter.Service) (*MCPServer, error) {
	s := &MCPServer{
		config:  cfg,
		logger:  logger,
		service: service,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.String("sandbox.backend", s.config.Sandbox.Backend),
		zap.String("sandbox.image", s.config.Sandbox.Image),
		zap.Int("sandbox.max_concurrent", s.config.Sandbox.MaxConcurrent),
		zap.Int("limits.max_timeout_sec", s.config.Limits.MaxTimeoutSec),
		zap.Int("limits.memory_mb", s.config.Limits.MemoryMB),
		zap.Int("limits.max_output_chars", s.config.Limits.MaxOutputChars),
		zap.Int("limits.max_source_bytes", s.config.Limits.MaxSourceBytes),
		zap.Int("limits.max_source_lines", s.config.Limits.MaxSourceLines),
		zap.Int("limits.max_artifacts", s.config.Limits.MaxArtifacts),
	)

	// Create the MCP server
	s.mcpServer = server.NewMCPServer("pycell-executor", "A governed Python analysis execution server")

	// Register the run_python tool
	s.registerRunPythonTool()

	return s, nil
}

// registerRunPythonTool registers the run_python tool
func (s *MCPServer) registerRunPythonTool() {
	tool := mcp.Tool{
		Name:        "run_python",
		Description: "Execute an untrusted Python analysis snippet under resource governance and return output, variables, and rendered charts",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"source_code": map[string]any{
					"type":        "string",
					"description": "Python source to execute",
				},
				"guest_language": map[string]any{
					"type":        "string",
					"description": "Guest language tag",
					"enum":        []string{"python"},
				},
				"timeout_seconds": map[string]any{
					"type":        "integer",
					"description": "Requested wall-clock budget in seconds (optional, clamped to the configured maximum)",
				},
			},
			Required: []string{"source_code", "guest_language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRunPython)
}

// handleRunPython handles the run_python tool
func (s *MCPServer) handleRunPython(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.Info("code execution requested")

	sourceCode, err := request.RequireString("source_code")
	if err != nil {
		return nil, fmt.Errorf("source_code parameter is required: %w", err)
	}

	guestLanguage, err := request.RequireString("guest_language")
	if err != nil {
		return nil, fmt.Errorf("guest_language parameter is required: %w", err)
	}

	// Distinguish an omitted timeout from an explicit one; only explicit
	// values go through validation.
	var timeoutSeconds *int
	if _, ok := request.GetArguments()["timeout_seconds"]; ok {
		value := request.GetInt("timeout_seconds", 0)
		timeoutSeconds = &value
	}

	outcome, err := s.service.Execute(ctx, interpreter.ExecutionRequest{
		SourceCode:     sourceCode,
		TimeoutSeconds: timeoutSeconds,
		GuestLanguage:  guestLanguage,
	})
	if err != nil {
		var rejection *interpreter.RejectionError
		if errors.As(err, &rejection) {
			s.logger.Info("request rejected before sandbox setup",
				zap.String("class", string(rejection.Class)),
				zap.String("reason", rejection.Reason))
			return &mcp.CallToolResult{
				Content: []mcp.Content{
					mcp.TextContent{
						Type: "text",
						Text: fmt.Sprintf("Request rejected: %s", rejection.Reason),
					},
				},
				IsError: true,
			}, nil
		}
		s.logger.Error("execution failed", zap.Error(err))
		return &mcp.CallToolResult{
			Content: []mcp.Content{
				mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf("Execution failed: %v", err),
				},
			},
			IsError: true,
		}, nil
	}

	structured, err := json.Marshal(outcome)
	if err != nil {
		s.logger.Error("failed to encode outcome", zap.Error(err))
		structured = []byte(`{"success":false,"error":{"class":"internal_formatting_error","message":"failed to encode outcome"}}`)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(structured),
			},
			mcp.TextContent{
				Type: "text",
				Text: s.service.Summary(outcome, sourceCode),
			},
		},
	}, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
