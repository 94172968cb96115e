// Package main is the entry point for the pycell MCP server.
package main

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/arclabs/pycell/config"
	"github.com/arclabs/pycell/interpreter"
	"github.com/arclabs/pycell/logger"
	"github.com/arclabs/pycell/mcpserver"
	"github.com/arclabs/pycell/sandbox"
	"github.com/arclabs/pycell/telemetry"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Telemetry collector on the default registry
			telemetry.NewDefault,

			// Sandbox runner based on config
			sandbox.NewRunner,

			// Execution pipeline
			interpreter.NewService,

			// MCP Server
			mcpserver.New,
		),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.Transport {
				case "stdio":
					// Use fx to run this as a background task
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported transport: " + cfg.Server.Transport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}
