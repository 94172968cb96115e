// Package logger provides structured logging capabilities.
//
// The logger package configures the application's zap logger from the
// loaded configuration. Output always goes to stderr so the stdio MCP
// transport keeps stdout for the protocol stream.
//
// Usage:
//
//	logger, err := logger.New("production", "info")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	logger.Info("server started")
//	logger.Error("run failed", zap.Error(err))
package logger
