// Package main is the entry point for the pycell MCP server.
//
// The pycell server exposes governed execution of untrusted Python analysis
// snippets through the Model Context Protocol. Guest code runs against an
// explicitly enumerated namespace inside an isolated sandbox with CPU,
// memory, and wall-clock ceilings; captured output, extracted variables,
// and rendered charts are returned to the calling agent.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main
