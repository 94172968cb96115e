// Package telemetry provides execution metrics aggregation.
//
// The telemetry package exposes a prometheus-backed collector for
// invocation, rejection, duration, and artifact counters. The collector is
// an optional collaborator: the pipeline works identically without it.
package telemetry
