// Package sandbox provides governed execution of untrusted guest code.
//
// The sandbox package implements the execution engine for running untrusted
// Python analysis snippets in isolated environments. It supports multiple
// backends including Docker, Podman, and local execution (for development).
//
// Each run builds a fresh Namespace (the closed enumeration of builtins and
// library modules guest code can reach), renders it together with the guest
// source into a bootstrap harness, and executes the harness under CPU,
// memory, process and wall-clock ceilings. The harness snapshots the
// variables the guest created, saves rendered figures, clears the plotting
// registry, and writes a JSON report the runner collects afterwards.
//
// Usage:
//
//	runner, err := sandbox.NewRunner(logger, cfg)
//	result, err := runner.Run(ctx, sandbox.RunRequest{
//	    Source:    "print('Hello, World!')",
//	    Namespace: sandbox.NewNamespace(),
//	    Timeout:   5 * time.Second,
//	})
package sandbox
