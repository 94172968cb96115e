// Package interpreter implements the governed execution pipeline.
//
// The interpreter package ties the stages of one request together:
// validation of the inbound request, construction of a fresh guest
// namespace, governed execution through a sandbox runner, extraction of
// variables and rendered artifacts from the post-run state, and formatting
// of the outcome into both a structured value and a human-readable summary.
//
// Usage:
//
//	svc := interpreter.NewService(cfg, logger, runner, metrics)
//	outcome, err := svc.Execute(ctx, interpreter.ExecutionRequest{
//	    SourceCode:    "print('hello')",
//	    GuestLanguage: "python",
//	})
package interpreter
