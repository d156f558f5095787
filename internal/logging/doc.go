// Package logging assembles structured slog loggers for reelsmith.
//
// It owns the console and JSON handlers, level and output plumbing, and
// context helpers that tag log lines with job IDs, stages, and scene indexes.
// NewNop gives tests and optional wiring a logger that discards everything.
package logging
