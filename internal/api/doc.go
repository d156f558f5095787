// Package api defines the wire-format types shared by the daemon HTTP server
// and the CLI, plus the HTTP client the CLI uses.
//
// Converters translate internal job views and workflow summaries into DTOs so
// consumers never couple to internal types. DTOs use camelCase JSON tags and
// RFC3339 timestamps with milliseconds. Job states and failure kinds are
// exposed as lowercase strings.
package api
