// Package daemon coordinates the long-running reelsmith process.
//
// It wires configuration, the workflow manager, and the HTTP API into a
// single lifecycle with flock-based locking to prevent multiple instances.
// The API is a chi router under /api: job submission, listing, status,
// artifact lookup and download, cancellation, deletion of finished jobs,
// daemon status, and a test notification trigger. Every request gets a
// correlation id; a configured api_token enables bearer authentication.
// Submissions are limited per client address when submit_limit_per_hour is
// set.
//
// Keep orchestration logic here: job stages live in the workflow package
// while the daemon focuses on startup, shutdown, and the transport surface.
package daemon
