// Package main hosts the reelsmith CLI entrypoint and command graph.
//
// The Cobra-based command tree runs the daemon in the foreground and turns
// terminal invocations into HTTP calls against its API: job submission,
// status, listing, cancellation, deletion, artifact download, and a test
// notification.
// Configuration scaffolding, dependency checks and staging workspace
// maintenance run locally.
//
// Keep this package lean: add new functionality to the internal packages
// first, then surface it through dedicated commands or flags here.
package main
