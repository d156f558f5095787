// Package ffprobe provides a typed wrapper around ffprobe JSON output.
//
// Prober runs ffprobe through the toolchain executor with a deadline and maps
// failures onto the service error markers: unreadable or stream-less media
// is a decode error, a deadline is a timeout.
//
// Helper methods on Result provide stream counts, frame size, and duration
// parsing with a per-stream fallback.
package ffprobe
