// Package notifications delivers job outcome events to ntfy.
//
// NewService returns a no-op implementation when no topic is configured, and
// honors the per-event toggles in the [notifications] config section. The
// workflow depends only on the Publish method.
package notifications
