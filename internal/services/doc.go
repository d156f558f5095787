// Package services defines shared utilities consumed by the pipeline stages
// and external collaborators.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, scene ordinals, and
//     correlation identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper, and KindOf which turns
//     any stage error into the failure taxonomy recorded on a job (transient
//     vs permanent external failures, toolchain problems, media errors).
//
// Use these helpers when wiring new stage logic so failure classification and
// observability stay uniform across the pipeline.
package services
