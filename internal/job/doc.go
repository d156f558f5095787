// Package job defines the generation job record, its closed state machine,
// scene bookkeeping, media handles, and the read-only status projection.
//
// Only the workflow manager mutates jobs. Everything else receives clones or
// View values.
package job
