// Package kie is the client for the kie.ai generation API.
//
// Reference images use the generic task endpoints (jobs/createTask and
// jobs/recordInfo); scene videos use the Veo endpoints (veo/generate and
// veo/record-info). Both are asynchronous: a task is created, then polled at
// generation.poll_interval until it succeeds, fails, or the per-kind timeout
// elapses. Scene results are downloaded into the job workspace.
//
// Every error carries a marker from internal/services so the workflow can
// tell transient vendor trouble (timeouts, 429, 5xx) from permanent
// rejections (bad credentials, no credit, content policy).
package kie
