// Package llm provides an OpenAI-compatible chat client and the script writer
// built on top of it.
//
// # Entry Points
//
// NewClient: construct client from Config.
// Client.CompleteJSON: send system/user prompts, receive a JSON payload.
// Client.HealthCheck: verify API key and model availability.
// DecodeJSON: tolerant decoding of fenced or prose-wrapped replies.
// ScriptWriter.GenerateScript: produce a job.Script with exactly the requested
// number of scenes.
//
// # Retry Behaviour
//
// Transient failures (HTTP 408/429/5xx, empty completions, timeouts) are
// retried with doubling backoff from 1s capped at 10s, honouring Retry-After.
// Three attempts by default; llm.retry_attempts overrides.
//
// # Classification
//
// Errors returned by the client carry the markers from internal/services:
// retryable failures are transient, other HTTP rejections are permanent, a
// missing API key is a configuration error.
package llm
