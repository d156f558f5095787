// Package workflow drives generation jobs through their stages.
//
// The Manager owns every job it accepts: it persists the record through a
// jobstore.Store, runs one goroutine per job, and walks the job along the
// fixed success path (scripting, image, video, assembling, captioning, done).
// The VIDEO stage fans out one generation request per scene, bounded by
// pipeline.video_concurrency, and waits for every dispatched request to
// settle before deciding the stage outcome. Any stage failure is classified
// into a FailureCause and the job moves to FAILED; nothing is retried across
// stages.
//
// Status readers go straight to the store and never wait on a running stage.
// Cancel stops new scene dispatches at once and lets the job runner finalize
// the job after in-flight work settles.
package workflow
