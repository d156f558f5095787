// Package staging owns the per-job workspaces under paths.staging_dir.
//
// Each job gets a directory named after its id. Scene downloads and
// normalized renders are pruned once a job settles; a successful job's
// workspace is removed after the artifact is published, a canceled job's
// workspace is removed at once, and a failed job's workspace stays until
// CleanStale passes the retention window.
package staging
