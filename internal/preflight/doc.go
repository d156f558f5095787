// Package preflight provides readiness checks for the external services,
// binaries, and filesystem paths reelsmith depends on.
//
// The daemon runs RunAll at startup and logs every failure; the CLI status
// and deps commands call the individual checks (CheckDirectoryAccess,
// CheckToolchain, CheckSystemDeps) to display health.
package preflight
