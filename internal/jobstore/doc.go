// Package jobstore persists generation jobs.
//
// Store is the contract the workflow manager writes through and status or
// download callers read from. MemoryStore keeps records in process memory;
// SQLiteStore keeps them in an embedded SQLite database (WAL journal, busy
// retry, versioned schema) so job history survives daemon restarts.
package jobstore
