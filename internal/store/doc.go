// Package store provides the SQLite-backed crash journal.
//
// A fuzzing driver keeps every crashing input in its output directory. When the
// target runs under the fuzzlab CLI, the journal plays that role so findings
// survive the deliberate abort that ends the process:
//   - Runs: one row per trial-loop execution with its final statistics
//   - Findings: crashing inputs, content-addressed and de-duplicated
//   - Scans: executions of the external static-analysis tool
//
// # Ordering
//
// Every table carries an autoincrement seq column. List queries order by
// seq ASC, id ASC so results are stable regardless of wall-clock skew.
// Timestamps are informational and stored as RFC 3339 text in UTC.
//
// # Identity
//
// Finding IDs are SHA-256 over the input bytes with a domain prefix (see
// FindingID). Recording the same input twice bumps its hit count instead of
// adding a row.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: findings must reference a known run
package store
