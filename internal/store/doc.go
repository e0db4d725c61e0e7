// Package store defines the persistence interfaces used by the coordination
// core (tasks, leases, run records, model limits, outcome events), the DBTX
// abstraction over *sql.DB / *sql.Tx, and the transaction helpers that give
// the outcome state machine its serialization boundary.
//
// Concrete PostgreSQL implementations live in internal/platform/postgres.
package store
