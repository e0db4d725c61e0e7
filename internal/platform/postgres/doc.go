// Package postgres provides PostgreSQL implementations of the store
// interfaces using the pgx stdlib driver. Every store accepts a store.DBTX
// so the same implementation works against a connection pool or a
// transaction obtained via WithTx, and all errors are routed through
// MapError so callers only see store sentinels.
package postgres
