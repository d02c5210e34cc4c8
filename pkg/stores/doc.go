// Package stores provides the run-history persistence layer.
// It includes SQLite-based storage with WAL mode, connection pooling,
// and CRUD operations for plan runs and their append-only event log.
package stores
