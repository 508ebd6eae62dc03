// Package store persists snapshots and transitions: a SQLite manifest holds
// the graph metadata and object storage holds the compressed record payloads.
package store

// The manifest database is the source of truth for which records exist and
// how they connect. Payloads live in object storage, addressed by content
// hash, and the manifest carries a checksum for each so corruption is caught
// on read.

// CreateSnapshotsTableSQL creates the snapshots metadata table.
const CreateSnapshotsTableSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
    hash TEXT PRIMARY KEY,
    parent TEXT,
    created_at INTEGER NOT NULL,
    created_by TEXT NOT NULL DEFAULT '',
    description TEXT NOT NULL DEFAULT '',
    object_path TEXT NOT NULL,
    checksum TEXT NOT NULL
)`

// CreateTransitionsTableSQL creates the transitions metadata table. The
// from_hash and to_hash columns are the graph edges; both get their own
// index since path finding walks in either direction.
const CreateTransitionsTableSQL = `
CREATE TABLE IF NOT EXISTS transitions (
    hash TEXT PRIMARY KEY,
    from_hash TEXT NOT NULL,
    to_hash TEXT NOT NULL,
    step_count INTEGER NOT NULL,
    created_at INTEGER NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    object_path TEXT NOT NULL,
    checksum TEXT NOT NULL
)`

// CreateTransitionsIndexesSQL creates the edge-walk indexes.
var CreateTransitionsIndexesSQL = []string{
	`CREATE INDEX IF NOT EXISTS idx_transitions_from ON transitions(from_hash)`,
	`CREATE INDEX IF NOT EXISTS idx_transitions_to ON transitions(to_hash)`,
}

// CreateEnvironmentsTableSQL creates the environment state table, the only
// mutable table in the manifest.
const CreateEnvironmentsTableSQL = `
CREATE TABLE IF NOT EXISTS environments (
    environment TEXT PRIMARY KEY,
    current_snapshot TEXT NOT NULL DEFAULT '',
    updated_at INTEGER NOT NULL
)`

// AllSchemaSQL returns all schema statements in execution order.
func AllSchemaSQL() []string {
	stmts := []string{
		CreateSnapshotsTableSQL,
		CreateTransitionsTableSQL,
		CreateEnvironmentsTableSQL,
	}
	stmts = append(stmts, CreateTransitionsIndexesSQL...)
	return stmts
}
