package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// manifest wraps the SQLite metadata database. Writes go through a single
// connection guarded by a mutex; reads use a separate read-only pool so
// listings never queue behind a writer.
type manifest struct {
	db     *sql.DB // Write connection (single writer)
	readDB *sql.DB // Read connection pool (concurrent readers)
	dbPath string
	mu     sync.Mutex // Write-only lock (reads don't need this)

	insertSnapshotStmt   *sql.Stmt
	insertTransitionStmt *sql.Stmt
	getSnapshotStmt      *sql.Stmt
	getTransitionStmt    *sql.Stmt
}

func newManifest(dbPath string) (*manifest, error) {
	// Write connection: single writer with WAL mode
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("manifest: failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	readDB, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&mode=ro")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("manifest: failed to open read database: %w", err)
	}
	readDB.SetMaxOpenConns(4)
	readDB.SetMaxIdleConns(4)
	readDB.SetConnMaxLifetime(5 * time.Minute)

	m := &manifest{db: db, readDB: readDB, dbPath: dbPath}
	if err := m.initSchema(); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("manifest: failed to initialize schema: %w", err)
	}
	if err := m.prepareStatements(); err != nil {
		readDB.Close()
		db.Close()
		return nil, fmt.Errorf("manifest: failed to prepare statements: %w", err)
	}
	return m, nil
}

func (m *manifest) initSchema() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, stmt := range AllSchemaSQL() {
		if _, err := m.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

func (m *manifest) prepareStatements() error {
	// Records are immutable and addressed by content hash, so a replayed
	// save is a no-op rather than a conflict.
	insertSnapshot, err := m.db.Prepare(`
		INSERT OR IGNORE INTO snapshots (
			hash, parent, created_at, created_by, description, object_path, checksum
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	m.insertSnapshotStmt = insertSnapshot

	insertTransition, err := m.db.Prepare(`
		INSERT OR IGNORE INTO transitions (
			hash, from_hash, to_hash, step_count, created_at, description, object_path, checksum
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	m.insertTransitionStmt = insertTransition

	getSnapshot, err := m.readDB.Prepare(`
		SELECT hash, parent, created_at, created_by, description, object_path, checksum
		FROM snapshots WHERE hash = ?`)
	if err != nil {
		return err
	}
	m.getSnapshotStmt = getSnapshot

	getTransition, err := m.readDB.Prepare(`
		SELECT hash, from_hash, to_hash, step_count, created_at, description, object_path, checksum
		FROM transitions WHERE hash = ?`)
	if err != nil {
		return err
	}
	m.getTransitionStmt = getTransition
	return nil
}

// insertSnapshot records a snapshot row. Returns false if the hash was
// already present.
func (m *manifest) insertSnapshot(ctx context.Context, rec SnapshotRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.insertSnapshotStmt.ExecContext(ctx,
		rec.Hash, rec.Parent, rec.CreatedAt, rec.CreatedBy, rec.Description,
		rec.ObjectPath, rec.Checksum)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (m *manifest) insertTransition(ctx context.Context, rec TransitionRecord) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	res, err := m.insertTransitionStmt.ExecContext(ctx,
		rec.Hash, rec.FromHash, rec.ToHash, rec.StepCount, rec.CreatedAt,
		rec.Description, rec.ObjectPath, rec.Checksum)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// getSnapshot returns the snapshot row, or nil if absent.
func (m *manifest) getSnapshot(ctx context.Context, hash string) (*SnapshotRecord, error) {
	var rec SnapshotRecord
	err := m.getSnapshotStmt.QueryRowContext(ctx, hash).Scan(
		&rec.Hash, &rec.Parent, &rec.CreatedAt, &rec.CreatedBy,
		&rec.Description, &rec.ObjectPath, &rec.Checksum)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *manifest) getTransition(ctx context.Context, hash string) (*TransitionRecord, error) {
	var rec TransitionRecord
	err := m.getTransitionStmt.QueryRowContext(ctx, hash).Scan(
		&rec.Hash, &rec.FromHash, &rec.ToHash, &rec.StepCount,
		&rec.CreatedAt, &rec.Description, &rec.ObjectPath, &rec.Checksum)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *manifest) snapshotExists(ctx context.Context, hash string) (bool, error) {
	var one int
	err := m.readDB.QueryRowContext(ctx,
		`SELECT 1 FROM snapshots WHERE hash = ?`, hash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (m *manifest) transitionExists(ctx context.Context, hash string) (bool, error) {
	var one int
	err := m.readDB.QueryRowContext(ctx,
		`SELECT 1 FROM transitions WHERE hash = ?`, hash).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// listSnapshots returns every snapshot row ordered by creation time, ties
// broken by hash so the order is total.
func (m *manifest) listSnapshots(ctx context.Context) ([]SnapshotRecord, error) {
	rows, err := m.readDB.QueryContext(ctx, `
		SELECT hash, parent, created_at, created_by, description, object_path, checksum
		FROM snapshots ORDER BY created_at, hash`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []SnapshotRecord
	for rows.Next() {
		var rec SnapshotRecord
		if err := rows.Scan(&rec.Hash, &rec.Parent, &rec.CreatedAt, &rec.CreatedBy,
			&rec.Description, &rec.ObjectPath, &rec.Checksum); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (m *manifest) listTransitions(ctx context.Context) ([]TransitionRecord, error) {
	return m.queryTransitions(ctx, `
		SELECT hash, from_hash, to_hash, step_count, created_at, description, object_path, checksum
		FROM transitions ORDER BY created_at, hash`)
}

func (m *manifest) transitionsFrom(ctx context.Context, fromHash string) ([]TransitionRecord, error) {
	return m.queryTransitions(ctx, `
		SELECT hash, from_hash, to_hash, step_count, created_at, description, object_path, checksum
		FROM transitions WHERE from_hash = ? ORDER BY created_at, hash`, fromHash)
}

func (m *manifest) transitionsTo(ctx context.Context, toHash string) ([]TransitionRecord, error) {
	return m.queryTransitions(ctx, `
		SELECT hash, from_hash, to_hash, step_count, created_at, description, object_path, checksum
		FROM transitions WHERE to_hash = ? ORDER BY created_at, hash`, toHash)
}

func (m *manifest) queryTransitions(ctx context.Context, query string, args ...any) ([]TransitionRecord, error) {
	rows, err := m.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []TransitionRecord
	for rows.Next() {
		var rec TransitionRecord
		if err := rows.Scan(&rec.Hash, &rec.FromHash, &rec.ToHash, &rec.StepCount,
			&rec.CreatedAt, &rec.Description, &rec.ObjectPath, &rec.Checksum); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// getState returns the environment row, or nil if the environment has never
// been recorded.
func (m *manifest) getState(ctx context.Context, environment string) (*envRow, error) {
	var row envRow
	err := m.readDB.QueryRowContext(ctx, `
		SELECT environment, current_snapshot, updated_at
		FROM environments WHERE environment = ?`, environment).Scan(
		&row.Environment, &row.CurrentSnapshot, &row.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (m *manifest) upsertState(ctx context.Context, environment, snapshotHash string, updatedAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, err := m.db.ExecContext(ctx, `
		INSERT INTO environments (environment, current_snapshot, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(environment) DO UPDATE SET
			current_snapshot = excluded.current_snapshot,
			updated_at = excluded.updated_at`,
		environment, snapshotHash, updatedAt)
	return err
}

func (m *manifest) allStates(ctx context.Context) ([]envRow, error) {
	rows, err := m.readDB.QueryContext(ctx, `
		SELECT environment, current_snapshot, updated_at
		FROM environments ORDER BY environment`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var states []envRow
	for rows.Next() {
		var row envRow
		if err := rows.Scan(&row.Environment, &row.CurrentSnapshot, &row.UpdatedAt); err != nil {
			return nil, err
		}
		states = append(states, row)
	}
	return states, rows.Err()
}

type envRow struct {
	Environment     string
	CurrentSnapshot string
	UpdatedAt       int64
}

func (m *manifest) close() error {
	if m.insertSnapshotStmt != nil {
		m.insertSnapshotStmt.Close()
	}
	if m.insertTransitionStmt != nil {
		m.insertTransitionStmt.Close()
	}
	if m.getSnapshotStmt != nil {
		m.getSnapshotStmt.Close()
	}
	if m.getTransitionStmt != nil {
		m.getTransitionStmt.Close()
	}

	var firstErr error
	if err := m.readDB.Close(); err != nil {
		firstErr = err
	}
	if err := m.db.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
