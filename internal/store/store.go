package store

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stratumdb/stratum/internal/bloom"
	"github.com/stratumdb/stratum/internal/cache"
	"github.com/stratumdb/stratum/internal/errors"
	"github.com/stratumdb/stratum/internal/observability"
	"github.com/stratumdb/stratum/internal/storage"
	"github.com/stratumdb/stratum/pkg/types"
)

// Store persists snapshots, transitions, and environment state.
type Store interface {
	// SaveSnapshot persists a snapshot. Saving the same hash twice is a
	// no-op; snapshots are immutable.
	SaveSnapshot(ctx context.Context, s *types.Snapshot) error

	// LoadSnapshot retrieves a snapshot by hash. The returned record is a
	// private copy; mutating it does not affect later loads.
	LoadSnapshot(ctx context.Context, hash string) (*types.Snapshot, error)

	// SnapshotExists checks whether a snapshot hash is known.
	SnapshotExists(ctx context.Context, hash string) (bool, error)

	// SaveTransition persists a transition. Idempotent, like SaveSnapshot.
	SaveTransition(ctx context.Context, t *types.Transition) error

	// LoadTransition retrieves a transition by hash. The returned record is
	// a private copy, like LoadSnapshot's.
	LoadTransition(ctx context.Context, hash string) (*types.Transition, error)

	// TransitionExists checks whether a transition hash is known.
	TransitionExists(ctx context.Context, hash string) (bool, error)

	// AllSnapshots lists snapshot metadata ordered by creation time.
	AllSnapshots(ctx context.Context) ([]SnapshotRecord, error)

	// AllTransitions lists transition metadata ordered by creation time.
	AllTransitions(ctx context.Context) ([]TransitionRecord, error)

	// TransitionsFrom lists transitions whose source is the given hash.
	TransitionsFrom(ctx context.Context, fromHash string) ([]TransitionRecord, error)

	// TransitionsTo lists transitions whose target is the given hash.
	TransitionsTo(ctx context.Context, toHash string) ([]TransitionRecord, error)

	// State returns the current state of an environment. An environment
	// that was never updated reports an empty CurrentSnapshot.
	State(ctx context.Context, environment string) (*types.EnvironmentState, error)

	// UpdateState records that an environment now runs the given snapshot.
	UpdateState(ctx context.Context, environment, snapshotHash string) error

	// AllStates lists every known environment state.
	AllStates(ctx context.Context) ([]types.EnvironmentState, error)

	// Close releases the manifest database connections.
	Close() error
}

// FileStore implements Store over a SQLite manifest plus object storage.
// The manifest row is written only after the payload is durably in object
// storage, so a crash between the two leaves an orphaned payload, never a
// dangling manifest row.
type FileStore struct {
	manifest *manifest
	objects  storage.ObjectStorage

	// Bloom filters answer definite-negative existence checks without a
	// manifest query. Rebuilt from the manifest at open.
	snapshotFilter   *bloom.Filter
	transitionFilter *bloom.Filter

	// records caches decoded payloads; entries never go stale because
	// records are immutable.
	records *cache.RecordCache

	stats *observability.OpStats
}

// NewFileStore opens the manifest at dbPath and attaches the given object
// storage backend.
func NewFileStore(dbPath string, objects storage.ObjectStorage) (*FileStore, error) {
	m, err := newManifest(dbPath)
	if err != nil {
		return nil, errors.NewStoreError(errors.CodeReadFailed, "failed to open manifest", err)
	}

	fs := &FileStore{
		manifest:         m,
		objects:          objects,
		snapshotFilter:   bloom.NewWithEstimates(10000, 0.01),
		transitionFilter: bloom.NewWithEstimates(10000, 0.01),
		records:          cache.NewRecordCache(512),
		stats:            observability.NewOpStats(),
	}

	if err := fs.warmFilters(context.Background()); err != nil {
		m.close()
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) warmFilters(ctx context.Context) error {
	snapshots, err := f.manifest.listSnapshots(ctx)
	if err != nil {
		return errors.NewStoreError(errors.CodeReadFailed, "failed to list snapshots", err)
	}
	for _, rec := range snapshots {
		f.snapshotFilter.Add(rec.Hash)
	}

	transitions, err := f.manifest.listTransitions(ctx)
	if err != nil {
		return errors.NewStoreError(errors.CodeReadFailed, "failed to list transitions", err)
	}
	for _, rec := range transitions {
		f.transitionFilter.Add(rec.Hash)
	}

	if len(snapshots) > 0 || len(transitions) > 0 {
		log.Printf("[store] opened with %d snapshots, %d transitions", len(snapshots), len(transitions))
	}
	return nil
}

// SaveSnapshot persists a snapshot payload and manifest row.
func (f *FileStore) SaveSnapshot(ctx context.Context, s *types.Snapshot) (err error) {
	defer f.track("save_snapshot", time.Now(), &err)

	if len(s.Hash) != types.HashLength {
		return errors.NewValidationError(errors.CodeInvalidEntity,
			fmt.Sprintf("snapshot hash %q is not a valid fingerprint", s.Hash))
	}

	data, checksum, err := encodeRecord(s)
	if err != nil {
		return err
	}

	objectPath := snapshotObjectPath(s.Hash)
	if err := f.objects.Put(ctx, objectPath, data); err != nil {
		return errors.NewStoreError(errors.CodeWriteFailed, "failed to write snapshot payload", err)
	}

	inserted, err := f.manifest.insertSnapshot(ctx, SnapshotRecord{
		Hash:        s.Hash,
		Parent:      s.Metadata.Parent,
		CreatedAt:   s.Metadata.CreatedAt.Unix(),
		CreatedBy:   s.Metadata.CreatedBy,
		Description: s.Metadata.Description,
		ObjectPath:  objectPath,
		Checksum:    checksum,
	})
	if err != nil {
		return errors.NewStoreError(errors.CodeWriteFailed, "failed to register snapshot", err)
	}
	if inserted {
		f.snapshotFilter.Add(s.Hash)
		log.Printf("[store] saved snapshot %s", types.ShortHash(s.Hash))
	}
	return nil
}

// LoadSnapshot retrieves a snapshot by hash, verifying its checksum.
func (f *FileStore) LoadSnapshot(ctx context.Context, hash string) (s *types.Snapshot, err error) {
	defer f.track("load_snapshot", time.Now(), &err)

	if !f.snapshotFilter.Contains(hash) {
		return nil, snapshotNotFound(hash)
	}
	if cached, ok := f.records.Get("s:" + hash); ok {
		return cached.(*types.Snapshot).Clone(), nil
	}
	rec, err := f.manifest.getSnapshot(ctx, hash)
	if err != nil {
		return nil, errors.NewStoreError(errors.CodeReadFailed, "failed to read snapshot record", err)
	}
	if rec == nil {
		return nil, snapshotNotFound(hash)
	}

	data, err := f.objects.Get(ctx, rec.ObjectPath)
	if err != nil {
		return nil, errors.NewStoreError(errors.CodeReadFailed, "failed to read snapshot payload", err)
	}

	var snapshot types.Snapshot
	if err := decodeRecord(data, rec.Checksum, &snapshot); err != nil {
		return nil, err
	}
	// Loads return a private copy; the cached record must never alias a
	// value a caller can mutate.
	f.records.Put("s:"+hash, &snapshot)
	return snapshot.Clone(), nil
}

// SnapshotExists checks whether a snapshot hash is known.
func (f *FileStore) SnapshotExists(ctx context.Context, hash string) (ok bool, err error) {
	defer f.track("snapshot_exists", time.Now(), &err)

	if !f.snapshotFilter.Contains(hash) {
		return false, nil
	}
	ok, err = f.manifest.snapshotExists(ctx, hash)
	if err != nil {
		return false, errors.NewStoreError(errors.CodeReadFailed, "failed to check snapshot", err)
	}
	return ok, nil
}

// SaveTransition persists a transition payload and manifest row.
func (f *FileStore) SaveTransition(ctx context.Context, t *types.Transition) (err error) {
	defer f.track("save_transition", time.Now(), &err)

	if len(t.Hash) != types.HashLength {
		return errors.NewValidationError(errors.CodeInvalidEntity,
			fmt.Sprintf("transition hash %q is not a valid fingerprint", t.Hash))
	}

	data, checksum, err := encodeRecord(t)
	if err != nil {
		return err
	}

	objectPath := transitionObjectPath(t.Hash)
	if err := f.objects.Put(ctx, objectPath, data); err != nil {
		return errors.NewStoreError(errors.CodeWriteFailed, "failed to write transition payload", err)
	}

	inserted, err := f.manifest.insertTransition(ctx, TransitionRecord{
		Hash:        t.Hash,
		FromHash:    t.FromHash,
		ToHash:      t.ToHash,
		StepCount:   len(t.Steps),
		CreatedAt:   t.Metadata.CreatedAt.Unix(),
		Description: t.Metadata.Description,
		ObjectPath:  objectPath,
		Checksum:    checksum,
	})
	if err != nil {
		return errors.NewStoreError(errors.CodeWriteFailed, "failed to register transition", err)
	}
	if inserted {
		f.transitionFilter.Add(t.Hash)
		log.Printf("[store] saved transition %s (%s -> %s, %d steps)",
			types.ShortHash(t.Hash), types.ShortHash(t.FromHash), types.ShortHash(t.ToHash), len(t.Steps))
	}
	return nil
}

// LoadTransition retrieves a transition by hash, verifying its checksum.
func (f *FileStore) LoadTransition(ctx context.Context, hash string) (t *types.Transition, err error) {
	defer f.track("load_transition", time.Now(), &err)

	if !f.transitionFilter.Contains(hash) {
		return nil, transitionNotFound(hash)
	}
	if cached, ok := f.records.Get("t:" + hash); ok {
		return cached.(*types.Transition).Clone(), nil
	}
	rec, err := f.manifest.getTransition(ctx, hash)
	if err != nil {
		return nil, errors.NewStoreError(errors.CodeReadFailed, "failed to read transition record", err)
	}
	if rec == nil {
		return nil, transitionNotFound(hash)
	}

	data, err := f.objects.Get(ctx, rec.ObjectPath)
	if err != nil {
		return nil, errors.NewStoreError(errors.CodeReadFailed, "failed to read transition payload", err)
	}

	var transition types.Transition
	if err := decodeRecord(data, rec.Checksum, &transition); err != nil {
		return nil, err
	}
	f.records.Put("t:"+hash, &transition)
	return transition.Clone(), nil
}

// TransitionExists checks whether a transition hash is known.
func (f *FileStore) TransitionExists(ctx context.Context, hash string) (ok bool, err error) {
	defer f.track("transition_exists", time.Now(), &err)

	if !f.transitionFilter.Contains(hash) {
		return false, nil
	}
	ok, err = f.manifest.transitionExists(ctx, hash)
	if err != nil {
		return false, errors.NewStoreError(errors.CodeReadFailed, "failed to check transition", err)
	}
	return ok, nil
}

// AllSnapshots lists snapshot metadata ordered by creation time.
func (f *FileStore) AllSnapshots(ctx context.Context) (records []SnapshotRecord, err error) {
	defer f.track("all_snapshots", time.Now(), &err)

	records, err = f.manifest.listSnapshots(ctx)
	if err != nil {
		return nil, errors.NewStoreError(errors.CodeReadFailed, "failed to list snapshots", err)
	}
	return records, nil
}

// AllTransitions lists transition metadata ordered by creation time.
func (f *FileStore) AllTransitions(ctx context.Context) (records []TransitionRecord, err error) {
	defer f.track("all_transitions", time.Now(), &err)

	records, err = f.manifest.listTransitions(ctx)
	if err != nil {
		return nil, errors.NewStoreError(errors.CodeReadFailed, "failed to list transitions", err)
	}
	return records, nil
}

// TransitionsFrom lists transitions whose source is the given hash.
func (f *FileStore) TransitionsFrom(ctx context.Context, fromHash string) (records []TransitionRecord, err error) {
	defer f.track("transitions_from", time.Now(), &err)

	records, err = f.manifest.transitionsFrom(ctx, fromHash)
	if err != nil {
		return nil, errors.NewStoreError(errors.CodeReadFailed, "failed to list transitions", err)
	}
	return records, nil
}

// TransitionsTo lists transitions whose target is the given hash.
func (f *FileStore) TransitionsTo(ctx context.Context, toHash string) (records []TransitionRecord, err error) {
	defer f.track("transitions_to", time.Now(), &err)

	records, err = f.manifest.transitionsTo(ctx, toHash)
	if err != nil {
		return nil, errors.NewStoreError(errors.CodeReadFailed, "failed to list transitions", err)
	}
	return records, nil
}

// State returns the current state of an environment.
func (f *FileStore) State(ctx context.Context, environment string) (state *types.EnvironmentState, err error) {
	defer f.track("state", time.Now(), &err)

	row, err := f.manifest.getState(ctx, environment)
	if err != nil {
		return nil, errors.NewStoreError(errors.CodeReadFailed, "failed to read environment state", err)
	}
	if row == nil {
		return &types.EnvironmentState{Environment: environment}, nil
	}
	return &types.EnvironmentState{
		Environment:     row.Environment,
		CurrentSnapshot: row.CurrentSnapshot,
		UpdatedAt:       time.Unix(row.UpdatedAt, 0).UTC(),
	}, nil
}

// UpdateState records that an environment now runs the given snapshot. The
// snapshot must already be saved.
func (f *FileStore) UpdateState(ctx context.Context, environment, snapshotHash string) (err error) {
	defer f.track("update_state", time.Now(), &err)

	if snapshotHash != "" {
		ok, err := f.SnapshotExists(ctx, snapshotHash)
		if err != nil {
			return err
		}
		if !ok {
			return snapshotNotFound(snapshotHash)
		}
	}

	if err := f.manifest.upsertState(ctx, environment, snapshotHash, time.Now().Unix()); err != nil {
		return errors.NewStoreError(errors.CodeWriteFailed, "failed to update environment state", err)
	}
	log.Printf("[store] environment %s now at %s", environment, types.ShortHash(snapshotHash))
	return nil
}

// AllStates lists every known environment state.
func (f *FileStore) AllStates(ctx context.Context) (states []types.EnvironmentState, err error) {
	defer f.track("all_states", time.Now(), &err)

	rows, err := f.manifest.allStates(ctx)
	if err != nil {
		return nil, errors.NewStoreError(errors.CodeReadFailed, "failed to list environment states", err)
	}
	states = make([]types.EnvironmentState, 0, len(rows))
	for _, row := range rows {
		states = append(states, types.EnvironmentState{
			Environment:     row.Environment,
			CurrentSnapshot: row.CurrentSnapshot,
			UpdatedAt:       time.Unix(row.UpdatedAt, 0).UTC(),
		})
	}
	return states, nil
}

// Stats returns per-operation counters and latencies.
func (f *FileStore) Stats() []observability.OpRecord {
	return f.stats.Snapshot()
}

// Close releases the manifest database connections.
func (f *FileStore) Close() error {
	return f.manifest.close()
}

func (f *FileStore) track(op string, start time.Time, err *error) {
	f.stats.Record(op, time.Since(start), *err)
}

func snapshotNotFound(hash string) error {
	return errors.NewStoreError(errors.CodeSnapshotNotFound,
		fmt.Sprintf("snapshot %s not found", types.ShortHash(hash)), nil)
}

func transitionNotFound(hash string) error {
	return errors.NewStoreError(errors.CodeTransitionNotFound,
		fmt.Sprintf("transition %s not found", types.ShortHash(hash)), nil)
}
