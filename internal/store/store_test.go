package store

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratumdb/stratum/internal/errors"
	"github.com/stratumdb/stratum/internal/storage"
	"github.com/stratumdb/stratum/pkg/types"
)

// fakeHash derives a deterministic, well-formed fingerprint from a label.
func fakeHash(label string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(label)))
}

func newTestStore(t *testing.T) (*FileStore, string) {
	t.Helper()
	dir := t.TempDir()
	objects, err := storage.NewLocalStorage(filepath.Join(dir, "objects"))
	require.NoError(t, err)

	fs, err := NewFileStore(filepath.Join(dir, "manifest.db"), objects)
	require.NoError(t, err)
	t.Cleanup(func() { fs.Close() })
	return fs, dir
}

func testSnapshot(label string) *types.Snapshot {
	return &types.Snapshot{
		Hash: fakeHash(label),
		Entities: map[string]any{
			"User": map[string]any{"id": "uuid!", "name": "string!"},
		},
		Metadata: types.SnapshotMetadata{
			CreatedAt:   time.Now().UTC().Truncate(time.Second),
			CreatedBy:   "tester",
			Description: label,
		},
	}
}

func testTransition(t *testing.T, fromLabel, toLabel string) *types.Transition {
	t.Helper()
	from := ""
	if fromLabel != "" {
		from = fakeHash(fromLabel)
	}
	steps := []types.MigrationStep{
		{Kind: types.StepAddColumn, Table: "users", Column: &types.Column{Name: "email", Type: "varchar", Nullable: true}},
	}
	tr, err := types.NewTransition(from, fakeHash(toLabel), steps, types.TransitionMetadata{
		Description: fromLabel + " to " + toLabel,
		CreatedAt:   time.Now().UTC().Truncate(time.Second),
	})
	require.NoError(t, err)
	return tr
}

func TestFileStore_SnapshotRoundTrip(t *testing.T) {
	fs, _ := newTestStore(t)
	ctx := context.Background()

	s := testSnapshot("v1")
	require.NoError(t, fs.SaveSnapshot(ctx, s))

	ok, err := fs.SnapshotExists(ctx, s.Hash)
	require.NoError(t, err)
	assert.True(t, ok)

	loaded, err := fs.LoadSnapshot(ctx, s.Hash)
	require.NoError(t, err)
	assert.Equal(t, s.Hash, loaded.Hash)
	assert.Equal(t, s.Metadata.Description, loaded.Metadata.Description)
	assert.Equal(t, s.Metadata.CreatedBy, loaded.Metadata.CreatedBy)
	require.Contains(t, loaded.Entities, "User")
}

func TestFileStore_LoadsAreIsolatedFromMutation(t *testing.T) {
	fs, _ := newTestStore(t)
	ctx := context.Background()

	s := testSnapshot("v1")
	require.NoError(t, fs.SaveSnapshot(ctx, s))

	// Mutate one load and make sure the next one is untouched, both on the
	// cold path and on the cache hit that follows it.
	first, err := fs.LoadSnapshot(ctx, s.Hash)
	require.NoError(t, err)
	first.Entities["User"].(map[string]any)["injected"] = "text"
	first.Metadata.Description = "tampered"

	second, err := fs.LoadSnapshot(ctx, s.Hash)
	require.NoError(t, err)
	assert.NotContains(t, second.Entities["User"], "injected")
	assert.Equal(t, s.Metadata.Description, second.Metadata.Description)

	tr := testTransition(t, "", "v1")
	require.NoError(t, fs.SaveTransition(ctx, tr))

	firstTr, err := fs.LoadTransition(ctx, tr.Hash)
	require.NoError(t, err)
	firstTr.Steps[0].Column.Name = "tampered"

	secondTr, err := fs.LoadTransition(ctx, tr.Hash)
	require.NoError(t, err)
	assert.Equal(t, "email", secondTr.Steps[0].Column.Name)
}

func TestFileStore_LoadUnknownSnapshot(t *testing.T) {
	fs, _ := newTestStore(t)

	_, err := fs.LoadSnapshot(context.Background(), fakeHash("never-saved"))
	require.Error(t, err)
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, errors.CodeSnapshotNotFound, errors.GetCode(err))
}

func TestFileStore_SaveSnapshotIdempotent(t *testing.T) {
	fs, _ := newTestStore(t)
	ctx := context.Background()

	s := testSnapshot("v1")
	require.NoError(t, fs.SaveSnapshot(ctx, s))
	require.NoError(t, fs.SaveSnapshot(ctx, s))

	records, err := fs.AllSnapshots(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestFileStore_RejectsMalformedHash(t *testing.T) {
	fs, _ := newTestStore(t)

	s := testSnapshot("v1")
	s.Hash = "abc123"
	err := fs.SaveSnapshot(context.Background(), s)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidEntity, errors.GetCode(err))
}

func TestFileStore_TransitionRoundTrip(t *testing.T) {
	fs, _ := newTestStore(t)
	ctx := context.Background()

	tr := testTransition(t, "v1", "v2")
	require.NoError(t, fs.SaveTransition(ctx, tr))

	ok, err := fs.TransitionExists(ctx, tr.Hash)
	require.NoError(t, err)
	assert.True(t, ok)

	loaded, err := fs.LoadTransition(ctx, tr.Hash)
	require.NoError(t, err)
	assert.Equal(t, tr.Hash, loaded.Hash)
	assert.Equal(t, tr.FromHash, loaded.FromHash)
	assert.Equal(t, tr.ToHash, loaded.ToHash)
	require.Len(t, loaded.Steps, 1)
	assert.Equal(t, types.StepAddColumn, loaded.Steps[0].Kind)

	_, err = fs.LoadTransition(ctx, fakeHash("missing"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeTransitionNotFound, errors.GetCode(err))
}

func TestFileStore_TransitionEdgeListing(t *testing.T) {
	fs, _ := newTestStore(t)
	ctx := context.Background()

	t12 := testTransition(t, "v1", "v2")
	t23 := testTransition(t, "v2", "v3")
	require.NoError(t, fs.SaveTransition(ctx, t12))
	require.NoError(t, fs.SaveTransition(ctx, t23))

	from, err := fs.TransitionsFrom(ctx, fakeHash("v2"))
	require.NoError(t, err)
	require.Len(t, from, 1)
	assert.Equal(t, t23.Hash, from[0].Hash)
	assert.Equal(t, 1, from[0].StepCount)

	to, err := fs.TransitionsTo(ctx, fakeHash("v2"))
	require.NoError(t, err)
	require.Len(t, to, 1)
	assert.Equal(t, t12.Hash, to[0].Hash)

	all, err := fs.AllTransitions(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestFileStore_EnvironmentState(t *testing.T) {
	fs, _ := newTestStore(t)
	ctx := context.Background()

	// Never-updated environments report an empty current snapshot.
	state, err := fs.State(ctx, "staging")
	require.NoError(t, err)
	assert.Equal(t, "staging", state.Environment)
	assert.Empty(t, state.CurrentSnapshot)

	// Pointing an environment at an unknown snapshot is rejected.
	err = fs.UpdateState(ctx, "staging", fakeHash("ghost"))
	require.Error(t, err)
	assert.Equal(t, errors.CodeSnapshotNotFound, errors.GetCode(err))

	s := testSnapshot("v1")
	require.NoError(t, fs.SaveSnapshot(ctx, s))
	require.NoError(t, fs.UpdateState(ctx, "staging", s.Hash))

	state, err = fs.State(ctx, "staging")
	require.NoError(t, err)
	assert.Equal(t, s.Hash, state.CurrentSnapshot)
	assert.False(t, state.UpdatedAt.IsZero())

	states, err := fs.AllStates(ctx)
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.Equal(t, "staging", states[0].Environment)
}

func TestFileStore_CorruptionDetected(t *testing.T) {
	fs, dir := newTestStore(t)
	ctx := context.Background()

	s := testSnapshot("v1")
	require.NoError(t, fs.SaveSnapshot(ctx, s))

	// Tamper with the payload behind the manifest's back. The stored
	// checksum no longer matches, so the next load must fail loudly.
	objectFile := filepath.Join(dir, "objects", "snapshots", s.Hash[:2], s.Hash+".json.sz")
	require.NoError(t, os.WriteFile(objectFile, []byte("garbage"), 0o644))

	_, err := fs.LoadSnapshot(ctx, s.Hash)
	require.Error(t, err)
	assert.Equal(t, errors.CodeCorruptionDetected, errors.GetCode(err))
}

func TestFileStore_ReopenWarmsExistence(t *testing.T) {
	dir := t.TempDir()
	objects, err := storage.NewLocalStorage(filepath.Join(dir, "objects"))
	require.NoError(t, err)

	fs, err := NewFileStore(filepath.Join(dir, "manifest.db"), objects)
	require.NoError(t, err)

	ctx := context.Background()
	s := testSnapshot("v1")
	tr := testTransition(t, "", "v1")
	require.NoError(t, fs.SaveSnapshot(ctx, s))
	require.NoError(t, fs.SaveTransition(ctx, tr))
	require.NoError(t, fs.Close())

	reopened, err := NewFileStore(filepath.Join(dir, "manifest.db"), objects)
	require.NoError(t, err)
	defer reopened.Close()

	ok, err := reopened.SnapshotExists(ctx, s.Hash)
	require.NoError(t, err)
	assert.True(t, ok)

	loaded, err := reopened.LoadTransition(ctx, tr.Hash)
	require.NoError(t, err)
	assert.Equal(t, tr.ToHash, loaded.ToHash)
}
