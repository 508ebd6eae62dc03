package graph

import (
	"context"
	"testing"

	"github.com/stratumdb/stratum/internal/store"
)

// memorySource is an in-memory TransitionSource for exercising the search
// without a manifest database.
type memorySource struct {
	edges []store.TransitionRecord
}

func (m *memorySource) TransitionsFrom(_ context.Context, fromHash string) ([]store.TransitionRecord, error) {
	var out []store.TransitionRecord
	for _, e := range m.edges {
		if e.FromHash == fromHash {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memorySource) TransitionsTo(_ context.Context, toHash string) ([]store.TransitionRecord, error) {
	var out []store.TransitionRecord
	for _, e := range m.edges {
		if e.ToHash == toHash {
			out = append(out, e)
		}
	}
	return out, nil
}

func edge(hash, from, to string, createdAt int64) store.TransitionRecord {
	return store.TransitionRecord{Hash: hash, FromHash: from, ToHash: to, CreatedAt: createdAt}
}

func TestFindPath_Linear(t *testing.T) {
	source := &memorySource{edges: []store.TransitionRecord{
		edge("t1", "", "a", 1),
		edge("t2", "a", "b", 2),
		edge("t3", "b", "c", 3),
	}}
	finder := NewFinder(source)

	path, err := finder.FindPath(context.Background(), "", "c")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(path) != 3 {
		t.Fatalf("expected 3 transitions, got %d", len(path))
	}
	for i, want := range []string{"t1", "t2", "t3"} {
		if path[i].Hash != want {
			t.Errorf("position %d: got %s, want %s", i, path[i].Hash, want)
		}
	}
}

func TestFindPath_PrefersShortest(t *testing.T) {
	// a -> b -> c and a direct a -> c shortcut.
	source := &memorySource{edges: []store.TransitionRecord{
		edge("t1", "a", "b", 1),
		edge("t2", "b", "c", 2),
		edge("t3", "a", "c", 3),
	}}
	finder := NewFinder(source)

	path, err := finder.FindPath(context.Background(), "a", "c")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(path) != 1 || path[0].Hash != "t3" {
		t.Errorf("expected the direct edge, got %v", path)
	}
}

func TestFindPath_DeterministicTieBreak(t *testing.T) {
	// Two parallel edges between the same nodes; the older one wins, and
	// among equal timestamps the smaller hash wins.
	source := &memorySource{edges: []store.TransitionRecord{
		edge("t_newer", "a", "b", 5),
		edge("t_older", "a", "b", 1),
	}}
	finder := NewFinder(source)

	path, err := finder.FindPath(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(path) != 1 || path[0].Hash != "t_older" {
		t.Errorf("expected the older edge, got %v", path)
	}

	source = &memorySource{edges: []store.TransitionRecord{
		edge("t_bbb", "a", "b", 1),
		edge("t_aaa", "a", "b", 1),
	}}
	path, err = NewFinder(source).FindPath(context.Background(), "a", "b")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(path) != 1 || path[0].Hash != "t_aaa" {
		t.Errorf("expected the lexically smaller hash, got %v", path)
	}
}

func TestFindPath_SameNode(t *testing.T) {
	finder := NewFinder(&memorySource{})
	path, err := finder.FindPath(context.Background(), "a", "a")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if path == nil || len(path) != 0 {
		t.Errorf("expected an empty path, got %v", path)
	}
}

func TestFindPath_Unreachable(t *testing.T) {
	source := &memorySource{edges: []store.TransitionRecord{
		edge("t1", "a", "b", 1),
		edge("t2", "x", "y", 2),
	}}
	finder := NewFinder(source)

	path, err := finder.FindPath(context.Background(), "a", "y")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if path != nil {
		t.Errorf("diverged lineages must report a nil path, got %v", path)
	}
}

func TestFindPath_IgnoresCycles(t *testing.T) {
	source := &memorySource{edges: []store.TransitionRecord{
		edge("t1", "a", "b", 1),
		edge("t2", "b", "a", 2),
		edge("t3", "b", "c", 3),
	}}
	finder := NewFinder(source)

	path, err := finder.FindPath(context.Background(), "a", "c")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(path) != 2 || path[0].Hash != "t1" || path[1].Hash != "t3" {
		t.Errorf("cycle was not skipped: %v", path)
	}
}

func TestFindReversePath(t *testing.T) {
	source := &memorySource{edges: []store.TransitionRecord{
		edge("t1", "a", "b", 1),
		edge("t2", "b", "c", 2),
	}}
	finder := NewFinder(source)

	// Rolling back from c to a undoes t2 first, then t1.
	path, err := finder.FindReversePath(context.Background(), "c", "a")
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(path) != 2 {
		t.Fatalf("expected 2 transitions, got %d", len(path))
	}
	if path[0].Hash != "t2" || path[1].Hash != "t1" {
		t.Errorf("reverse order wrong: got %s, %s", path[0].Hash, path[1].Hash)
	}
}

func TestFindPath_CancelledContext(t *testing.T) {
	source := &memorySource{edges: []store.TransitionRecord{
		edge("t1", "a", "b", 1),
	}}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFinder(source).FindPath(ctx, "a", "b")
	if err == nil {
		t.Errorf("expected a context error")
	}
}
