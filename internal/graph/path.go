// Package graph finds migration paths through the transition graph.
// Snapshots are nodes, transitions are directed edges, and a path is the
// ordered list of transitions an executor must apply to move an environment
// from one snapshot to another.
package graph

import (
	"context"
	"sort"

	"github.com/stratumdb/stratum/internal/store"
)

// TransitionSource supplies the edges of the graph. The store satisfies it.
type TransitionSource interface {
	TransitionsFrom(ctx context.Context, fromHash string) ([]store.TransitionRecord, error)
	TransitionsTo(ctx context.Context, toHash string) ([]store.TransitionRecord, error)
}

// Finder performs breadth-first searches over a TransitionSource.
type Finder struct {
	source TransitionSource
}

// NewFinder creates a Finder over the given transition source.
func NewFinder(source TransitionSource) *Finder {
	return &Finder{source: source}
}

// FindPath returns the shortest sequence of transitions leading from one
// snapshot hash to another, following edges forward. The empty hash is a
// valid origin: it is the state of an environment that has never been
// migrated. Results are deterministic: among equal-length paths the search
// expands edges by creation time, ties broken by transition hash.
//
// from == to yields an empty path. An unreachable target yields (nil, nil);
// the caller decides whether that is an error.
func (f *Finder) FindPath(ctx context.Context, from, to string) ([]store.TransitionRecord, error) {
	return f.search(ctx, from, to, f.source.TransitionsFrom, forward)
}

// FindReversePath returns the shortest sequence of transitions leading from
// one snapshot back to another when each transition is undone. The search
// walks incoming edges from the current snapshot; the result lists the
// transitions in the order they must be reversed.
func (f *Finder) FindReversePath(ctx context.Context, from, to string) ([]store.TransitionRecord, error) {
	return f.search(ctx, from, to, f.source.TransitionsTo, backward)
}

type direction int

const (
	forward direction = iota
	backward
)

// search is a textbook BFS with deterministic expansion order. Edge lists
// from the source arrive sorted by (created_at, hash) already; sorting again
// here keeps correctness independent of the source's ordering guarantees.
func (f *Finder) search(ctx context.Context, from, to string,
	edges func(context.Context, string) ([]store.TransitionRecord, error), dir direction) ([]store.TransitionRecord, error) {

	if from == to {
		return []store.TransitionRecord{}, nil
	}

	visited := map[string]bool{from: true}
	parents := make(map[string]parentLink)
	queue := []string{from}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		node := queue[0]
		queue = queue[1:]

		outgoing, err := edges(ctx, node)
		if err != nil {
			return nil, err
		}
		sort.Slice(outgoing, func(i, j int) bool {
			if outgoing[i].CreatedAt != outgoing[j].CreatedAt {
				return outgoing[i].CreatedAt < outgoing[j].CreatedAt
			}
			return outgoing[i].Hash < outgoing[j].Hash
		})

		for _, edge := range outgoing {
			next := edge.ToHash
			if dir == backward {
				next = edge.FromHash
			}
			if visited[next] {
				continue
			}
			visited[next] = true
			parents[next] = parentLink{prev: node, edge: edge}

			if next == to {
				return assemblePath(parents, from, to), nil
			}
			queue = append(queue, next)
		}
	}

	// No path exists; the two snapshots are on diverged lineages.
	return nil, nil
}

// parentLink records how BFS first reached a node.
type parentLink struct {
	prev string
	edge store.TransitionRecord
}

func assemblePath(parents map[string]parentLink, from, to string) []store.TransitionRecord {
	var path []store.TransitionRecord
	for node := to; node != from; {
		link := parents[node]
		path = append(path, link.edge)
		node = link.prev
	}
	// Walked tail to head; flip into application order.
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}
