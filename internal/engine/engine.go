// Package engine ties the model builder, differ, store, path finder, and
// safety assessor together behind the operations the CLI exposes.
package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/stratumdb/stratum/internal/diff"
	"github.com/stratumdb/stratum/internal/errors"
	"github.com/stratumdb/stratum/internal/graph"
	"github.com/stratumdb/stratum/internal/model"
	"github.com/stratumdb/stratum/internal/safety"
	"github.com/stratumdb/stratum/internal/store"
	"github.com/stratumdb/stratum/pkg/types"
)

// Engine is the orchestration facade over the schema graph.
type Engine struct {
	store  store.Store
	finder *graph.Finder
}

// New creates an Engine over the given store.
func New(s store.Store) *Engine {
	return &Engine{store: s, finder: graph.NewFinder(s)}
}

// CreateSnapshot builds a model from entity definitions, persists it as a
// snapshot, and returns both. Re-creating an identical snapshot returns the
// same hash and is a no-op in the store.
func (e *Engine) CreateSnapshot(ctx context.Context, entities map[string]any, meta types.SnapshotMetadata) (*types.Snapshot, *types.Model, error) {
	m, err := model.EntitiesToModel(entities)
	if err != nil {
		return nil, nil, err
	}

	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	snapshot := &types.Snapshot{
		Hash:     m.Hash,
		Entities: entities,
		Metadata: meta,
	}
	if err := e.store.SaveSnapshot(ctx, snapshot); err != nil {
		return nil, nil, err
	}
	return snapshot, m, nil
}

// CreateTransition diffs two stored snapshots and persists the resulting
// step list as a transition edge. An empty fromHash produces the bootstrap
// transition that builds the schema from nothing.
func (e *Engine) CreateTransition(ctx context.Context, fromHash, toHash, description string) (*types.Transition, error) {
	fromModel, err := e.modelAt(ctx, fromHash)
	if err != nil {
		return nil, err
	}
	toModel, err := e.modelAt(ctx, toHash)
	if err != nil {
		return nil, err
	}

	d := diff.Compute(fromModel, toModel)
	steps := diff.ToSteps(d, fromModel)

	transition, err := types.NewTransition(fromHash, toHash, steps, types.TransitionMetadata{
		Description: description,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	if err := e.store.SaveTransition(ctx, transition); err != nil {
		return nil, err
	}
	return transition, nil
}

// Diff computes the structural difference between two stored snapshots
// without persisting anything.
func (e *Engine) Diff(ctx context.Context, fromHash, toHash string) (*diff.Diff, error) {
	fromModel, err := e.modelAt(ctx, fromHash)
	if err != nil {
		return nil, err
	}
	toModel, err := e.modelAt(ctx, toHash)
	if err != nil {
		return nil, err
	}
	return diff.Compute(fromModel, toModel), nil
}

// Plan is an ordered list of transitions moving an environment between
// snapshots, with its aggregate risk classification.
type Plan struct {
	Environment string              `json:"environment,omitempty"`
	From        string              `json:"from"`
	To          string              `json:"to"`
	Transitions []*types.Transition `json:"transitions"`
	Safety      safety.Level        `json:"-"`
	SafetyLabel string              `json:"safety"`

	// Reasons explains the classification, one line per risk-contributing
	// step across the whole plan.
	Reasons []string      `json:"reasons,omitempty"`
	Impact  safety.Impact `json:"impact"`

	// Regenerated lists the forward transition hashes whose steps could not
	// be mechanically reversed; their rollback edges were rebuilt from the
	// stored snapshot definitions instead. Empty for deploy plans.
	Regenerated []string `json:"regenerated,omitempty"`
}

// Steps flattens the plan into a single step list in application order.
func (p *Plan) Steps() []types.MigrationStep {
	var steps []types.MigrationStep
	for _, t := range p.Transitions {
		steps = append(steps, t.Steps...)
	}
	return steps
}

// PlanDeploy finds the shortest transition path from the environment's
// current snapshot to the target and assesses it. A target with no path
// from the current snapshot fails with LINEAGE_DIVERGED.
func (e *Engine) PlanDeploy(ctx context.Context, environment, targetHash string, stats safety.TableStats) (*Plan, error) {
	state, err := e.store.State(ctx, environment)
	if err != nil {
		return nil, err
	}

	if ok, err := e.store.SnapshotExists(ctx, targetHash); err != nil {
		return nil, err
	} else if !ok {
		return nil, errors.NewStoreError(errors.CodeSnapshotNotFound,
			fmt.Sprintf("snapshot %s not found", types.ShortHash(targetHash)), nil)
	}

	records, err := e.finder.FindPath(ctx, state.CurrentSnapshot, targetHash)
	if err != nil {
		return nil, err
	}
	if records == nil {
		return nil, errors.NewGraphError(errors.CodeLineageDiverged,
			fmt.Sprintf("no transition path from %s to %s",
				describeHash(state.CurrentSnapshot), types.ShortHash(targetHash)))
	}

	return e.assemblePlan(ctx, environment, state.CurrentSnapshot, targetHash, records, stats)
}

// PlanRollback finds the reverse path from the environment's current
// snapshot back to the target and inverts each transition. Transitions
// containing irreversible steps are regenerated from the stored snapshot
// definitions instead of mechanically inverted, so a rollback over a
// dropped column restores the column definition (not the data).
func (e *Engine) PlanRollback(ctx context.Context, environment, targetHash string, stats safety.TableStats) (*Plan, error) {
	state, err := e.store.State(ctx, environment)
	if err != nil {
		return nil, err
	}
	if state.CurrentSnapshot == "" {
		return nil, errors.NewGraphError(errors.CodeLineageDiverged,
			fmt.Sprintf("environment %s has no applied snapshot to roll back from", environment))
	}

	records, err := e.finder.FindReversePath(ctx, state.CurrentSnapshot, targetHash)
	if err != nil {
		return nil, err
	}
	if records == nil {
		return nil, errors.NewGraphError(errors.CodeLineageDiverged,
			fmt.Sprintf("no rollback path from %s to %s",
				types.ShortHash(state.CurrentSnapshot), describeHash(targetHash)))
	}

	transitions := make([]*types.Transition, 0, len(records))
	var regenerated []string
	for _, rec := range records {
		forward, err := e.store.LoadTransition(ctx, rec.Hash)
		if err != nil {
			return nil, err
		}

		inverse, wasRegenerated, err := e.invertTransition(ctx, forward)
		if err != nil {
			return nil, err
		}
		if wasRegenerated {
			regenerated = append(regenerated, forward.Hash)
		}
		transitions = append(transitions, inverse)
	}

	plan := &Plan{
		Environment: environment,
		From:        state.CurrentSnapshot,
		To:          targetHash,
		Transitions: transitions,
		Regenerated: regenerated,
	}
	e.assess(plan, stats)
	return plan, nil
}

// invertTransition produces the rollback edge for a forward transition.
// Mechanical step inversion is used when every step is reversible; anything
// else falls back to regenerating the steps from the snapshot definitions,
// reported through the second return so the plan can flag it.
func (e *Engine) invertTransition(ctx context.Context, forward *types.Transition) (*types.Transition, bool, error) {
	reversed, err := diff.ReverseSteps(forward)
	if err == nil {
		inverse, err := types.NewTransition(forward.ToHash, forward.FromHash, reversed, types.TransitionMetadata{
			Description: fmt.Sprintf("rollback of %s", types.ShortHash(forward.Hash)),
			CreatedAt:   time.Now().UTC(),
		})
		return inverse, false, err
	}
	if errors.GetCode(err) != errors.CodeIrreversibleStep {
		return nil, false, err
	}

	log.Printf("[engine] transition %s not mechanically reversible, regenerating from snapshots",
		types.ShortHash(forward.Hash))

	currentModel, err := e.modelAt(ctx, forward.ToHash)
	if err != nil {
		return nil, false, err
	}
	targetModel, err := e.modelAt(ctx, forward.FromHash)
	if err != nil {
		return nil, false, err
	}

	d := diff.Compute(currentModel, targetModel)
	steps := diff.ToSteps(d, currentModel)
	inverse, err := types.NewTransition(forward.ToHash, forward.FromHash, steps, types.TransitionMetadata{
		Description: fmt.Sprintf("regenerated rollback of %s", types.ShortHash(forward.Hash)),
		CreatedAt:   time.Now().UTC(),
	})
	return inverse, true, err
}

// MarkApplied records that an environment now runs the given snapshot. The
// caller confirms the SQL executed; the engine only tracks state.
func (e *Engine) MarkApplied(ctx context.Context, environment, snapshotHash string) error {
	return e.store.UpdateState(ctx, environment, snapshotHash)
}

// Verify replays a transition's steps against its source snapshot and
// checks the result hashes to the target. A mismatch means the stored
// records are inconsistent.
func (e *Engine) Verify(ctx context.Context, transitionHash string) error {
	t, err := e.store.LoadTransition(ctx, transitionHash)
	if err != nil {
		return err
	}

	fromModel, err := e.modelAt(ctx, t.FromHash)
	if err != nil {
		return err
	}
	result, err := diff.Apply(fromModel, t.Steps)
	if err != nil {
		return err
	}
	if result.Hash != t.ToHash {
		return errors.NewStoreError(errors.CodeCorruptionDetected,
			fmt.Sprintf("transition %s replays to %s, expected %s",
				types.ShortHash(t.Hash), types.ShortHash(result.Hash), types.ShortHash(t.ToHash)), nil)
	}
	return nil
}

// Drift diffs a live introspected model against a stored snapshot. An empty
// diff means the database matches the snapshot exactly.
func (e *Engine) Drift(ctx context.Context, snapshotHash string, live *types.Model) (*diff.Diff, error) {
	declared, err := e.modelAt(ctx, snapshotHash)
	if err != nil {
		return nil, err
	}
	return diff.Compute(declared, live), nil
}

// modelAt rebuilds the model a snapshot hash denotes. The empty hash is the
// empty model, the origin of every bootstrap transition.
func (e *Engine) modelAt(ctx context.Context, hash string) (*types.Model, error) {
	if hash == "" {
		m := &types.Model{Tables: map[string]types.Table{}}
		fingerprint, err := types.Fingerprint(m)
		if err != nil {
			return nil, errors.NewInternalError("failed to fingerprint empty model", err)
		}
		m.Hash = fingerprint
		return m, nil
	}

	snapshot, err := e.store.LoadSnapshot(ctx, hash)
	if err != nil {
		return nil, err
	}
	m, err := model.EntitiesToModel(snapshot.Entities)
	if err != nil {
		return nil, err
	}
	if m.Hash != hash {
		return nil, errors.NewStoreError(errors.CodeCorruptionDetected,
			fmt.Sprintf("snapshot %s rebuilds to %s; stored definitions do not match their hash",
				types.ShortHash(hash), types.ShortHash(m.Hash)), nil)
	}
	return m, nil
}

func (e *Engine) assemblePlan(ctx context.Context, environment, from, to string,
	records []store.TransitionRecord, stats safety.TableStats) (*Plan, error) {

	transitions := make([]*types.Transition, 0, len(records))
	for _, rec := range records {
		t, err := e.store.LoadTransition(ctx, rec.Hash)
		if err != nil {
			return nil, err
		}
		transitions = append(transitions, t)
	}

	plan := &Plan{
		Environment: environment,
		From:        from,
		To:          to,
		Transitions: transitions,
	}
	e.assess(plan, stats)
	return plan, nil
}

func (e *Engine) assess(plan *Plan, stats safety.TableStats) {
	summary := safety.Summarize(plan.Transitions, stats)
	plan.Safety = summary.Level
	plan.SafetyLabel = summary.Level.String()
	plan.Reasons = summary.Reasons
	plan.Impact = summary.Impact
}

func describeHash(hash string) string {
	if hash == "" {
		return "(empty)"
	}
	return types.ShortHash(hash)
}
