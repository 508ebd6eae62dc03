package diff

import (
	"fmt"

	"github.com/stratumdb/stratum/internal/errors"
	"github.com/stratumdb/stratum/pkg/types"
)

// ReverseSteps inverts a transition's steps for rollback: steps run in
// reverse order with each additive step flipped to its drop. A transition
// containing any step that is not mechanically reversible fails with an
// IRREVERSIBLE_STEP error whose details name every offending step; the
// caller must then regenerate an inverse transition from the original
// snapshot definitions instead of guessing a reconstruction.
func ReverseSteps(t *types.Transition) ([]types.MigrationStep, error) {
	var irreversible []string
	for _, step := range t.Steps {
		if !step.Reversible() {
			irreversible = append(irreversible, step.String())
		}
	}
	if len(irreversible) > 0 {
		return nil, errors.NewGraphError(errors.CodeIrreversibleStep,
			fmt.Sprintf("transition %s contains %d irreversible steps", types.ShortHash(t.Hash), len(irreversible))).
			WithDetails(map[string]interface{}{"steps": irreversible})
	}

	reversed := make([]types.MigrationStep, 0, len(t.Steps))
	for i := len(t.Steps) - 1; i >= 0; i-- {
		reversed = append(reversed, invertStep(t.Steps[i]))
	}
	return reversed, nil
}

func invertStep(step types.MigrationStep) types.MigrationStep {
	switch step.Kind {
	case types.StepAddTable:
		return types.MigrationStep{Kind: types.StepDropTable, Table: step.Table}
	case types.StepAddColumn:
		return types.MigrationStep{Kind: types.StepDropColumn, Table: step.Table, ColumnName: step.Column.Name}
	case types.StepAddIndex:
		return types.MigrationStep{Kind: types.StepDropIndex, Table: step.Table, IndexName: step.Index.Name}
	case types.StepAddForeignKey:
		return types.MigrationStep{Kind: types.StepDropForeignKey, Table: step.Table, ForeignKeyName: step.ForeignKey.Name}
	default:
		// Unreachable: ReverseSteps rejects irreversible steps first.
		return step
	}
}
