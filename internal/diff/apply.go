package diff

import (
	"fmt"

	"github.com/stratumdb/stratum/internal/errors"
	"github.com/stratumdb/stratum/pkg/types"
)

// Apply replays migration steps against a model and returns the resulting
// model with a fresh fingerprint. The input is not mutated. Apply is the
// structural analogue of executing the generated SQL; it backs round-trip
// verification and rollback planning, and fails with a structural error if
// a step references a table, column, index, or constraint that is absent.
func Apply(m *types.Model, steps []types.MigrationStep) (*types.Model, error) {
	out := m.Clone()
	out.Hash = ""

	for _, step := range steps {
		if err := applyStep(out, step); err != nil {
			return nil, err
		}
	}

	hash, err := types.Fingerprint(out)
	if err != nil {
		return nil, errors.NewInternalError("failed to fingerprint applied model", err)
	}
	out.Hash = hash
	return out, nil
}

func applyStep(m *types.Model, step types.MigrationStep) error {
	switch step.Kind {
	case types.StepAddTable:
		if step.TableDef == nil {
			return invalidStep(step, "missing table definition")
		}
		if _, ok := m.Tables[step.Table]; ok {
			return invalidStep(step, "table already exists")
		}
		m.Tables[step.Table] = step.TableDef.Clone()
		return nil

	case types.StepDropTable:
		if _, ok := m.Tables[step.Table]; !ok {
			return invalidStep(step, "table does not exist")
		}
		delete(m.Tables, step.Table)
		return nil
	}

	table, ok := m.Tables[step.Table]
	if !ok {
		return invalidStep(step, "table does not exist")
	}

	switch step.Kind {
	case types.StepAddColumn:
		if step.Column == nil {
			return invalidStep(step, "missing column definition")
		}
		if _, ok := table.Columns[step.Column.Name]; ok {
			return invalidStep(step, "column already exists")
		}
		table.Columns[step.Column.Name] = step.Column.Clone()

	case types.StepDropColumn:
		if _, ok := table.Columns[step.ColumnName]; !ok {
			return invalidStep(step, "column does not exist")
		}
		delete(table.Columns, step.ColumnName)

	case types.StepModifyColumn:
		if step.Column == nil {
			return invalidStep(step, "missing column definition")
		}
		if _, ok := table.Columns[step.Column.Name]; !ok {
			return invalidStep(step, "column does not exist")
		}
		table.Columns[step.Column.Name] = step.Column.Clone()

	case types.StepAddIndex:
		if step.Index == nil {
			return invalidStep(step, "missing index definition")
		}
		if _, ok := table.IndexByName(step.Index.Name); ok {
			return invalidStep(step, "index already exists")
		}
		table.Indexes = append(table.Indexes, step.Index.Clone())

	case types.StepDropIndex:
		removed := false
		for i, ix := range table.Indexes {
			if ix.Name == step.IndexName {
				table.Indexes = append(table.Indexes[:i], table.Indexes[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			return invalidStep(step, "index does not exist")
		}

	case types.StepAddForeignKey:
		if step.ForeignKey == nil {
			return invalidStep(step, "missing foreign key definition")
		}
		if _, ok := table.ForeignKeyByName(step.ForeignKey.Name); ok {
			return invalidStep(step, "foreign key already exists")
		}
		if _, ok := m.Tables[step.ForeignKey.RefTable]; !ok {
			return invalidStep(step, fmt.Sprintf("referenced table %s does not exist", step.ForeignKey.RefTable))
		}
		table.ForeignKeys = append(table.ForeignKeys, step.ForeignKey.Clone())

	case types.StepDropForeignKey:
		removed := false
		for i, fk := range table.ForeignKeys {
			if fk.Name == step.ForeignKeyName {
				table.ForeignKeys = append(table.ForeignKeys[:i], table.ForeignKeys[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			return invalidStep(step, "foreign key does not exist")
		}

	default:
		return invalidStep(step, "unknown step kind")
	}

	m.Tables[step.Table] = table
	return nil
}

func invalidStep(step types.MigrationStep, reason string) error {
	return errors.NewValidationError(errors.CodeInvalidStep,
		fmt.Sprintf("cannot apply %s: %s", step, reason))
}
