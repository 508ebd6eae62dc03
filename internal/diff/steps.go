package diff

import (
	"sort"

	"github.com/stratumdb/stratum/pkg/types"
)

// ToSteps turns a diff into a single total order of migration steps that an
// executor can apply sequentially without violating referential constraints:
//
//	drop_foreign_key -> drop_index -> drop_column -> drop_table ->
//	add_table -> add_column -> modify_column -> add_index -> add_foreign_key
//
// Removed tables contribute their own foreign key and index drops (taken
// from the source model) ahead of the table drop. Foreign keys of new tables
// come last, after every referenced table exists. Within a phase, steps sort
// by table then element name so the order is reproducible.
func ToSteps(d *Diff, from *types.Model) []types.MigrationStep {
	var phases [9][]types.MigrationStep

	appendSorted := func(phase int, steps []types.MigrationStep) {
		sort.Slice(steps, func(i, j int) bool {
			if steps[i].Table != steps[j].Table {
				return steps[i].Table < steps[j].Table
			}
			return steps[i].Target() < steps[j].Target()
		})
		phases[phase] = append(phases[phase], steps...)
	}

	// Drops on removed tables: constraints and indexes first, sourced from
	// the from-model since the diff only records the table name.
	var removedFKs, removedIdx, removedTables []types.MigrationStep
	for _, name := range d.TablesRemoved {
		if t, ok := from.Tables[name]; ok {
			for _, fk := range t.ForeignKeys {
				removedFKs = append(removedFKs, types.MigrationStep{
					Kind: types.StepDropForeignKey, Table: name, ForeignKeyName: fk.Name,
				})
			}
			for _, ix := range t.Indexes {
				removedIdx = append(removedIdx, types.MigrationStep{
					Kind: types.StepDropIndex, Table: name, IndexName: ix.Name,
				})
			}
		}
		removedTables = append(removedTables, types.MigrationStep{
			Kind: types.StepDropTable, Table: name,
		})
	}

	var changedFKDrops, changedIdxDrops, colDrops []types.MigrationStep
	var colAdds, colMods, idxAdds, fkAdds []types.MigrationStep
	for _, td := range d.TablesChanged {
		for _, name := range td.ForeignKeysRemoved {
			changedFKDrops = append(changedFKDrops, types.MigrationStep{
				Kind: types.StepDropForeignKey, Table: td.Name, ForeignKeyName: name,
			})
		}
		for _, name := range td.IndexesRemoved {
			changedIdxDrops = append(changedIdxDrops, types.MigrationStep{
				Kind: types.StepDropIndex, Table: td.Name, IndexName: name,
			})
		}
		for _, name := range td.ColumnsRemoved {
			colDrops = append(colDrops, types.MigrationStep{
				Kind: types.StepDropColumn, Table: td.Name, ColumnName: name,
			})
		}
		for _, col := range td.ColumnsAdded {
			c := col.Clone()
			colAdds = append(colAdds, types.MigrationStep{
				Kind: types.StepAddColumn, Table: td.Name, Column: &c,
			})
		}
		for _, change := range td.ColumnsModified {
			fromCol := change.From.Clone()
			toCol := change.To.Clone()
			colMods = append(colMods, types.MigrationStep{
				Kind: types.StepModifyColumn, Table: td.Name,
				Column: &toCol, PrevColumn: &fromCol,
			})
		}
		for _, ix := range td.IndexesAdded {
			i := ix.Clone()
			idxAdds = append(idxAdds, types.MigrationStep{
				Kind: types.StepAddIndex, Table: td.Name, Index: &i,
			})
		}
		for _, fk := range td.ForeignKeysAdded {
			f := fk.Clone()
			fkAdds = append(fkAdds, types.MigrationStep{
				Kind: types.StepAddForeignKey, Table: td.Name, ForeignKey: &f,
			})
		}
	}

	// New tables: the add_table payload carries columns inline; indexes and
	// foreign keys arrive as separate steps in their own phases.
	var tableAdds []types.MigrationStep
	for _, t := range d.TablesAdded {
		def := t.Clone()
		def.Indexes = nil
		def.ForeignKeys = nil
		tableAdds = append(tableAdds, types.MigrationStep{
			Kind: types.StepAddTable, Table: t.Name, TableDef: &def,
		})
		for _, ix := range t.Indexes {
			i := ix.Clone()
			idxAdds = append(idxAdds, types.MigrationStep{
				Kind: types.StepAddIndex, Table: t.Name, Index: &i,
			})
		}
		for _, fk := range t.ForeignKeys {
			f := fk.Clone()
			fkAdds = append(fkAdds, types.MigrationStep{
				Kind: types.StepAddForeignKey, Table: t.Name, ForeignKey: &f,
			})
		}
	}

	appendSorted(0, append(removedFKs, changedFKDrops...))
	appendSorted(1, append(removedIdx, changedIdxDrops...))
	appendSorted(2, colDrops)
	appendSorted(3, removedTables)
	appendSorted(4, tableAdds)
	appendSorted(5, colAdds)
	appendSorted(6, colMods)
	appendSorted(7, idxAdds)
	appendSorted(8, fkAdds)

	var steps []types.MigrationStep
	for _, phase := range phases {
		steps = append(steps, phase...)
	}
	return steps
}
