// Package diff computes structural differences between two schema models
// and turns them into dependency-ordered migration steps. Everything here
// is pure: no I/O, no shared state, safe to call concurrently.
package diff

import (
	"sort"

	"github.com/stratumdb/stratum/pkg/types"
)

// Diff classifies the structural difference between two models, per table.
type Diff struct {
	// TablesAdded holds full definitions of tables present only in the target.
	TablesAdded []types.Table `json:"tables_added,omitempty"`

	// TablesRemoved names tables present only in the source.
	TablesRemoved []string `json:"tables_removed,omitempty"`

	// TablesChanged holds per-table deltas for tables present in both.
	TablesChanged []TableDiff `json:"tables_changed,omitempty"`
}

// TableDiff is the delta for one table present in both models.
type TableDiff struct {
	Name string `json:"name"`

	ColumnsAdded    []types.Column `json:"columns_added,omitempty"`
	ColumnsRemoved  []string       `json:"columns_removed,omitempty"`
	ColumnsModified []ColumnChange `json:"columns_modified,omitempty"`

	IndexesAdded   []types.Index `json:"indexes_added,omitempty"`
	IndexesRemoved []string      `json:"indexes_removed,omitempty"`

	ForeignKeysAdded   []types.ForeignKey `json:"foreign_keys_added,omitempty"`
	ForeignKeysRemoved []string           `json:"foreign_keys_removed,omitempty"`
}

// ColumnChange is the field-level delta of a modified column. The intent of
// a change is never inferred: a rename shows up as one remove plus one add,
// not as a ColumnChange.
type ColumnChange struct {
	Name string       `json:"name"`
	From types.Column `json:"from"`
	To   types.Column `json:"to"`

	TypeChanged     bool `json:"type_changed,omitempty"`
	NullableChanged bool `json:"nullable_changed,omitempty"`
	DefaultChanged  bool `json:"default_changed,omitempty"`
	PrimaryChanged  bool `json:"primary_changed,omitempty"`
}

// Narrowing reports whether the change tightens the column: a type change
// or a nullable-to-not-null transition, both of which can reject existing rows.
func (c ColumnChange) Narrowing() bool {
	if c.TypeChanged {
		return true
	}
	return c.NullableChanged && c.From.Nullable && !c.To.Nullable
}

// Empty reports whether the diff records no changes at all.
func (d *Diff) Empty() bool {
	if len(d.TablesAdded) != 0 || len(d.TablesRemoved) != 0 {
		return false
	}
	for _, td := range d.TablesChanged {
		if !td.Empty() {
			return false
		}
	}
	return true
}

// Empty reports whether the table delta records no changes.
func (t *TableDiff) Empty() bool {
	return len(t.ColumnsAdded) == 0 && len(t.ColumnsRemoved) == 0 &&
		len(t.ColumnsModified) == 0 && len(t.IndexesAdded) == 0 &&
		len(t.IndexesRemoved) == 0 && len(t.ForeignKeysAdded) == 0 &&
		len(t.ForeignKeysRemoved) == 0
}

// Compute diffs two models. The result is independent of map iteration
// order: every slice is sorted by name. Compute(m, m) is always empty.
func Compute(from, to *types.Model) *Diff {
	d := &Diff{}

	for _, name := range to.TableNames() {
		if _, ok := from.Tables[name]; !ok {
			d.TablesAdded = append(d.TablesAdded, to.Tables[name].Clone())
		}
	}
	for _, name := range from.TableNames() {
		toTable, ok := to.Tables[name]
		if !ok {
			d.TablesRemoved = append(d.TablesRemoved, name)
			continue
		}
		td := compareTables(from.Tables[name], toTable)
		if !td.Empty() {
			d.TablesChanged = append(d.TablesChanged, td)
		}
	}
	return d
}

func compareTables(from, to types.Table) TableDiff {
	td := TableDiff{Name: from.Name}

	for _, name := range to.ColumnNames() {
		if _, ok := from.Columns[name]; !ok {
			td.ColumnsAdded = append(td.ColumnsAdded, to.Columns[name].Clone())
		}
	}
	for _, name := range from.ColumnNames() {
		toCol, ok := to.Columns[name]
		if !ok {
			td.ColumnsRemoved = append(td.ColumnsRemoved, name)
			continue
		}
		fromCol := from.Columns[name]
		if !fromCol.Equal(toCol) {
			td.ColumnsModified = append(td.ColumnsModified, ColumnChange{
				Name:            name,
				From:            fromCol.Clone(),
				To:              toCol.Clone(),
				TypeChanged:     fromCol.Type != toCol.Type,
				NullableChanged: fromCol.Nullable != toCol.Nullable,
				DefaultChanged:  !defaultsEqual(fromCol.Default, toCol.Default),
				PrimaryChanged:  fromCol.Primary != toCol.Primary,
			})
		}
	}

	// Index and foreign key identity is by name. A changed definition under
	// the same name becomes a drop plus an add, never a modify.
	fromIdx := indexByName(from.Indexes)
	toIdx := indexByName(to.Indexes)
	for _, name := range sortedKeysIndex(toIdx) {
		fromIx, ok := fromIdx[name]
		if !ok {
			td.IndexesAdded = append(td.IndexesAdded, toIdx[name].Clone())
		} else if !fromIx.Equal(toIdx[name]) {
			td.IndexesRemoved = append(td.IndexesRemoved, name)
			td.IndexesAdded = append(td.IndexesAdded, toIdx[name].Clone())
		}
	}
	for _, name := range sortedKeysIndex(fromIdx) {
		if _, ok := toIdx[name]; !ok {
			td.IndexesRemoved = append(td.IndexesRemoved, name)
		}
	}
	sort.Strings(td.IndexesRemoved)

	fromFK := fkByName(from.ForeignKeys)
	toFK := fkByName(to.ForeignKeys)
	for _, name := range sortedKeysFK(toFK) {
		fromKey, ok := fromFK[name]
		if !ok {
			td.ForeignKeysAdded = append(td.ForeignKeysAdded, toFK[name].Clone())
		} else if !fromKey.Equal(toFK[name]) {
			td.ForeignKeysRemoved = append(td.ForeignKeysRemoved, name)
			td.ForeignKeysAdded = append(td.ForeignKeysAdded, toFK[name].Clone())
		}
	}
	for _, name := range sortedKeysFK(fromFK) {
		if _, ok := toFK[name]; !ok {
			td.ForeignKeysRemoved = append(td.ForeignKeysRemoved, name)
		}
	}
	sort.Strings(td.ForeignKeysRemoved)

	return td
}

func defaultsEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func indexByName(indexes []types.Index) map[string]types.Index {
	m := make(map[string]types.Index, len(indexes))
	for _, ix := range indexes {
		m[ix.Name] = ix
	}
	return m
}

func fkByName(fks []types.ForeignKey) map[string]types.ForeignKey {
	m := make(map[string]types.ForeignKey, len(fks))
	for _, fk := range fks {
		m[fk.Name] = fk
	}
	return m
}

func sortedKeysIndex(m map[string]types.Index) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysFK(m map[string]types.ForeignKey) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
