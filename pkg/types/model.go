// Package types defines the shared value types of the Stratum engine:
// the canonical schema model, migration steps, snapshots, and transitions.
package types

import "sort"

// Model is the canonical, hashable representation of a full schema at one
// point in time. It is immutable once built; Hash covers the entire structure.
type Model struct {
	// Tables maps table name to its definition. Key order is irrelevant;
	// the fingerprint canonicalizes before hashing.
	Tables map[string]Table `json:"tables"`

	// Hash is the lowercase hex SHA-256 fingerprint of the canonical form.
	Hash string `json:"hash"`
}

// Table defines a single table in the model.
type Table struct {
	// Name is the table name.
	Name string `json:"name"`

	// Columns maps column name to its definition.
	Columns map[string]Column `json:"columns"`

	// Indexes lists the indexes on the table.
	Indexes []Index `json:"indexes,omitempty"`

	// ForeignKeys lists the foreign key constraints on the table.
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty"`
}

// Column defines a single column.
type Column struct {
	// Name is the column name.
	Name string `json:"name"`

	// Type is the normalized SQL type name.
	Type string `json:"type"`

	// Nullable indicates whether the column can contain NULL values.
	// A primary key column is never nullable.
	Nullable bool `json:"nullable"`

	// Primary indicates whether this column is the primary key.
	Primary bool `json:"primary"`

	// Generated indicates an identity/auto-generated column.
	Generated bool `json:"generated"`

	// Default is the default literal or expression tag, nil when absent.
	Default *string `json:"default,omitempty"`
}

// Index defines an index on a table. Column order is semantic.
type Index struct {
	// Name is the index name.
	Name string `json:"name"`

	// Columns lists the indexed columns in order.
	Columns []string `json:"columns"`

	// Unique indicates whether the index enforces uniqueness.
	Unique bool `json:"unique"`
}

// ForeignKey defines a foreign key constraint. Column order is semantic and
// positional against RefColumns.
type ForeignKey struct {
	// Name is the constraint name.
	Name string `json:"name"`

	// Columns lists the source columns.
	Columns []string `json:"columns"`

	// RefTable is the referenced table.
	RefTable string `json:"ref_table"`

	// RefColumns lists the referenced columns.
	RefColumns []string `json:"ref_columns"`
}

// Clone returns a deep copy of the model.
func (m *Model) Clone() *Model {
	out := &Model{
		Tables: make(map[string]Table, len(m.Tables)),
		Hash:   m.Hash,
	}
	for name, t := range m.Tables {
		out.Tables[name] = t.Clone()
	}
	return out
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	out := Table{
		Name:    t.Name,
		Columns: make(map[string]Column, len(t.Columns)),
	}
	for name, c := range t.Columns {
		out.Columns[name] = c.Clone()
	}
	if len(t.Indexes) > 0 {
		out.Indexes = make([]Index, len(t.Indexes))
		for i, ix := range t.Indexes {
			out.Indexes[i] = ix.Clone()
		}
	}
	if len(t.ForeignKeys) > 0 {
		out.ForeignKeys = make([]ForeignKey, len(t.ForeignKeys))
		for i, fk := range t.ForeignKeys {
			out.ForeignKeys[i] = fk.Clone()
		}
	}
	return out
}

// Clone returns a copy of the column.
func (c Column) Clone() Column {
	out := c
	if c.Default != nil {
		v := *c.Default
		out.Default = &v
	}
	return out
}

// Clone returns a copy of the index.
func (i Index) Clone() Index {
	out := i
	out.Columns = append([]string(nil), i.Columns...)
	return out
}

// Clone returns a copy of the foreign key.
func (f ForeignKey) Clone() ForeignKey {
	out := f
	out.Columns = append([]string(nil), f.Columns...)
	out.RefColumns = append([]string(nil), f.RefColumns...)
	return out
}

// Equal reports whether two columns are structurally identical.
func (c Column) Equal(other Column) bool {
	if c.Name != other.Name || c.Type != other.Type ||
		c.Nullable != other.Nullable || c.Primary != other.Primary ||
		c.Generated != other.Generated {
		return false
	}
	return equalDefault(c.Default, other.Default)
}

// Equal reports whether two indexes are structurally identical.
func (i Index) Equal(other Index) bool {
	if i.Name != other.Name || i.Unique != other.Unique {
		return false
	}
	return equalStrings(i.Columns, other.Columns)
}

// Equal reports whether two foreign keys are structurally identical.
func (f ForeignKey) Equal(other ForeignKey) bool {
	if f.Name != other.Name || f.RefTable != other.RefTable {
		return false
	}
	return equalStrings(f.Columns, other.Columns) &&
		equalStrings(f.RefColumns, other.RefColumns)
}

// TableNames returns the model's table names sorted ascending.
func (m *Model) TableNames() []string {
	names := make([]string, 0, len(m.Tables))
	for name := range m.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ColumnNames returns the table's column names sorted ascending.
func (t Table) ColumnNames() []string {
	names := make([]string, 0, len(t.Columns))
	for name := range t.Columns {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IndexByName returns the index with the given name, if present.
func (t Table) IndexByName(name string) (Index, bool) {
	for _, ix := range t.Indexes {
		if ix.Name == name {
			return ix, true
		}
	}
	return Index{}, false
}

// ForeignKeyByName returns the foreign key with the given name, if present.
func (t Table) ForeignKeyByName(name string) (ForeignKey, bool) {
	for _, fk := range t.ForeignKeys {
		if fk.Name == name {
			return fk, true
		}
	}
	return ForeignKey{}, false
}

func equalDefault(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
