package types

import "fmt"

// StepKind identifies the kind of a migration step.
type StepKind string

const (
	StepAddTable       StepKind = "add_table"
	StepDropTable      StepKind = "drop_table"
	StepAddColumn      StepKind = "add_column"
	StepDropColumn     StepKind = "drop_column"
	StepModifyColumn   StepKind = "modify_column"
	StepAddIndex       StepKind = "add_index"
	StepDropIndex      StepKind = "drop_index"
	StepAddForeignKey  StepKind = "add_foreign_key"
	StepDropForeignKey StepKind = "drop_foreign_key"
)

// MigrationStep is one atomic schema change. Each step is self-contained:
// it carries enough payload to generate SQL without consulting the diff it
// came from. Exactly the payload fields for its kind are set.
type MigrationStep struct {
	// Kind is the step variant.
	Kind StepKind `json:"kind"`

	// Table is the affected table name. Always set.
	Table string `json:"table"`

	// TableDef is the full table definition for add_table, columns inline.
	// Indexes and foreign keys of a new table arrive as separate steps.
	TableDef *Table `json:"table_def,omitempty"`

	// Column is the column definition for add_column, and the post-change
	// definition for modify_column.
	Column *Column `json:"column,omitempty"`

	// PrevColumn is the pre-change definition for modify_column. Dialect
	// generators need the old type, and it is the retained pre-image for
	// callers that reverse a modification.
	PrevColumn *Column `json:"prev_column,omitempty"`

	// ColumnName is the dropped column for drop_column.
	ColumnName string `json:"column_name,omitempty"`

	// Index is the index definition for add_index.
	Index *Index `json:"index,omitempty"`

	// IndexName is the dropped index for drop_index.
	IndexName string `json:"index_name,omitempty"`

	// ForeignKey is the constraint definition for add_foreign_key.
	ForeignKey *ForeignKey `json:"foreign_key,omitempty"`

	// ForeignKeyName is the dropped constraint for drop_foreign_key.
	ForeignKeyName string `json:"foreign_key_name,omitempty"`
}

// Reversible reports whether a step of this kind can be mechanically
// reversed without any information beyond the step itself. Only additive
// steps qualify: reversing a drop needs the dropped definition, and a
// modify_column is treated as irreversible unless the caller supplies the
// pre-change definition explicitly.
func (s MigrationStep) Reversible() bool {
	switch s.Kind {
	case StepAddTable, StepAddColumn, StepAddIndex, StepAddForeignKey:
		return true
	default:
		return false
	}
}

// Destructive reports whether the step discards data that cannot be
// recovered by a schema operation: table and column drops.
func (s MigrationStep) Destructive() bool {
	return s.Kind == StepDropTable || s.Kind == StepDropColumn
}

// Additive reports whether the step only adds schema objects.
func (s MigrationStep) Additive() bool {
	switch s.Kind {
	case StepAddTable, StepAddColumn, StepAddIndex, StepAddForeignKey:
		return true
	default:
		return false
	}
}

// Target names the schema object the step acts on, for logs and reports.
func (s MigrationStep) Target() string {
	switch s.Kind {
	case StepAddTable, StepDropTable:
		return s.Table
	case StepAddColumn, StepModifyColumn:
		if s.Column != nil {
			return s.Table + "." + s.Column.Name
		}
	case StepDropColumn:
		return s.Table + "." + s.ColumnName
	case StepAddIndex:
		if s.Index != nil {
			return s.Table + "." + s.Index.Name
		}
	case StepDropIndex:
		return s.Table + "." + s.IndexName
	case StepAddForeignKey:
		if s.ForeignKey != nil {
			return s.Table + "." + s.ForeignKey.Name
		}
	case StepDropForeignKey:
		return s.Table + "." + s.ForeignKeyName
	}
	return s.Table
}

// String renders the step for logs and plan listings.
func (s MigrationStep) String() string {
	return fmt.Sprintf("%s %s", s.Kind, s.Target())
}

// Clone returns a deep copy of the step, including its payload pointers.
func (s MigrationStep) Clone() MigrationStep {
	out := s
	if s.TableDef != nil {
		t := s.TableDef.Clone()
		out.TableDef = &t
	}
	if s.Column != nil {
		c := s.Column.Clone()
		out.Column = &c
	}
	if s.PrevColumn != nil {
		c := s.PrevColumn.Clone()
		out.PrevColumn = &c
	}
	if s.Index != nil {
		i := s.Index.Clone()
		out.Index = &i
	}
	if s.ForeignKey != nil {
		f := s.ForeignKey.Clone()
		out.ForeignKey = &f
	}
	return out
}
