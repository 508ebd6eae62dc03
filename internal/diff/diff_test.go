package diff

import (
	"testing"

	"github.com/stratumdb/stratum/internal/errors"
	"github.com/stratumdb/stratum/pkg/types"
)

func strptr(s string) *string { return &s }

func baseModel() *types.Model {
	m := &types.Model{
		Tables: map[string]types.Table{
			"users": {
				Name: "users",
				Columns: map[string]types.Column{
					"id":    {Name: "id", Type: "uuid", Primary: true},
					"name":  {Name: "name", Type: "varchar"},
					"email": {Name: "email", Type: "varchar", Nullable: true},
				},
				Indexes: []types.Index{
					{Name: "ux_users_email", Columns: []string{"email"}, Unique: true},
				},
			},
			"posts": {
				Name: "posts",
				Columns: map[string]types.Column{
					"id":      {Name: "id", Type: "uuid", Primary: true},
					"user_id": {Name: "user_id", Type: "uuid"},
				},
				Indexes: []types.Index{
					{Name: "ix_posts_user_id", Columns: []string{"user_id"}},
				},
				ForeignKeys: []types.ForeignKey{
					{Name: "fk_posts_user_id", Columns: []string{"user_id"}, RefTable: "users", RefColumns: []string{"id"}},
				},
			},
		},
	}
	hash, err := types.Fingerprint(m)
	if err != nil {
		panic(err)
	}
	m.Hash = hash
	return m
}

func TestCompute_Identity(t *testing.T) {
	m := baseModel()
	d := Compute(m, m)
	if !d.Empty() {
		t.Errorf("diff of a model against itself should be empty: %+v", d)
	}
	if steps := ToSteps(d, m); len(steps) != 0 {
		t.Errorf("empty diff produced %d steps", len(steps))
	}
}

func TestCompute_TableAddedAndRemoved(t *testing.T) {
	from := baseModel()
	to := baseModel()
	delete(to.Tables, "posts")
	to.Tables["tags"] = types.Table{
		Name: "tags",
		Columns: map[string]types.Column{
			"id": {Name: "id", Type: "integer", Primary: true},
		},
	}

	d := Compute(from, to)
	if len(d.TablesAdded) != 1 || d.TablesAdded[0].Name != "tags" {
		t.Errorf("expected tags in TablesAdded, got %+v", d.TablesAdded)
	}
	if len(d.TablesRemoved) != 1 || d.TablesRemoved[0] != "posts" {
		t.Errorf("expected posts in TablesRemoved, got %v", d.TablesRemoved)
	}
	if len(d.TablesChanged) != 0 {
		t.Errorf("unexpected table changes: %+v", d.TablesChanged)
	}
}

func TestCompute_ColumnChanges(t *testing.T) {
	from := baseModel()
	to := baseModel()

	users := to.Tables["users"]
	users.Columns["created_at"] = types.Column{Name: "created_at", Type: "timestamp"}
	delete(users.Columns, "name")
	email := users.Columns["email"]
	email.Nullable = false
	email.Default = strptr("''")
	users.Columns["email"] = email
	to.Tables["users"] = users

	d := Compute(from, to)
	if len(d.TablesChanged) != 1 {
		t.Fatalf("expected one changed table, got %+v", d.TablesChanged)
	}
	td := d.TablesChanged[0]

	if len(td.ColumnsAdded) != 1 || td.ColumnsAdded[0].Name != "created_at" {
		t.Errorf("expected created_at added, got %+v", td.ColumnsAdded)
	}
	if len(td.ColumnsRemoved) != 1 || td.ColumnsRemoved[0] != "name" {
		t.Errorf("expected name removed, got %v", td.ColumnsRemoved)
	}
	if len(td.ColumnsModified) != 1 {
		t.Fatalf("expected one modified column, got %+v", td.ColumnsModified)
	}

	change := td.ColumnsModified[0]
	if change.Name != "email" {
		t.Errorf("modified column mismatch: %s", change.Name)
	}
	if change.TypeChanged || !change.NullableChanged || !change.DefaultChanged || change.PrimaryChanged {
		t.Errorf("change flags wrong: %+v", change)
	}
	if !change.Narrowing() {
		t.Errorf("nullable to not-null should be narrowing")
	}
}

func TestColumnChange_Narrowing(t *testing.T) {
	widening := ColumnChange{
		From:            types.Column{Nullable: false},
		To:              types.Column{Nullable: true},
		NullableChanged: true,
	}
	if widening.Narrowing() {
		t.Errorf("relaxing a not-null constraint is not narrowing")
	}

	retyped := ColumnChange{TypeChanged: true}
	if !retyped.Narrowing() {
		t.Errorf("any type change is narrowing")
	}
}

func TestCompute_IndexRedefinitionIsDropPlusAdd(t *testing.T) {
	from := baseModel()
	to := baseModel()

	users := to.Tables["users"]
	users.Indexes = []types.Index{
		{Name: "ux_users_email", Columns: []string{"email"}, Unique: false},
	}
	to.Tables["users"] = users

	d := Compute(from, to)
	if len(d.TablesChanged) != 1 {
		t.Fatalf("expected one changed table, got %+v", d.TablesChanged)
	}
	td := d.TablesChanged[0]
	if len(td.IndexesRemoved) != 1 || td.IndexesRemoved[0] != "ux_users_email" {
		t.Errorf("redefined index should be dropped, got %v", td.IndexesRemoved)
	}
	if len(td.IndexesAdded) != 1 || td.IndexesAdded[0].Unique {
		t.Errorf("redefined index should be re-added with the new shape, got %+v", td.IndexesAdded)
	}
}

func TestToSteps_PhaseOrdering(t *testing.T) {
	from := baseModel()
	to := baseModel()

	// Drop posts entirely and grow users; the posts drop must shed its
	// foreign key and index before the table goes.
	delete(to.Tables, "posts")
	users := to.Tables["users"]
	users.Columns["age"] = types.Column{Name: "age", Type: "integer", Nullable: true}
	to.Tables["users"] = users
	to.Tables["comments"] = types.Table{
		Name: "comments",
		Columns: map[string]types.Column{
			"id":      {Name: "id", Type: "uuid", Primary: true},
			"user_id": {Name: "user_id", Type: "uuid"},
		},
		Indexes: []types.Index{
			{Name: "ix_comments_user_id", Columns: []string{"user_id"}},
		},
		ForeignKeys: []types.ForeignKey{
			{Name: "fk_comments_user_id", Columns: []string{"user_id"}, RefTable: "users", RefColumns: []string{"id"}},
		},
	}

	steps := ToSteps(Compute(from, to), from)

	var kinds []types.StepKind
	for _, s := range steps {
		kinds = append(kinds, s.Kind)
	}
	want := []types.StepKind{
		types.StepDropForeignKey,
		types.StepDropIndex,
		types.StepDropTable,
		types.StepAddTable,
		types.StepAddColumn,
		types.StepAddIndex,
		types.StepAddForeignKey,
	}
	if len(kinds) != len(want) {
		t.Fatalf("step count mismatch: got %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("step %d: got %s, want %s (full order %v)", i, kinds[i], want[i], kinds)
		}
	}

	// The add_table payload must not carry indexes or foreign keys; those
	// arrive as separate steps in later phases.
	for _, s := range steps {
		if s.Kind == types.StepAddTable {
			if len(s.TableDef.Indexes) != 0 || len(s.TableDef.ForeignKeys) != 0 {
				t.Errorf("add_table payload should be columns only: %+v", s.TableDef)
			}
		}
	}
}

func TestToSteps_ApplyRoundTrip(t *testing.T) {
	from := baseModel()
	to := baseModel()

	delete(to.Tables, "posts")
	users := to.Tables["users"]
	name := users.Columns["name"]
	name.Type = "text"
	users.Columns["name"] = name
	users.Indexes = append(users.Indexes, types.Index{Name: "ix_users_name", Columns: []string{"name"}})
	to.Tables["users"] = users
	to.Tables["audit_log"] = types.Table{
		Name: "audit_log",
		Columns: map[string]types.Column{
			"id":      {Name: "id", Type: "bigint", Primary: true, Generated: true},
			"user_id": {Name: "user_id", Type: "uuid", Nullable: true},
		},
		ForeignKeys: []types.ForeignKey{
			{Name: "fk_audit_log_user_id", Columns: []string{"user_id"}, RefTable: "users", RefColumns: []string{"id"}},
		},
	}
	toHash, err := types.Fingerprint(to)
	if err != nil {
		t.Fatalf("failed to fingerprint target: %v", err)
	}

	steps := ToSteps(Compute(from, to), from)
	result, err := Apply(from, steps)
	if err != nil {
		t.Fatalf("failed to apply steps: %v", err)
	}
	if result.Hash != toHash {
		t.Errorf("replay did not converge: got %s, want %s", result.Hash, toHash)
	}
}

func TestApply_DoesNotMutateInput(t *testing.T) {
	m := baseModel()
	before := m.Hash

	_, err := Apply(m, []types.MigrationStep{
		{Kind: types.StepDropTable, Table: "posts"},
	})
	if err != nil {
		t.Fatalf("failed to apply: %v", err)
	}

	if _, ok := m.Tables["posts"]; !ok {
		t.Errorf("input model was mutated")
	}
	if m.Hash != before {
		t.Errorf("input hash was cleared")
	}
}

func TestApply_StructuralErrors(t *testing.T) {
	col := types.Column{Name: "id", Type: "uuid"}
	cases := []struct {
		name string
		step types.MigrationStep
	}{
		{"drop missing table", types.MigrationStep{Kind: types.StepDropTable, Table: "ghosts"}},
		{"add duplicate table", types.MigrationStep{Kind: types.StepAddTable, Table: "users", TableDef: &types.Table{Name: "users", Columns: map[string]types.Column{"id": col}}}},
		{"add duplicate column", types.MigrationStep{Kind: types.StepAddColumn, Table: "users", Column: &col}},
		{"drop missing column", types.MigrationStep{Kind: types.StepDropColumn, Table: "users", ColumnName: "ghost"}},
		{"modify missing column", types.MigrationStep{Kind: types.StepModifyColumn, Table: "users", Column: &types.Column{Name: "ghost", Type: "text"}}},
		{"drop missing index", types.MigrationStep{Kind: types.StepDropIndex, Table: "users", IndexName: "ix_ghost"}},
		{"drop missing foreign key", types.MigrationStep{Kind: types.StepDropForeignKey, Table: "users", ForeignKeyName: "fk_ghost"}},
		{"foreign key to missing table", types.MigrationStep{Kind: types.StepAddForeignKey, Table: "users", ForeignKey: &types.ForeignKey{Name: "fk_users_ghost", Columns: []string{"id"}, RefTable: "ghosts", RefColumns: []string{"id"}}}},
		{"add table without definition", types.MigrationStep{Kind: types.StepAddTable, Table: "empty"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Apply(baseModel(), []types.MigrationStep{tc.step})
			if err == nil {
				t.Fatalf("expected error, got none")
			}
			if got := errors.GetCode(err); got != errors.CodeInvalidStep {
				t.Errorf("error code mismatch: got %s, want %s", got, errors.CodeInvalidStep)
			}
		})
	}
}

func TestReverseSteps_InvertsAdditiveTransition(t *testing.T) {
	col := types.Column{Name: "email", Type: "varchar", Nullable: true}
	ix := types.Index{Name: "ix_users_email", Columns: []string{"email"}}
	steps := []types.MigrationStep{
		{Kind: types.StepAddColumn, Table: "users", Column: &col},
		{Kind: types.StepAddIndex, Table: "users", Index: &ix},
	}
	tr, err := types.NewTransition("aaa", "bbb", steps, types.TransitionMetadata{})
	if err != nil {
		t.Fatalf("failed to build transition: %v", err)
	}

	reversed, err := ReverseSteps(tr)
	if err != nil {
		t.Fatalf("failed to reverse: %v", err)
	}
	if len(reversed) != 2 {
		t.Fatalf("expected 2 reversed steps, got %d", len(reversed))
	}
	if reversed[0].Kind != types.StepDropIndex || reversed[0].IndexName != "ix_users_email" {
		t.Errorf("first reversed step should drop the index, got %s", reversed[0])
	}
	if reversed[1].Kind != types.StepDropColumn || reversed[1].ColumnName != "email" {
		t.Errorf("second reversed step should drop the column, got %s", reversed[1])
	}
}

func TestReverseSteps_RejectsIrreversible(t *testing.T) {
	steps := []types.MigrationStep{
		{Kind: types.StepAddColumn, Table: "users", Column: &types.Column{Name: "email", Type: "varchar"}},
		{Kind: types.StepDropColumn, Table: "users", ColumnName: "name"},
	}
	tr, err := types.NewTransition("aaa", "bbb", steps, types.TransitionMetadata{})
	if err != nil {
		t.Fatalf("failed to build transition: %v", err)
	}

	_, err = ReverseSteps(tr)
	if err == nil {
		t.Fatalf("expected irreversible error")
	}
	if got := errors.GetCode(err); got != errors.CodeIrreversibleStep {
		t.Errorf("error code mismatch: got %s, want %s", got, errors.CodeIrreversibleStep)
	}
}
