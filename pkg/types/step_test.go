package types

import "testing"

func TestMigrationStep_Reversible(t *testing.T) {
	cases := []struct {
		kind StepKind
		want bool
	}{
		{StepAddTable, true},
		{StepAddColumn, true},
		{StepAddIndex, true},
		{StepAddForeignKey, true},
		{StepDropTable, false},
		{StepDropColumn, false},
		{StepDropIndex, false},
		{StepDropForeignKey, false},
		{StepModifyColumn, false},
	}

	for _, tc := range cases {
		step := MigrationStep{Kind: tc.kind}
		if got := step.Reversible(); got != tc.want {
			t.Errorf("%s: Reversible() = %v, want %v", tc.kind, got, tc.want)
		}
	}
}

func TestMigrationStep_Destructive(t *testing.T) {
	destructive := map[StepKind]bool{
		StepDropTable:  true,
		StepDropColumn: true,
	}

	all := []StepKind{
		StepAddTable, StepDropTable, StepAddColumn, StepDropColumn,
		StepModifyColumn, StepAddIndex, StepDropIndex, StepAddForeignKey, StepDropForeignKey,
	}
	for _, kind := range all {
		step := MigrationStep{Kind: kind}
		if got := step.Destructive(); got != destructive[kind] {
			t.Errorf("%s: Destructive() = %v, want %v", kind, got, destructive[kind])
		}
	}
}

func TestMigrationStep_Target(t *testing.T) {
	cases := []struct {
		name string
		step MigrationStep
		want string
	}{
		{"add_column", MigrationStep{Kind: StepAddColumn, Table: "users", Column: &Column{Name: "email"}}, "users.email"},
		{"drop_column", MigrationStep{Kind: StepDropColumn, Table: "users", ColumnName: "email"}, "users.email"},
		{"drop_index", MigrationStep{Kind: StepDropIndex, Table: "users", IndexName: "ix_users_email"}, "users.ix_users_email"},
		{"add_table", MigrationStep{Kind: StepAddTable, Table: "users"}, "users"},
	}

	for _, tc := range cases {
		if got := tc.step.Target(); got != tc.want {
			t.Errorf("%s: Target() = %q, want %q", tc.name, got, tc.want)
		}
	}
}
