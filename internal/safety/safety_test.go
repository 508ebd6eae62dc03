package safety

import (
	"strings"
	"testing"

	"github.com/stratumdb/stratum/pkg/types"
)

func TestAssess_PerKind(t *testing.T) {
	cases := []struct {
		kind types.StepKind
		want Level
	}{
		{types.StepAddTable, Safe},
		{types.StepAddColumn, Safe},
		{types.StepAddIndex, Safe},
		{types.StepAddForeignKey, Safe},
		{types.StepDropIndex, Review},
		{types.StepDropForeignKey, Review},
		{types.StepModifyColumn, Review},
		{types.StepDropTable, Dangerous},
		{types.StepDropColumn, Dangerous},
	}

	for _, tc := range cases {
		if got := Assess(types.MigrationStep{Kind: tc.kind}); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.kind, got, tc.want)
		}
	}
}

func TestAssessSteps_MaxWins(t *testing.T) {
	steps := []types.MigrationStep{
		{Kind: types.StepAddColumn},
		{Kind: types.StepDropIndex},
		{Kind: types.StepAddTable},
	}
	if got := AssessSteps(steps); got.Level != Review {
		t.Errorf("got %s, want REVIEW", got.Level)
	}

	steps = append(steps, types.MigrationStep{Kind: types.StepDropColumn})
	if got := AssessSteps(steps); got.Level != Dangerous {
		t.Errorf("got %s, want DANGEROUS", got.Level)
	}

	if got := AssessSteps(nil); got.Level != Safe || len(got.Reasons) != 0 {
		t.Errorf("empty step list should be SAFE with no reasons, got %+v", got)
	}
}

func TestAssessSteps_Reasons(t *testing.T) {
	steps := []types.MigrationStep{
		{Kind: types.StepAddColumn, Table: "users", Column: &types.Column{Name: "email"}},
		{Kind: types.StepDropColumn, Table: "users", ColumnName: "legacy_flag"},
		{Kind: types.StepDropIndex, Table: "posts", IndexName: "ix_posts_title"},
	}

	a := AssessSteps(steps)
	if a.Level != Dangerous {
		t.Fatalf("got %s, want DANGEROUS", a.Level)
	}
	// One reason per risk-contributing step, in step order; additive steps
	// contribute none.
	if len(a.Reasons) != 2 {
		t.Fatalf("expected 2 reasons, got %v", a.Reasons)
	}
	if !strings.Contains(a.Reasons[0], "users.legacy_flag") {
		t.Errorf("first reason should name the dropped column: %q", a.Reasons[0])
	}
	if !strings.Contains(a.Reasons[1], "posts.ix_posts_title") {
		t.Errorf("second reason should name the dropped index: %q", a.Reasons[1])
	}
}

func TestAssessPath(t *testing.T) {
	transitions := []*types.Transition{
		{Steps: []types.MigrationStep{{Kind: types.StepAddTable}}},
		{Steps: []types.MigrationStep{{Kind: types.StepModifyColumn, Table: "users", Column: &types.Column{Name: "age"}}}},
	}
	got := AssessPath(transitions)
	if got.Level != Review {
		t.Errorf("got %s, want REVIEW", got.Level)
	}
	if len(got.Reasons) != 1 || !strings.Contains(got.Reasons[0], "users.age") {
		t.Errorf("reasons wrong: %v", got.Reasons)
	}
}

func TestLevel_String(t *testing.T) {
	if Safe.String() != "SAFE" || Review.String() != "REVIEW" || Dangerous.String() != "DANGEROUS" {
		t.Errorf("level names wrong: %s %s %s", Safe, Review, Dangerous)
	}
}

func TestAnalyzeImpact(t *testing.T) {
	steps := []types.MigrationStep{
		{Kind: types.StepDropColumn, Table: "users", ColumnName: "legacy_flag"},
		{Kind: types.StepAddIndex, Table: "posts", Index: &types.Index{Name: "ix_posts_title", Columns: []string{"title"}}},
		{Kind: types.StepAddColumn, Table: "posts", Column: &types.Column{Name: "title", Type: "varchar"}},
	}
	stats := TableStats{"users": 1_000_000, "posts": 50_000}

	impact := AnalyzeImpact(steps, stats)

	if impact.Level != Dangerous {
		t.Errorf("level: got %s, want DANGEROUS", impact.Level)
	}
	if len(impact.Tables) != 2 || impact.Tables[0] != "posts" || impact.Tables[1] != "users" {
		t.Errorf("tables wrong: %v", impact.Tables)
	}
	if impact.EstimatedRows != 1_050_000 {
		t.Errorf("estimated rows: got %d", impact.EstimatedRows)
	}
	if impact.DestructiveSteps != 1 {
		t.Errorf("destructive steps: got %d", impact.DestructiveSteps)
	}
	if !impact.RequiresBackup {
		t.Errorf("dangerous plans require a backup")
	}
	if !impact.LocksLikely {
		t.Errorf("index build on a populated table should flag locks")
	}
	// Rewrite-class steps touch 1,050,000 rows: the drop_column rewrites
	// users, the index build scans posts.
	if impact.Downtime != "minutes" {
		t.Errorf("downtime: got %q, want minutes", impact.Downtime)
	}
}

func TestAnalyzeImpact_DowntimeBuckets(t *testing.T) {
	step := func(table string) []types.MigrationStep {
		return []types.MigrationStep{
			{Kind: types.StepModifyColumn, Table: table, Column: &types.Column{Name: "c", Type: "text"}},
		}
	}

	cases := []struct {
		rows int64
		want string
	}{
		{0, "none"},
		{500, "seconds"},
		{200_000, "minutes"},
		{50_000_000, "hours"},
	}
	for _, tc := range cases {
		impact := AnalyzeImpact(step("t"), TableStats{"t": tc.rows})
		if impact.Downtime != tc.want {
			t.Errorf("%d rows: got %q, want %q", tc.rows, impact.Downtime, tc.want)
		}
	}

	// Additive steps rewrite nothing regardless of table size.
	additive := []types.MigrationStep{
		{Kind: types.StepAddColumn, Table: "t", Column: &types.Column{Name: "c", Type: "text", Nullable: true}},
	}
	if impact := AnalyzeImpact(additive, TableStats{"t": 50_000_000}); impact.Downtime != "none" {
		t.Errorf("additive change: got %q, want none", impact.Downtime)
	}
}

func TestAnalyzeImpact_EmptyTables(t *testing.T) {
	steps := []types.MigrationStep{
		{Kind: types.StepModifyColumn, Table: "events", Column: &types.Column{Name: "kind", Type: "text"}},
	}

	impact := AnalyzeImpact(steps, TableStats{})
	if impact.LocksLikely {
		t.Errorf("rewriting an empty table should not flag locks")
	}
	if impact.EstimatedRows != 0 {
		t.Errorf("estimated rows: got %d", impact.EstimatedRows)
	}
	if impact.RequiresBackup {
		t.Errorf("review-level changes do not require a backup")
	}
	if impact.Downtime != "none" {
		t.Errorf("downtime: got %q, want none", impact.Downtime)
	}
}

func TestSummarize(t *testing.T) {
	transitions := []*types.Transition{
		{Steps: []types.MigrationStep{
			{Kind: types.StepDropColumn, Table: "users", ColumnName: "legacy_flag"},
		}},
		{Steps: []types.MigrationStep{
			{Kind: types.StepAddColumn, Table: "users", Column: &types.Column{Name: "email", Type: "varchar", Nullable: true}},
		}},
	}

	s := Summarize(transitions, TableStats{"users": 10})
	if s.Level != Dangerous {
		t.Errorf("level: got %s, want DANGEROUS", s.Level)
	}
	if len(s.Reasons) != 1 || !strings.Contains(s.Reasons[0], "users.legacy_flag") {
		t.Errorf("reasons wrong: %v", s.Reasons)
	}
	if !s.Impact.RequiresBackup || s.Impact.EstimatedRows != 10 {
		t.Errorf("impact wrong: %+v", s.Impact)
	}
}
