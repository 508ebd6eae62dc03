// Package safety classifies migration steps by operational risk and
// estimates the blast radius of a transition before anyone runs it.
package safety

import (
	"fmt"
	"sort"

	"github.com/stratumdb/stratum/pkg/types"
)

// Level is the risk classification of a step or a whole plan.
type Level int

const (
	// Safe steps only add schema elements; existing data and queries are
	// unaffected.
	Safe Level = iota

	// Review steps can break queries or reject writes but lose no data:
	// dropped indexes and constraints are rebuildable, column modifications
	// can be re-widened.
	Review

	// Dangerous steps destroy data. Dropped tables and columns cannot be
	// reconstructed from the schema alone.
	Dangerous
)

// String returns the level name used in plan output.
func (l Level) String() string {
	switch l {
	case Safe:
		return "SAFE"
	case Review:
		return "REVIEW"
	case Dangerous:
		return "DANGEROUS"
	default:
		return "UNKNOWN"
	}
}

// Assess classifies a single step.
func Assess(step types.MigrationStep) Level {
	switch step.Kind {
	case types.StepAddTable, types.StepAddColumn, types.StepAddIndex, types.StepAddForeignKey:
		return Safe
	case types.StepDropIndex, types.StepDropForeignKey, types.StepModifyColumn:
		return Review
	case types.StepDropTable, types.StepDropColumn:
		return Dangerous
	default:
		// Unknown step kinds are treated as the worst case.
		return Dangerous
	}
}

// Reason explains why a step contributes risk. Safe steps have no reason
// and return "".
func Reason(step types.MigrationStep) string {
	switch step.Kind {
	case types.StepDropTable:
		return fmt.Sprintf("drop_table %s destroys the table and all of its rows", step.Table)
	case types.StepDropColumn:
		return fmt.Sprintf("drop_column %s destroys the column's data and is irreversible", step.Target())
	case types.StepModifyColumn:
		return fmt.Sprintf("modify_column %s rewrites the column in place and may reject existing rows", step.Target())
	case types.StepDropIndex:
		return fmt.Sprintf("drop_index %s can slow dependent queries until rebuilt", step.Target())
	case types.StepDropForeignKey:
		return fmt.Sprintf("drop_foreign_key %s stops enforcing referential integrity", step.Target())
	default:
		return ""
	}
}

// Assessment pairs a risk level with one reason per risk-contributing step.
// A SAFE assessment has no reasons.
type Assessment struct {
	Level   Level    `json:"level"`
	Reasons []string `json:"reasons,omitempty"`
}

// AssessSteps classifies a step list as the maximum level of its steps and
// collects their reasons in step order. An empty list is Safe.
func AssessSteps(steps []types.MigrationStep) Assessment {
	a := Assessment{Level: Safe}
	for _, step := range steps {
		if l := Assess(step); l > a.Level {
			a.Level = l
		}
		if r := Reason(step); r != "" {
			a.Reasons = append(a.Reasons, r)
		}
	}
	return a
}

// AssessPath classifies a multi-transition plan as the maximum level across
// every step of every transition, with every reason collected.
func AssessPath(transitions []*types.Transition) Assessment {
	a := Assessment{Level: Safe}
	for _, t := range transitions {
		ta := AssessSteps(t.Steps)
		if ta.Level > a.Level {
			a.Level = ta.Level
		}
		a.Reasons = append(a.Reasons, ta.Reasons...)
	}
	return a
}

// TableStats supplies row counts per table for impact estimation. Counts
// come from the live database when available; absent tables estimate as
// zero rows.
type TableStats map[string]int64

// Impact describes what a transition touches.
type Impact struct {
	// Level is the aggregate risk classification.
	Level Level `json:"level"`

	// Tables lists every table any step touches, sorted.
	Tables []string `json:"tables"`

	// EstimatedRows sums the row counts of touched tables.
	EstimatedRows int64 `json:"estimated_rows"`

	// DestructiveSteps counts steps that destroy data.
	DestructiveSteps int `json:"destructive_steps"`

	// RequiresBackup is set when any step is Dangerous: the touched data
	// cannot be recovered from the schema graph after the fact.
	RequiresBackup bool `json:"requires_backup"`

	// LocksLikely is set when a step rewrites or scans a populated table,
	// which on most engines takes a lock long enough to notice.
	LocksLikely bool `json:"locks_likely"`

	// Downtime is a coarse outage estimate derived from how many rows the
	// rewrite-class steps touch: "none", "seconds", "minutes", or "hours".
	Downtime string `json:"downtime"`
}

// AnalyzeImpact estimates the blast radius of a step list against known
// table sizes.
func AnalyzeImpact(steps []types.MigrationStep, stats TableStats) Impact {
	impact := Impact{Level: AssessSteps(steps).Level}

	touched := make(map[string]bool)
	rewritten := make(map[string]bool)
	for _, step := range steps {
		touched[step.Table] = true
		if step.Destructive() {
			impact.DestructiveSteps++
		}

		switch step.Kind {
		case types.StepModifyColumn, types.StepAddIndex, types.StepDropTable, types.StepDropColumn:
			// These rewrite or scan every existing row.
			if stats[step.Table] > 0 {
				rewritten[step.Table] = true
			}
		}
	}

	impact.Tables = make([]string, 0, len(touched))
	for table := range touched {
		impact.Tables = append(impact.Tables, table)
	}
	sort.Strings(impact.Tables)

	for _, table := range impact.Tables {
		impact.EstimatedRows += stats[table]
	}

	var rewriteRows int64
	for table := range rewritten {
		rewriteRows += stats[table]
	}
	impact.LocksLikely = rewriteRows > 0
	impact.Downtime = downtimeBucket(rewriteRows)
	impact.RequiresBackup = impact.Level == Dangerous
	return impact
}

// downtimeBucket maps rewritten row counts to an advisory outage bucket.
// Additive metadata-only changes rewrite nothing and estimate "none".
func downtimeBucket(rows int64) string {
	switch {
	case rows == 0:
		return "none"
	case rows < 100_000:
		return "seconds"
	case rows < 10_000_000:
		return "minutes"
	default:
		return "hours"
	}
}

// Summary aggregates the assessment and impact of a whole plan.
type Summary struct {
	Level   Level    `json:"level"`
	Reasons []string `json:"reasons,omitempty"`
	Impact  Impact   `json:"impact"`
}

// Summarize assesses every transition of a plan and analyzes the combined
// impact of their steps.
func Summarize(transitions []*types.Transition, stats TableStats) Summary {
	a := AssessPath(transitions)
	var steps []types.MigrationStep
	for _, t := range transitions {
		steps = append(steps, t.Steps...)
	}
	return Summary{Level: a.Level, Reasons: a.Reasons, Impact: AnalyzeImpact(steps, stats)}
}
