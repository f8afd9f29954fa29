// Package reconcile applies curator overrides to a validation report,
// producing the final user-facing severities and aggregate status.
package reconcile

import (
	"sort"

	"github.com/metacurate/curation-engine/internal/types"
)

// fallbackPriority is used for synthesized entries when neither the rule
// catalog nor the override carries a priority.
const fallbackPriority = "HIGH"

// Reconcile mutates the report in place: it rewrites the severity of
// violations matched by enabled overrides, synthesizes entries for enabled
// overrides whose rule produced no violations, recomputes the aggregate
// status, flags summary rows whose rollup changed, and re-sorts the
// violation list. catalogDefs may be nil; synthesized entries then fall
// back to the override's denormalized fields.
//
// Reconcile is idempotent: running it again on an already reconciled
// report yields the same violations, status and overridden flags.
func Reconcile(report *types.Report, catalogDefs map[string]types.RuleDefinition) {
	if report == nil {
		return
	}

	byRule := enabledOverridesByRule(report.Overrides)

	seenRules := make(map[string]bool, len(report.Violations))
	for _, v := range report.Violations {
		seenRules[v.Identifier] = true
	}

	// Severities produced by override-affected violations, per rule family.
	affected := make(map[string]map[types.Severity]bool)
	record := func(family string, s types.Severity) {
		set, ok := affected[family]
		if !ok {
			set = make(map[types.Severity]bool)
			affected[family] = set
		}
		set[s] = true
	}

	for i := range report.Violations {
		v := &report.Violations[i]
		candidates := byRule[v.Identifier]
		if len(candidates) == 0 {
			continue
		}
		if !alreadyApplied(*v, candidates) {
			for _, o := range candidates {
				if !o.MatchesViolation(*v) {
					continue
				}
				v.Overridden = true
				v.OverrideComment = o.Comment
				v.Type = o.NewType
				break
			}
		}
		record(v.RuleFamily(), v.Type)
	}

	// Enabled overrides whose rule produced nothing still surface as
	// suppressed-rule entries so curators can see them in the report.
	for _, o := range report.Overrides {
		if !o.Enabled || seenRules[o.RuleID] {
			continue
		}
		v := synthesize(o, catalogDefs)
		report.Violations = append(report.Violations, v)
		record(v.RuleFamily(), v.Type)
	}

	report.Status = types.AggregateStatus(report.Violations)

	for i := range report.Summary {
		row := &report.Summary[i]
		set, ok := affected[types.RuleFamily(row.Identifier)]
		if !ok {
			continue
		}
		// The row keeps its original type; only the flag records that the
		// family's rollup no longer agrees with it.
		if types.RollupStatus(set) != row.Type {
			row.Overridden = true
		}
	}

	sort.SliceStable(report.Violations, func(i, j int) bool {
		a, b := report.Violations[i], report.Violations[j]
		if a.Identifier != b.Identifier {
			return a.Identifier < b.Identifier
		}
		if a.SourceFile != b.SourceFile {
			return a.SourceFile < b.SourceFile
		}
		return a.SourceColumnHeader < b.SourceColumnHeader
	})
}

// alreadyApplied reports whether the violation carries the exact outcome of
// one of the candidates, coordinate for coordinate. A synthesized entry
// satisfies this for the override it was built from; without the check a
// second reconciliation would hand such an entry to an earlier, broader
// candidate and rewrite its type and comment.
func alreadyApplied(v types.Violation, candidates []types.Override) bool {
	if !v.Overridden {
		return false
	}
	for _, o := range candidates {
		if o.SourceFile == v.SourceFile &&
			o.SourceColumnHeader == v.SourceColumnHeader &&
			o.SourceColumnIndex == v.SourceColumnIndex &&
			o.NewType == v.Type &&
			o.Comment == v.OverrideComment {
			return true
		}
	}
	return false
}

// enabledOverridesByRule indexes enabled overrides by rule id, preserving
// list order so the first matching candidate wins deterministically.
func enabledOverridesByRule(overrides []types.Override) map[string][]types.Override {
	byRule := make(map[string][]types.Override)
	for _, o := range overrides {
		if !o.Enabled {
			continue
		}
		byRule[o.RuleID] = append(byRule[o.RuleID], o)
	}
	return byRule
}

// synthesize builds the violation entry representing an override whose rule
// produced no violations in this run. Descriptive fields come from the rule
// catalog when the rule is resolvable, else from the override's denormalized
// copies captured at creation time.
func synthesize(o types.Override, catalogDefs map[string]types.RuleDefinition) types.Violation {
	v := types.Violation{
		Identifier:         o.RuleID,
		Title:              o.Title,
		Description:        o.Description,
		Priority:           fallbackPriority,
		Type:               o.NewType,
		SourceFile:         o.SourceFile,
		SourceColumnHeader: o.SourceColumnHeader,
		SourceColumnIndex:  o.SourceColumnIndex,
		Overridden:         true,
		OverrideComment:    o.Comment,
	}
	if def, ok := catalogDefs[o.RuleID]; ok {
		if def.Title != "" {
			v.Title = def.Title
		}
		if def.Description != "" {
			v.Description = def.Description
		}
		if def.Priority != "" {
			v.Priority = def.Priority
		}
		v.Section = def.Section
	}
	return v
}
