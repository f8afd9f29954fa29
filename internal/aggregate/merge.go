// Package aggregate merges the raw per-phase outputs of a validation run
// into a single report.
package aggregate

import (
	"sort"
	"time"

	"github.com/metacurate/curation-engine/internal/types"
)

// timeLayout is the timestamp format the rule engine stamps on phase
// results. Values that do not parse are skipped.
const timeLayout = time.RFC3339

// MergePhases builds one aggregated report from an ordered list of
// per-phase results. Violations and summary rows are concatenated in input
// order without deduplication; the summary list is re-sorted. The time
// range spans the earliest parsable start and the latest parsable
// completion, defaulting to a one-second window ending now. Technique maps
// are unioned across phases, later phases winning on key collision.
func MergePhases(phases []types.PhaseResult, now time.Time) *types.Report {
	report := &types.Report{
		AssayTechniques:  map[string][]string{},
		SampleTechniques: map[string][]string{},
	}

	if len(phases) > 0 {
		report.ResourceID = phases[0].ResourceID
		if phases[0].ModifierEnabled {
			report.ModifierEnabled = true
			report.ModifierUpdates = append(report.ModifierUpdates, phases[0].ModifierUpdates...)
			sort.SliceStable(report.ModifierUpdates, func(i, j int) bool {
				a, b := report.ModifierUpdates[i], report.ModifierUpdates[j]
				if a.Source != b.Source {
					return a.Source < b.Source
				}
				return a.Action < b.Action
			})
		}
	}

	var start, completion time.Time
	for _, phase := range phases {
		if ts, err := time.Parse(timeLayout, phase.StartTime); err == nil {
			if start.IsZero() || ts.Before(start) {
				start = ts
			}
		}
		if ts, err := time.Parse(timeLayout, phase.CompletionTime); err == nil {
			if completion.IsZero() || ts.After(completion) {
				completion = ts
			}
		}

		report.Violations = append(report.Violations, phase.Violations...)
		report.Summary = append(report.Summary, phase.Summary...)

		for file, techniques := range phase.AssayTechniques {
			report.AssayTechniques[file] = techniques
		}
		for file, techniques := range phase.SampleTechniques {
			report.SampleTechniques[file] = techniques
		}
	}
	if start.IsZero() {
		start = now.Add(-time.Second)
	}
	if completion.IsZero() {
		completion = now
	}

	report.StartTime = start
	report.CompletionTime = completion
	report.DurationSeconds = completion.Sub(start).Seconds()

	sort.SliceStable(report.Summary, func(i, j int) bool {
		a, b := report.Summary[i], report.Summary[j]
		if a.SourceFile != b.SourceFile {
			return a.SourceFile < b.SourceFile
		}
		if a.Identifier != b.Identifier {
			return a.Identifier < b.Identifier
		}
		return a.SourceColumnHeader < b.SourceColumnHeader
	})

	return report
}
