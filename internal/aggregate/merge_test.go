package aggregate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metacurate/curation-engine/internal/types"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestMergePhases_Empty(t *testing.T) {
	report := MergePhases(nil, now)

	assert.Empty(t, report.Violations)
	assert.Equal(t, now.Add(-time.Second), report.StartTime)
	assert.Equal(t, now, report.CompletionTime)
	assert.Equal(t, 1.0, report.DurationSeconds)
}

func TestMergePhases_TimeRangeSpansPhases(t *testing.T) {
	phases := []types.PhaseResult{
		{StartTime: "2026-03-14T10:30:00Z", CompletionTime: "2026-03-14T10:45:00Z"},
		{StartTime: "2026-03-14T10:00:00Z", CompletionTime: "2026-03-14T10:20:00Z"},
	}

	report := MergePhases(phases, now)

	assert.Equal(t, time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC), report.StartTime)
	assert.Equal(t, time.Date(2026, 3, 14, 10, 45, 0, 0, time.UTC), report.CompletionTime)
	assert.Equal(t, float64(45*60), report.DurationSeconds)
}

func TestMergePhases_UnparsableTimestampsAreSkipped(t *testing.T) {
	phases := []types.PhaseResult{
		{StartTime: "yesterday-ish", CompletionTime: ""},
		{StartTime: "2026-03-14T11:00:00Z", CompletionTime: "not a time"},
	}

	report := MergePhases(phases, now)

	assert.Equal(t, time.Date(2026, 3, 14, 11, 0, 0, 0, time.UTC), report.StartTime)
	// No completion time parsed anywhere: default to now.
	assert.Equal(t, now, report.CompletionTime)
}

func TestMergePhases_ConcatenatesWithoutDeduplication(t *testing.T) {
	dup := types.Violation{Identifier: "rule.100.001", SourceFile: "s_X.txt", Type: types.SeverityError}
	phases := []types.PhaseResult{
		{Violations: []types.Violation{dup}},
		{Violations: []types.Violation{dup}},
	}

	report := MergePhases(phases, now)

	assert.Len(t, report.Violations, 2)
}

func TestMergePhases_SummarySortedByFileIdentifierHeader(t *testing.T) {
	phases := []types.PhaseResult{
		{Summary: []types.Violation{
			{SourceFile: "b.txt", Identifier: "rule.200", Type: types.SeverityInfo},
			{SourceFile: "a.txt", Identifier: "rule.300", Type: types.SeverityInfo},
		}},
		{Summary: []types.Violation{
			{SourceFile: "a.txt", Identifier: "rule.100", SourceColumnHeader: "B", Type: types.SeverityInfo},
			{SourceFile: "a.txt", Identifier: "rule.100", SourceColumnHeader: "A", Type: types.SeverityInfo},
		}},
	}

	report := MergePhases(phases, now)

	got := make([][3]string, 0, len(report.Summary))
	for _, row := range report.Summary {
		got = append(got, [3]string{row.SourceFile, row.Identifier, row.SourceColumnHeader})
	}
	assert.Equal(t, [][3]string{
		{"a.txt", "rule.100", "A"},
		{"a.txt", "rule.100", "B"},
		{"a.txt", "rule.300", ""},
		{"b.txt", "rule.200", ""},
	}, got)
}

func TestMergePhases_ModifierLogFromFirstPhaseOnly(t *testing.T) {
	phases := []types.PhaseResult{
		{ModifierEnabled: true, ModifierUpdates: []types.ModifierUpdate{
			{Source: "s_X.txt", Action: "update"},
			{Source: "a_X.txt", Action: "add"},
			{Source: "a_X.txt", Action: "drop"},
		}},
		{ModifierEnabled: true, ModifierUpdates: []types.ModifierUpdate{
			{Source: "ignored.txt", Action: "add"},
		}},
	}

	report := MergePhases(phases, now)

	require.True(t, report.ModifierEnabled)
	assert.Equal(t, []types.ModifierUpdate{
		{Source: "a_X.txt", Action: "add"},
		{Source: "a_X.txt", Action: "drop"},
		{Source: "s_X.txt", Action: "update"},
	}, report.ModifierUpdates)
}

func TestMergePhases_ModifierDisabledOnFirstPhase(t *testing.T) {
	phases := []types.PhaseResult{
		{ModifierEnabled: false, ModifierUpdates: []types.ModifierUpdate{{Source: "x", Action: "y"}}},
		{ModifierEnabled: true, ModifierUpdates: []types.ModifierUpdate{{Source: "x", Action: "y"}}},
	}

	report := MergePhases(phases, now)

	assert.False(t, report.ModifierEnabled)
	assert.Empty(t, report.ModifierUpdates)
}

func TestMergePhases_TechniqueMapsUnionAcrossPhases(t *testing.T) {
	phases := []types.PhaseResult{
		{AssayTechniques: map[string][]string{"a_1.txt": {"NMR"}}},
		{AssayTechniques: map[string][]string{"a_2.txt": {"LC-MS"}},
			SampleTechniques: map[string][]string{"s_X.txt": {"LC-MS"}}},
	}

	report := MergePhases(phases, now)

	assert.Equal(t, map[string][]string{"a_1.txt": {"NMR"}, "a_2.txt": {"LC-MS"}}, report.AssayTechniques)
	assert.Equal(t, map[string][]string{"s_X.txt": {"LC-MS"}}, report.SampleTechniques)
}

func TestMergePhases_LaterPhaseWinsOnTechniqueKeyCollision(t *testing.T) {
	phases := []types.PhaseResult{
		{AssayTechniques: map[string][]string{"a_1.txt": {"NMR"}}},
		{AssayTechniques: map[string][]string{"a_1.txt": {"GC-MS"}}},
	}

	report := MergePhases(phases, now)

	assert.Equal(t, []string{"GC-MS"}, report.AssayTechniques["a_1.txt"])
}
