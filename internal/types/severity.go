// Package types provides type definitions for structured data used throughout the curation engine.
//
//nolint:revive // types is a standard Go package name pattern
package types

// Severity classifies a validation message by ascending urgency.
type Severity string

// Severity values, ordered by ascending urgency.
const (
	SeveritySuccess Severity = "SUCCESS"
	SeverityInfo    Severity = "INFO"
	SeverityWarning Severity = "WARNING"
	SeverityError   Severity = "ERROR"
)

// severityWeights orders severities; a higher weight is more urgent.
var severityWeights = map[Severity]int{
	SeveritySuccess: 10,
	SeverityInfo:    20,
	SeverityWarning: 30,
	SeverityError:   40,
}

// Weight returns the ordering weight of the severity. Unknown severities
// weigh 0, below SUCCESS.
func (s Severity) Weight() int {
	return severityWeights[s]
}

// Valid reports whether s is one of the four known severities.
func (s Severity) Valid() bool {
	_, ok := severityWeights[s]
	return ok
}

// AggregateStatus reduces a violation set to a single status: the most
// urgent severity present, or SUCCESS for an empty set.
func AggregateStatus(violations []Violation) Severity {
	status := SeveritySuccess
	for _, v := range violations {
		if v.Type.Weight() > status.Weight() {
			status = v.Type
		}
	}
	return status
}

// RollupStatus reduces the set of severities produced by override-affected
// violations of one rule family. INFO is deliberately not distinguished
// here: a family whose worst remaining severity is INFO rolls up to SUCCESS.
func RollupStatus(present map[Severity]bool) Severity {
	if present[SeverityError] {
		return SeverityError
	}
	if present[SeverityWarning] {
		return SeverityWarning
	}
	return SeveritySuccess
}
