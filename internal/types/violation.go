package types

import "time"

// ruleFamilyLen is the identifier prefix length that groups violations of
// related rules into one summary row.
const ruleFamilyLen = 14

// Violation represents a single validation message produced by the rule
// engine. The same shape is used for summary rows, which roll up a rule
// family into one entry.
type Violation struct {
	Identifier         string   `json:"identifier"`
	Title              string   `json:"title,omitempty"`
	Description        string   `json:"description,omitempty"`
	Section            string   `json:"section,omitempty"`
	Priority           string   `json:"priority,omitempty"`
	Type               Severity `json:"type"`
	Violation          string   `json:"violation,omitempty"`
	SourceFile         string   `json:"source_file,omitempty"`
	SourceColumnHeader string   `json:"source_column_header,omitempty"`
	SourceColumnIndex  string   `json:"source_column_index,omitempty"`
	HasMoreViolations  bool     `json:"has_more_violations,omitempty"`
	TotalViolations    int      `json:"total_violations,omitempty"`
	Overridden         bool     `json:"overridden"`
	OverrideComment    string   `json:"override_comment,omitempty"`
}

// RuleFamily returns the rule-family prefix of the violation identifier.
func (v Violation) RuleFamily() string {
	return RuleFamily(v.Identifier)
}

// RuleFamily returns the first 14 characters of a rule identifier, the
// prefix convention that groups related rules into one summary row.
func RuleFamily(identifier string) string {
	if len(identifier) <= ruleFamilyLen {
		return identifier
	}
	return identifier[:ruleFamilyLen]
}

// ModifierUpdate is one entry of the metadata modifier's update log.
type ModifierUpdate struct {
	Source string `json:"source"`
	Action string `json:"action"`
	Detail string `json:"detail,omitempty"`
}

// PhaseResult is the raw output of one executed validation phase, as
// returned by the job executor. Immutable after creation.
type PhaseResult struct {
	ResourceID       string              `json:"resource_id"`
	Phases           []string            `json:"phases"`
	Violations       []Violation         `json:"violations"`
	Summary          []Violation         `json:"summary"`
	StartTime        string              `json:"start_time,omitempty"`
	CompletionTime   string              `json:"completion_time,omitempty"`
	AssayTechniques  map[string][]string `json:"assay_techniques,omitempty"`
	SampleTechniques map[string][]string `json:"sample_techniques,omitempty"`
	ModifierEnabled  bool                `json:"modifier_enabled,omitempty"`
	ModifierUpdates  []ModifierUpdate    `json:"modifier_updates,omitempty"`
}

// Report is the aggregated result of one validation run: the merged
// violation and summary lists, the run's time range, the technique maps,
// the modifier update log, and after reconciliation the applied override
// list and the final aggregate status. Built by the aggregator, mutated in
// place by the reconciliation engine, then frozen and persisted.
type Report struct {
	TaskID           string              `json:"task_id"`
	ResourceID       string              `json:"resource_id"`
	Status           Severity            `json:"status"`
	Violations       []Violation         `json:"violations"`
	Summary          []Violation         `json:"summary"`
	StartTime        time.Time           `json:"start_time"`
	CompletionTime   time.Time           `json:"completion_time"`
	DurationSeconds  float64             `json:"duration_seconds"`
	AssayTechniques  map[string][]string `json:"assay_techniques,omitempty"`
	SampleTechniques map[string][]string `json:"sample_techniques,omitempty"`
	ModifierEnabled  bool                `json:"modifier_enabled"`
	ModifierUpdates  []ModifierUpdate    `json:"modifier_updates,omitempty"`
	Overrides        []Override          `json:"overrides,omitempty"`
}
