package types

import "time"

// Override is a curator-maintained record that rewrites the severity of
// matching violations. Title, description and old severity are denormalized
// from the rule catalog at creation time and never re-synced. Empty
// source-file/column fields match any value.
type Override struct {
	ID                 string     `json:"id"`
	RuleID             string     `json:"rule_id"`
	SourceFile         string     `json:"source_file,omitempty"`
	SourceColumnHeader string     `json:"source_column_header,omitempty"`
	SourceColumnIndex  string     `json:"source_column_index,omitempty"`
	Title              string     `json:"title,omitempty"`
	Description        string     `json:"description,omitempty"`
	OldType            Severity   `json:"old_type,omitempty"`
	NewType            Severity   `json:"new_type"`
	Enabled            bool       `json:"enabled"`
	Curator            string     `json:"curator,omitempty"`
	Comment            string     `json:"comment,omitempty"`
	CreatedAt          *time.Time `json:"created_at,omitempty"`
	ModifiedAt         *time.Time `json:"modified_at,omitempty"`
}

// Matches reports whether the override applies to a violation identified by
// the given rule id and source coordinates. The rule id is always checked;
// source file, column header and column index are checked only when the
// override specifies them. This is the single matching contract shared by
// reconciliation and override CRUD.
func (o Override) Matches(ruleID, sourceFile, columnHeader, columnIndex string) bool {
	if o.RuleID != ruleID {
		return false
	}
	if o.SourceFile != "" && o.SourceFile != sourceFile {
		return false
	}
	if o.SourceColumnHeader != "" && o.SourceColumnHeader != columnHeader {
		return false
	}
	if o.SourceColumnIndex != "" && o.SourceColumnIndex != columnIndex {
		return false
	}
	return true
}

// MatchesViolation applies the canonical matching contract to a violation.
func (o Override) MatchesViolation(v Violation) bool {
	return o.Matches(v.Identifier, v.SourceFile, v.SourceColumnHeader, v.SourceColumnIndex)
}

// OverrideInput is the patch request shape for override CRUD. Either
// OverrideID or RuleID identifies which records to touch; the remaining
// fields describe the desired new state.
type OverrideInput struct {
	OverrideID         string   `json:"override_id,omitempty" validate:"required_without=RuleID"`
	RuleID             string   `json:"rule_id,omitempty" validate:"required_without=OverrideID"`
	SourceFile         string   `json:"source_file,omitempty"`
	SourceColumnHeader string   `json:"source_column_header,omitempty"`
	SourceColumnIndex  string   `json:"source_column_index,omitempty"`
	NewType            Severity `json:"new_type" validate:"required"`
	Enabled            bool     `json:"enabled"`
	Curator            string   `json:"curator,omitempty"`
	Comment            string   `json:"comment,omitempty"`
}

// RuleDefinition is one entry of the rule catalog.
type RuleDefinition struct {
	Title           string   `json:"title"`
	Description     string   `json:"description,omitempty"`
	Priority        string   `json:"priority,omitempty"`
	Section         string   `json:"section,omitempty"`
	DefaultSeverity Severity `json:"default_severity,omitempty"`
}
