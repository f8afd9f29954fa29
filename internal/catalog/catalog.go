// Package catalog provides access to the validation rule catalog: the
// definitions (title, description, priority, section, default severity)
// keyed by rule id.
package catalog

import (
	"context"

	"github.com/metacurate/curation-engine/internal/types"
)

// Catalog resolves rule definitions. Lookup failures are recoverable:
// consumers fall back to denormalized or default values.
type Catalog interface {
	GetDefinitions(ctx context.Context) (map[string]types.RuleDefinition, error)
}

// Static is a fixed in-memory catalog, used in tests and as a fallback.
type Static map[string]types.RuleDefinition

// GetDefinitions implements Catalog.
func (s Static) GetDefinitions(context.Context) (map[string]types.RuleDefinition, error) {
	return s, nil
}
