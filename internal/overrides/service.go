// Package overrides manages the curator-maintained override records of a
// resource: creation, convergent updates and deletion, persisted as one
// document per resource.
package overrides

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/metacurate/curation-engine/internal/catalog"
	"github.com/metacurate/curation-engine/internal/store"
	"github.com/metacurate/curation-engine/internal/types"
)

// InputError rejects a malformed patch input before any mutation happens.
type InputError struct {
	Index int
	Cause error
}

func (e *InputError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid override input at index %d: %v", e.Index, e.Cause)
	}
	return fmt.Sprintf("invalid override input at index %d", e.Index)
}

func (e *InputError) Unwrap() error {
	return e.Cause
}

// Service applies override patches and deletions for a resource.
type Service struct {
	store    store.OverrideStore
	catalog  catalog.Catalog
	validate *validator.Validate
	log      *zap.SugaredLogger
	now      func() time.Time
}

// New creates an override service.
func New(s store.OverrideStore, cat catalog.Catalog, log *zap.SugaredLogger) *Service {
	return &Service{
		store:    s,
		catalog:  cat,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
}

// Patch applies the inputs to the resource's override list. Records matched
// by an input (by override id, or by the canonical matching contract over
// the input's rule id and source filters) all converge to the input's new
// state; an input matching nothing appends a freshly created record. The
// whole batch is validated before any mutation. The updated list is
// re-sorted and persisted, then returned.
func (s *Service) Patch(ctx context.Context, resourceID string, inputs []types.OverrideInput) ([]types.Override, error) {
	for i, input := range inputs {
		if err := s.validate.Struct(input); err != nil {
			return nil, &InputError{Index: i, Cause: err}
		}
		if !input.NewType.Valid() {
			return nil, &InputError{Index: i, Cause: fmt.Errorf("unknown severity %q", input.NewType)}
		}
	}

	overrides, err := s.store.Load(ctx, resourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load overrides for %s: %w", resourceID, err)
	}

	// Catalog failures only cost denormalized metadata on new records.
	defs, err := s.catalog.GetDefinitions(ctx)
	if err != nil {
		s.log.Warnw("failed to load rule catalog, creating overrides without denormalized fields",
			"resource_id", resourceID, "error", err)
		defs = nil
	}

	now := s.now()
	for _, input := range inputs {
		matchedAny := false
		for i := range overrides {
			if !matchesInput(overrides[i], input) {
				continue
			}
			matchedAny = true
			applyInput(&overrides[i], input, now)
		}
		if !matchedAny {
			if input.RuleID == "" {
				// An id-only input with no surviving record has nothing to
				// converge and nothing to create.
				s.log.Warnw("override patch matched nothing",
					"resource_id", resourceID, "override_id", input.OverrideID)
				continue
			}
			overrides = append(overrides, newOverride(input, defs, now))
		}
	}

	sortOverrides(overrides)
	if err := s.store.Save(ctx, resourceID, overrides); err != nil {
		return nil, fmt.Errorf("failed to save overrides for %s: %w", resourceID, err)
	}
	s.log.Infow("overrides patched", "resource_id", resourceID, "inputs", len(inputs), "total", len(overrides))
	return overrides, nil
}

// Delete removes the override with the given id. The returned bool reports
// whether a record was actually removed.
func (s *Service) Delete(ctx context.Context, resourceID, overrideID string) (bool, error) {
	overrides, err := s.store.Load(ctx, resourceID)
	if err != nil {
		return false, fmt.Errorf("failed to load overrides for %s: %w", resourceID, err)
	}

	kept := overrides[:0]
	removed := false
	for _, o := range overrides {
		if o.ID == overrideID {
			removed = true
			continue
		}
		kept = append(kept, o)
	}
	if !removed {
		return false, nil
	}

	sortOverrides(kept)
	if err := s.store.Save(ctx, resourceID, kept); err != nil {
		return false, fmt.Errorf("failed to save overrides for %s: %w", resourceID, err)
	}
	s.log.Infow("override deleted", "resource_id", resourceID, "override_id", overrideID)
	return true, nil
}

// matchesInput matches an existing record against a patch input: by id when
// the input names one, else by the canonical matching contract with the
// input's source filters standing in for the violation coordinates.
func matchesInput(o types.Override, input types.OverrideInput) bool {
	if input.OverrideID != "" {
		return o.ID == input.OverrideID
	}
	return o.Matches(input.RuleID, input.SourceFile, input.SourceColumnHeader, input.SourceColumnIndex)
}

// applyInput converges a matched record to the input's new state. Enabled
// and the new severity always follow the input; curator and comment only
// when supplied.
func applyInput(o *types.Override, input types.OverrideInput, now time.Time) {
	o.Enabled = input.Enabled
	o.NewType = input.NewType
	if input.Curator != "" {
		o.Curator = input.Curator
	}
	if input.Comment != "" {
		o.Comment = input.Comment
	}
	modified := now
	o.ModifiedAt = &modified
	if o.CreatedAt == nil {
		created := now
		o.CreatedAt = &created
	}
}

// newOverride creates the record for an input that matched nothing,
// denormalizing title, description and old severity from the rule catalog
// when the rule is known.
func newOverride(input types.OverrideInput, defs map[string]types.RuleDefinition, now time.Time) types.Override {
	created := now
	o := types.Override{
		ID:                 uuid.New().String(),
		RuleID:             input.RuleID,
		SourceFile:         input.SourceFile,
		SourceColumnHeader: input.SourceColumnHeader,
		SourceColumnIndex:  input.SourceColumnIndex,
		NewType:            input.NewType,
		Enabled:            input.Enabled,
		Curator:            input.Curator,
		Comment:            input.Comment,
		CreatedAt:          &created,
		ModifiedAt:         &created,
	}
	if def, ok := defs[input.RuleID]; ok {
		o.Title = def.Title
		o.Description = def.Description
		o.OldType = def.DefaultSeverity
	}
	return o
}

func sortOverrides(overrides []types.Override) {
	sort.SliceStable(overrides, func(i, j int) bool {
		a, b := overrides[i], overrides[j]
		if a.RuleID != b.RuleID {
			return a.RuleID < b.RuleID
		}
		if a.SourceFile != b.SourceFile {
			return a.SourceFile < b.SourceFile
		}
		return a.SourceColumnHeader < b.SourceColumnHeader
	})
}
