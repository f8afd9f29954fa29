package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/metacurate/curation-engine/internal/types"
)

// Filesystem persists reports and override documents as JSON files under a
// data directory, one subdirectory per resource:
//
//	<root>/<resource_id>/report.<task_id>.json
//	<root>/<resource_id>/overrides.json
type Filesystem struct {
	root string
}

// NewFilesystem creates a filesystem store rooted at dir.
func NewFilesystem(dir string) *Filesystem {
	return &Filesystem{root: dir}
}

// Load implements ReportStore.
func (s *Filesystem) Load(_ context.Context, resourceID, taskID string) (*types.Report, error) {
	path, err := s.reportPath(resourceID, taskID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read report %s/%s: %w", resourceID, taskID, err)
	}

	var report types.Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to decode report %s/%s: %w", resourceID, taskID, err)
	}
	return &report, nil
}

// Save implements ReportStore.
func (s *Filesystem) Save(_ context.Context, resourceID, taskID string, report *types.Report) error {
	path, err := s.reportPath(resourceID, taskID)
	if err != nil {
		return err
	}
	if err := writeJSONAtomic(path, report); err != nil {
		return fmt.Errorf("failed to save report %s/%s: %w", resourceID, taskID, err)
	}
	return nil
}

// LoadOverrides reads the resource's override document, returning an empty
// list when none exists yet.
func (s *Filesystem) LoadOverrides(_ context.Context, resourceID string) ([]types.Override, error) {
	path, err := s.overridesPath(resourceID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []types.Override{}, nil
		}
		return nil, fmt.Errorf("failed to read overrides for %s: %w", resourceID, err)
	}

	var overrides []types.Override
	if err := json.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("failed to decode overrides for %s: %w", resourceID, err)
	}
	return overrides, nil
}

// SaveOverrides writes the resource's override document.
func (s *Filesystem) SaveOverrides(_ context.Context, resourceID string, overrides []types.Override) error {
	path, err := s.overridesPath(resourceID)
	if err != nil {
		return err
	}
	if err := writeJSONAtomic(path, overrides); err != nil {
		return fmt.Errorf("failed to save overrides for %s: %w", resourceID, err)
	}
	return nil
}

// Overrides returns the OverrideStore view of the filesystem backend.
func (s *Filesystem) Overrides() OverrideStore {
	return filesystemOverrides{s}
}

type filesystemOverrides struct{ s *Filesystem }

func (f filesystemOverrides) Load(ctx context.Context, resourceID string) ([]types.Override, error) {
	return f.s.LoadOverrides(ctx, resourceID)
}

func (f filesystemOverrides) Save(ctx context.Context, resourceID string, overrides []types.Override) error {
	return f.s.SaveOverrides(ctx, resourceID, overrides)
}

func (s *Filesystem) reportPath(resourceID, taskID string) (string, error) {
	if err := validatePathComponent(resourceID); err != nil {
		return "", err
	}
	if err := validatePathComponent(taskID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, resourceID, "report."+taskID+".json"), nil
}

func (s *Filesystem) overridesPath(resourceID string) (string, error) {
	if err := validatePathComponent(resourceID); err != nil {
		return "", err
	}
	return filepath.Join(s.root, resourceID, "overrides.json"), nil
}

// validatePathComponent rejects ids that would escape the data directory.
func validatePathComponent(id string) error {
	if id == "" {
		return fmt.Errorf("empty id")
	}
	if strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("invalid id %q", id)
	}
	return nil
}

// writeJSONAtomic writes via a temp file and rename so readers never see a
// partially written document.
func writeJSONAtomic(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
