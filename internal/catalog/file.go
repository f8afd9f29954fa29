package catalog

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"github.com/metacurate/curation-engine/internal/types"
)

//go:embed rule_catalog.schema.json
var catalogSchema string

// File loads the rule catalog from a JSON file. The document is validated
// against the embedded schema on first use and cached for the process
// lifetime; the catalog only changes with releases of the rule engine.
type File struct {
	path string

	once sync.Once
	defs map[string]types.RuleDefinition
	err  error
}

// NewFile creates a file-backed catalog for the document at path.
func NewFile(path string) *File {
	return &File{path: path}
}

// GetDefinitions implements Catalog.
func (f *File) GetDefinitions(context.Context) (map[string]types.RuleDefinition, error) {
	f.once.Do(func() {
		f.defs, f.err = f.load()
	})
	return f.defs, f.err
}

func (f *File) load() (map[string]types.RuleDefinition, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule catalog %s: %w", f.path, err)
	}

	schemaLoader := gojsonschema.NewStringLoader(catalogSchema)
	documentLoader := gojsonschema.NewBytesLoader(data)
	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return nil, fmt.Errorf("failed to validate rule catalog %s: %w", f.path, err)
	}
	if !result.Valid() {
		messages := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			messages = append(messages, desc.String())
		}
		return nil, fmt.Errorf("rule catalog %s is invalid: %s", f.path, strings.Join(messages, "; "))
	}

	var defs map[string]types.RuleDefinition
	if err := json.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse rule catalog %s: %w", f.path, err)
	}
	return defs, nil
}
