package validation

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed schemas/*.json
var schemaFS embed.FS

// Schema identifiers. The structural contract of each stage is versioned here,
// independently of the instruction text in the prompt file.
const (
	SchemaRouterV1   = "router/v1"
	SchemaPlannerV1  = "planner/v1"
	SchemaGeneralV1  = "general/v1"
	SchemaAnswererV1 = "answerer/v1"
)

// Registry holds compiled JSON schemas keyed by id.
type Registry struct {
	mu      sync.RWMutex
	schemas map[string]*gojsonschema.Schema
	raw     map[string]string
}

// NewRegistry compiles every embedded schema.
func NewRegistry() (*Registry, error) {
	entries, err := schemaFS.ReadDir("schemas")
	if err != nil {
		return nil, fmt.Errorf("failed to list schemas: %w", err)
	}

	r := &Registry{
		schemas: make(map[string]*gojsonschema.Schema, len(entries)),
		raw:     make(map[string]string, len(entries)),
	}
	for _, entry := range entries {
		data, err := schemaFS.ReadFile(path.Join("schemas", entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", entry.Name(), err)
		}
		if err := r.Register(fileToID(entry.Name()), string(data)); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// fileToID maps "router.v1.json" to "router/v1".
func fileToID(name string) string {
	base := strings.TrimSuffix(name, ".json")
	if i := strings.LastIndex(base, "."); i > 0 {
		return base[:i] + "/" + base[i+1:]
	}
	return base
}

// Register compiles and stores a schema document.
func (r *Registry) Register(id, document string) error {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(document))
	if err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", id, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemas[id] = schema
	r.raw[id] = document
	return nil
}

// Document returns the raw schema text, used to describe the expected shape
// to the completion backend.
func (r *Registry) Document(id string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.raw[id]
	return doc, ok
}

// IDs lists registered schema ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.schemas))
	for id := range r.schemas {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Validate checks a decoded JSON document. It returns the list of problems,
// empty when the document is valid. The error is reserved for unknown schemas
// and validator failures.
func (r *Registry) Validate(id string, document interface{}) ([]string, error) {
	r.mu.RLock()
	schema, ok := r.schemas[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown schema %q", id)
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(document))
	if err != nil {
		return nil, fmt.Errorf("schema validation error: %w", err)
	}
	if result.Valid() {
		return nil, nil
	}

	problems := make([]string, len(result.Errors()))
	for i, desc := range result.Errors() {
		problems[i] = desc.String()
	}
	return problems, nil
}
