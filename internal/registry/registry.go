// Package registry provides the node-type catalog: display metadata and
// field schemas keyed by type string. The catalog is read-only to its
// consumers; it is replaced wholesale when an override file is reloaded.
package registry

import (
	_ "embed"
	"fmt"
	"os"
	"slices"
	"sort"
	"sync"

	"github.com/leapstack-labs/vectorflow/pkg/core"
	"gopkg.in/yaml.v3"
)

//go:embed builtin.yaml
var builtinYAML []byte

type catalogFile struct {
	Types []core.NodeType `yaml:"types"`
}

// Registry maps node type keys to their metadata.
type Registry struct {
	mu sync.RWMutex

	// byType maps a type key to its metadata: "llm" → NodeType
	byType map[string]core.NodeType

	// order keeps declaration order for listing
	order []string
}

// New creates a registry holding the built-in catalog.
func New() *Registry {
	r := &Registry{byType: make(map[string]core.NodeType)}
	types, err := parse(builtinYAML)
	if err != nil {
		panic(fmt.Sprintf("registry: invalid builtin catalog: %v", err))
	}
	r.replace(types)
	return r
}

// Load creates a registry from the built-in catalog overlaid with the file
// at path. An empty path returns the built-in catalog.
func Load(path string) (*Registry, error) {
	r := New()
	if path == "" {
		return r, nil
	}
	if err := r.Reload(path); err != nil {
		return nil, err
	}
	return r, nil
}

func parse(data []byte) ([]core.NodeType, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse node types: %w", err)
	}
	for i, t := range f.Types {
		if t.Type == "" {
			return nil, fmt.Errorf("node type #%d has no type key", i+1)
		}
		if t.Label == "" {
			f.Types[i].Label = t.Type
		}
	}
	return f.Types, nil
}

// Reload rebuilds the catalog from the built-ins plus the override file.
// On error the current catalog is kept.
func (r *Registry) Reload(path string) error {
	base, err := parse(builtinYAML)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read node types %s: %w", path, err)
	}
	extra, err := parse(data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	r.replace(append(base, extra...))
	return nil
}

// replace installs types; later entries win for duplicate keys.
func (r *Registry) replace(types []core.NodeType) {
	byType := make(map[string]core.NodeType, len(types))
	var order []string
	for _, t := range types {
		if _, seen := byType[t.Type]; !seen {
			order = append(order, t.Type)
		}
		byType[t.Type] = t
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.byType = byType
	r.order = order
}

// Lookup returns the metadata for a type key.
func (r *Registry) Lookup(nodeType string) (core.NodeType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byType[nodeType]
	return t, ok
}

// List returns every type in declaration order.
func (r *Registry) List() []core.NodeType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.NodeType, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.byType[key])
	}
	return out
}

// Categories returns the distinct categories, sorted.
func (r *Registry) Categories() []string {
	seen := make(map[string]bool)
	for _, t := range r.List() {
		seen[t.Category] = true
	}
	out := make([]string, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}

// Defaults returns initial node data built from the field defaults of a
// type. Unknown types get an empty map.
func (r *Registry) Defaults(nodeType string) map[string]any {
	data := map[string]any{}
	t, ok := r.Lookup(nodeType)
	if !ok {
		return data
	}
	for _, f := range t.Fields {
		if f.Default != nil {
			data[f.Name] = f.Default
		} else if len(f.Options) > 0 {
			data[f.Name] = f.Options[0]
		}
	}
	return data
}

// Secrets returns the distinct secret names required by the given types.
func (r *Registry) Secrets(types ...string) []string {
	var out []string
	for _, key := range types {
		if t, ok := r.Lookup(key); ok && t.Secret != "" && !slices.Contains(out, t.Secret) {
			out = append(out, t.Secret)
		}
	}
	sort.Strings(out)
	return out
}

// Count returns the number of registered types.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byType)
}
