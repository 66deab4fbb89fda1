package core

// Unlimited marks a node type with no fan-in or fan-out limit.
const Unlimited = -1

// FieldSpec describes one configurable field of a node type.
type FieldSpec struct {
	Name     string   `json:"name" yaml:"name"`
	Type     string   `json:"type" yaml:"type"`
	Label    string   `json:"label" yaml:"label"`
	Required bool     `json:"required,omitempty" yaml:"required"`
	Options  []string `json:"options,omitempty" yaml:"options"`
	Default  any      `json:"default,omitempty" yaml:"default"`
}

// NodeType is the display metadata and field schema for a node type key.
type NodeType struct {
	Type        string      `json:"type" yaml:"type"`
	Label       string      `json:"label" yaml:"label"`
	Category    string      `json:"category" yaml:"category"`
	Color       string      `json:"color" yaml:"color"`
	Description string      `json:"description" yaml:"description"`
	Fields      []FieldSpec `json:"fields" yaml:"fields"`
	MaxInputs   int         `json:"max_inputs" yaml:"max_inputs"`
	MaxOutputs  int         `json:"max_outputs" yaml:"max_outputs"`
	// Secret names the env-map key a runner needs to execute this type.
	Secret string `json:"secret,omitempty" yaml:"secret"`
}

// Field returns the field spec with the given name.
func (t NodeType) Field(name string) (FieldSpec, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// TypeCatalog resolves node type keys to metadata.
type TypeCatalog interface {
	Lookup(nodeType string) (NodeType, bool)
}
