package canvas

import (
	"strings"

	"github.com/leapstack-labs/vectorflow/pkg/core"
)

// Side selects the input or output handle list of a node.
type Side string

const (
	SideInput  Side = "input"
	SideOutput Side = "output"
)

func (s Side) dataKey() string {
	if s == SideOutput {
		return core.DataExtraOutputs
	}
	return core.DataExtraInputs
}

// NormalizeHandle turns a user-typed handle name into a lowercase token with
// runs of whitespace joined by underscores.
func NormalizeHandle(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), "_"))
}

// HandleLabel strips a "<node-id>-" prefix from a handle id, keeping the
// segment after the last dash.
func HandleLabel(handle string) string {
	if i := strings.LastIndex(handle, "-"); i > 0 {
		return handle[i+1:]
	}
	return handle
}

// EdgeLabel builds the display label for a connection between two handles.
func EdgeLabel(sourceHandle, targetHandle string) string {
	src, tgt := HandleLabel(sourceHandle), HandleLabel(targetHandle)
	switch {
	case src != "" && tgt != "":
		return src + " → " + tgt
	case src != "":
		return src
	default:
		return tgt
	}
}
