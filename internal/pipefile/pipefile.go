// Package pipefile reads and writes the pipeline document format
// {name, nodes, edges} used for export and import.
package pipefile

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrFormat marks a document that is not a pipeline file.
var ErrFormat = errors.New("invalid pipeline file format")

// MaxSize bounds an import document.
const MaxSize = 16 << 20

//go:embed pipeline.schema.json
var schemaJSON string

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiled() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		if err := c.AddResource("pipeline.schema.json", strings.NewReader(schemaJSON)); err != nil {
			schemaErr = err
			return
		}
		schema, schemaErr = c.Compile("pipeline.schema.json")
	})
	return schema, schemaErr
}

// Parse decodes a pipeline document. nodes and edges must both be present
// as arrays; anything else is an ErrFormat. Edges without an id get one
// derived from their endpoints.
func Parse(data []byte) (core.PipelineFile, error) {
	var raw any
	if err := sonic.Unmarshal(data, &raw); err != nil {
		return core.PipelineFile{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	s, err := compiled()
	if err != nil {
		return core.PipelineFile{}, fmt.Errorf("failed to compile pipeline schema: %w", err)
	}
	if err := s.Validate(raw); err != nil {
		return core.PipelineFile{}, fmt.Errorf("%w: %s", ErrFormat, describe(err))
	}

	var f core.PipelineFile
	if err := sonic.Unmarshal(data, &f); err != nil {
		return core.PipelineFile{}, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if f.Nodes == nil {
		f.Nodes = []core.Node{}
	}
	if f.Edges == nil {
		f.Edges = []core.Edge{}
	}
	for i := range f.Nodes {
		if f.Nodes[i].Data == nil {
			f.Nodes[i].Data = map[string]any{}
		}
	}
	for i, e := range f.Edges {
		if e.ID == "" {
			f.Edges[i].ID = fmt.Sprintf("e-%s-%s-%d", e.Source, e.Target, i)
		}
	}
	if err := checkRefs(f); err != nil {
		return core.PipelineFile{}, err
	}
	f.Name = strings.TrimSpace(f.Name)
	return f, nil
}

// checkRefs rejects documents the canvas cannot hold: node and edge ids
// must be unique and every edge must join two nodes of the document.
func checkRefs(f core.PipelineFile) error {
	nodes := make(map[string]struct{}, len(f.Nodes))
	for _, n := range f.Nodes {
		if _, dup := nodes[n.ID]; dup {
			return fmt.Errorf("%w: duplicate node id %q", ErrFormat, n.ID)
		}
		nodes[n.ID] = struct{}{}
	}
	edges := make(map[string]struct{}, len(f.Edges))
	for _, e := range f.Edges {
		if _, dup := edges[e.ID]; dup {
			return fmt.Errorf("%w: duplicate edge id %q", ErrFormat, e.ID)
		}
		edges[e.ID] = struct{}{}
		for _, end := range []string{e.Source, e.Target} {
			if _, ok := nodes[end]; !ok {
				return fmt.Errorf("%w: edge %q references unknown node %q", ErrFormat, e.ID, end)
			}
		}
	}
	return nil
}

// Read decodes a pipeline document from r.
func Read(r io.Reader) (core.PipelineFile, error) {
	data, err := io.ReadAll(io.LimitReader(r, MaxSize+1))
	if err != nil {
		return core.PipelineFile{}, fmt.Errorf("failed to read pipeline file: %w", err)
	}
	if len(data) > MaxSize {
		return core.PipelineFile{}, fmt.Errorf("%w: larger than %d bytes", ErrFormat, MaxSize)
	}
	return Parse(data)
}

// Write encodes f as indented JSON.
func Write(w io.Writer, f core.PipelineFile) error {
	if f.Nodes == nil {
		f.Nodes = []core.Node{}
	}
	if f.Edges == nil {
		f.Edges = []core.Edge{}
	}
	data, err := sonic.ConfigStd.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode pipeline: %w", err)
	}
	data = append(data, '\n')
	_, err = io.Copy(w, bytes.NewReader(data))
	return err
}

// FromGraph builds the export document for a named graph.
func FromGraph(name string, g core.Graph) core.PipelineFile {
	c := g.Clone()
	return core.PipelineFile{Name: name, Nodes: c.Nodes, Edges: c.Edges}
}

// Graph returns the document's nodes and edges.
func Graph(f core.PipelineFile) core.Graph {
	return core.Graph{Nodes: f.Nodes, Edges: f.Edges}
}

var whitespace = regexp.MustCompile(`\s+`)

// FileName returns the download name for a pipeline: whitespace runs
// become underscores, with "pipeline" for an empty name.
func FileName(name string) string {
	base := whitespace.ReplaceAllString(strings.TrimSpace(name), "_")
	base = strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == '"' {
			return '_'
		}
		return r
	}, base)
	if base == "" {
		base = "pipeline"
	}
	return base + ".json"
}

func describe(err error) string {
	var ve *jsonschema.ValidationError
	if errors.As(err, &ve) {
		leaf := ve
		for len(leaf.Causes) > 0 {
			leaf = leaf.Causes[0]
		}
		loc := leaf.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		return fmt.Sprintf("%s: %s", loc, leaf.Message)
	}
	return err.Error()
}
