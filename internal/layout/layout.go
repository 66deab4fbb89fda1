// Package layout assigns canvas positions to pipeline nodes with a layered
// (Sugiyama-style) drawing: acyclic orientation, longest-path ranking,
// barycenter crossing reduction and fixed-spacing coordinates.
//
// The result depends only on node order, node sizes, connectivity and
// direction, so laying out an already laid out graph is a no-op.
package layout

import (
	"github.com/leapstack-labs/vectorflow/pkg/core"
)

// Options controls spacing and direction.
type Options struct {
	Direction     core.Direction
	RankSep       float64
	NodeSep       float64
	Margin        float64
	DefaultWidth  float64
	DefaultHeight float64
	// Sweeps is the number of alternating barycenter passes.
	Sweeps int
}

// DefaultOptions returns the standard spacing for a direction.
func DefaultOptions(dir core.Direction) Options {
	return Options{
		Direction:     dir,
		RankSep:       80,
		NodeSep:       50,
		Margin:        40,
		DefaultWidth:  300,
		DefaultHeight: 180,
		Sweeps:        8,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions(o.Direction)
	if !o.Direction.Valid() {
		o.Direction = core.DirectionLR
	}
	if o.RankSep <= 0 {
		o.RankSep = d.RankSep
	}
	if o.NodeSep <= 0 {
		o.NodeSep = d.NodeSep
	}
	if o.Margin < 0 {
		o.Margin = d.Margin
	}
	if o.DefaultWidth <= 0 {
		o.DefaultWidth = d.DefaultWidth
	}
	if o.DefaultHeight <= 0 {
		o.DefaultHeight = d.DefaultHeight
	}
	if o.Sweeps <= 0 {
		o.Sweeps = d.Sweeps
	}
	return o
}

// Apply returns copies of nodes with new positions. No other field changes.
func Apply(nodes []core.Node, edges []core.Edge, opts Options) []core.Node {
	pos := Positions(nodes, edges, opts)
	out := make([]core.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n.Clone()
		if p, ok := pos[n.ID]; ok {
			out[i].Position = p
		}
	}
	return out
}

// Positions computes the top-left position of every node, keyed by id.
func Positions(nodes []core.Node, edges []core.Edge, opts Options) map[string]core.Position {
	opts = opts.normalized()
	g := build(nodes, edges, opts)
	out := make(map[string]core.Position, g.n)
	if g.n == 0 {
		return out
	}

	ranks := g.rank()
	crossOffset := opts.Margin
	for _, comp := range g.components() {
		layers := g.order(comp, ranks, opts.Sweeps)
		span := g.place(layers, opts, crossOffset, out)
		crossOffset += span + opts.NodeSep
	}
	return out
}

// extents returns a node's size along the rank axis and across it.
func (g *graph) extents(v int, dir core.Direction) (main, cross float64) {
	if dir == core.DirectionTB {
		return g.h[v], g.w[v]
	}
	return g.w[v], g.h[v]
}

// place assigns coordinates to the real nodes of one component and returns
// the component's extent across the rank axis.
func (g *graph) place(layers [][]int, opts Options, crossOffset float64, out map[string]core.Position) float64 {
	layerMain := make([]float64, len(layers))
	layerCross := make([]float64, len(layers))
	var compCross float64
	for r, layer := range layers {
		for i, v := range layer {
			m, c := g.extents(v, opts.Direction)
			layerMain[r] = max(layerMain[r], m)
			layerCross[r] += c
			if i > 0 {
				layerCross[r] += opts.NodeSep
			}
		}
		compCross = max(compCross, layerCross[r])
	}

	mainStart := opts.Margin
	for r, layer := range layers {
		cursor := crossOffset + (compCross-layerCross[r])/2
		for _, v := range layer {
			m, c := g.extents(v, opts.Direction)
			centerMain := mainStart + layerMain[r]/2
			centerCross := cursor + c/2
			cursor += c + opts.NodeSep

			var p core.Position
			if opts.Direction == core.DirectionTB {
				p = core.Position{X: centerCross - c/2, Y: centerMain - m/2}
			} else {
				p = core.Position{X: centerMain - m/2, Y: centerCross - c/2}
			}
			out[g.ids[v]] = p
		}
		mainStart += layerMain[r] + opts.RankSep
	}
	return compCross
}
