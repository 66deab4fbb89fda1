package layout

import (
	"fmt"
	"testing"

	"github.com/leapstack-labs/vectorflow/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nodes(ids ...string) []core.Node {
	out := make([]core.Node, len(ids))
	for i, id := range ids {
		out[i] = core.Node{ID: id, Type: "text", Data: map[string]any{"k": id}}
	}
	return out
}

func edges(pairs ...string) []core.Edge {
	out := make([]core.Edge, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, core.Edge{ID: fmt.Sprintf("e%d", i), Source: pairs[i], Target: pairs[i+1]})
	}
	return out
}

func TestChainPositions(t *testing.T) {
	tests := []struct {
		name string
		dir  core.Direction
		want map[string]core.Position
	}{
		{
			name: "left to right",
			dir:  core.DirectionLR,
			want: map[string]core.Position{
				"A": {X: 40, Y: 40},
				"B": {X: 420, Y: 40},
				"C": {X: 800, Y: 40},
			},
		},
		{
			name: "top to bottom",
			dir:  core.DirectionTB,
			want: map[string]core.Position{
				"A": {X: 40, Y: 40},
				"B": {X: 40, Y: 300},
				"C": {X: 40, Y: 560},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Positions(nodes("A", "B", "C"), edges("A", "B", "B", "C"), DefaultOptions(tt.dir))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFanOutCentersParent(t *testing.T) {
	got := Positions(nodes("A", "B", "C"), edges("A", "B", "A", "C"), DefaultOptions(core.DirectionLR))
	assert.Equal(t, core.Position{X: 40, Y: 155}, got["A"])
	assert.Equal(t, core.Position{X: 420, Y: 40}, got["B"])
	assert.Equal(t, core.Position{X: 420, Y: 270}, got["C"])
}

func TestDisconnectedComponentsDoNotCollide(t *testing.T) {
	got := Positions(nodes("A", "B"), nil, DefaultOptions(core.DirectionLR))
	assert.Equal(t, core.Position{X: 40, Y: 40}, got["A"])
	assert.Equal(t, core.Position{X: 40, Y: 270}, got["B"])
}

func TestCyclesTerminate(t *testing.T) {
	ns := nodes("A", "B", "C", "D")
	es := edges("A", "B", "B", "C", "C", "A", "C", "D", "D", "D")
	got := Positions(ns, es, DefaultOptions(core.DirectionLR))
	require.Len(t, got, 4)
	assertNoOverlap(t, ns, got)
}

func TestMeasuredSizesAreUsed(t *testing.T) {
	ns := nodes("A", "B")
	ns[0].Width, ns[0].Height = 100, 40
	got := Positions(ns, edges("A", "B"), DefaultOptions(core.DirectionLR))
	assert.Equal(t, core.Position{X: 40, Y: 110}, got["A"])
	assert.Equal(t, core.Position{X: 220, Y: 40}, got["B"])
}

func TestApplyOnlyChangesPositions(t *testing.T) {
	ns := nodes("A", "B")
	ns[0].Selected = true
	out := Apply(ns, edges("A", "B"), DefaultOptions(core.DirectionLR))
	require.Len(t, out, 2)
	for i := range out {
		assert.Equal(t, ns[i].ID, out[i].ID)
		assert.Equal(t, ns[i].Type, out[i].Type)
		assert.Equal(t, ns[i].Data, out[i].Data)
		assert.Equal(t, ns[i].Selected, out[i].Selected)
	}
	assert.Zero(t, ns[0].Position, "input is not mutated")
}

func TestLayoutIdempotentAndDeterministic(t *testing.T) {
	build := func() ([]core.Node, []core.Edge) {
		return nodes("in", "a", "b", "c", "d", "out", "lonely"),
			edges("in", "a", "in", "b", "a", "c", "b", "c", "b", "d", "c", "out", "d", "out", "in", "out", "d", "a")
	}
	ns, es := build()
	opts := DefaultOptions(core.DirectionTB)

	first := Apply(ns, es, opts)
	second := Apply(first, es, opts)
	assert.Equal(t, first, second)

	ns2, es2 := build()
	assert.Equal(t, Positions(ns, es, opts), Positions(ns2, es2, opts))
	assertNoOverlap(t, first, Positions(first, es, opts))
}

func TestParallelEdgesAndUnknownEndpointsIgnored(t *testing.T) {
	es := append(edges("A", "B", "A", "B"), core.Edge{ID: "x", Source: "A", Target: "ghost"})
	got := Positions(nodes("A", "B"), es, DefaultOptions(core.DirectionLR))
	assert.Equal(t, Positions(nodes("A", "B"), edges("A", "B"), DefaultOptions(core.DirectionLR)), got)
}

func TestCrossingReduction(t *testing.T) {
	// a1->b2 crosses a2->b1 in input order; the sweep must untangle them.
	ns := nodes("a1", "a2", "b1", "b2")
	got := Positions(ns, edges("a1", "b2", "a2", "b1", "a2", "b2"), DefaultOptions(core.DirectionLR))
	assert.Less(t, got["a1"].Y, got["a2"].Y)
	assert.Less(t, got["b2"].Y, got["b1"].Y)
}

func TestEmptyGraph(t *testing.T) {
	assert.Empty(t, Positions(nil, nil, DefaultOptions(core.DirectionLR)))
}

func assertNoOverlap(t *testing.T, ns []core.Node, pos map[string]core.Position) {
	t.Helper()
	size := func(n core.Node) (float64, float64) {
		w, h := n.Width, n.Height
		if w <= 0 {
			w = 300
		}
		if h <= 0 {
			h = 180
		}
		return w, h
	}
	for i := 0; i < len(ns); i++ {
		for j := i + 1; j < len(ns); j++ {
			a, b := pos[ns[i].ID], pos[ns[j].ID]
			aw, ah := size(ns[i])
			bw, bh := size(ns[j])
			overlap := a.X < b.X+bw && b.X < a.X+aw && a.Y < b.Y+bh && b.Y < a.Y+ah
			assert.False(t, overlap, "%s overlaps %s", ns[i].ID, ns[j].ID)
		}
	}
}
