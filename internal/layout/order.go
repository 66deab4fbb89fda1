package layout

import (
	"slices"
	"sort"
)

// vertex is a layer member: a real node, or a dummy standing in for a long
// edge where it crosses an intermediate layer.
type vertex struct {
	node int // -1 for dummies
	up   []int
	down []int
}

// order builds the layers of one component and reduces crossings with
// alternating barycenter sweeps. It returns the real nodes of each layer
// in final order.
func (g *graph) order(comp []int, ranks []int, sweeps int) [][]int {
	base := ranks[comp[0]]
	top := base
	for _, v := range comp {
		base = min(base, ranks[v])
		top = max(top, ranks[v])
	}

	var verts []vertex
	var layerOf []int
	local := make(map[int]int, len(comp))
	for _, v := range comp {
		local[v] = len(verts)
		verts = append(verts, vertex{node: v})
		layerOf = append(layerOf, ranks[v]-base)
	}
	link := func(a, b int) {
		verts[a].down = append(verts[a].down, b)
		verts[b].up = append(verts[b].up, a)
	}
	for _, u := range comp {
		for _, v := range g.succ[u] {
			prev := local[u]
			for r := ranks[u] + 1; r < ranks[v]; r++ {
				d := len(verts)
				verts = append(verts, vertex{node: -1})
				layerOf = append(layerOf, r-base)
				link(prev, d)
				prev = d
			}
			link(prev, local[v])
		}
	}

	layers := make([][]int, top-base+1)
	for i := range verts {
		layers[layerOf[i]] = append(layers[layerOf[i]], i)
	}

	pos := make([]int, len(verts))
	reindex := func(layer []int) {
		for i, v := range layer {
			pos[v] = i
		}
	}
	for _, layer := range layers {
		reindex(layer)
	}

	best := cloneLayers(layers)
	bestCross := crossings(layers, verts, pos)
	for i := 0; i < sweeps && bestCross > 0; i++ {
		if i%2 == 0 {
			for r := 1; r < len(layers); r++ {
				sortByBarycenter(layers[r], func(v int) []int { return verts[v].up }, pos)
				reindex(layers[r])
			}
		} else {
			for r := len(layers) - 2; r >= 0; r-- {
				sortByBarycenter(layers[r], func(v int) []int { return verts[v].down }, pos)
				reindex(layers[r])
			}
		}
		if c := crossings(layers, verts, pos); c < bestCross {
			bestCross = c
			best = cloneLayers(layers)
		}
	}

	out := make([][]int, len(best))
	for r, layer := range best {
		for _, v := range layer {
			if verts[v].node >= 0 {
				out[r] = append(out[r], verts[v].node)
			}
		}
	}
	return out
}

// sortByBarycenter reorders a layer by the mean position of each vertex's
// neighbors in the adjacent layer. Vertices without neighbors keep their
// current position as their key; ties keep current order.
func sortByBarycenter(layer []int, neighbors func(int) []int, pos []int) {
	key := make(map[int]float64, len(layer))
	for _, v := range layer {
		ns := neighbors(v)
		if len(ns) == 0 {
			key[v] = float64(pos[v])
			continue
		}
		sum := 0
		for _, n := range ns {
			sum += pos[n]
		}
		key[v] = float64(sum) / float64(len(ns))
	}
	sort.SliceStable(layer, func(i, j int) bool {
		a, b := layer[i], layer[j]
		if key[a] != key[b] {
			return key[a] < key[b]
		}
		return pos[a] < pos[b]
	})
}

// crossings counts edge crossings between every pair of adjacent layers.
func crossings(layers [][]int, verts []vertex, pos []int) int {
	total := 0
	for r := 0; r+1 < len(layers); r++ {
		var segs [][2]int
		for _, u := range layers[r] {
			for _, v := range verts[u].down {
				segs = append(segs, [2]int{pos[u], pos[v]})
			}
		}
		for i := 0; i < len(segs); i++ {
			for j := i + 1; j < len(segs); j++ {
				a, b := segs[i], segs[j]
				if (a[0]-b[0])*(a[1]-b[1]) < 0 {
					total++
				}
			}
		}
	}
	return total
}

func cloneLayers(layers [][]int) [][]int {
	out := make([][]int, len(layers))
	for i, l := range layers {
		out[i] = slices.Clone(l)
	}
	return out
}
