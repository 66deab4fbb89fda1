package layout

import (
	"slices"

	"github.com/leapstack-labs/vectorflow/pkg/core"
)

// graph is an index-based view of the input. Node indices follow input
// order, which is the only tie-breaker used anywhere in the algorithm.
type graph struct {
	n    int
	ids  []string
	w, h []float64
	// succ and pred describe the acyclic orientation: back edges found by
	// DFS are reversed, parallel edges and self-loops are dropped.
	succ [][]int
	pred [][]int
	// topo is a topological order of the oriented graph.
	topo []int
}

func build(nodes []core.Node, edges []core.Edge, opts Options) *graph {
	g := &graph{}
	index := make(map[string]int, len(nodes))
	for _, n := range nodes {
		if _, dup := index[n.ID]; dup {
			continue
		}
		index[n.ID] = g.n
		g.ids = append(g.ids, n.ID)
		w, h := n.Width, n.Height
		if w <= 0 {
			w = opts.DefaultWidth
		}
		if h <= 0 {
			h = opts.DefaultHeight
		}
		g.w = append(g.w, w)
		g.h = append(g.h, h)
		g.n++
	}

	out := make([][]int, g.n)
	seen := make(map[[2]int]bool)
	for _, e := range edges {
		u, okU := index[e.Source]
		v, okV := index[e.Target]
		if !okU || !okV || u == v || seen[[2]int{u, v}] {
			continue
		}
		seen[[2]int{u, v}] = true
		out[u] = append(out[u], v)
	}
	for u := range out {
		slices.Sort(out[u])
	}

	g.orient(out)
	return g
}

// orient runs a DFS in index order, reversing back edges. Reverse postorder
// of that DFS is a topological order of the oriented graph.
func (g *graph) orient(out [][]int) {
	const (
		unvisited = iota
		onStack
		done
	)
	state := make([]int, g.n)
	post := make([]int, 0, g.n)
	var oriented [][2]int

	var visit func(u int)
	visit = func(u int) {
		state[u] = onStack
		for _, v := range out[u] {
			switch state[v] {
			case onStack:
				oriented = append(oriented, [2]int{v, u})
			case unvisited:
				oriented = append(oriented, [2]int{u, v})
				visit(v)
			default:
				oriented = append(oriented, [2]int{u, v})
			}
		}
		state[u] = done
		post = append(post, u)
	}
	for u := 0; u < g.n; u++ {
		if state[u] == unvisited {
			visit(u)
		}
	}

	g.succ = make([][]int, g.n)
	g.pred = make([][]int, g.n)
	seen := make(map[[2]int]bool, len(oriented))
	for _, e := range oriented {
		if seen[e] {
			continue
		}
		seen[e] = true
		g.succ[e[0]] = append(g.succ[e[0]], e[1])
		g.pred[e[1]] = append(g.pred[e[1]], e[0])
	}
	for i := 0; i < g.n; i++ {
		slices.Sort(g.succ[i])
		slices.Sort(g.pred[i])
	}

	g.topo = make([]int, len(post))
	for i, u := range post {
		g.topo[len(post)-1-i] = u
	}
}

// rank assigns longest-path layers, then pulls each source down to sit
// directly above its nearest successor so it does not stretch edges.
func (g *graph) rank() []int {
	ranks := make([]int, g.n)
	for _, v := range g.topo {
		for _, p := range g.pred[v] {
			ranks[v] = max(ranks[v], ranks[p]+1)
		}
	}
	for v := 0; v < g.n; v++ {
		if len(g.pred[v]) > 0 || len(g.succ[v]) == 0 {
			continue
		}
		lowest := -1
		for _, s := range g.succ[v] {
			if lowest < 0 || ranks[s] < lowest {
				lowest = ranks[s]
			}
		}
		ranks[v] = lowest - 1
	}
	return ranks
}

// components returns weakly connected components, each listed in index
// order, ordered by their lowest index.
func (g *graph) components() [][]int {
	parent := make([]int, g.n)
	for i := range parent {
		parent[i] = i
	}
	find := func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	for u := 0; u < g.n; u++ {
		for _, v := range g.succ[u] {
			ru, rv := find(u), find(v)
			if ru != rv {
				// keep the lower index as root so roots are stable
				if rv < ru {
					ru, rv = rv, ru
				}
				parent[rv] = ru
			}
		}
	}

	slot := make(map[int]int)
	var comps [][]int
	for v := 0; v < g.n; v++ {
		r := find(v)
		i, ok := slot[r]
		if !ok {
			i = len(comps)
			slot[r] = i
			comps = append(comps, nil)
		}
		comps[i] = append(comps[i], v)
	}
	return comps
}
