// Package sector orders sectors for demand propagation.
//
// An edge runs from a consuming sector to the sector producing its input, so
// a topological order visits consumers first: by the time a supplier is
// dispatched, the demand placed on it by every downstream sector is known.
package sector

import (
	"fmt"
	"sort"

	"energy-mca/internal/model"
	"energy-mca/internal/technology"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/topo"
)

// Graph is the dependency structure between sectors. It is immutable once built.
type Graph struct {
	names      []string
	order      []string
	cycles     [][]string
	producer   map[string]string
	upstream   map[string][]string
	downstream map[string][]string
	cyclic     map[string]bool
}

// Options control graph construction.
type Options struct {
	// AllowCycles accepts mutually dependent sectors. Their members are
	// ordered by name and resolved across clearing rounds.
	AllowCycles bool
}

// NewGraph derives the sector graph from the technologies' inputs and outputs.
// A commodity may be produced by one sector only.
func NewGraph(reg *technology.Registry, opts Options) (*Graph, error) {
	g := &Graph{
		names:      reg.Sectors(),
		producer:   map[string]string{},
		upstream:   map[string][]string{},
		downstream: map[string][]string{},
		cyclic:     map[string]bool{},
	}
	for _, s := range g.names {
		for _, c := range reg.Outputs(s) {
			if other, dup := g.producer[c]; dup {
				return nil, model.Configf(fmt.Sprintf("commodities[%s]", c), "produced by both %q and %q", other, s)
			}
			g.producer[c] = s
		}
	}

	ids := make(map[string]int64, len(g.names))
	dg := simple.NewDirectedGraph()
	for i, s := range g.names {
		ids[s] = int64(i)
		dg.AddNode(simple.Node(i))
	}

	var selfLoops []string
	for _, s := range g.names {
		up := map[string]bool{}
		for _, c := range reg.Inputs(s) {
			p, ok := g.producer[c]
			if !ok {
				continue
			}
			if p == s {
				selfLoops = append(selfLoops, s)
				continue
			}
			up[p] = true
		}
		for p := range up {
			dg.SetEdge(dg.NewEdge(simple.Node(ids[s]), simple.Node(ids[p])))
			g.upstream[s] = append(g.upstream[s], p)
			g.downstream[p] = append(g.downstream[p], s)
		}
	}
	for _, s := range g.names {
		sort.Strings(g.upstream[s])
		sort.Strings(g.downstream[s])
	}

	byID := func(nodes []graph.Node) {
		sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID() < nodes[j].ID() })
	}
	sorted, err := topo.SortStabilized(dg, byID)
	if err == nil && len(selfLoops) == 0 {
		for _, n := range sorted {
			g.order = append(g.order, g.names[n.ID()])
		}
		return g, nil
	}

	if u, ok := err.(topo.Unorderable); ok {
		for _, comp := range u {
			g.cycles = append(g.cycles, g.memberNames(comp))
		}
	} else if err != nil {
		return nil, fmt.Errorf("sort sectors: %w", err)
	}
	for _, s := range uniq(selfLoops) {
		g.cycles = append(g.cycles, []string{s})
	}
	sort.Slice(g.cycles, func(i, j int) bool { return g.cycles[i][0] < g.cycles[j][0] })
	for _, c := range g.cycles {
		for _, s := range c {
			g.cyclic[s] = true
		}
	}
	if !opts.AllowCycles {
		return nil, &model.CyclicDependencyError{Cycles: g.cycles}
	}
	g.order = g.condensedOrder(dg)
	return g, nil
}

// condensedOrder orders strongly connected components topologically, always
// picking the ready component with the smallest member name, and lists each
// component's members by name.
func (g *Graph) condensedOrder(dg *simple.DirectedGraph) []string {
	sccs := topo.TarjanSCC(dg)
	comp := make(map[int64]int, len(g.names))
	members := make([][]string, len(sccs))
	for i, scc := range sccs {
		for _, n := range scc {
			comp[n.ID()] = i
		}
		members[i] = g.memberNames(scc)
	}

	indeg := make([]int, len(sccs))
	succ := make([]map[int]bool, len(sccs))
	for i := range succ {
		succ[i] = map[int]bool{}
	}
	edges := dg.Edges()
	for edges.Next() {
		e := edges.Edge()
		from, to := comp[e.From().ID()], comp[e.To().ID()]
		if from != to && !succ[from][to] {
			succ[from][to] = true
			indeg[to]++
		}
	}

	var ready []int
	for i := range sccs {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}
	var order []string
	for len(ready) > 0 {
		sort.Slice(ready, func(a, b int) bool { return members[ready[a]][0] < members[ready[b]][0] })
		next := ready[0]
		ready = ready[1:]
		order = append(order, members[next]...)
		for to := range succ[next] {
			indeg[to]--
			if indeg[to] == 0 {
				ready = append(ready, to)
			}
		}
	}
	return order
}

func (g *Graph) memberNames(nodes []graph.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, g.names[n.ID()])
	}
	sort.Strings(out)
	return out
}

func uniq(in []string) []string {
	sort.Strings(in)
	out := in[:0]
	for i, s := range in {
		if i == 0 || s != in[i-1] {
			out = append(out, s)
		}
	}
	return out
}

// Sectors returns every sector, sorted by name.
func (g *Graph) Sectors() []string { return append([]string(nil), g.names...) }

// Order is the dispatch sequence within one round, consumers first.
func (g *Graph) Order() []string { return append([]string(nil), g.order...) }

// Cycles lists the mutually dependent sector groups, empty for a DAG.
func (g *Graph) Cycles() [][]string {
	out := make([][]string, len(g.cycles))
	for i, c := range g.cycles {
		out[i] = append([]string(nil), c...)
	}
	return out
}

// Cyclic reports whether s belongs to a dependency cycle.
func (g *Graph) Cyclic(s string) bool { return g.cyclic[s] }

// Upstream returns the sectors supplying s's inputs.
func (g *Graph) Upstream(s string) []string { return append([]string(nil), g.upstream[s]...) }

// Downstream returns the sectors whose demand falls on s.
func (g *Graph) Downstream(s string) []string { return append([]string(nil), g.downstream[s]...) }

// Producer returns the sector producing commodity c.
func (g *Graph) Producer(c string) (string, bool) {
	s, ok := g.producer[c]
	return s, ok
}

// Endogenous lists commodities produced by some sector, sorted.
func (g *Graph) Endogenous() []string {
	out := make([]string, 0, len(g.producer))
	for c := range g.producer {
		out = append(out, c)
	}
	sort.Strings(out)
	return out
}
