// Package depgraph builds the case dependency DAG: it resolves dependency
// patterns into concrete case-to-case edges, detects cycles with Kahn's
// algorithm, and exposes topological strata for both the scheduler's
// readiness pass and the batch packer's stratum-based tiling.
package depgraph

import (
	"fmt"
	"sort"

	"testforge/internal/model"
)

// Graph is an adjacency-list DAG over case ids, with Kahn-based cycle
// detection and topological stratification.
type Graph struct {
	// edges[v] lists the ids v depends on (must complete before v).
	edges map[model.CaseID][]model.CaseID
	nodes map[model.CaseID]bool
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{edges: make(map[model.CaseID][]model.CaseID), nodes: make(map[model.CaseID]bool)}
}

// AddNode registers an id with no dependencies unless AddEdge is also called.
func (g *Graph) AddNode(id model.CaseID) {
	g.nodes[id] = true
	if _, ok := g.edges[id]; !ok {
		g.edges[id] = nil
	}
}

// AddEdge records that v depends on u (u must finish before v starts).
// Self-edges are rejected: a case cannot depend on itself.
func (g *Graph) AddEdge(v, u model.CaseID) error {
	if v == u {
		return fmt.Errorf("depgraph: self-dependency on case %s", v)
	}
	g.AddNode(v)
	g.AddNode(u)
	g.edges[v] = append(g.edges[v], u)
	return nil
}

// Dependencies returns the direct upstream ids of v.
func (g *Graph) Dependencies(v model.CaseID) []model.CaseID {
	out := append([]model.CaseID(nil), g.edges[v]...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Dependents returns every id that directly depends on v.
func (g *Graph) Dependents(v model.CaseID) []model.CaseID {
	var out []model.CaseID
	for id, deps := range g.edges {
		for _, d := range deps {
			if d == v {
				out = append(out, id)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// CycleError is returned by TopoOrder/Strata when the graph is not a DAG.
type CycleError struct {
	Members []model.CaseID
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("depgraph: dependency cycle detected among %d case(s): %v", len(e.Members), e.Members)
}

// Strata peels the graph into Kahn topological layers: stratum 0 has no
// dependencies, stratum 1 depends only on stratum 0, and so on. Each
// stratum has no intra-stratum edges.
func (g *Graph) Strata() ([][]model.CaseID, error) {
	// remaining[v] counts how many of v's own dependencies have not yet
	// been placed into an earlier stratum.
	remaining := make(map[model.CaseID]int, len(g.nodes))
	for id := range g.nodes {
		remaining[id] = len(g.edges[id])
	}

	dependents := make(map[model.CaseID][]model.CaseID)
	for v, deps := range g.edges {
		for _, u := range deps {
			dependents[u] = append(dependents[u], v)
		}
	}

	var strata [][]model.CaseID
	done := 0
	total := len(g.nodes)
	for done < total {
		var ready []model.CaseID
		for id, d := range remaining {
			if d == 0 {
				ready = append(ready, id)
			}
		}
		if len(ready) == 0 {
			var stuck []model.CaseID
			for id, d := range remaining {
				if d > 0 {
					stuck = append(stuck, id)
				}
			}
			sort.Slice(stuck, func(i, j int) bool { return stuck[i] < stuck[j] })
			return nil, &CycleError{Members: stuck}
		}
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		strata = append(strata, ready)
		for _, id := range ready {
			delete(remaining, id)
		}
		for _, id := range ready {
			for _, dep := range dependents[id] {
				if _, ok := remaining[dep]; ok {
					remaining[dep]--
				}
			}
		}
		done += len(ready)
	}
	return strata, nil
}

// TopoOrder flattens Strata into one valid topological ordering.
func (g *Graph) TopoOrder() ([]model.CaseID, error) {
	strata, err := g.Strata()
	if err != nil {
		return nil, err
	}
	var out []model.CaseID
	for _, s := range strata {
		out = append(out, s...)
	}
	return out, nil
}
