package graph

import (
	"fmt"
	"sort"
	"strings"
)

// Edge is one statement reached during traversal, rendered for display.
type Edge struct {
	Subject   string `json:"subject"`
	Predicate string `json:"predicate"`
	Object    string `json:"object"`
	Depth     int    `json:"depth"`
}

// Neighbourhood is the set of statements reachable from a root node.
type Neighbourhood struct {
	Root  string `json:"root"`
	Name  string `json:"name"`
	Depth int    `json:"depth"`
	Edges []Edge `json:"edges"`
}

// Traverse walks outgoing edges from root up to maxDepth hops using BFS and
// collects every statement it crosses. Literal objects are leaves.
//
// From a startup, depth 1 yields its own properties, depth 2 adds the
// industry, location and funding-event details, and depth 3 reaches
// investors and cantons.
func (g *Graph) Traverse(root Term, maxDepth int) (*Neighbourhood, error) {
	if root.IsZero() || root.IsLiteral() {
		return nil, fmt.Errorf("graph.Traverse: invalid root %q", root.Value)
	}
	if maxDepth < 1 {
		maxDepth = 1
	}

	nb := &Neighbourhood{Root: root.Value, Depth: maxDepth}
	if name, ok := g.Value(root, PropName); ok {
		nb.Name = name.Value
	}

	visited := map[Term]bool{root: true}
	queue := []Term{root}

	for depth := 1; depth <= maxDepth && len(queue) > 0; depth++ {
		var next []Term
		for _, node := range queue {
			for _, i := range g.bySubj[node] {
				t := g.triples[i]
				nb.Edges = append(nb.Edges, Edge{
					Subject:   compact(t.S),
					Predicate: compact(t.P),
					Object:    compact(t.O),
					Depth:     depth,
				})
				if t.O.IsLiteral() || t.P == RDFType || visited[t.O] {
					continue
				}
				visited[t.O] = true
				next = append(next, t.O)
			}
		}
		queue = next
	}

	sort.SliceStable(nb.Edges, func(i, j int) bool { return nb.Edges[i].Depth < nb.Edges[j].Depth })
	return nb, nil
}

// compact renders a term with the ex:/res:/rdf: prefixes applied.
func compact(t Term) string {
	switch t.Kind {
	case KindIRI:
		for _, ns := range []struct{ prefix, iri string }{
			{"ex:", NSEx}, {"res:", NSRes}, {"rdf:", NSRDF}, {"xsd:", NSXSD},
		} {
			if strings.HasPrefix(t.Value, ns.iri) {
				return ns.prefix + strings.TrimPrefix(t.Value, ns.iri)
			}
		}
		return t.String()
	case KindBlank:
		return "_:" + t.Value
	default:
		return t.Value
	}
}
