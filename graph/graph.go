// Package graph holds the startup-funding knowledge graph in memory.
//
// A Graph is built once (by ingestion, from the store, or from Turtle) and is
// read-only afterwards. Concurrent reads are safe; Add must not race with
// readers.
package graph

import (
	"strconv"
	"strings"
)

// Graph is an in-memory triple set indexed by subject, predicate and object.
type Graph struct {
	triples []Triple
	set     map[Triple]struct{}
	bySubj  map[Term][]int
	byPred  map[Term][]int
	byObj   map[Term][]int
	blanks  int
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		set:    make(map[Triple]struct{}),
		bySubj: make(map[Term][]int),
		byPred: make(map[Term][]int),
		byObj:  make(map[Term][]int),
	}
}

// Add inserts a triple. It returns false if the triple was already present
// or is not a valid statement.
func (g *Graph) Add(t Triple) bool {
	if t.S.IsZero() || t.P.IsZero() || t.O.IsZero() || t.S.IsLiteral() || !t.P.IsIRI() {
		return false
	}
	if _, ok := g.set[t]; ok {
		return false
	}
	idx := len(g.triples)
	g.triples = append(g.triples, t)
	g.set[t] = struct{}{}
	g.bySubj[t.S] = append(g.bySubj[t.S], idx)
	g.byPred[t.P] = append(g.byPred[t.P], idx)
	g.byObj[t.O] = append(g.byObj[t.O], idx)
	return true
}

// AddAll inserts every triple and returns how many were new.
func (g *Graph) AddAll(ts []Triple) int {
	n := 0
	for _, t := range ts {
		if g.Add(t) {
			n++
		}
	}
	return n
}

// Len returns the number of triples.
func (g *Graph) Len() int { return len(g.triples) }

// Triples returns a copy of all triples in insertion order.
func (g *Graph) Triples() []Triple {
	out := make([]Triple, len(g.triples))
	copy(out, g.triples)
	return out
}

// NewBlank allocates a fresh blank node label unique within this graph.
func (g *Graph) NewBlank() Term {
	for {
		g.blanks++
		b := Blank("f" + strconv.Itoa(g.blanks))
		if _, used := g.bySubj[b]; !used {
			if _, used := g.byObj[b]; !used {
				return b
			}
		}
	}
}

// Match returns the triples matching the pattern. A zero Term matches anything.
func (g *Graph) Match(s, p, o Term) []Triple {
	var candidates []int
	full := true
	pick := func(idx map[Term][]int, t Term) bool {
		if t.IsZero() {
			return true
		}
		list, ok := idx[t]
		if !ok {
			return false
		}
		if full || len(list) < len(candidates) {
			candidates = list
			full = false
		}
		return true
	}
	if !pick(g.bySubj, s) || !pick(g.byPred, p) || !pick(g.byObj, o) {
		return nil
	}

	var out []Triple
	if full {
		return g.Triples()
	}
	for _, i := range candidates {
		t := g.triples[i]
		if (s.IsZero() || t.S == s) && (p.IsZero() || t.P == p) && (o.IsZero() || t.O == o) {
			out = append(out, t)
		}
	}
	return out
}

// Objects returns the objects of (s, p, *).
func (g *Graph) Objects(s, p Term) []Term {
	var out []Term
	for _, t := range g.Match(s, p, Term{}) {
		out = append(out, t.O)
	}
	return out
}

// Value returns the first object of (s, p, *).
func (g *Graph) Value(s, p Term) (Term, bool) {
	for _, i := range g.bySubj[s] {
		if t := g.triples[i]; t.P == p {
			return t.O, true
		}
	}
	return Term{}, false
}

// FindByName returns the subjects of the given class whose ex:name equals
// name, compared case-insensitively. A zero class matches any subject.
func (g *Graph) FindByName(name string, class Term) []Term {
	name = strings.TrimSpace(name)
	var out []Term
	for _, i := range g.byPred[PropName] {
		t := g.triples[i]
		if !strings.EqualFold(t.O.Value, name) {
			continue
		}
		if !class.IsZero() {
			if _, ok := g.set[Triple{S: t.S, P: RDFType, O: class}]; !ok {
				continue
			}
		}
		out = append(out, t.S)
	}
	return out
}

// Stats summarises the graph contents by class.
type Stats struct {
	Triples   int            `json:"triples"`
	Subjects  int            `json:"subjects"`
	Instances map[string]int `json:"instances"`
}

// Stats counts triples, distinct subjects, and instances per ontology class.
func (g *Graph) Stats() Stats {
	st := Stats{Triples: len(g.triples), Subjects: len(g.bySubj), Instances: make(map[string]int)}
	for _, i := range g.byPred[RDFType] {
		cls := g.triples[i].O.Value
		st.Instances[strings.TrimPrefix(cls, NSEx)]++
	}
	return st
}
