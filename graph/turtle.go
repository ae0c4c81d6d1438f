package graph

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/knakk/rdf"
)

// ReadTurtle decodes a Turtle document into a new graph.
func ReadTurtle(r io.Reader) (*Graph, error) {
	dec := rdf.NewTripleDecoder(r, rdf.Turtle)
	g := New()
	for {
		tr, err := dec.Decode()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decoding turtle: %w", err)
		}
		g.Add(Triple{S: fromRDF(tr.Subj), P: fromRDF(tr.Pred), O: fromRDF(tr.Obj)})
	}
	return g, nil
}

// LoadTurtleFile reads a Turtle file from disk.
func LoadTurtleFile(path string) (*Graph, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening turtle file: %w", err)
	}
	defer f.Close()
	return ReadTurtle(f)
}

// WriteTurtle encodes every triple of g as Turtle.
func (g *Graph) WriteTurtle(w io.Writer) error {
	enc := rdf.NewTripleEncoder(w, rdf.Turtle)
	for _, t := range g.triples {
		tr, err := toRDF(t)
		if err != nil {
			return err
		}
		if err := enc.Encode(tr); err != nil {
			return fmt.Errorf("encoding triple: %w", err)
		}
	}
	return enc.Close()
}

// SaveTurtleFile writes the graph to path, replacing any existing file.
func (g *Graph) SaveTurtleFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating turtle file: %w", err)
	}
	if err := g.WriteTurtle(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

type rdfTerm interface {
	String() string
}

func fromRDF(t rdfTerm) Term {
	switch v := t.(type) {
	case rdf.IRI:
		return IRI(v.String())
	case rdf.Blank:
		return Blank(strings.TrimPrefix(v.String(), "_:"))
	case rdf.Literal:
		if lang := v.Lang(); lang != "" {
			return LangLiteral(v.String(), lang)
		}
		return Typed(v.String(), v.DataType.String())
	default:
		return Literal(t.String())
	}
}

func toRDF(t Triple) (rdf.Triple, error) {
	var tr rdf.Triple

	switch t.S.Kind {
	case KindIRI:
		iri, err := rdf.NewIRI(t.S.Value)
		if err != nil {
			return tr, fmt.Errorf("subject %q: %w", t.S.Value, err)
		}
		tr.Subj = iri
	case KindBlank:
		b, err := rdf.NewBlank(t.S.Value)
		if err != nil {
			return tr, fmt.Errorf("subject %q: %w", t.S.Value, err)
		}
		tr.Subj = b
	default:
		return tr, fmt.Errorf("subject %s is not a resource", t.S)
	}

	pred, err := rdf.NewIRI(t.P.Value)
	if err != nil {
		return tr, fmt.Errorf("predicate %q: %w", t.P.Value, err)
	}
	tr.Pred = pred

	switch t.O.Kind {
	case KindIRI:
		iri, err := rdf.NewIRI(t.O.Value)
		if err != nil {
			return tr, fmt.Errorf("object %q: %w", t.O.Value, err)
		}
		tr.Obj = iri
	case KindBlank:
		b, err := rdf.NewBlank(t.O.Value)
		if err != nil {
			return tr, fmt.Errorf("object %q: %w", t.O.Value, err)
		}
		tr.Obj = b
	case KindLiteral:
		switch {
		case t.O.Lang != "":
			lit, err := rdf.NewLangLiteral(t.O.Value, t.O.Lang)
			if err != nil {
				return tr, fmt.Errorf("object %q: %w", t.O.Value, err)
			}
			tr.Obj = lit
		default:
			dt := t.O.Datatype
			if dt == "" {
				dt = XSDString
			}
			dtIRI, err := rdf.NewIRI(dt)
			if err != nil {
				return tr, fmt.Errorf("datatype %q: %w", dt, err)
			}
			tr.Obj = rdf.NewTypedLiteral(t.O.Value, dtIRI)
		}
	default:
		return tr, fmt.Errorf("object of %s is empty", t.S)
	}
	return tr, nil
}
