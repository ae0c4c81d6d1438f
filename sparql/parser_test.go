package sparql

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/fundgraph/graph"
)

func TestParseBasicSelect(t *testing.T) {
	q, err := Parse(`PREFIX ex: <http://example.org/ontology#>
SELECT DISTINCT ?name ?amount WHERE {
  ?c a ex:Startup ;
     ex:name ?name ;
     ex:hasFunding ?f .
  ?f ex:amount ?amount .
  FILTER(?amount > 1000000)
}
ORDER BY DESC(?amount)
LIMIT 5`)
	require.NoError(t, err)

	assert.True(t, q.Distinct)
	assert.Equal(t, 5, q.Limit)
	assert.Equal(t, -1, q.Offset)
	require.Len(t, q.Projection, 2)
	assert.Equal(t, "name", q.Projection[0].Var)

	require.Len(t, q.Where.Elements, 5)
	tp := q.Where.Elements[0].(*TriplePattern)
	assert.True(t, tp.P.A)
	assert.Equal(t, graph.ClassStartup, tp.O.Term)
	assert.Equal(t, "ex:Startup", tp.O.PName)

	tp = q.Where.Elements[2].(*TriplePattern)
	assert.Equal(t, "c", tp.S.Var)
	assert.Equal(t, graph.PropHasFunding, tp.P.Term)

	f := q.Where.Elements[4].(*Filter)
	be := f.Expr.(*BinaryExpr)
	assert.Equal(t, ">", be.Op)

	require.Len(t, q.OrderBy, 1)
	assert.True(t, q.OrderBy[0].Desc)
}

func TestParseDefaultPrefixes(t *testing.T) {
	q, err := Parse(`SELECT ?s WHERE { ?s ex:hasLocation res:Zurich }`)
	require.NoError(t, err)
	tp := q.Where.Elements[0].(*TriplePattern)
	assert.Equal(t, graph.PropHasLocation, tp.P.Term)
	assert.Equal(t, graph.Res("Zurich"), tp.O.Term)
	assert.Empty(t, q.Prefixes)
}

func TestParseObjectLists(t *testing.T) {
	q, err := Parse(`SELECT * WHERE { ?s ex:name "A", "B" ; ex:foundedIn 2015 . }`)
	require.NoError(t, err)
	require.Len(t, q.Where.Elements, 3)
	assert.Equal(t, graph.Literal("A"), q.Where.Elements[0].(*TriplePattern).O.Term)
	assert.Equal(t, graph.Literal("B"), q.Where.Elements[1].(*TriplePattern).O.Term)
	assert.Equal(t, graph.Typed("2015", graph.XSDInteger), q.Where.Elements[2].(*TriplePattern).O.Term)
	assert.True(t, q.Star)
}

func TestParseOptionalUnionBindValues(t *testing.T) {
	q, err := Parse(`SELECT ?s ?y WHERE {
  { ?s ex:hasIndustry ?i } UNION { ?s ex:hasLocation ?l }
  OPTIONAL { ?s ex:foundedIn ?y }
  BIND(STR(?s) AS ?label)
  VALUES ?s { res:A res:B }
  MINUS { ?s ex:name "X" }
}`)
	require.NoError(t, err)
	els := q.Where.Elements
	require.Len(t, els, 5)
	assert.IsType(t, &Union{}, els[0])
	assert.Len(t, els[0].(*Union).Groups, 2)
	assert.IsType(t, &Optional{}, els[1])
	assert.IsType(t, &Bind{}, els[2])
	assert.Equal(t, "label", els[2].(*Bind).Var)
	v := els[3].(*Values)
	assert.Equal(t, []string{"s"}, v.Vars)
	assert.Len(t, v.Rows, 2)
	assert.IsType(t, &Minus{}, els[4])
}

func TestParseAggregates(t *testing.T) {
	q, err := Parse(`SELECT ?year (COUNT(DISTINCT ?c) AS ?n) (SUM(?a) AS ?total) (GROUP_CONCAT(?name; SEPARATOR=", ") AS ?names)
WHERE { ?c ex:hasFunding ?f . ?f ex:amount ?a ; ex:round_date ?d . ?c ex:name ?name }
GROUP BY (YEAR(?d) AS ?year)
HAVING (COUNT(?c) > 1)
ORDER BY ?year`)
	require.NoError(t, err)
	require.Len(t, q.Projection, 4)

	count := q.Projection[1].Expr.(*CallExpr)
	assert.Equal(t, "COUNT", count.Name)
	assert.True(t, count.Distinct)
	assert.True(t, count.IsAggregate())

	gc := q.Projection[3].Expr.(*CallExpr)
	assert.True(t, gc.HasSep)
	assert.Equal(t, ", ", gc.Separator)

	require.Len(t, q.GroupBy, 1)
	assert.Equal(t, "year", q.GroupBy[0].Var)
	require.Len(t, q.Having, 1)
	assert.True(t, q.isAggregate())
}

func TestParseExpressions(t *testing.T) {
	q, err := Parse(`SELECT ?s WHERE {
  ?s ex:name ?n .
  FILTER(CONTAINS(LCASE(?n), "bio") || ?n IN ("A", "B") && !BOUND(?x))
  FILTER NOT EXISTS { ?s ex:hasLocation ?l }
  FILTER(xsd:integer(?y) >= 2020)
}`)
	require.NoError(t, err)
	or := q.Where.Elements[1].(*Filter).Expr.(*BinaryExpr)
	assert.Equal(t, "||", or.Op)
	and := or.Right.(*BinaryExpr)
	assert.Equal(t, "&&", and.Op)
	assert.IsType(t, &InExpr{}, and.Left)
	assert.IsType(t, &UnaryExpr{}, and.Right)

	ex := q.Where.Elements[2].(*Filter).Expr.(*ExistsExpr)
	assert.True(t, ex.Not)

	cast := q.Where.Elements[3].(*Filter).Expr.(*BinaryExpr).Left.(*CallExpr)
	assert.Equal(t, graph.XSDInteger, cast.IRI)
	assert.Equal(t, "xsd:integer", cast.Name)
}

func TestParseTypedAndLangLiterals(t *testing.T) {
	q, err := Parse(`SELECT * WHERE { ?f ex:round_date "2021-03-01"^^xsd:date . ?s ex:name "Zürich"@de . ?s ex:amount -2.5 }`)
	require.NoError(t, err)
	d := q.Where.Elements[0].(*TriplePattern).O
	assert.Equal(t, graph.Typed("2021-03-01", graph.XSDDate), d.Term)
	assert.Equal(t, "xsd:date", d.DTName)
	assert.Equal(t, graph.LangLiteral("Zürich", "de"), q.Where.Elements[1].(*TriplePattern).O.Term)
	assert.Equal(t, graph.Typed("-2.5", graph.XSDDecimal), q.Where.Elements[2].(*TriplePattern).O.Term)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{"empty", ``},
		{"ask form", `ASK { ?s ?p ?o }`},
		{"unterminated group", `SELECT ?s WHERE { ?s ?p ?o`},
		{"undeclared prefix", `SELECT ?s WHERE { ?s foo:bar ?o }`},
		{"missing projection", `SELECT WHERE { ?s ?p ?o }`},
		{"unknown function", `SELECT ?s WHERE { ?s ?p ?o FILTER(FROB(?o)) }`},
		{"trailing garbage", `SELECT ?s WHERE { ?s ?p ?o } ;`},
		{"bad limit", `SELECT ?s WHERE { ?s ?p ?o } LIMIT ten`},
		{"literal subject", `SELECT ?s WHERE { "x" ?p ?o }`},
		{"unterminated string", `SELECT ?s WHERE { ?s ?p "abc }`},
		{"sub-select", `SELECT ?s WHERE { { SELECT ?s WHERE { ?s ?p ?o } } }`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.query)
			require.Error(t, err)
			var se *SyntaxError
			assert.True(t, errors.As(err, &se), "want *SyntaxError, got %T", err)
		})
	}
}

func TestParseLessThanIsNotIRI(t *testing.T) {
	q, err := Parse(`SELECT ?a WHERE { ?s ex:amount ?a FILTER(?a <1000 && ?a>10) }`)
	require.NoError(t, err)
	be := q.Where.Elements[1].(*Filter).Expr.(*BinaryExpr)
	assert.Equal(t, "&&", be.Op)
	assert.Equal(t, "<", be.Left.(*BinaryExpr).Op)
}

func TestQueryVars(t *testing.T) {
	q, err := Parse(`SELECT * WHERE { ?c ex:name ?name . OPTIONAL { ?c ex:foundedIn ?year } BIND(1 AS ?one) MINUS { ?c ex:hidden ?h } }`)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "name", "year", "one"}, q.Vars())
}
