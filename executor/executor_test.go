package executor

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/fundgraph/graph"
	"github.com/brunobiangulo/fundgraph/sparql"
)

func fixture() *graph.Graph {
	g := graph.New()
	acme := graph.Res("Acme_AG")
	clean := graph.Res("industry_cleantech")
	r1, r2 := g.NewBlank(), g.NewBlank()
	g.AddAll([]graph.Triple{
		{S: acme, P: graph.RDFType, O: graph.ClassStartup},
		{S: acme, P: graph.PropName, O: graph.Literal("Acme AG")},
		{S: acme, P: graph.PropHasIndustry, O: clean},
		{S: clean, P: graph.PropName, O: graph.Literal("cleantech")},
		{S: acme, P: graph.PropHasFunding, O: r1},
		{S: acme, P: graph.PropHasFunding, O: r2},
		{S: r1, P: graph.PropAmount, O: graph.Typed("1000000.0", graph.XSDDecimal)},
		{S: r1, P: graph.PropRoundDate, O: graph.Typed("2019-03-01", graph.XSDDate)},
		{S: r2, P: graph.PropRoundDate, O: graph.Typed("2021-06-15", graph.XSDDate)},
	})
	return g
}

func TestRunCanonicalRows(t *testing.T) {
	ex := New(fixture())
	res := ex.Run(context.Background(), `
PREFIX ex: <http://example.org/ontology#>
SELECT ?company_name ?round_date ?amount WHERE {
  ?c ex:name ?company_name ; ex:hasFunding ?f .
  OPTIONAL { ?f ex:round_date ?round_date }
  OPTIONAL { ?f ex:amount ?amount }
} ORDER BY ?round_date`)

	rows, ok := res.(*Rows)
	require.True(t, ok, "expected rows, got %#v", res)
	assert.Equal(t, []string{"company_name", "date", "amount"}, rows.Vars)
	require.Len(t, rows.Rows, 2)

	first := rows.Rows[0]
	assert.Equal(t, Str("Acme AG"), first.Company())
	assert.Equal(t, Str("2019-03-01"), first.Date())
	assert.Equal(t, Str("1000000"), first.Amount())

	second := rows.Rows[1]
	assert.True(t, second.Amount().Null, "missing amount must be an explicit null")
	_, present := second["amount"]
	assert.True(t, present)
}

func TestRunKeepsExistingDateColumn(t *testing.T) {
	ex := New(fixture())
	res := ex.Run(context.Background(), `SELECT ?date ?round_date WHERE {
  ?f ex:round_date ?round_date . BIND(STR(?round_date) AS ?date) }`)
	rows := res.(*Rows)
	assert.Equal(t, []string{"date", "round_date"}, rows.Vars)
}

func TestRunSingleVariable(t *testing.T) {
	res := New(fixture()).Run(context.Background(), `SELECT (COUNT(?f) AS ?rounds) WHERE { ?c ex:hasFunding ?f }`)
	rows := RowsOf(res)
	require.Len(t, rows, 1)
	assert.Equal(t, Str("2"), rows[0].Get("rounds"))
}

func TestRunFailures(t *testing.T) {
	ex := New(fixture())
	tests := []struct {
		name  string
		query string
	}{
		{"syntax", "SELECT WHERE {"},
		{"unknown prefix", "SELECT ?x WHERE { ?x nope:p ?y }"},
		{"unsupported form", "ASK { ?s ?p ?o }"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ex.Run(context.Background(), tt.query)
			f, ok := res.(*Failure)
			require.True(t, ok)
			assert.ErrorIs(t, f, ErrQueryExecution)
			assert.Nil(t, RowsOf(res))
		})
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := New(fixture()).Run(ctx, `SELECT ?s WHERE { ?s ?p ?o }`)
	f, ok := res.(*Failure)
	require.True(t, ok)
	assert.True(t, errors.Is(f.Err, context.Canceled))
}

type panicking struct{}

func (panicking) Match(s, p, o graph.Term) []graph.Triple { panic("boom") }

func TestRunRecoversPanics(t *testing.T) {
	var ds sparql.Dataset = panicking{}
	res := New(ds, WithTimeout(time.Second)).Run(context.Background(), `SELECT ?s WHERE { ?s ?p ?o }`)
	f, ok := res.(*Failure)
	require.True(t, ok)
	assert.ErrorIs(t, f, ErrQueryExecution)
	assert.Contains(t, f.Error(), "boom")
}

func TestCanonicalNumber(t *testing.T) {
	tests := map[string]string{
		"1000000.0": "1000000",
		"1.5E6":     "1500000",
		"2500.50":   "2500.5",
		"-3":        "-3",
		"abc":       "abc",
	}
	for in, want := range tests {
		assert.Equal(t, want, canonicalNumber(in), in)
	}
}

func TestValueHelpers(t *testing.T) {
	y, ok := Str("2020-05-01").Year()
	assert.True(t, ok)
	assert.Equal(t, "2020", y)

	_, ok = Str("20201-01-01").Year()
	assert.False(t, ok)
	_, ok = Str("n/a").Year()
	assert.False(t, ok)
	_, ok = Null.Year()
	assert.False(t, ok)

	f, ok := Str(" 42.5 ").Float()
	assert.True(t, ok)
	assert.Equal(t, 42.5, f)
	_, ok = Null.Float()
	assert.False(t, ok)
}

func TestRowJSON(t *testing.T) {
	row := Row{"company_name": Str("Acme AG"), "amount": Null}
	b, err := json.Marshal(row)
	require.NoError(t, err)
	assert.JSONEq(t, `{"company_name":"Acme AG","amount":null}`, string(b))

	var back Row
	require.NoError(t, json.Unmarshal([]byte(`{"amount":150,"date":null}`), &back))
	assert.Equal(t, Str("150"), back.Amount())
	assert.True(t, back.Date().Null)
}

func TestRowAccessorFallbacks(t *testing.T) {
	row := Row{"name": Str("Beta"), "city": Str("Zurich"), "industry": Str("ICT")}
	assert.Equal(t, "Beta", row.Company().String)
	assert.Equal(t, "Zurich", row.Location().String)
	assert.Equal(t, "ICT", row.Industry().String)
	assert.True(t, row.Phase().Null)
}
