package sparql

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/fundgraph/graph"
)

// fixture builds a small funding graph:
//
//	Alpha (ICT, Zurich)  rounds 2019 1.5M Seed, 2021 10M Series A
//	Beta  (ICT, no location) round 2020 3M (no phase)
//	Gamma (biotech, Basel) no rounds
func fixture(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New()
	add := func(s, p, o graph.Term) { g.Add(graph.Triple{S: s, P: p, O: o}) }

	ict, bio := graph.Res("ICT"), graph.Res("biotech")
	add(ict, graph.RDFType, graph.ClassIndustry)
	add(ict, graph.PropName, graph.Literal("ICT"))
	add(bio, graph.RDFType, graph.ClassIndustry)
	add(bio, graph.PropName, graph.Literal("biotech"))

	zurich, basel := graph.Res("Zurich"), graph.Res("Basel")
	add(zurich, graph.PropName, graph.Literal("Zurich"))
	add(basel, graph.PropName, graph.Literal("Basel"))

	round := func(c graph.Term, date, amount, phase string) {
		f := g.NewBlank()
		add(c, graph.PropHasFunding, f)
		add(f, graph.RDFType, graph.ClassFundingEvent)
		add(f, graph.PropRoundDate, graph.Typed(date, graph.XSDDate))
		add(f, graph.PropAmount, graph.Typed(amount, graph.XSDDecimal))
		if phase != "" {
			add(f, graph.PropPhase, graph.Literal(phase))
		}
	}

	alpha := graph.Res("Alpha")
	add(alpha, graph.RDFType, graph.ClassStartup)
	add(alpha, graph.PropName, graph.Literal("Alpha"))
	add(alpha, graph.PropHasIndustry, ict)
	add(alpha, graph.PropHasLocation, zurich)
	add(alpha, graph.PropFoundedIn, graph.Typed("2015", graph.XSDInteger))
	round(alpha, "2019-05-01", "1500000", "Seed")
	round(alpha, "2021-02-10", "10000000", "Series A")

	beta := graph.Res("Beta")
	add(beta, graph.RDFType, graph.ClassStartup)
	add(beta, graph.PropName, graph.Literal("Beta"))
	add(beta, graph.PropHasIndustry, ict)
	add(beta, graph.PropFoundedIn, graph.Typed("2018", graph.XSDInteger))
	round(beta, "2020-07-15", "3000000", "")

	gamma := graph.Res("Gamma")
	add(gamma, graph.RDFType, graph.ClassStartup)
	add(gamma, graph.PropName, graph.Literal("Gamma"))
	add(gamma, graph.PropHasIndustry, bio)
	add(gamma, graph.PropHasLocation, basel)
	return g
}

func run(t *testing.T, g *graph.Graph, src string) *Solutions {
	t.Helper()
	q, err := Parse(src)
	require.NoError(t, err)
	sol, err := Evaluate(context.Background(), q, g)
	require.NoError(t, err)
	return sol
}

func column(sol *Solutions, v string) []string {
	out := make([]string, len(sol.Rows))
	for i, r := range sol.Rows {
		out[i] = r[v].Value
	}
	return out
}

func TestEvaluateBasicJoin(t *testing.T) {
	sol := run(t, fixture(t), `SELECT ?name WHERE {
  ?c a ex:Startup ; ex:name ?name ; ex:hasIndustry ?i .
  ?i ex:name "ICT" .
} ORDER BY ?name`)
	assert.Equal(t, []string{"name"}, sol.Vars)
	assert.Equal(t, []string{"Alpha", "Beta"}, column(sol, "name"))
}

func TestEvaluateOptionalLeavesUnbound(t *testing.T) {
	sol := run(t, fixture(t), `SELECT ?name ?loc WHERE {
  ?c a ex:Startup ; ex:name ?name .
  OPTIONAL { ?c ex:hasLocation ?l . ?l ex:name ?loc }
} ORDER BY ?name`)
	require.Len(t, sol.Rows, 3)
	assert.Equal(t, "Zurich", sol.Rows[0]["loc"].Value)
	_, bound := sol.Rows[1]["loc"]
	assert.False(t, bound, "Beta has no location")
	assert.Equal(t, "Basel", sol.Rows[2]["loc"].Value)
}

func TestEvaluateFilterNumericAndDate(t *testing.T) {
	g := fixture(t)
	sol := run(t, g, `SELECT ?a WHERE { ?f ex:amount ?a FILTER(?a > 2000000) } ORDER BY ?a`)
	assert.Equal(t, []string{"3000000", "10000000"}, column(sol, "a"))

	sol = run(t, g, `SELECT ?d WHERE { ?f ex:round_date ?d FILTER(?d >= "2020-01-01"^^xsd:date) } ORDER BY DESC(?d)`)
	assert.Equal(t, []string{"2021-02-10", "2020-07-15"}, column(sol, "d"))

	sol = run(t, g, `SELECT ?d WHERE { ?f ex:round_date ?d FILTER(YEAR(?d) = 2019) }`)
	assert.Equal(t, []string{"2019-05-01"}, column(sol, "d"))
}

func TestEvaluateAggregates(t *testing.T) {
	sol := run(t, fixture(t), `SELECT ?industry (COUNT(?f) AS ?rounds) (SUM(?a) AS ?total) (AVG(?a) AS ?avg) (MAX(?a) AS ?max)
WHERE {
  ?c ex:hasIndustry ?i ; ex:hasFunding ?f .
  ?i ex:name ?industry .
  ?f ex:amount ?a .
}
GROUP BY ?industry`)
	require.Len(t, sol.Rows, 1)
	row := sol.Rows[0]
	assert.Equal(t, "ICT", row["industry"].Value)
	assert.Equal(t, graph.Typed("3", graph.XSDInteger), row["rounds"])
	assert.Equal(t, "14500000", row["total"].Value)
	avg, err := strconv.ParseFloat(row["avg"].Value, 64)
	require.NoError(t, err)
	assert.InDelta(t, 4833333.33, avg, 0.01)
	assert.Equal(t, "10000000", row["max"].Value)
}

func TestEvaluateCountWithoutGroup(t *testing.T) {
	g := fixture(t)
	sol := run(t, g, `SELECT (COUNT(*) AS ?n) WHERE { ?c a ex:Startup }`)
	require.Len(t, sol.Rows, 1)
	assert.Equal(t, "3", sol.Rows[0]["n"].Value)

	sol = run(t, g, `SELECT (COUNT(*) AS ?n) WHERE { ?c a ex:Nothing }`)
	require.Len(t, sol.Rows, 1)
	assert.Equal(t, "0", sol.Rows[0]["n"].Value)
}

func TestEvaluateGroupByExpressionAndHaving(t *testing.T) {
	sol := run(t, fixture(t), `SELECT ?year (COUNT(?f) AS ?n) WHERE {
  ?f ex:round_date ?d .
} GROUP BY (YEAR(?d) AS ?year) HAVING (COUNT(?f) >= 1) ORDER BY DESC(?year)`)
	assert.Equal(t, []string{"2021", "2020", "2019"}, column(sol, "year"))
}

func TestEvaluateUnionMinusValues(t *testing.T) {
	g := fixture(t)
	sol := run(t, g, `SELECT DISTINCT ?name WHERE {
  ?c ex:name ?name .
  { ?c ex:hasLocation res:Zurich } UNION { ?c ex:hasLocation res:Basel }
} ORDER BY ?name`)
	assert.Equal(t, []string{"Alpha", "Gamma"}, column(sol, "name"))

	sol = run(t, g, `SELECT ?name WHERE {
  ?c a ex:Startup ; ex:name ?name .
  MINUS { ?c ex:hasLocation ?l }
}`)
	assert.Equal(t, []string{"Beta"}, column(sol, "name"))

	sol = run(t, g, `SELECT ?name WHERE {
  VALUES ?c { res:Gamma res:Alpha }
  ?c ex:name ?name .
}`)
	assert.Equal(t, []string{"Gamma", "Alpha"}, column(sol, "name"))
}

func TestEvaluateExistsAndBind(t *testing.T) {
	sol := run(t, fixture(t), `SELECT ?name ?label WHERE {
  ?c a ex:Startup ; ex:name ?name .
  FILTER NOT EXISTS { ?c ex:hasFunding ?f }
  BIND(CONCAT(UCASE(?name), "-", STR(?c)) AS ?label)
}`)
	require.Len(t, sol.Rows, 1)
	assert.Equal(t, "Gamma", sol.Rows[0]["name"].Value)
	assert.Equal(t, "GAMMA-http://example.org/resource/Gamma", sol.Rows[0]["label"].Value)
}

func TestEvaluateRegexAndLimitOffset(t *testing.T) {
	sol := run(t, fixture(t), `SELECT ?name WHERE {
  ?c a ex:Startup ; ex:name ?name .
  FILTER(REGEX(?name, "^[ab]", "i"))
} ORDER BY ?name LIMIT 1 OFFSET 1`)
	assert.Equal(t, []string{"Beta"}, column(sol, "name"))
}

func TestEvaluateOrderUnboundFirst(t *testing.T) {
	sol := run(t, fixture(t), `SELECT ?name ?phase WHERE {
  ?c ex:name ?name ; ex:hasFunding ?f .
  OPTIONAL { ?f ex:phase ?phase }
} ORDER BY ?phase`)
	require.Len(t, sol.Rows, 3)
	_, bound := sol.Rows[0]["phase"]
	assert.False(t, bound)
	assert.Equal(t, "Seed", sol.Rows[1]["phase"].Value)
}

func TestEvaluateStarProjection(t *testing.T) {
	sol := run(t, fixture(t), `SELECT * WHERE { ?c ex:foundedIn ?y FILTER(?y < 2016) }`)
	assert.Equal(t, []string{"c", "y"}, sol.Vars)
	require.Len(t, sol.Rows, 1)
	assert.Equal(t, graph.Res("Alpha"), sol.Rows[0]["c"])
}

func TestEvaluateCancelled(t *testing.T) {
	q, err := Parse(`SELECT * WHERE { ?s ?p ?o }`)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Evaluate(ctx, q, fixture(t))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestEffectiveBool(t *testing.T) {
	tests := []struct {
		term    graph.Term
		want    bool
		wantErr bool
	}{
		{graph.Typed("true", graph.XSDBoolean), true, false},
		{graph.Typed("0", graph.XSDInteger), false, false},
		{graph.Typed("2.5", graph.XSDDecimal), true, false},
		{graph.Literal(""), false, false},
		{graph.Literal("x"), true, false},
		{graph.IRI("http://x"), false, true},
		{graph.Typed("2020-01-01", graph.XSDDate), false, true},
	}
	for _, tt := range tests {
		got, err := effectiveBool(tt.term)
		if tt.wantErr {
			assert.Error(t, err, tt.term.String())
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.term.String())
	}
}
