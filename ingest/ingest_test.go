package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/brunobiangulo/fundgraph/graph"
	"github.com/brunobiangulo/fundgraph/parser"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func companiesTable() *parser.Table {
	return &parser.Table{
		Header: []string{"Title", "Year", "Highlights", "Industry", "Canton", "City"},
		Rows: [][]string{
			{"Acme AG", "2015.0", "Filters CO2", "cleantech", "Zürich", "Winterthur"},
			{"", "2020", "", "", "", ""},
			{"Beta SA", "", "", "medtech", "", "Lausanne"},
		},
	}
}

func dealsTable() *parser.Table {
	return &parser.Table{
		Header: []string{"Company", "Phase", "Type", "Amount", "Amount confidential", "Valuation", "Date of the funding round", "Investors"},
		Rows: [][]string{
			{"Acme AG", "Seed", "Equity", "CHF 1.5", "no", "12,000,000", "2019-03-01", "Zürcher Kantonalbank"},
			{"Acme AG", "Series A", "", "4", "yes", "", "03/15/2021", "n.a."},
			{"Beta SA", "", "", "n.a.", "", "", "31.12.2020", ""},
		},
	}
}

func TestConvertTables(t *testing.T) {
	g, st := ConvertTables(companiesTable(), dealsTable())

	assert.Equal(t, 2, st.Companies)
	assert.Equal(t, 3, st.Deals)
	assert.Equal(t, 1, st.SkippedRows)
	assert.Equal(t, 1, st.Confidential)
	assert.Equal(t, 1, st.UnparsedDates)
	assert.Equal(t, 1, st.UnparsedValues)
	assert.Equal(t, g.Len(), st.Triples)

	acme := graph.Res("Acme_AG")
	year, ok := g.Value(acme, graph.PropFoundedIn)
	require.True(t, ok)
	assert.Equal(t, graph.Typed("2015", graph.XSDInteger), year)

	ind, ok := g.Value(acme, graph.PropHasIndustry)
	require.True(t, ok)
	assert.Equal(t, graph.Res("industry-cleantech"), ind)

	locs := g.Objects(acme, graph.PropHasLocation)
	assert.ElementsMatch(t, []graph.Term{graph.Res("canton-Z_rich"), graph.Res("city-Winterthur")}, locs)
	parent, ok := g.Value(graph.Res("city-Winterthur"), graph.PropPartOf)
	require.True(t, ok)
	assert.Equal(t, graph.Res("canton-Z_rich"), parent)
	name, _ := g.Value(graph.Res("canton-Z_rich"), graph.PropName)
	assert.Equal(t, "Zürich", name.Value)

	// A city without a canton is ignored.
	assert.Empty(t, g.Objects(graph.Res("Beta_SA"), graph.PropHasLocation))

	rounds := g.Objects(acme, graph.PropHasFunding)
	require.Len(t, rounds, 2)
	seed := rounds[0]
	amount, ok := g.Value(seed, graph.PropAmount)
	require.True(t, ok)
	assert.Equal(t, graph.Typed("1500000", graph.XSDDecimal), amount)
	val, _ := g.Value(seed, graph.PropValuation)
	assert.Equal(t, "12000000", val.Value)
	date, _ := g.Value(seed, graph.PropRoundDate)
	assert.Equal(t, graph.Typed("2019-03-01", graph.XSDDate), date)
	inv, ok := g.Value(seed, graph.PropInvestor)
	require.True(t, ok)
	assert.Equal(t, graph.Res("investor-Z_rcher_Kantonalbank"), inv)

	seriesA := rounds[1]
	_, ok = g.Value(seriesA, graph.PropAmount)
	assert.False(t, ok, "confidential amounts are not stored")
	date, _ = g.Value(seriesA, graph.PropRoundDate)
	assert.Equal(t, "2021-03-15", date.Value)
	_, ok = g.Value(seriesA, graph.PropInvestor)
	assert.False(t, ok)
	assert.Empty(t, g.Match(graph.Term{}, graph.PropName, graph.Literal("n.a.")))

	typ, _ := g.Value(seriesA, graph.RDFType)
	assert.Equal(t, graph.ClassFundingEvent, typ)
	assert.Empty(t, g.Match(graph.Term{}, graph.Ex("date"), graph.Term{}))
}

func TestParseDate(t *testing.T) {
	tests := []struct {
		in, want string
		ok       bool
	}{
		{"2019-03-01", "2019-03-01", true},
		{"03/15/2021", "2021-03-15", true},
		{"3/5/2021", "2021-03-05", true},
		{"25/12/2020", "2020-12-25", true},
		{"01/02/2020", "2020-01-02", true},
		{"31.12.2020", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := ParseDate(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseAmount(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"1.5", 1.5e6, true},
		{"CHF 12", 12e6, true},
		{"0.25 Mio", 0.25e6, true},
		{"n.a.", 0, false},
		{"confidential", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseAmount(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.InDelta(t, tt.want, got, 1e-6, tt.in)
	}
}

func TestURISafe(t *testing.T) {
	assert.Equal(t, "Climeworks_AG", URISafe("Climeworks AG"))
	assert.Equal(t, "a-b_c__d", URISafe("a-b_c.&d"))
	assert.Equal(t, graph.Res("Acme_AG"), StartupIRI("Acme AG"))
}

func TestCellCaseInsensitive(t *testing.T) {
	rec := parser.Record{" title ": " Acme AG "}
	assert.Equal(t, "Acme AG", cell(rec, ColTitle))
	assert.Equal(t, "", cell(rec, ColYear))
}

func TestConvertFromFiles(t *testing.T) {
	dir := t.TempDir()
	companies := filepath.Join(dir, "companies.csv")
	deals := filepath.Join(dir, "deals.csv")
	require.NoError(t, os.WriteFile(companies, []byte("Title,Year,Highlights,Industry,Canton,City\nAcme AG,2015,,cleantech,,\n"), 0o644))
	require.NoError(t, os.WriteFile(deals, []byte("Company,Phase,Type,Amount,Amount confidential,Valuation,Date of the funding round,Investors\nAcme AG,Seed,,1,no,,2019-03-01,n.a.\nAcme AG,,,4,no,,2021-06-15,n.a.\n"), 0o644))

	g, st, err := New(nil, Config{}).Convert(context.Background(), companies, deals)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Companies)
	assert.Equal(t, 2, st.Deals)
	assert.Len(t, g.Match(graph.Term{}, graph.PropAmount, graph.Term{}), 2)
}

func TestConvertMissingFile(t *testing.T) {
	dir := t.TempDir()
	deals := filepath.Join(dir, "deals.csv")
	require.NoError(t, os.WriteFile(deals, []byte("Company\nAcme AG\n"), 0o644))

	_, _, err := New(nil, Config{}).Convert(context.Background(), filepath.Join(dir, "missing.csv"), deals)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading companies")
}

func TestConvertUnsupportedFormat(t *testing.T) {
	_, _, err := New(nil, Config{}).Convert(context.Background(), "companies.json", "deals.json")
	assert.ErrorIs(t, err, parser.ErrUnsupportedFormat)
}
