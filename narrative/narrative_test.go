package narrative

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/fundgraph/analysis"
	"github.com/brunobiangulo/fundgraph/executor"
	"github.com/brunobiangulo/fundgraph/llm"
	"github.com/brunobiangulo/fundgraph/llm/llmtest"
	"github.com/brunobiangulo/fundgraph/session"
)

type stubRunner struct {
	calls  int
	result executor.Result
}

func (s *stubRunner) Run(context.Context, string) executor.Result {
	s.calls++
	return s.result
}

func rowsResult(rows ...executor.Row) *executor.Rows { return &executor.Rows{Rows: rows} }

func dated(company, date, amount string) executor.Row {
	r := executor.Row{"company_name": executor.Str(company), "date": executor.Null, "amount": executor.Null}
	if date != "" {
		r["date"] = executor.Str(date)
	}
	if amount != "" {
		r["amount"] = executor.Str(amount)
	}
	return r
}

func TestComposeStandard(t *testing.T) {
	chat := llmtest.New("Two companies match.")
	h := session.New()
	out, err := New(chat, Config{}).Compose(context.Background(), h, Input{
		Question: "Which biotech startups exist?",
		Query:    "SELECT ?company_name WHERE { ?c ex:name ?company_name }",
		Result:   rowsResult(executor.Row{"company_name": executor.Str("A")}, executor.Row{"company_name": executor.Str("B")}),
	})
	require.NoError(t, err)
	assert.Equal(t, "Two companies match.", out.Text)
	assert.Equal(t, ShapeStandard, out.Shape)

	prompt := chat.LastPrompt()
	assert.Contains(t, prompt, "Total number of results: 2")
	assert.Contains(t, prompt, `"Which biotech startups exist?"`)
	assert.Equal(t, session.SeedLen+2, h.Len())
	last, _ := h.Last()
	assert.Equal(t, llm.Assistant("Two companies match."), last)
}

func TestComposeStandardLimitsRows(t *testing.T) {
	var rows []executor.Row
	for i := 0; i < 25; i++ {
		rows = append(rows, executor.Row{"company_name": executor.Str(fmt.Sprintf("company-%02d", i))})
	}
	chat := llmtest.New("ok")
	_, err := New(chat, Config{}).Compose(context.Background(), session.New(), Input{
		Question: "list", Query: "SELECT", Result: rowsResult(rows...),
	})
	require.NoError(t, err)
	assert.Contains(t, chat.LastPrompt(), "company-19")
	assert.NotContains(t, chat.LastPrompt(), "company-20")
	assert.Contains(t, chat.LastPrompt(), "Total number of results: 25")
}

func TestComposeTrend(t *testing.T) {
	chat := llmtest.New("Funding tripled.")
	out, err := New(chat, Config{}).Compose(context.Background(), session.New(), Input{
		Question: "How did cleantech funding evolve over time?",
		Query:    "SELECT ...",
		Result: rowsResult(
			dated("Acme AG", "2019-03-01", "1000000"),
			dated("Acme AG", "2021-06-15", "4000000"),
		),
	})
	require.NoError(t, err)
	assert.Equal(t, ShapeTrend, out.Shape)
	prompt := chat.LastPrompt()
	assert.Contains(t, prompt, `"total_funding_millions": 4`)
	assert.Contains(t, prompt, "from 2019 to 2021")
}

func TestComposeTrendWithoutYearsIsStandard(t *testing.T) {
	chat := llmtest.New("No dates.")
	out, err := New(chat, Config{}).Compose(context.Background(), session.New(), Input{
		Question: "Show the history of Acme",
		Query:    "SELECT ...",
		Result:   rowsResult(dated("Acme AG", "", "5")),
	})
	require.NoError(t, err)
	assert.Equal(t, ShapeStandard, out.Shape)
}

func TestComposeComparisonTakesPrecedence(t *testing.T) {
	chat := llmtest.New("Acme outperforms.")
	cmp := &analysis.Comparison{
		Companies: map[string]*analysis.CompanyProfile{
			"Acme AG": {Industry: "cleantech", TotalFunding: 5e6, FundingRounds: []analysis.FundingRound{{Amount: 5e6}}},
		},
		MarketTrends: map[string]*analysis.MarketTrend{"cleantech": {TotalCompanies: 3}},
	}
	out, err := New(chat, Config{}).Compose(context.Background(), session.New(), Input{
		Question:   "Compare Acme AG's funding growth",
		Query:      "SELECT ...",
		Result:     rowsResult(dated("Acme AG", "2019-01-01", "5000000")),
		Comparison: cmp,
	})
	require.NoError(t, err)
	assert.Equal(t, ShapeComparison, out.Shape)
	assert.Contains(t, chat.LastPrompt(), `"total_companies": 3`)
}

func TestComposeFallback(t *testing.T) {
	runner := &stubRunner{result: rowsResult(dated("Acme AG", "2019-03-01", "1000000"))}
	chat := llmtest.New("Direct data.")
	out, err := New(chat, Config{}).Compose(context.Background(), session.New(), Input{
		Question:   "cleantech funding",
		Query:      "SELECT generated",
		Result:     rowsResult(dated("Acme AG", "", "1"), dated("Beta", "", "2")),
		Industries: []string{"cleantech"},
		Runner:     runner,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)
	assert.True(t, out.Fallback)
	assert.Equal(t, ShapeFallback, out.Shape)
	assert.Equal(t, analysis.IndustryQuery("cleantech"), out.Query)
	require.Len(t, out.Rows, 1)
	assert.Contains(t, chat.LastPrompt(), "direct query for cleantech funding")
}

func TestComposeFallbackKeepsOriginalWhenDirectHasNoDates(t *testing.T) {
	runner := &stubRunner{result: rowsResult(dated("Acme AG", "", "1"))}
	chat := llmtest.New("As is.")
	out, err := New(chat, Config{}).Compose(context.Background(), session.New(), Input{
		Question:   "cleantech funding",
		Query:      "SELECT generated",
		Result:     rowsResult(dated("Acme AG", "", "1"), dated("Beta", "", "2")),
		Industries: []string{"cleantech"},
		Runner:     runner,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, runner.calls)
	assert.False(t, out.Fallback)
	assert.Equal(t, "SELECT generated", out.Query)
	assert.Len(t, out.Rows, 2)
}

func TestComposeFallbackNotTriggered(t *testing.T) {
	tests := []struct {
		name string
		in   Input
	}{
		{"not a funding question", Input{Question: "list cleantech", Result: rowsResult(dated("A", "", "1")), Industries: []string{"cleantech"}}},
		{"no rows", Input{Question: "cleantech funding", Result: rowsResult(), Industries: []string{"cleantech"}}},
		{"a date present", Input{Question: "cleantech funding", Result: rowsResult(dated("A", "", "1"), dated("B", "2020-01-01", "1")), Industries: []string{"cleantech"}}},
		{"no industry", Input{Question: "cleantech funding", Result: rowsResult(dated("A", "", "1"))}},
		{"no date column", Input{Question: "cleantech funding", Result: rowsResult(executor.Row{"company_name": executor.Str("A")}), Industries: []string{"cleantech"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &stubRunner{result: rowsResult(dated("Z", "2020-01-01", "1"))}
			tt.in.Runner = runner
			_, err := New(llmtest.New("x"), Config{}).Compose(context.Background(), session.New(), tt.in)
			require.NoError(t, err)
			assert.Zero(t, runner.calls)
		})
	}
}

func TestComposeFailure(t *testing.T) {
	chat := llmtest.New("The query failed.")
	out, err := New(chat, Config{}).Compose(context.Background(), session.New(), Input{
		Question: "funding?",
		Query:    "SELEC",
		Result:   &executor.Failure{Err: fmt.Errorf("%w: unexpected end", executor.ErrQueryExecution)},
	})
	require.NoError(t, err)
	assert.Equal(t, ShapeFailure, out.Shape)
	assert.Equal(t, "The query failed.", out.Text)
	assert.Contains(t, chat.LastPrompt(), "unexpected end")
}

func TestComposeLLMError(t *testing.T) {
	chat := &llmtest.Scripted{}
	chat.Push(llmtest.Reply{Err: llm.ErrUnavailable})
	_, err := New(chat, Config{}).Compose(context.Background(), session.New(), Input{
		Question: "q", Query: "SELECT", Result: rowsResult(),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrUnavailable))
}
