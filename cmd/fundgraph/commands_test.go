package main

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/fundgraph"
	"github.com/brunobiangulo/fundgraph/executor"
	"github.com/brunobiangulo/fundgraph/graph"
	"github.com/brunobiangulo/fundgraph/industry"
	"github.com/brunobiangulo/fundgraph/ingest"
	"github.com/brunobiangulo/fundgraph/registry"
	"github.com/brunobiangulo/fundgraph/session"
	"github.com/brunobiangulo/fundgraph/store"
)

// stubEngine records what the commands asked of it.
type stubEngine struct {
	questions []string
	sessions  map[string]bool
	ingested  []string
	closed    bool
	askErr    error
}

func (s *stubEngine) Ask(_ context.Context, sess *session.History, q string, _ ...fundgraph.AskOption) (*fundgraph.Response, error) {
	if s.askErr != nil {
		return nil, s.askErr
	}
	s.questions = append(s.questions, q)
	if s.sessions == nil {
		s.sessions = map[string]bool{}
	}
	s.sessions[sess.ID] = true
	return &fundgraph.Response{
		Query:        "SELECT ?n WHERE { ?s ex:name ?n }",
		TotalResults: 2,
		LLMAnalysis:  "Two cleantech startups.",
		Shape:        "standard",
		Repairs:      []string{"industry_literal"},
	}, nil
}

func (s *stubEngine) NewSession() *session.History { return session.New() }

func (s *stubEngine) Run(_ context.Context, query string) executor.Result {
	if strings.Contains(query, "broken") {
		return &executor.Failure{Err: fmt.Errorf("%w: unexpected token", executor.ErrQueryExecution)}
	}
	return &executor.Rows{
		Vars: []string{"name", "city"},
		Rows: []executor.Row{
			{"name": executor.Str("Acme AG"), "city": executor.Str("Zurich")},
			{"name": executor.Str("Beta SA"), "city": executor.Null},
		},
	}
}

func (s *stubEngine) Ingest(_ context.Context, companies, deals string, opts ...fundgraph.IngestOption) (*ingest.Stats, error) {
	s.ingested = []string{companies, deals}
	return &ingest.Stats{Companies: 3, Deals: 5, Triples: 40}, nil
}

func (s *stubEngine) Reload(context.Context) error { return nil }

func (s *stubEngine) Describe(_ context.Context, company string, depth int) (*graph.Neighbourhood, error) {
	return &graph.Neighbourhood{Root: graph.NSRes + "Acme_AG", Name: company, Depth: depth}, nil
}

func (s *stubEngine) RegistryReport(_ context.Context, company string) (*registry.Report, error) {
	return &registry.Report{Company: company, UID: "CHE-123.456.789", Summary: "Founded 2009."}, nil
}

func (s *stubEngine) Industries() []string { return industry.Canonical() }

func (s *stubEngine) GraphStats() graph.Stats { return graph.Stats{} }

func (s *stubEngine) RecentQueries(_ context.Context, n int) ([]store.QueryLog, error) {
	return []store.QueryLog{{ID: 7, Question: fmt.Sprintf("asked with limit %d", n), TotalResults: 4}}, nil
}

func (s *stubEngine) Store() *store.Store { return nil }

func (s *stubEngine) Close() error {
	s.closed = true
	return nil
}

func run(t *testing.T, e *stubEngine, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("FUNDGRAPH_LOG_LEVEL", "error")
	root := newRootCmd(func(fundgraph.Config, ...fundgraph.Option) (fundgraph.Engine, error) {
		return e, nil
	})
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&bytes.Buffer{})
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestAskSingleQuestion(t *testing.T) {
	e := &stubEngine{}
	out, err := run(t, e, "", "ask", "--show-query", "List", "cleantech", "startups")
	require.NoError(t, err)
	assert.Equal(t, []string{"List cleantech startups"}, e.questions)
	assert.Contains(t, out, "SELECT ?n")
	assert.Contains(t, out, "Two cleantech startups.")
	assert.Contains(t, out, "(2 rows; standard; repairs: industry_literal)")
	assert.True(t, e.closed)
}

func TestAskInteractiveKeepsOneSession(t *testing.T) {
	e := &stubEngine{}
	out, err := run(t, e, "first question\n\nsecond question\nexit\nnever asked\n", "ask")
	require.NoError(t, err)
	assert.Equal(t, []string{"first question", "second question"}, e.questions)
	assert.Len(t, e.sessions, 1)
	assert.Contains(t, out, `Type "exit" to quit.`)
}

func TestAskInteractiveSurvivesUnavailableModel(t *testing.T) {
	e := &stubEngine{askErr: fmt.Errorf("%w: connection refused", fundgraph.ErrLLMUnavailable)}
	out, err := run(t, e, "one\nquit\n", "ask")
	require.NoError(t, err)
	assert.Contains(t, out, "error: fundgraph: LLM provider unavailable: connection refused")
}

func TestIngest(t *testing.T) {
	e := &stubEngine{}
	out, err := run(t, e, "", "ingest", "companies.xlsx", "deals.xlsx", "--turtle", "graph.ttl")
	require.NoError(t, err)
	assert.Equal(t, []string{"companies.xlsx", "deals.xlsx"}, e.ingested)
	assert.Equal(t, "ingested 3 companies and 5 deals (40 triples)\n", out)

	_, err = run(t, &stubEngine{}, "", "ingest", "only-one.xlsx")
	assert.Error(t, err)
}

func TestSPARQL(t *testing.T) {
	out, err := run(t, &stubEngine{}, "", "sparql", "SELECT ?name ?city WHERE { ?s ex:name ?name }")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"name", "city"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"Acme", "AG", "Zurich"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"Beta", "SA"}, strings.Fields(lines[2]))
	assert.Equal(t, "(2 rows)", lines[3])

	_, err = run(t, &stubEngine{}, "", "sparql", "broken")
	assert.ErrorIs(t, err, executor.ErrQueryExecution)

	_, err = run(t, &stubEngine{}, "", "sparql")
	assert.Error(t, err)
}

func TestDescribeRegistryAndListings(t *testing.T) {
	out, err := run(t, &stubEngine{}, "", "describe", "Acme AG", "--depth", "3")
	require.NoError(t, err)
	assert.Contains(t, out, `"depth": 3`)

	_, err = run(t, &stubEngine{}, "", "describe", "Acme AG", "--depth", "9")
	assert.Error(t, err)

	out, err = run(t, &stubEngine{}, "", "registry", "Climeworks")
	require.NoError(t, err)
	assert.Contains(t, out, "Climeworks (CHE-123.456.789)")

	out, err = run(t, &stubEngine{}, "", "industries")
	require.NoError(t, err)
	assert.Equal(t, strings.Join(industry.Canonical(), "\n")+"\n", out)

	out, err = run(t, &stubEngine{}, "", "queries", "--limit", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "asked with limit 3")
}

func TestInvalidLogLevel(t *testing.T) {
	_, err := run(t, &stubEngine{}, "", "--log-level", "chatty", "industries")
	assert.ErrorIs(t, err, fundgraph.ErrInvalidConfig)
}
