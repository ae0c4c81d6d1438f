package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/fundgraph"
	"github.com/brunobiangulo/fundgraph/executor"
	"github.com/brunobiangulo/fundgraph/graph"
	"github.com/brunobiangulo/fundgraph/ingest"
	"github.com/brunobiangulo/fundgraph/registry"
	"github.com/brunobiangulo/fundgraph/session"
	"github.com/brunobiangulo/fundgraph/store"
)

// fakeEngine answers from canned values and records the sessions it saw.
type fakeEngine struct {
	askErr   error
	sessions []string
}

func (f *fakeEngine) Ask(_ context.Context, sess *session.History, question string, _ ...fundgraph.AskOption) (*fundgraph.Response, error) {
	f.sessions = append(f.sessions, sess.ID)
	if f.askErr != nil {
		return nil, f.askErr
	}
	return &fundgraph.Response{
		SessionID:    sess.ID,
		Question:     question,
		Query:        "SELECT ?n WHERE { ?c ex:name ?n }",
		RawResults:   []executor.Row{{"n": executor.Str("Acme AG")}},
		TotalResults: 1,
		LLMAnalysis:  "One company.",
	}, nil
}

func (f *fakeEngine) NewSession() *session.History { return session.New() }

func (f *fakeEngine) Run(_ context.Context, query string) executor.Result {
	if strings.Contains(query, "broken") {
		return &executor.Failure{Err: fmt.Errorf("%w: parse error", executor.ErrQueryExecution)}
	}
	return &executor.Rows{Vars: []string{"n"}, Rows: []executor.Row{{"n": executor.Str("Acme AG")}}}
}

func (f *fakeEngine) Ingest(context.Context, string, string, ...fundgraph.IngestOption) (*ingest.Stats, error) {
	return &ingest.Stats{Companies: 1, Deals: 2, Triples: 12}, nil
}

func (f *fakeEngine) Reload(context.Context) error { return nil }

func (f *fakeEngine) Describe(_ context.Context, company string, depth int) (*graph.Neighbourhood, error) {
	if company != "Acme AG" {
		return nil, fundgraph.ErrCompanyNotFound
	}
	return &graph.Neighbourhood{Root: graph.NSRes + "Acme_AG", Name: company, Depth: depth}, nil
}

func (f *fakeEngine) RegistryReport(_ context.Context, company string) (*registry.Report, error) {
	switch company {
	case "Climeworks":
		return nil, fmt.Errorf("fetching: %w", fundgraph.ErrDocumentNotFound)
	case "Down":
		return nil, fundgraph.ErrLLMUnavailable
	}
	return &registry.Report{Company: company, UID: "CHE-1", Summary: "ok"}, nil
}

func (f *fakeEngine) Industries() []string { return []string{"cleantech", "medtech"} }

func (f *fakeEngine) GraphStats() graph.Stats { return graph.Stats{Triples: 12} }

func (f *fakeEngine) RecentQueries(_ context.Context, n int) ([]store.QueryLog, error) {
	return []store.QueryLog{{ID: 1, Question: fmt.Sprintf("limit %d", n)}}, nil
}

func (f *fakeEngine) Store() *store.Store { return nil }
func (f *fakeEngine) Close() error        { return nil }

func newTestServer(t *testing.T, e fundgraph.Engine, apiKey string) (*handler, http.Handler) {
	t.Helper()
	h := newHandler(e)
	return h, newRouter(h, prometheus.NewRegistry(), apiKey, "")
}

func do(t *testing.T, srv http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	var out map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestAskCreatesAndReusesSessions(t *testing.T) {
	fe := &fakeEngine{}
	_, srv := newTestServer(t, fe, "")

	rec, out := do(t, srv, "POST", "/ask", `{"question":"List startups"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, out["total_results"])
	assert.Equal(t, "One company.", out["llm_analysis"])
	first := out["session_id"].(string)

	rec, out = do(t, srv, "POST", "/ask", `{"session_id":"`+first+`","question":"And medtech?"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, first, out["session_id"])
	assert.Equal(t, []string{first, first}, fe.sessions)

	rec, _ = do(t, srv, "POST", "/ask", `{"session_id":"nope","question":"x"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, srv, "POST", "/ask", `{"question":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, srv, "POST", "/ask", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAskLLMUnavailable(t *testing.T) {
	_, srv := newTestServer(t, &fakeEngine{askErr: fmt.Errorf("%w: timeout", fundgraph.ErrLLMUnavailable)}, "")
	rec, out := do(t, srv, "POST", "/ask", `{"question":"x"}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "language model unavailable", out["error"])

	_, srv = newTestServer(t, &fakeEngine{askErr: errors.New("boom")}, "")
	rec, _ = do(t, srv, "POST", "/ask", `{"question":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSessions(t *testing.T) {
	_, srv := newTestServer(t, &fakeEngine{}, "")
	rec, out := do(t, srv, "POST", "/sessions", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	id := out["session_id"].(string)

	rec, out = do(t, srv, "GET", "/sessions/"+id+"/history", "")
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := out["messages"].([]any)
	assert.Len(t, msgs, session.SeedLen)

	rec, _ = do(t, srv, "GET", "/sessions/unknown/history", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSPARQL(t *testing.T) {
	_, srv := newTestServer(t, &fakeEngine{}, "")
	rec, out := do(t, srv, "POST", "/sparql", `{"query":"SELECT ?n WHERE { ?c ex:name ?n }"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, out["total_results"])

	rec, out = do(t, srv, "POST", "/sparql", `{"query":"broken"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, out["error"], "query execution failed")
}

func TestIngestJSONValidatesPaths(t *testing.T) {
	_, srv := newTestServer(t, &fakeEngine{}, "")
	rec, out := do(t, srv, "POST", "/ingest", `{"companies":"/does/not/exist.xlsx","deals":"/also/missing.xlsx"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, out["error"], "companies")
}

func TestDescribeAndRegistry(t *testing.T) {
	_, srv := newTestServer(t, &fakeEngine{}, "")

	rec, out := do(t, srv, "GET", "/companies/Acme%20AG?depth=3", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Acme AG", out["name"])
	assert.Equal(t, 3.0, out["depth"])

	rec, _ = do(t, srv, "GET", "/companies/Nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, srv, "GET", "/companies/Acme%20AG?depth=9", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, out = do(t, srv, "GET", "/companies/Swissdrones/registry", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CHE-1", out["uid"])

	rec, _ = do(t, srv, "GET", "/companies/Climeworks/registry", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = do(t, srv, "GET", "/companies/Down/registry", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestListingRoutes(t *testing.T) {
	_, srv := newTestServer(t, &fakeEngine{}, "")

	rec, out := do(t, srv, "GET", "/industries", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"cleantech", "medtech"}, out["industries"])

	rec, out = do(t, srv, "GET", "/queries?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	q := out["queries"].([]any)[0].(map[string]any)
	assert.Equal(t, "limit 5", q["question"])

	rec, out = do(t, srv, "GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
}

func TestAuthAndRequestID(t *testing.T) {
	_, srv := newTestServer(t, &fakeEngine{}, "secret")

	rec, _ := do(t, srv, "GET", "/industries", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = do(t, srv, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(requestIDHeader))

	req := httptest.NewRequest("GET", "/industries", nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set(requestIDHeader, "req-42")
	rr := httptest.NewRecorder()
	srv.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "req-42", rr.Header().Get(requestIDHeader))

	rec, _ = do(t, srv, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	srv := newRouter(newHandler(&fakeEngine{}), prometheus.NewRegistry(), "", "https://app.example.ch, https://admin.example.ch")

	req := httptest.NewRequest(http.MethodOptions, "/ask", nil)
	req.Header.Set("Origin", "https://admin.example.ch")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://admin.example.ch", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
