//go:build cgo

package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/brunobiangulo/fundgraph/graph"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTriples() []graph.Triple {
	acme := graph.Res("Acme_AG")
	round := graph.Blank("f1")
	return []graph.Triple{
		{S: acme, P: graph.RDFType, O: graph.ClassStartup},
		{S: acme, P: graph.PropName, O: graph.Literal("Acme AG")},
		{S: acme, P: graph.PropHasFunding, O: round},
		{S: round, P: graph.PropAmount, O: graph.Typed("1000000", graph.XSDDecimal)},
		{S: round, P: graph.PropRoundDate, O: graph.Typed("2019-03-01", graph.XSDDate)},
		{S: acme, P: graph.PropHighlights, O: graph.LangLiteral("Filter", "de")},
	}
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
	version, err := s.SchemaVersion(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if version != len(migrations) {
		t.Errorf("schema version = %d, want %d", version, len(migrations))
	}
}

func TestMigrateToleratesExistingColumns(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("ALTER TABLE query_log ADD COLUMN session_id TEXT DEFAULT ''"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("opening pre-migrated database: %v", err)
	}
	defer s.Close()
	if err := s.LogQuery(context.Background(), QueryLog{SessionID: "s1", Question: "q", Fallback: true}); err != nil {
		t.Fatalf("LogQuery after migration: %v", err)
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sub", "dir", "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := s.ReplaceTriples(ctx, sampleTriples(), IngestRun{}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer s.Close()
	n, err := s.TripleCount(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(sampleTriples()) {
		t.Errorf("TripleCount = %d, want %d", n, len(sampleTriples()))
	}
}

// ---------------------------------------------------------------------------
// Triples
// ---------------------------------------------------------------------------

func TestReplaceAndLoadGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	want := sampleTriples()

	run := IngestRun{CompaniesPath: "companies.xlsx", DealsPath: "deals.xlsx", Stats: map[string]int{"companies": 1}}
	if err := s.ReplaceTriples(ctx, want, run); err != nil {
		t.Fatalf("ReplaceTriples: %v", err)
	}

	g, err := s.LoadGraph(ctx)
	if err != nil {
		t.Fatalf("LoadGraph: %v", err)
	}
	got := g.Triples()
	if len(got) != len(want) {
		t.Fatalf("loaded %d triples, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("triple %d = %v, want %v", i, got[i], want[i])
		}
	}

	runs, err := s.IngestRuns(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Triples != len(want) || runs[0].CompaniesPath != "companies.xlsx" {
		t.Errorf("unexpected runs: %+v", runs)
	}
	stats, ok := runs[0].Stats.(map[string]any)
	if !ok || stats["companies"] != 1.0 {
		t.Errorf("run stats = %#v", runs[0].Stats)
	}
}

func TestReplaceTriplesReplaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.ReplaceTriples(ctx, sampleTriples(), IngestRun{}); err != nil {
		t.Fatal(err)
	}
	second := []graph.Triple{{S: graph.Res("Beta"), P: graph.PropName, O: graph.Literal("Beta")}}
	if err := s.ReplaceTriples(ctx, second, IngestRun{}); err != nil {
		t.Fatal(err)
	}
	g, err := s.LoadGraph(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if g.Len() != 1 {
		t.Fatalf("graph has %d triples after replace, want 1", g.Len())
	}
	stats, err := s.DBStats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats.Triples != 1 || stats.IngestRuns != 2 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestReplaceTriplesDeduplicates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	dup := append(sampleTriples(), sampleTriples()[0])
	if err := s.ReplaceTriples(ctx, dup, IngestRun{}); err != nil {
		t.Fatal(err)
	}
	n, _ := s.TripleCount(ctx)
	if n != len(sampleTriples()) {
		t.Errorf("TripleCount = %d, want %d", n, len(sampleTriples()))
	}
}

func TestReplaceTriplesCancelledKeepsPrevious(t *testing.T) {
	s := newTestStore(t)
	if err := s.ReplaceTriples(context.Background(), sampleTriples(), IngestRun{}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.ReplaceTriples(ctx, nil, IngestRun{}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
	n, _ := s.TripleCount(context.Background())
	if n != len(sampleTriples()) {
		t.Errorf("TripleCount = %d, want previous %d", n, len(sampleTriples()))
	}
}

// ---------------------------------------------------------------------------
// Query log
// ---------------------------------------------------------------------------

func TestLogQuery(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entries := []QueryLog{
		{SessionID: "s1", Question: "first", Query: "SELECT 1", TotalResults: 2, ModelUsed: "m"},
		{SessionID: "s1", Question: "second", Query: "SELECT 2", Repairs: []string{"industry_literal"},
			Error: "", Fallback: true, PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
	for _, e := range entries {
		if err := s.LogQuery(ctx, e); err != nil {
			t.Fatalf("LogQuery: %v", err)
		}
	}

	got, err := s.RecentQueries(ctx, 10)
	if err != nil {
		t.Fatalf("RecentQueries: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d entries, want 2", len(got))
	}
	latest := got[0]
	if latest.Question != "second" || !latest.Fallback || latest.TotalTokens != 15 {
		t.Errorf("latest entry = %+v", latest)
	}
	if len(latest.Repairs) != 1 || latest.Repairs[0] != "industry_literal" {
		t.Errorf("repairs = %v", latest.Repairs)
	}
	if got[1].Repairs != nil {
		t.Errorf("first entry repairs = %v, want nil", got[1].Repairs)
	}

	limited, err := s.RecentQueries(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 1 {
		t.Errorf("limit 1 returned %d", len(limited))
	}
}

func TestClosedStore(t *testing.T) {
	s := newTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	ctx := context.Background()
	if _, err := s.LoadGraph(ctx); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("LoadGraph error = %v", err)
	}
	if err := s.LogQuery(ctx, QueryLog{Question: "q"}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("LogQuery error = %v", err)
	}
	if err := s.ReplaceTriples(ctx, nil, IngestRun{}); !errors.Is(err, ErrStoreClosed) {
		t.Errorf("ReplaceTriples error = %v", err)
	}
}
