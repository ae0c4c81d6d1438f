// Package store persists the funding graph, ingestion runs and the question
// audit log in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/fundgraph/graph"
)

// ErrStoreClosed is returned by operations on a closed store.
var ErrStoreClosed = errors.New("fundgraph: store closed")

// QueryLog represents a row in the query_log table.
type QueryLog struct {
	ID               int64    `json:"id"`
	SessionID        string   `json:"session_id"`
	Question         string   `json:"question"`
	Query            string   `json:"query"`
	TotalResults     int      `json:"total_results"`
	Repairs          []string `json:"repairs,omitempty"`
	Error            string   `json:"error,omitempty"`
	Fallback         bool     `json:"fallback"`
	ModelUsed        string   `json:"model_used"`
	PromptTokens     int      `json:"prompt_tokens"`
	CompletionTokens int      `json:"completion_tokens"`
	TotalTokens      int      `json:"total_tokens"`
	CreatedAt        string   `json:"created_at"`
}

// IngestRun represents a row in the ingest_runs table.
type IngestRun struct {
	ID            int64  `json:"id"`
	CompaniesPath string `json:"companies_path"`
	DealsPath     string `json:"deals_path"`
	Triples       int    `json:"triples"`
	Stats         any    `json:"stats,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// Store wraps the SQLite database for all fundgraph persistence.
type Store struct {
	db     *sql.DB
	closed atomic.Bool
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) check() error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return nil
}

// --- Graph operations ---

// ReplaceTriples swaps the stored graph for triples and records the run, in
// one transaction. On error the previous graph is kept.
func (s *Store) ReplaceTriples(ctx context.Context, triples []graph.Triple, run IngestRun) error {
	if err := s.check(); err != nil {
		return err
	}
	statsJSON, _ := json.Marshal(run.Stats)
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM triples"); err != nil {
			return fmt.Errorf("clearing triples: %w", err)
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO triples (subject_kind, subject, predicate, object_kind, object, datatype, lang)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range triples {
			if _, err := stmt.ExecContext(ctx,
				int(t.S.Kind), t.S.Value, t.P.Value,
				int(t.O.Kind), t.O.Value, t.O.Datatype, t.O.Lang); err != nil {
				return fmt.Errorf("inserting %s: %w", t, err)
			}
		}

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO ingest_runs (companies_path, deals_path, triples, stats)
			VALUES (?, ?, ?, ?)
		`, run.CompaniesPath, run.DealsPath, len(triples), string(statsJSON)); err != nil {
			return fmt.Errorf("recording ingest run: %w", err)
		}
		return nil
	})
}

// LoadGraph reads every stored triple into a new in-memory graph.
func (s *Store) LoadGraph(ctx context.Context) (*graph.Graph, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_kind, subject, predicate, object_kind, object, datatype, lang
		FROM triples ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	g := graph.New()
	for rows.Next() {
		var (
			subjKind, objKind        int
			subj, pred, obj, dt, lng string
		)
		if err := rows.Scan(&subjKind, &subj, &pred, &objKind, &obj, &dt, &lng); err != nil {
			return nil, err
		}
		g.Add(graph.Triple{
			S: graph.Term{Kind: graph.Kind(subjKind), Value: subj},
			P: graph.IRI(pred),
			O: graph.Term{Kind: graph.Kind(objKind), Value: obj, Datatype: dt, Lang: lng},
		})
	}
	return g, rows.Err()
}

// TripleCount returns the number of stored triples.
func (s *Store) TripleCount(ctx context.Context) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM triples").Scan(&n)
	return n, err
}

// IngestRuns returns the n most recent ingestion runs, newest first.
func (s *Store) IngestRuns(ctx context.Context, n int) ([]IngestRun, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, companies_path, deals_path, triples, stats, created_at
		FROM ingest_runs ORDER BY id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []IngestRun
	for rows.Next() {
		var (
			r     IngestRun
			stats sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.CompaniesPath, &r.DealsPath, &r.Triples, &stats, &r.CreatedAt); err != nil {
			return nil, err
		}
		if stats.Valid && stats.String != "" && stats.String != "null" {
			var v map[string]any
			if json.Unmarshal([]byte(stats.String), &v) == nil {
				r.Stats = v
			}
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// --- Query log ---

// LogQuery writes an entry to the question audit log.
func (s *Store) LogQuery(ctx context.Context, q QueryLog) error {
	if err := s.check(); err != nil {
		return err
	}
	repairsJSON, _ := json.Marshal(q.Repairs)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO query_log (session_id, question, query, total_results, repairs, error, fallback,
			model_used, prompt_tokens, completion_tokens, total_tokens)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, q.SessionID, q.Question, q.Query, q.TotalResults, string(repairsJSON), q.Error, q.Fallback,
		q.ModelUsed, q.PromptTokens, q.CompletionTokens, q.TotalTokens)
	return err
}

// RecentQueries returns the n most recent log entries, newest first.
func (s *Store) RecentQueries(ctx context.Context, n int) ([]QueryLog, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(session_id, ''), question, COALESCE(query, ''), total_results,
			COALESCE(repairs, ''), COALESCE(error, ''), COALESCE(fallback, 0), COALESCE(model_used, ''),
			prompt_tokens, completion_tokens, total_tokens, created_at
		FROM query_log ORDER BY id DESC LIMIT ?
	`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueryLog
	for rows.Next() {
		var (
			q       QueryLog
			repairs string
		)
		if err := rows.Scan(&q.ID, &q.SessionID, &q.Question, &q.Query, &q.TotalResults,
			&repairs, &q.Error, &q.Fallback, &q.ModelUsed,
			&q.PromptTokens, &q.CompletionTokens, &q.TotalTokens, &q.CreatedAt); err != nil {
			return nil, err
		}
		if repairs != "" {
			_ = json.Unmarshal([]byte(repairs), &q.Repairs)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// DBStats holds row counts across the main tables.
type DBStats struct {
	Triples    int `json:"triples"`
	IngestRuns int `json:"ingest_runs"`
	Queries    int `json:"queries"`
}

// DBStats returns counts of triples, ingestion runs and logged questions.
func (s *Store) DBStats(ctx context.Context) (*DBStats, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM triples", &stats.Triples},
		{"SELECT COUNT(*) FROM ingest_runs", &stats.IngestRuns},
		{"SELECT COUNT(*) FROM query_log", &stats.Queries},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}
