package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// migration upgrades the schema by one version. Entries are append-only.
type migration struct {
	version     int
	description string
	statements  []string
}

var migrations = []migration{
	{version: 1, description: "base schema"},
	{
		version:     2,
		description: "session and fallback columns on query_log",
		statements: []string{
			"ALTER TABLE query_log ADD COLUMN session_id TEXT DEFAULT ''",
			"ALTER TABLE query_log ADD COLUMN fallback INTEGER DEFAULT 0",
		},
	},
	{
		version:     3,
		description: "index query_log by session",
		statements: []string{
			"CREATE INDEX IF NOT EXISTS idx_query_log_session ON query_log(session_id, created_at)",
		},
	},
}

// SchemaVersion returns the highest applied migration, or 0 on a fresh
// database.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	var v int
	err := s.db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&v)
	if err != nil {
		return 0, fmt.Errorf("reading schema version: %w", err)
	}
	return v, nil
}

// Migrate applies every migration newer than the recorded version, each in
// its own transaction.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	current, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) apply(ctx context.Context, m migration) error {
	slog.Info("store: applying migration", "version", m.version, "description", m.description)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.version, err)
	}
	defer tx.Rollback()

	for _, stmt := range m.statements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			// Databases created before the version table may already
			// carry the column.
			if isDuplicateColumn(err) {
				slog.Debug("store: column exists", "version", m.version, "sql", stmt)
				continue
			}
			return fmt.Errorf("migration %d: %w", m.version, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, description) VALUES (?, ?)",
		m.version, m.description); err != nil {
		return fmt.Errorf("recording migration %d: %w", m.version, err)
	}
	return tx.Commit()
}

func isDuplicateColumn(err error) bool {
	return err != nil && strings.Contains(err.Error(), "duplicate column name")
}
