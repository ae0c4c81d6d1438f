package store

// schemaSQL is the DDL for the base tables.
const schemaSQL = `
-- Knowledge graph statements. Terms are stored by kind and lexical value.
CREATE TABLE IF NOT EXISTS triples (
    id INTEGER PRIMARY KEY,
    subject_kind INTEGER NOT NULL,
    subject TEXT NOT NULL,
    predicate TEXT NOT NULL,
    object_kind INTEGER NOT NULL,
    object TEXT NOT NULL,
    datatype TEXT NOT NULL DEFAULT '',
    lang TEXT NOT NULL DEFAULT '',
    UNIQUE(subject_kind, subject, predicate, object_kind, object, datatype, lang)
);

CREATE INDEX IF NOT EXISTS idx_triples_spo ON triples(subject, predicate, object);
CREATE INDEX IF NOT EXISTS idx_triples_pos ON triples(predicate, object, subject);
CREATE INDEX IF NOT EXISTS idx_triples_osp ON triples(object, subject, predicate);

-- Ingestion history
CREATE TABLE IF NOT EXISTS ingest_runs (
    id INTEGER PRIMARY KEY,
    companies_path TEXT NOT NULL,
    deals_path TEXT NOT NULL,
    triples INTEGER NOT NULL,
    stats JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);

-- Question audit log
CREATE TABLE IF NOT EXISTS query_log (
    id INTEGER PRIMARY KEY,
    question TEXT NOT NULL,
    query TEXT,
    total_results INTEGER DEFAULT 0,
    repairs JSON,
    error TEXT,
    model_used TEXT,
    prompt_tokens INTEGER DEFAULT 0,
    completion_tokens INTEGER DEFAULT 0,
    total_tokens INTEGER DEFAULT 0,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_query_log_created ON query_log(created_at);
`
