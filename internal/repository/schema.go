package repository

import (
	"context"
	"database/sql"
)

// Portable DDL: every statement is valid on both Postgres and SQLite, which
// keeps the embedded mode and the repository tests on the exact code paths
// production uses.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS documents (
		id            TEXT PRIMARY KEY,
		session_id    TEXT NOT NULL,
		file_name     TEXT NOT NULL,
		file_type     TEXT NOT NULL,
		file_size     BIGINT NOT NULL,
		storage_path  TEXT NOT NULL,
		content_hash  BYTEA NOT NULL,
		status        TEXT NOT NULL,
		status_error  TEXT,
		uploaded_at   TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_documents_session ON documents (session_id)`,

	`CREATE TABLE IF NOT EXISTS split_artifacts (
		id                  TEXT PRIMARY KEY,
		document_id         TEXT NOT NULL,
		session_id          TEXT NOT NULL,
		split_index         INTEGER NOT NULL,
		page_start          INTEGER NOT NULL,
		page_end            INTEGER NOT NULL,
		detected_form_type  TEXT NOT NULL,
		pdf_path            TEXT NOT NULL,
		ocr_text            TEXT NOT NULL,
		confidence          REAL NOT NULL,
		created_at          TIMESTAMP NOT NULL,
		UNIQUE (document_id, split_index)
	)`,

	`CREATE TABLE IF NOT EXISTS split_fields (
		split_id     TEXT NOT NULL,
		field_key    TEXT NOT NULL,
		field_value  TEXT NOT NULL,
		extracted_at TIMESTAMP NOT NULL,
		PRIMARY KEY (split_id, field_key)
	)`,

	`CREATE TABLE IF NOT EXISTS grouped_pdfs (
		session_id   TEXT NOT NULL,
		document_id  TEXT NOT NULL,
		form_type    TEXT NOT NULL,
		pdf_bytes    BYTEA NOT NULL,
		created_at   TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, document_id, form_type)
	)`,

	`CREATE TABLE IF NOT EXISTS grouped_texts (
		session_id   TEXT NOT NULL,
		document_id  TEXT NOT NULL,
		form_type    TEXT NOT NULL,
		ocr_text     TEXT NOT NULL,
		created_at   TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, document_id, form_type)
	)`,

	`CREATE TABLE IF NOT EXISTS grouped_fields (
		session_id   TEXT NOT NULL,
		document_id  TEXT NOT NULL,
		form_type    TEXT NOT NULL,
		fields_json  TEXT NOT NULL,
		created_at   TIMESTAMP NOT NULL,
		PRIMARY KEY (session_id, document_id, form_type)
	)`,

	// One group per split per document, enforced at the schema level.
	`CREATE TABLE IF NOT EXISTS group_members (
		session_id   TEXT NOT NULL,
		document_id  TEXT NOT NULL,
		form_type    TEXT NOT NULL,
		split_id     TEXT NOT NULL,
		PRIMARY KEY (session_id, document_id, split_id)
	)`,

	// Append-only: re-cataloging adds rows, reads resolve the most recent
	// per (document, form_type).
	`CREATE TABLE IF NOT EXISTS catalog_matches (
		id                     TEXT PRIMARY KEY,
		session_id             TEXT NOT NULL,
		document_id            TEXT NOT NULL,
		grouped_form_type      TEXT NOT NULL,
		matched_template_name  TEXT,
		matched_template_id    TEXT,
		confidence_score       DOUBLE PRECISION NOT NULL,
		cataloged_at           TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_catalog_doc ON catalog_matches (session_id, document_id)`,

	`CREATE TABLE IF NOT EXISTS templates (
		id        TEXT PRIMARY KEY,
		name      TEXT NOT NULL UNIQUE,
		category  TEXT NOT NULL,
		active    INTEGER NOT NULL
	)`,
}

// EnsureSchema creates all tables if missing. Safe to call on every start.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
