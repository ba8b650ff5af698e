package repository

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tradefin/docintake/constants"
	"github.com/tradefin/docintake/internal/common"
	"github.com/tradefin/docintake/internal/entity"
)

// DocumentRepository manages rows in documents, including the synchronous
// cascade delete over all downstream pipeline tables.
type DocumentRepository interface {
	// Register inserts a document unless an identical content hash already
	// exists in the session; returns the stored row and whether it was
	// deduplicated against an existing one.
	Register(ctx context.Context, doc *entity.Document) (*entity.Document, bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*entity.Document, error)
	SetStatus(ctx context.Context, id uuid.UUID, status constants.DocumentStatus, statusErr *string) error
	// Delete removes the document and every SplitArtifact, field, group and
	// CatalogMatch row referencing it, in one transaction.
	Delete(ctx context.Context, id uuid.UUID) error
}

type documentRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewDocumentRepository(db *sql.DB, log *slog.Logger) DocumentRepository {
	if log == nil {
		log = slog.Default()
	}
	return &documentRepo{db: db, log: log}
}

func (r *documentRepo) Register(ctx context.Context, doc *entity.Document) (*entity.Document, bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, content_hash FROM documents WHERE session_id = $1`,
		doc.SessionID.String())
	if err != nil {
		r.log.Error("document register query failed", "session_id", doc.SessionID, "error", err)
		return nil, false, common.WrapError(err, "register document")
	}
	defer rows.Close()
	for rows.Next() {
		var idStr string
		var hash []byte
		if err := rows.Scan(&idStr, &hash); err != nil {
			return nil, false, err
		}
		if bytes.Equal(hash, doc.ContentHash) {
			existing, err := r.getByIDStr(ctx, idStr)
			if err != nil {
				return nil, false, err
			}
			r.log.Info("duplicate upload detected", "session_id", doc.SessionID, "existing_id", idStr)
			return existing, true, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, false, err
	}

	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	if doc.UploadedAt.IsZero() {
		doc.UploadedAt = time.Now().UTC()
	}
	if doc.Status == "" {
		doc.Status = constants.DocStatusUploaded
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO documents
		   (id, session_id, file_name, file_type, file_size, storage_path, content_hash, status, status_error, uploaded_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		doc.ID.String(), doc.SessionID.String(), doc.FileName, doc.FileType, doc.FileSize,
		doc.StoragePath, doc.ContentHash, string(doc.Status), doc.StatusError, doc.UploadedAt)
	if err != nil {
		r.log.Error("document insert failed", "document_id", doc.ID, "error", err)
		return nil, false, common.WrapError(err, "insert document")
	}
	r.log.Info("document registered", "document_id", doc.ID, "session_id", doc.SessionID, "file", doc.FileName)
	return doc, false, nil
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	return r.getByIDStr(ctx, id.String())
}

func (r *documentRepo) getByIDStr(ctx context.Context, id string) (*entity.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, session_id, file_name, file_type, file_size, storage_path, content_hash, status, status_error, uploaded_at
		   FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("DOCUMENT_NOT_FOUND", "document "+id, common.ErrNotFound)
	}
	return doc, err
}

func (r *documentRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*entity.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, file_name, file_type, file_size, storage_path, content_hash, status, status_error, uploaded_at
		   FROM documents WHERE session_id = $1 ORDER BY uploaded_at, id`, sessionID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*entity.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	return out, rows.Err()
}

func (r *documentRepo) SetStatus(ctx context.Context, id uuid.UUID, status constants.DocumentStatus, statusErr *string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = $1, status_error = $2 WHERE id = $3`,
		string(status), statusErr, id.String())
	if err != nil {
		r.log.Error("status update failed", "document_id", id, "status", status, "error", err)
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.NewAppError("DOCUMENT_NOT_FOUND", "document "+id.String(), common.ErrNotFound)
	}
	r.log.Debug("document status", "document_id", id, "status", status)
	return nil
}

func (r *documentRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	idStr := id.String()
	for _, stmt := range []string{
		`DELETE FROM split_fields WHERE split_id IN (SELECT id FROM split_artifacts WHERE document_id = $1)`,
		`DELETE FROM split_artifacts WHERE document_id = $1`,
		`DELETE FROM group_members WHERE document_id = $1`,
		`DELETE FROM grouped_pdfs WHERE document_id = $1`,
		`DELETE FROM grouped_texts WHERE document_id = $1`,
		`DELETE FROM grouped_fields WHERE document_id = $1`,
		`DELETE FROM catalog_matches WHERE document_id = $1`,
		`DELETE FROM documents WHERE id = $1`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, idStr); err != nil {
			r.log.Error("cascade delete failed", "document_id", id, "error", err)
			return common.NewAppError("CASCADE_DELETE", "delete document "+idStr, common.ErrDataIntegrity)
		}
	}
	if err := tx.Commit(); err != nil {
		return common.NewAppError("CASCADE_DELETE", "commit delete "+idStr, common.ErrDataIntegrity)
	}
	r.log.Info("document deleted", "document_id", id)
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*entity.Document, error) {
	var (
		d          entity.Document
		idStr      string
		sessionStr string
		status     string
	)
	err := row.Scan(&idStr, &sessionStr, &d.FileName, &d.FileType, &d.FileSize,
		&d.StoragePath, &d.ContentHash, &status, &d.StatusError, &d.UploadedAt)
	if err != nil {
		return nil, err
	}
	if d.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	if d.SessionID, err = uuid.Parse(sessionStr); err != nil {
		return nil, err
	}
	d.Status = constants.DocumentStatus(status)
	return &d, nil
}
