package repository

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tradefin/docintake/internal/common"
	"github.com/tradefin/docintake/internal/entity"
)

// SplitRepository manages SplitArtifact rows and their field records.
type SplitRepository interface {
	// ReplaceForDocument replaces every split of the document in one
	// transaction, so a re-run never leaves rows from a prior span layout.
	ReplaceForDocument(ctx context.Context, documentID uuid.UUID, splits []*entity.SplitArtifact) error
	ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.SplitArtifact, error)
	// ReplaceFields supersedes (not appends) the field set of a split.
	ReplaceFields(ctx context.Context, splitID uuid.UUID, fields []entity.FieldRecord) error
	ListFields(ctx context.Context, splitID uuid.UUID) ([]entity.FieldRecord, error)
}

type splitRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewSplitRepository(db *sql.DB, log *slog.Logger) SplitRepository {
	if log == nil {
		log = slog.Default()
	}
	return &splitRepo{db: db, log: log}
}

func (r *splitRepo) ReplaceForDocument(ctx context.Context, documentID uuid.UUID, splits []*entity.SplitArtifact) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	docStr := documentID.String()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM split_fields WHERE split_id IN (SELECT id FROM split_artifacts WHERE document_id = $1)`,
		docStr); err != nil {
		return common.WrapError(err, "clear split fields")
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM split_artifacts WHERE document_id = $1`, docStr); err != nil {
		return common.WrapError(err, "clear splits")
	}

	now := time.Now().UTC()
	for _, s := range splits {
		if s.ID == uuid.Nil {
			s.ID = uuid.New()
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO split_artifacts
			   (id, document_id, session_id, split_index, page_start, page_end, detected_form_type, pdf_path, ocr_text, confidence, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			s.ID.String(), docStr, s.SessionID.String(), s.SplitIndex,
			s.PageRange.Start, s.PageRange.End, s.DetectedFormType,
			s.PDFPath, s.OCRText, s.Confidence, s.CreatedAt); err != nil {
			r.log.Error("split insert failed", "document_id", documentID, "split_index", s.SplitIndex, "error", err)
			return common.WrapError(err, "insert split")
		}
	}
	if err := tx.Commit(); err != nil {
		return common.WrapError(err, "commit splits")
	}
	r.log.Info("splits persisted", "document_id", documentID, "count", len(splits))
	return nil
}

func (r *splitRepo) ListByDocument(ctx context.Context, documentID uuid.UUID) ([]*entity.SplitArtifact, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, document_id, session_id, split_index, page_start, page_end, detected_form_type, pdf_path, ocr_text, confidence, created_at
		   FROM split_artifacts WHERE document_id = $1 ORDER BY split_index`,
		documentID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.SplitArtifact
	for rows.Next() {
		var (
			s                  entity.SplitArtifact
			idStr, docS, sessS string
			confidence         float64
		)
		if err := rows.Scan(&idStr, &docS, &sessS, &s.SplitIndex,
			&s.PageRange.Start, &s.PageRange.End, &s.DetectedFormType,
			&s.PDFPath, &s.OCRText, &confidence, &s.CreatedAt); err != nil {
			return nil, err
		}
		if s.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if s.DocumentID, err = uuid.Parse(docS); err != nil {
			return nil, err
		}
		if s.SessionID, err = uuid.Parse(sessS); err != nil {
			return nil, err
		}
		s.Confidence = float32(confidence)
		out = append(out, &s)
	}
	return out, rows.Err()
}

func (r *splitRepo) ReplaceFields(ctx context.Context, splitID uuid.UUID, fields []entity.FieldRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM split_fields WHERE split_id = $1`, splitID.String()); err != nil {
		return common.WrapError(err, "clear fields")
	}
	for _, f := range fields {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO split_fields (split_id, field_key, field_value, extracted_at) VALUES ($1, $2, $3, $4)`,
			splitID.String(), f.Key, f.Value, f.ExtractedAt); err != nil {
			return common.WrapError(err, "insert field")
		}
	}
	if err := tx.Commit(); err != nil {
		return common.WrapError(err, "commit fields")
	}
	r.log.Debug("fields persisted", "split_id", splitID, "count", len(fields))
	return nil
}

func (r *splitRepo) ListFields(ctx context.Context, splitID uuid.UUID) ([]entity.FieldRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT field_key, field_value, extracted_at FROM split_fields WHERE split_id = $1 ORDER BY field_key`,
		splitID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []entity.FieldRecord
	for rows.Next() {
		var f entity.FieldRecord
		if err := rows.Scan(&f.Key, &f.Value, &f.ExtractedAt); err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}
