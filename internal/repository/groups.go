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

// GroupRepository manages the three group-scoped tables plus membership.
type GroupRepository interface {
	// ReplaceForDocument replaces every group of the document in one
	// transaction (re-grouping never leaves rows from a prior run).
	ReplaceForDocument(ctx context.Context, sessionID, documentID uuid.UUID, groups []*entity.Group) error
	ListByDocument(ctx context.Context, sessionID, documentID uuid.UUID) ([]*entity.Group, error)
	// Rename updates every row keyed by (session, document, oldName) across
	// grouped_pdfs, grouped_texts, grouped_fields, group_members, the
	// member splits' detected_form_type, and catalog_matches — atomically.
	// Partial application surfaces as ErrDataIntegrity, never silently.
	Rename(ctx context.Context, sessionID, documentID uuid.UUID, oldName, newName string) error
}

type groupRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewGroupRepository(db *sql.DB, log *slog.Logger) GroupRepository {
	if log == nil {
		log = slog.Default()
	}
	return &groupRepo{db: db, log: log}
}

func (r *groupRepo) ReplaceForDocument(ctx context.Context, sessionID, documentID uuid.UUID, groups []*entity.Group) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sessStr, docStr := sessionID.String(), documentID.String()
	for _, table := range []string{"group_members", "grouped_pdfs", "grouped_texts", "grouped_fields"} {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM `+table+` WHERE session_id = $1 AND document_id = $2`, sessStr, docStr); err != nil {
			return common.WrapError(err, "clear "+table)
		}
	}

	now := time.Now().UTC()
	for _, g := range groups {
		if g.CreatedAt.IsZero() {
			g.CreatedAt = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO grouped_pdfs (session_id, document_id, form_type, pdf_bytes, created_at) VALUES ($1, $2, $3, $4, $5)`,
			sessStr, docStr, g.FormType, g.PDFBytes, g.CreatedAt); err != nil {
			return common.WrapError(err, "insert grouped pdf")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO grouped_texts (session_id, document_id, form_type, ocr_text, created_at) VALUES ($1, $2, $3, $4, $5)`,
			sessStr, docStr, g.FormType, g.OCRText, g.CreatedAt); err != nil {
			return common.WrapError(err, "insert grouped text")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO grouped_fields (session_id, document_id, form_type, fields_json, created_at) VALUES ($1, $2, $3, $4, $5)`,
			sessStr, docStr, g.FormType, string(g.FieldsJSON), g.CreatedAt); err != nil {
			return common.WrapError(err, "insert grouped fields")
		}
		for _, splitID := range g.MemberIDs {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO group_members (session_id, document_id, form_type, split_id) VALUES ($1, $2, $3, $4)`,
				sessStr, docStr, g.FormType, splitID.String()); err != nil {
				// PK (session, document, split) trips when a split would
				// land in two groups.
				return common.NewAppError("GROUP_EXCLUSIVITY", "split "+splitID.String()+" already grouped", common.ErrDataIntegrity)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return common.WrapError(err, "commit groups")
	}
	r.log.Info("groups persisted", "document_id", documentID, "count", len(groups))
	return nil
}

func (r *groupRepo) ListByDocument(ctx context.Context, sessionID, documentID uuid.UUID) ([]*entity.Group, error) {
	sessStr, docStr := sessionID.String(), documentID.String()
	rows, err := r.db.QueryContext(ctx,
		`SELECT p.form_type, p.pdf_bytes, t.ocr_text, f.fields_json, p.created_at
		   FROM grouped_pdfs p
		   JOIN grouped_texts t ON t.session_id = p.session_id AND t.document_id = p.document_id AND t.form_type = p.form_type
		   JOIN grouped_fields f ON f.session_id = p.session_id AND f.document_id = p.document_id AND f.form_type = p.form_type
		  WHERE p.session_id = $1 AND p.document_id = $2
		  ORDER BY p.form_type`, sessStr, docStr)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Group
	for rows.Next() {
		g := &entity.Group{SessionID: sessionID, DocumentID: documentID}
		var fieldsJSON string
		if err := rows.Scan(&g.FormType, &g.PDFBytes, &g.OCRText, &fieldsJSON, &g.CreatedAt); err != nil {
			return nil, err
		}
		g.FieldsJSON = []byte(fieldsJSON)
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, g := range out {
		members, err := r.listMembers(ctx, sessStr, docStr, g.FormType)
		if err != nil {
			return nil, err
		}
		g.MemberIDs = members
	}
	return out, nil
}

func (r *groupRepo) listMembers(ctx context.Context, sessStr, docStr, formType string) ([]uuid.UUID, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT m.split_id
		   FROM group_members m
		   JOIN split_artifacts s ON s.id = m.split_id
		  WHERE m.session_id = $1 AND m.document_id = $2 AND m.form_type = $3
		  ORDER BY s.split_index`, sessStr, docStr, formType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var idStr string
		if err := rows.Scan(&idStr); err != nil {
			return nil, err
		}
		id, err := uuid.Parse(idStr)
		if err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (r *groupRepo) Rename(ctx context.Context, sessionID, documentID uuid.UUID, oldName, newName string) error {
	if oldName == newName {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sessStr, docStr := sessionID.String(), documentID.String()

	res, err := tx.ExecContext(ctx,
		`UPDATE grouped_pdfs SET form_type = $1 WHERE session_id = $2 AND document_id = $3 AND form_type = $4`,
		newName, sessStr, docStr, oldName)
	if err != nil {
		return common.NewAppError("GROUP_RENAME", "grouped_pdfs", common.ErrDataIntegrity)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.NewAppError("GROUP_RENAME", "group "+oldName+" not found", common.ErrNotFound)
	}

	for _, stmt := range []string{
		`UPDATE grouped_texts SET form_type = $1 WHERE session_id = $2 AND document_id = $3 AND form_type = $4`,
		`UPDATE grouped_fields SET form_type = $1 WHERE session_id = $2 AND document_id = $3 AND form_type = $4`,
		`UPDATE group_members SET form_type = $1 WHERE session_id = $2 AND document_id = $3 AND form_type = $4`,
		`UPDATE split_artifacts SET detected_form_type = $1 WHERE session_id = $2 AND document_id = $3 AND detected_form_type = $4`,
		`UPDATE catalog_matches SET grouped_form_type = $1 WHERE session_id = $2 AND document_id = $3 AND grouped_form_type = $4`,
	} {
		if _, err := tx.ExecContext(ctx, stmt, newName, sessStr, docStr, oldName); err != nil {
			r.log.Error("group rename failed mid-transaction", "document_id", documentID, "old", oldName, "new", newName, "error", err)
			return common.NewAppError("GROUP_RENAME", "rename "+oldName+" -> "+newName, common.ErrDataIntegrity)
		}
	}

	if err := tx.Commit(); err != nil {
		return common.NewAppError("GROUP_RENAME", "commit rename", common.ErrDataIntegrity)
	}
	r.log.Info("group renamed", "document_id", documentID, "old", oldName, "new", newName)
	return nil
}
