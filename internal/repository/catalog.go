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

// CatalogRepository is append-only: every cataloging run inserts fresh rows
// so earlier runs remain as an audit trail. Reads resolve most-recent-wins.
type CatalogRepository interface {
	Append(ctx context.Context, matches []*entity.CatalogMatch) error
	// Latest returns one match per grouped form type, the newest by
	// cataloged_at (id breaks ties).
	Latest(ctx context.Context, sessionID, documentID uuid.UUID) ([]*entity.CatalogMatch, error)
	// History returns every match row for the document, newest first.
	History(ctx context.Context, sessionID, documentID uuid.UUID) ([]*entity.CatalogMatch, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*entity.CatalogMatch, error)
}

type catalogRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewCatalogRepository(db *sql.DB, log *slog.Logger) CatalogRepository {
	if log == nil {
		log = slog.Default()
	}
	return &catalogRepo{db: db, log: log}
}

func (r *catalogRepo) Append(ctx context.Context, matches []*entity.CatalogMatch) error {
	if len(matches) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, m := range matches {
		if m.ID == uuid.Nil {
			m.ID = uuid.New()
		}
		if m.CatalogedAt.IsZero() {
			m.CatalogedAt = now
		}
		var templateID any
		if m.MatchedTemplateID != nil {
			templateID = m.MatchedTemplateID.String()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO catalog_matches
			   (id, session_id, document_id, grouped_form_type, matched_template_name, matched_template_id, confidence_score, cataloged_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			m.ID.String(), m.SessionID.String(), m.DocumentID.String(), m.GroupedFormType,
			m.MatchedTemplate, templateID, m.ConfidenceScore, m.CatalogedAt); err != nil {
			return common.WrapError(err, "append catalog match")
		}
	}
	if err := tx.Commit(); err != nil {
		return common.WrapError(err, "commit catalog matches")
	}
	r.log.Info("catalog matches appended", "count", len(matches))
	return nil
}

func (r *catalogRepo) Latest(ctx context.Context, sessionID, documentID uuid.UUID) ([]*entity.CatalogMatch, error) {
	all, err := r.History(ctx, sessionID, documentID)
	if err != nil {
		return nil, err
	}
	// History is newest-first, so the first row per form type wins.
	seen := make(map[string]bool, len(all))
	var out []*entity.CatalogMatch
	for _, m := range all {
		if seen[m.GroupedFormType] {
			continue
		}
		seen[m.GroupedFormType] = true
		out = append(out, m)
	}
	return out, nil
}

func (r *catalogRepo) History(ctx context.Context, sessionID, documentID uuid.UUID) ([]*entity.CatalogMatch, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, document_id, grouped_form_type, matched_template_name, matched_template_id, confidence_score, cataloged_at
		   FROM catalog_matches
		  WHERE session_id = $1 AND document_id = $2
		  ORDER BY cataloged_at DESC, id DESC`,
		sessionID.String(), documentID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCatalogMatches(rows)
}

func (r *catalogRepo) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]*entity.CatalogMatch, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, session_id, document_id, grouped_form_type, matched_template_name, matched_template_id, confidence_score, cataloged_at
		   FROM catalog_matches
		  WHERE session_id = $1
		  ORDER BY cataloged_at DESC, id DESC`,
		sessionID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanCatalogMatches(rows)
}

func scanCatalogMatches(rows *sql.Rows) ([]*entity.CatalogMatch, error) {
	var out []*entity.CatalogMatch
	for rows.Next() {
		var (
			m                        entity.CatalogMatch
			idStr, sessStr, docStr   string
			matchedTemplate, tmplIDs sql.NullString
		)
		if err := rows.Scan(&idStr, &sessStr, &docStr, &m.GroupedFormType,
			&matchedTemplate, &tmplIDs, &m.ConfidenceScore, &m.CatalogedAt); err != nil {
			return nil, err
		}
		var err error
		if m.ID, err = uuid.Parse(idStr); err != nil {
			return nil, err
		}
		if m.SessionID, err = uuid.Parse(sessStr); err != nil {
			return nil, err
		}
		if m.DocumentID, err = uuid.Parse(docStr); err != nil {
			return nil, err
		}
		if matchedTemplate.Valid {
			m.MatchedTemplate = &matchedTemplate.String
		}
		if tmplIDs.Valid {
			id, err := uuid.Parse(tmplIDs.String)
			if err != nil {
				return nil, err
			}
			m.MatchedTemplateID = &id
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}
