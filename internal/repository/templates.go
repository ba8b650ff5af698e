package repository

import (
	"context"
	"database/sql"
	"log/slog"

	"github.com/google/uuid"

	"github.com/tradefin/docintake/internal/common"
	"github.com/tradefin/docintake/internal/entity"
)

// TemplateRepository holds the predefined document taxonomy the matcher
// scores against. Seeded from a workbook, then read-only to the pipeline.
type TemplateRepository interface {
	// Upsert inserts templates keyed by name; existing names keep their id
	// and get category and active refreshed. Returns how many were new.
	Upsert(ctx context.Context, templates []*entity.Template) (int, error)
	ListActive(ctx context.Context) ([]*entity.Template, error)
	GetByName(ctx context.Context, name string) (*entity.Template, error)
}

type templateRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewTemplateRepository(db *sql.DB, log *slog.Logger) TemplateRepository {
	if log == nil {
		log = slog.Default()
	}
	return &templateRepo{db: db, log: log}
}

func (r *templateRepo) Upsert(ctx context.Context, templates []*entity.Template) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	inserted := 0
	for _, t := range templates {
		var existing string
		err := tx.QueryRowContext(ctx,
			`SELECT id FROM templates WHERE name = $1`, t.Name).Scan(&existing)
		switch {
		case err == sql.ErrNoRows:
			if t.ID == uuid.Nil {
				t.ID = uuid.New()
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO templates (id, name, category, active) VALUES ($1, $2, $3, $4)`,
				t.ID.String(), t.Name, t.Category, boolToInt(t.Active)); err != nil {
				return 0, common.WrapError(err, "insert template")
			}
			inserted++
		case err != nil:
			return 0, err
		default:
			if t.ID, err = uuid.Parse(existing); err != nil {
				return 0, err
			}
			if _, err := tx.ExecContext(ctx,
				`UPDATE templates SET category = $1, active = $2 WHERE id = $3`,
				t.Category, boolToInt(t.Active), existing); err != nil {
				return 0, common.WrapError(err, "update template")
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, common.WrapError(err, "commit templates")
	}
	r.log.Info("templates upserted", "total", len(templates), "new", inserted)
	return inserted, nil
}

func (r *templateRepo) ListActive(ctx context.Context) ([]*entity.Template, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, category, active FROM templates WHERE active = 1 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*entity.Template
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *templateRepo) GetByName(ctx context.Context, name string) (*entity.Template, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, name, category, active FROM templates WHERE name = $1`, name)
	t, err := scanTemplate(row)
	if err == sql.ErrNoRows {
		return nil, common.NewAppError("TEMPLATE_NOT_FOUND", name, common.ErrNotFound)
	}
	return t, err
}

func scanTemplate(row rowScanner) (*entity.Template, error) {
	var (
		t      entity.Template
		idStr  string
		active int
	)
	if err := row.Scan(&idStr, &t.Name, &t.Category, &active); err != nil {
		return nil, err
	}
	var err error
	if t.ID, err = uuid.Parse(idStr); err != nil {
		return nil, err
	}
	t.Active = active != 0
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
