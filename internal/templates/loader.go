package templates

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/tradefin/docintake/internal/common"
	"github.com/tradefin/docintake/internal/entity"
	"github.com/tradefin/docintake/internal/repository"
)

// Loader seeds the template taxonomy from a workbook. The workbook's first
// sheet needs a header row with a "Document Name" column; a "Category"
// column is optional and defaults to MASTER.
type Loader struct {
	repo   repository.TemplateRepository
	logger *slog.Logger
}

func NewLoader(repo repository.TemplateRepository, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{repo: repo, logger: logger}
}

// LoadWorkbook parses the workbook and upserts every template it names.
// Re-running against the same workbook is a no-op apart from refreshed
// category/active flags.
func (l *Loader) LoadWorkbook(ctx context.Context, path string) (int, error) {
	start := time.Now()

	f, err := excelize.OpenFile(path)
	if err != nil {
		return 0, common.NewAppError("WORKBOOK_OPEN", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return 0, common.NewAppError("WORKBOOK_EMPTY", path, common.ErrInvalidInput)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return 0, common.NewAppError("WORKBOOK_READ", path, err)
	}
	if len(rows) < 2 {
		return 0, common.NewAppError("WORKBOOK_EMPTY", "no data rows in "+path, common.ErrInvalidInput)
	}

	nameCol, catCol := findColumns(rows[0])
	if nameCol < 0 {
		return 0, common.NewAppError("WORKBOOK_HEADER", `missing "Document Name" column`, common.ErrInvalidInput)
	}

	seen := make(map[string]bool)
	var tmpls []*entity.Template
	for i, row := range rows[1:] {
		if nameCol >= len(row) {
			continue
		}
		name := strings.TrimSpace(row[nameCol])
		if name == "" {
			continue
		}
		if seen[strings.ToUpper(name)] {
			l.logger.Warn("duplicate template name in workbook", "row", i+2, "name", name)
			continue
		}
		seen[strings.ToUpper(name)] = true

		category := entity.TemplateMaster
		if catCol >= 0 && catCol < len(row) {
			if c := normalizeCategory(row[catCol]); c != "" {
				category = c
			}
		}
		tmpls = append(tmpls, &entity.Template{Name: name, Category: category, Active: true})
	}
	if len(tmpls) == 0 {
		return 0, common.NewAppError("WORKBOOK_EMPTY", "no template names in "+path, common.ErrInvalidInput)
	}

	inserted, err := l.repo.Upsert(ctx, tmpls)
	if err != nil {
		return 0, fmt.Errorf("seed templates: %w", err)
	}
	l.logger.Info("taxonomy loaded",
		"path", path,
		"templates", len(tmpls),
		"new", inserted,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return inserted, nil
}

func findColumns(header []string) (nameCol, catCol int) {
	nameCol, catCol = -1, -1
	for i, h := range header {
		switch normalizeHeader(h) {
		case "document name", "document_name", "name":
			if nameCol < 0 {
				nameCol = i
			}
		case "category":
			if catCol < 0 {
				catCol = i
			}
		}
	}
	return nameCol, catCol
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.Join(strings.Fields(strings.TrimSpace(h)), " "))
}

func normalizeCategory(raw string) string {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case entity.TemplateMaster, "M":
		return entity.TemplateMaster
	case entity.TemplateSub, "S":
		return entity.TemplateSub
	default:
		return ""
	}
}
