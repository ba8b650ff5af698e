package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/tradefin/docintake/internal/repository"
)

// Service is a tiny façade over repositories that produces XLSX bytes for
// catalog exports.
type Service struct {
	docs    repository.DocumentRepository
	catalog repository.CatalogRepository
	logger  *slog.Logger
}

func NewService(docs repository.DocumentRepository, catalog repository.CatalogRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{docs: docs, catalog: catalog, logger: logger}
}

// ExportCatalogXLSX returns a workbook (as bytes) summarizing the session's
// catalog state: one row per latest match per document group, with a
// needs-approval flag on the rows no template claimed.
func (s *Service) ExportCatalogXLSX(ctx context.Context, sessionID uuid.UUID) ([]byte, error) {
	start := time.Now()

	docs, err := s.docs.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}

	f := excelize.NewFile()
	const sheet = "Catalog"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		if _, err := f.NewSheet(sheet); err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)
	if defIdx, _ := f.GetSheetIndex("Sheet1"); defIdx != -1 {
		_ = f.DeleteSheet("Sheet1")
	}

	headers := []string{
		"Source File",
		"Document Status",
		"Group Form Type",
		"Matched Template",
		"Confidence",
		"Needs Approval",
		"Cataloged At",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	rows := 0
	for _, d := range docs {
		latest, err := s.catalog.Latest(ctx, sessionID, d.ID)
		if err != nil {
			return nil, fmt.Errorf("query catalog for %s: %w", d.ID, err)
		}
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}
		if len(latest) == 0 {
			write(1, d.FileName)
			write(2, string(d.Status))
			row++
			continue
		}
		for _, m := range latest {
			write(1, d.FileName)
			write(2, string(d.Status))
			write(3, m.GroupedFormType)
			if m.MatchedTemplate != nil {
				write(4, *m.MatchedTemplate)
				write(6, "NO")
			} else {
				write(4, "")
				write(6, "YES")
			}
			write(5, fmt.Sprintf("%.2f", m.ConfidenceScore))
			write(7, m.CatalogedAt.Format("2006-01-02 15:04:05"))
			row++
			rows++
		}
	}

	_ = f.SetColWidth(sheet, "A", "A", 36) // file
	_ = f.SetColWidth(sheet, "B", "B", 14) // status
	_ = f.SetColWidth(sheet, "C", "D", 28) // types
	_ = f.SetColWidth(sheet, "E", "F", 12)
	_ = f.SetColWidth(sheet, "G", "G", 20)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"session_id", sessionID.String(),
		"documents", len(docs),
		"rows", rows,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
