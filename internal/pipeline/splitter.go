package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tradefin/docintake/internal/common"
	"github.com/tradefin/docintake/internal/entity"
	"github.com/tradefin/docintake/internal/pdf"
	"github.com/tradefin/docintake/internal/repository"
)

// Splitter materializes detected spans as standalone PDFs and text files
// under the document's output directory and persists the split rows.
type Splitter struct {
	splits     repository.SplitRepository
	outputsDir string
	logger     *slog.Logger
}

func NewSplitter(splits repository.SplitRepository, outputsDir string, logger *slog.Logger) *Splitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Splitter{splits: splits, outputsDir: outputsDir, logger: logger}
}

// OutputDir is outputs/{sessionId}/{baseName}-{documentId}.
func (s *Splitter) OutputDir(doc *entity.Document) string {
	return filepath.Join(s.outputsDir, doc.SessionID.String(),
		fmt.Sprintf("%s-%s", doc.BaseName(), doc.ID))
}

// Split writes one {i}.pdf and {i}.txt per span plus a copy of the source
// as original.pdf and the full recognized text as original_text.txt. The
// directory is assembled in a staging sibling and swapped in whole, so a
// re-run replaces everything or nothing and never leaves orphans from an
// earlier run with different boundaries. A re-run whose spans match the
// persisted layout keeps the existing artifacts byte for byte: extraction
// is not reproducible at the byte level, so rewriting is skipped instead.
func (s *Splitter) Split(ctx context.Context, doc *entity.Document, spans []Span) ([]*entity.SplitArtifact, error) {
	if len(spans) == 0 {
		return nil, common.NewAppError("SPLIT_EMPTY", "no spans to split", common.ErrInvalidInput)
	}

	finalDir := s.OutputDir(doc)
	existing, err := s.splits.ListByDocument(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	if unchanged(existing, spans, finalDir) {
		s.logger.Info("splitter.unchanged", "document_id", doc.ID, "splits", len(existing), "dir", finalDir)
		return existing, nil
	}
	stagingDir := finalDir + ".staging"
	if err := os.RemoveAll(stagingDir); err != nil {
		return nil, writeFailed(err, "clear staging")
	}
	if err := os.MkdirAll(stagingDir, 0o755); err != nil {
		return nil, writeFailed(err, "create staging")
	}
	// staging is removed on any failure below
	cleanup := func() { _ = os.RemoveAll(stagingDir) }

	if err := pdf.CopyFile(doc.StoragePath, filepath.Join(stagingDir, "original.pdf")); err != nil {
		cleanup()
		return nil, writeFailed(err, "copy original")
	}

	now := time.Now().UTC()
	artifacts := make([]*entity.SplitArtifact, 0, len(spans))
	var fullText strings.Builder
	for i, span := range spans {
		pdfName := fmt.Sprintf("%d.pdf", i)
		if err := pdf.ExtractRange(doc.StoragePath, filepath.Join(stagingDir, pdfName), span.Range); err != nil {
			cleanup()
			return nil, writeFailed(err, pdfName)
		}

		text := spanText(span)
		if err := os.WriteFile(filepath.Join(stagingDir, fmt.Sprintf("%d.txt", i)), []byte(text), 0o644); err != nil {
			cleanup()
			return nil, writeFailed(err, fmt.Sprintf("%d.txt", i))
		}
		if fullText.Len() > 0 {
			fullText.WriteString("\n\f\n")
		}
		fullText.WriteString(text)

		artifacts = append(artifacts, &entity.SplitArtifact{
			ID:               uuid.New(),
			DocumentID:       doc.ID,
			SessionID:        doc.SessionID,
			SplitIndex:       i,
			PageRange:        span.Range,
			DetectedFormType: span.FormType,
			PDFPath:          filepath.Join(finalDir, pdfName),
			OCRText:          text,
			Confidence:       span.Confidence,
			CreatedAt:        now,
		})
	}

	if err := os.WriteFile(filepath.Join(stagingDir, "original_text.txt"), []byte(fullText.String()), 0o644); err != nil {
		cleanup()
		return nil, writeFailed(err, "original_text.txt")
	}

	// swap staging into place
	if err := os.RemoveAll(finalDir); err != nil {
		cleanup()
		return nil, writeFailed(err, "clear output dir")
	}
	if err := os.Rename(stagingDir, finalDir); err != nil {
		cleanup()
		return nil, writeFailed(err, "swap output dir")
	}

	if err := s.splits.ReplaceForDocument(ctx, doc.ID, artifacts); err != nil {
		return nil, err
	}
	s.logger.Info("splitter.write.ok", "document_id", doc.ID, "splits", len(artifacts), "dir", finalDir)
	return artifacts, nil
}

// unchanged reports whether the persisted splits already cover exactly these
// spans, same text included, with every artifact still on disk.
func unchanged(existing []*entity.SplitArtifact, spans []Span, finalDir string) bool {
	if len(existing) == 0 || len(existing) != len(spans) {
		return false
	}
	for i, span := range spans {
		got := existing[i]
		if got.SplitIndex != i ||
			got.PageRange != span.Range ||
			got.DetectedFormType != span.FormType ||
			got.OCRText != spanText(span) {
			return false
		}
		if !fileExists(got.PDFPath) || !fileExists(filepath.Join(finalDir, fmt.Sprintf("%d.txt", i))) {
			return false
		}
	}
	return fileExists(filepath.Join(finalDir, "original.pdf")) &&
		fileExists(filepath.Join(finalDir, "original_text.txt"))
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func spanText(span Span) string {
	var b strings.Builder
	for i, p := range span.Pages {
		if i > 0 {
			b.WriteString("\n\f\n")
		}
		b.WriteString(p.Text)
	}
	return b.String()
}

func writeFailed(err error, what string) error {
	return common.NewAppError("OUTPUT_WRITE", what, fmt.Errorf("%w: %v", common.ErrOutputWrite, err))
}
