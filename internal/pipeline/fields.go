package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/tradefin/docintake/internal/common"
	"github.com/tradefin/docintake/internal/entity"
	"github.com/tradefin/docintake/internal/extract"
	"github.com/tradefin/docintake/internal/repository"
)

// FieldStage runs the text extractor over every split of a document and
// persists the results, plus a {splitIndex}.fields.json next to the split's
// PDF.
type FieldStage struct {
	extractor extract.TextExtractor
	splits    repository.SplitRepository
	logger    *slog.Logger
}

func NewFieldStage(extractor extract.TextExtractor, splits repository.SplitRepository, logger *slog.Logger) *FieldStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &FieldStage{extractor: extractor, splits: splits, logger: logger}
}

// ExtractDocument processes each split independently. An extractor failure
// on one split clears that split's fields (the stage is retryable from
// scratch) and is reported as ExtractionUnavailable; other splits keep
// their results.
func (f *FieldStage) ExtractDocument(ctx context.Context, splits []*entity.SplitArtifact) error {
	var failures []error
	for _, sa := range splits {
		if err := f.extractSplit(ctx, sa); err != nil {
			failures = append(failures, fmt.Errorf("split %d: %w", sa.SplitIndex, err))
		}
	}
	return errors.Join(failures...)
}

func (f *FieldStage) extractSplit(ctx context.Context, sa *entity.SplitArtifact) error {
	raw, err := f.extractor.Extract(ctx, sa.OCRText)
	if err != nil {
		// leave the split with zero fields so a retry starts clean
		if rerr := f.splits.ReplaceFields(ctx, sa.ID, nil); rerr != nil {
			f.logger.Error("fields.clear_failed", "split_id", sa.ID, "error", rerr)
		}
		return common.NewAppError("EXTRACTION_UNAVAILABLE", sa.ID.String(),
			fmt.Errorf("%w: %v", common.ErrExtractionUnavailable, err))
	}

	records := normalizeFields(raw)
	if err := f.splits.ReplaceFields(ctx, sa.ID, records); err != nil {
		return err
	}
	if err := writeFieldsJSON(sa, records); err != nil {
		return err
	}
	f.logger.Info("fields.extract.ok", "split_id", sa.ID, "split_index", sa.SplitIndex, "fields", len(records))
	return nil
}

// normalizeFields trims, drops empties, dedupes keys (last write wins via
// map semantics), and sorts by key for deterministic output.
func normalizeFields(raw map[string]string) []entity.FieldRecord {
	now := time.Now().UTC()
	cleaned := make(map[string]string, len(raw))
	for k, v := range raw {
		k = strings.TrimSpace(k)
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		cleaned[k] = v
	}
	keys := make([]string, 0, len(cleaned))
	for k := range cleaned {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	records := make([]entity.FieldRecord, 0, len(keys))
	for _, k := range keys {
		records = append(records, entity.FieldRecord{Key: k, Value: cleaned[k], ExtractedAt: now})
	}
	return records
}

func writeFieldsJSON(sa *entity.SplitArtifact, records []entity.FieldRecord) error {
	type kv struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	out := make([]kv, 0, len(records))
	for _, r := range records {
		out = append(out, kv{Key: r.Key, Value: r.Value})
	}
	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(sa.PDFPath)
	path := filepath.Join(dir, fmt.Sprintf("%d.fields.json", sa.SplitIndex))
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return common.NewAppError("OUTPUT_WRITE", path, fmt.Errorf("%w: %v", common.ErrOutputWrite, err))
	}
	return nil
}
