package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/tradefin/docintake/constants"
	"github.com/tradefin/docintake/internal/common"
	"github.com/tradefin/docintake/internal/entity"
	"github.com/tradefin/docintake/internal/pdf"
	"github.com/tradefin/docintake/internal/repository"
)

// Stage names accepted by Run.
const (
	StageSplit   = "split"
	StageGroup   = "group"
	StageCatalog = "catalog"
	StageAll     = "all"
)

// Processor drives a document through split, group, and catalog. Runs
// against the same document are serialized in-process; distinct documents
// run concurrently with no shared mutable state.
type Processor struct {
	docs     repository.DocumentRepository
	splits   repository.SplitRepository
	detector *BoundaryDetector
	splitter *Splitter
	fields   *FieldStage
	grouper  *Grouper
	matcher  *CatalogMatcher
	locks    *keyedLocks
	logger   *slog.Logger
}

func NewProcessor(
	docs repository.DocumentRepository,
	splits repository.SplitRepository,
	detector *BoundaryDetector,
	splitter *Splitter,
	fields *FieldStage,
	grouper *Grouper,
	matcher *CatalogMatcher,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		docs:     docs,
		splits:   splits,
		detector: detector,
		splitter: splitter,
		fields:   fields,
		grouper:  grouper,
		matcher:  matcher,
		locks:    newKeyedLocks(),
		logger:   logger,
	}
}

// Run executes the named stage, or every stage in order for StageAll. Each
// stage reloads its inputs from persisted state, so a failed run is
// restartable from the last completed stage.
func (p *Processor) Run(ctx context.Context, documentID uuid.UUID, stage string) error {
	unlock := p.locks.Lock(documentID)
	defer unlock()

	doc, err := p.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}

	log := p.logger.With("document_id", documentID, "session_id", doc.SessionID)

	var stages []string
	switch stage {
	case StageAll, "":
		stages = []string{StageSplit, StageGroup, StageCatalog}
	case StageSplit, StageGroup, StageCatalog:
		stages = []string{stage}
	default:
		return common.NewAppError("PIPELINE_STAGE", "unknown stage "+stage, common.ErrInvalidInput)
	}

	for _, st := range stages {
		if err := p.runStage(ctx, doc, st, log); err != nil {
			msg := err.Error()
			if serr := p.docs.SetStatus(ctx, doc.ID, constants.DocStatusError, &msg); serr != nil {
				log.Error("pipeline.status_error_failed", "error", serr)
			}
			return err
		}
	}
	return nil
}

func (p *Processor) runStage(ctx context.Context, doc *entity.Document, stage string, log *slog.Logger) error {
	var inProgress constants.DocumentStatus
	switch stage {
	case StageSplit:
		inProgress = constants.DocStatusSplitting
	case StageGroup:
		inProgress = constants.DocStatusGrouping
	case StageCatalog:
		inProgress = constants.DocStatusCataloging
	}
	if err := p.docs.SetStatus(ctx, doc.ID, inProgress, nil); err != nil {
		return err
	}
	log.Info("pipeline.stage.start", "stage", stage)

	var err error
	switch stage {
	case StageSplit:
		err = p.split(ctx, doc)
	case StageGroup:
		err = p.group(ctx, doc)
	case StageCatalog:
		err = p.catalog(ctx, doc)
	}
	if err != nil {
		log.Error("pipeline.stage.failed", "stage", stage, "error", err)
		return err
	}

	if err := p.docs.SetStatus(ctx, doc.ID, inProgress.NextOnSuccess(), nil); err != nil {
		return err
	}
	log.Info("pipeline.stage.ok", "stage", stage)
	return nil
}

func (p *Processor) split(ctx context.Context, doc *entity.Document) error {
	if err := pdf.Validate(doc.StoragePath); err != nil {
		return err
	}
	pageCount, err := pdf.PageCount(doc.StoragePath)
	if err != nil {
		return err
	}
	if pageCount == 0 {
		return common.NewAppError("PDF_EMPTY", doc.StoragePath, common.ErrSourceUnreadable)
	}

	spans, err := p.detector.Detect(ctx, doc.StoragePath, pageCount)
	if err != nil {
		return err
	}
	artifacts, err := p.splitter.Split(ctx, doc, spans)
	if err != nil {
		return err
	}
	return p.fields.ExtractDocument(ctx, artifacts)
}

func (p *Processor) group(ctx context.Context, doc *entity.Document) error {
	splits, err := p.splits.ListByDocument(ctx, doc.ID)
	if err != nil {
		return err
	}
	_, err = p.grouper.GroupDocument(ctx, doc, splits)
	return err
}

func (p *Processor) catalog(ctx context.Context, doc *entity.Document) error {
	groups, err := p.grouper.groups.ListByDocument(ctx, doc.SessionID, doc.ID)
	if err != nil {
		return err
	}
	if len(groups) == 0 {
		return common.NewAppError("CATALOG_NO_GROUPS", doc.ID.String(), common.ErrInvalidInput)
	}
	_, err = p.matcher.MatchDocument(ctx, groups)
	return err
}

// RenameGroup forwards to the grouper under the document lock so a rename
// cannot interleave with a concurrent pipeline run.
func (p *Processor) RenameGroup(ctx context.Context, sessionID, documentID uuid.UUID, oldName, newName string) error {
	unlock := p.locks.Lock(documentID)
	defer unlock()
	return p.grouper.RenameGroup(ctx, sessionID, documentID, oldName, newName)
}

// Delete removes the document's rows and both output directory trees before
// returning. A later read or list must not observe any remnant.
func (p *Processor) Delete(ctx context.Context, documentID uuid.UUID) error {
	unlock := p.locks.Lock(documentID)
	defer unlock()

	doc, err := p.docs.GetByID(ctx, documentID)
	if err != nil {
		return err
	}
	if err := p.docs.Delete(ctx, documentID); err != nil {
		return err
	}

	outputDir := p.splitter.OutputDir(doc)
	groupedDir := p.grouper.DocumentDir(doc.SessionID, doc.ID)
	for _, dir := range []string{outputDir, outputDir + ".staging", groupedDir} {
		if err := os.RemoveAll(dir); err != nil {
			return common.NewAppError("OUTPUT_WRITE", dir, fmt.Errorf("%w: %v", common.ErrOutputWrite, err))
		}
	}
	p.logger.Info("pipeline.delete.ok", "document_id", documentID)
	return nil
}
