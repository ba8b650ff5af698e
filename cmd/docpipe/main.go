package main

import (
	"context"
	"crypto/sha256"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/tradefin/docintake/constants"
	"github.com/tradefin/docintake/internal/common"
	"github.com/tradefin/docintake/internal/entity"
	"github.com/tradefin/docintake/internal/extract"
	"github.com/tradefin/docintake/internal/llm"
	"github.com/tradefin/docintake/internal/llm/openai"
	"github.com/tradefin/docintake/internal/ocr"
	"github.com/tradefin/docintake/internal/pipeline"
	"github.com/tradefin/docintake/internal/repository"
	"github.com/tradefin/docintake/internal/templates"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file", "error", err)
	}

	var (
		filePath   = flag.String("file", "", "PDF to register into the session before running")
		sessionArg = flag.String("session", "", "session id (uuid); generated when registering without one")
		docArg     = flag.String("document", "", "existing document id (uuid)")
		stage      = flag.String("stage", pipeline.StageAll, "pipeline stage: split | group | catalog | all")
		deleteDoc  = flag.Bool("delete", false, "delete the document and all derived artifacts instead of running")
	)
	flag.Parse()

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	db, pool, err := repository.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Error("open db", "error", err)
		os.Exit(1)
	}
	defer repository.Close(db, pool, logger)
	if err := repository.EnsureSchema(ctx, db); err != nil {
		logger.Error("ensure schema", "error", err)
		os.Exit(1)
	}

	docsRepo := repository.NewDocumentRepository(db, logger)
	splitsRepo := repository.NewSplitRepository(db, logger)
	groupsRepo := repository.NewGroupRepository(db, logger)
	catalogRepo := repository.NewCatalogRepository(db, logger)
	templatesRepo := repository.NewTemplateRepository(db, logger)

	if cfg.Catalog.WorkbookPath != "" {
		if _, err := templates.NewLoader(templatesRepo, logger).LoadWorkbook(ctx, cfg.Catalog.WorkbookPath); err != nil {
			logger.Error("load taxonomy workbook", "path", cfg.Catalog.WorkbookPath, "error", err)
			os.Exit(1)
		}
	}

	vocab, err := pipeline.LoadVocabulary(cfg.OCR.VocabPath)
	if err != nil {
		logger.Error("load form vocabulary", "error", err)
		os.Exit(1)
	}

	engine := ocr.NewEngine(ocr.Config{
		Pdftoppm:      cfg.OCR.Pdftoppm,
		Tesseract:     cfg.OCR.Tesseract,
		TesseractLang: cfg.OCR.TesseractLang,
		DPI:           cfg.OCR.DPI,
		PSM:           cfg.OCR.PSM,
		Workers:       cfg.OCR.Workers,
		MaxAttempts:   cfg.OCR.MaxAttempts,
	}, logger)

	var classifier llm.Classifier
	if cfg.LLM.APIKey != "" {
		classifier = openai.NewClient(openai.Config{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			Timeout:     cfg.LLM.Timeout,
		}, logger)
		logger.Info("llm classifier enabled", "model", cfg.LLM.Model)
	}

	proc := pipeline.NewProcessor(
		docsRepo,
		splitsRepo,
		pipeline.NewBoundaryDetectorWithClassifier(engine, vocab, classifier, logger),
		pipeline.NewSplitter(splitsRepo, cfg.Storage.OutputsDir, logger),
		pipeline.NewFieldStage(extract.NewRuleExtractor(logger), splitsRepo, logger),
		pipeline.NewGrouper(groupsRepo, splitsRepo, cfg.Storage.GroupedDir, logger),
		pipeline.NewCatalogMatcher(templatesRepo, catalogRepo, cfg.Catalog.AcceptThreshold, logger),
		logger,
	)

	documentID, err := resolveDocument(ctx, docsRepo, *filePath, *sessionArg, *docArg, logger)
	if err != nil {
		logger.Error("resolve document", "error", err)
		os.Exit(2)
	}

	if *deleteDoc {
		if err := proc.Delete(ctx, documentID); err != nil {
			logger.Error("delete failed", "document_id", documentID, "error", err)
			os.Exit(1)
		}
		logger.Info("document deleted", "document_id", documentID)
		return
	}

	start := time.Now()
	if err := proc.Run(ctx, documentID, *stage); err != nil {
		logger.Error("pipeline failed",
			"document_id", documentID, "stage", *stage,
			"error", err, "duration_ms", time.Since(start).Milliseconds())
		os.Exit(1)
	}
	logger.Info("pipeline OK",
		"document_id", documentID, "stage", *stage,
		"duration_ms", time.Since(start).Milliseconds())
}

func resolveDocument(ctx context.Context, docs repository.DocumentRepository, filePath, sessionArg, docArg string, logger *slog.Logger) (uuid.UUID, error) {
	if docArg != "" {
		return uuid.Parse(docArg)
	}
	if filePath == "" {
		return uuid.Nil, common.NewAppError("ARGS", "-file or -document is required", common.ErrInvalidInput)
	}

	sessionID := uuid.New()
	if sessionArg != "" {
		var err error
		if sessionID, err = uuid.Parse(sessionArg); err != nil {
			return uuid.Nil, err
		}
	}

	b, err := os.ReadFile(filePath)
	if err != nil {
		return uuid.Nil, common.NewAppError("SOURCE_READ", filePath, common.ErrSourceUnreadable)
	}
	sum := sha256.Sum256(b)
	abs, err := filepath.Abs(filePath)
	if err != nil {
		return uuid.Nil, err
	}

	doc := &entity.Document{
		ID:          uuid.New(),
		SessionID:   sessionID,
		FileName:    filepath.Base(filePath),
		FileType:    constants.MapExtToFormat(constants.NormalizeExt(filepath.Ext(filePath))),
		FileSize:    int64(len(b)),
		StoragePath: abs,
		ContentHash: sum[:],
		Status:      constants.DocStatusUploaded,
		UploadedAt:  time.Now().UTC(),
	}
	stored, deduplicated, err := docs.Register(ctx, doc)
	if err != nil {
		return uuid.Nil, err
	}
	if deduplicated {
		logger.Warn("duplicate content in session; reusing existing document",
			"document_id", stored.ID, "file", stored.FileName)
	} else {
		logger.Info("document registered",
			"document_id", stored.ID, "session_id", sessionID, "file", stored.FileName)
	}
	return stored.ID, nil
}
