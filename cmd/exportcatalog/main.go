package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/tradefin/docintake/internal/common"
	"github.com/tradefin/docintake/internal/export"
	"github.com/tradefin/docintake/internal/repository"
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
		sessionArg = flag.String("session", "", "session id (uuid)")
		outPath    = flag.String("out", "catalog.xlsx", "output workbook path")
	)
	flag.Parse()

	sessionID, err := uuid.Parse(*sessionArg)
	if err != nil {
		logger.Error("-session must be a uuid", "arg", *sessionArg, "error", err)
		os.Exit(2)
	}

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

	svc := export.NewService(
		repository.NewDocumentRepository(db, logger),
		repository.NewCatalogRepository(db, logger),
		logger,
	)
	xlsx, err := svc.ExportCatalogXLSX(ctx, sessionID)
	if err != nil {
		logger.Error("export failed", "session_id", sessionID, "error", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*outPath, xlsx, 0o644); err != nil {
		logger.Error("write workbook", "path", *outPath, "error", err)
		os.Exit(1)
	}
	logger.Info("catalog exported", "session_id", sessionID, "path", *outPath, "bytes", len(xlsx))
}
