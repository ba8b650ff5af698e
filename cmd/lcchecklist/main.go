// lcchecklist compares the documents a session actually presented against
// the documents its letter of credit requires (SWIFT field 46A) and prints
// a present/missing checklist.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/tradefin/docintake/internal/common"
	"github.com/tradefin/docintake/internal/entity"
	"github.com/tradefin/docintake/internal/inventory"
	"github.com/tradefin/docintake/internal/match"
	"github.com/tradefin/docintake/internal/repository"
)

// lcFormCutoff decides which group carries the credit text itself.
const lcFormCutoff = 0.5

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		logger.Debug("no .env file", "error", err)
	}

	var (
		sessionArg = flag.String("session", "", "session id (uuid)")
		docArg     = flag.String("document", "", "document id (uuid)")
	)
	flag.Parse()

	sessionID, err := uuid.Parse(*sessionArg)
	if err != nil {
		logger.Error("-session must be a uuid", "arg", *sessionArg, "error", err)
		os.Exit(2)
	}
	documentID, err := uuid.Parse(*docArg)
	if err != nil {
		logger.Error("-document must be a uuid", "arg", *docArg, "error", err)
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

	groups, err := repository.NewGroupRepository(db, logger).ListByDocument(ctx, sessionID, documentID)
	if err != nil {
		logger.Error("load groups", "document_id", documentID, "error", err)
		os.Exit(1)
	}
	if len(groups) == 0 {
		logger.Error("document has no groups; run the pipeline first", "document_id", documentID)
		os.Exit(1)
	}

	lc, rest := splitOffCredit(groups)
	if lc == nil {
		logger.Error("no letter of credit among the groups", "document_id", documentID)
		os.Exit(1)
	}

	required, err := inventory.NewRuleAnalyzer().Analyze(ctx, lc.OCRText)
	if err != nil {
		logger.Error("parse documents-required clause", "error", err)
		os.Exit(1)
	}

	items := inventory.BuildChecklist(required, rest)
	for _, it := range items {
		line := fmt.Sprintf("[%s] %2d. %s", it.Status, it.Required.ClauseNo, it.Required.Name)
		if it.Required.Copies > 1 {
			line += fmt.Sprintf(" (x%d)", it.Required.Copies)
		}
		if it.Status == inventory.StatusPresent {
			line += fmt.Sprintf("  <- %s (%.2f)", it.MatchedAs, it.Score)
		}
		fmt.Println(line)
	}
	fmt.Println(inventory.Summary(items))
}

// splitOffCredit finds the group holding the credit text and returns it
// alongside the remaining groups.
func splitOffCredit(groups []*entity.Group) (*entity.Group, []*entity.Group) {
	best, bestScore := -1, 0.0
	for i, g := range groups {
		if s := match.Score(g.FormType, "Letter of Credit"); s > bestScore {
			best, bestScore = i, s
		}
	}
	if best < 0 || bestScore < lcFormCutoff {
		return nil, groups
	}
	rest := make([]*entity.Group, 0, len(groups)-1)
	rest = append(rest, groups[:best]...)
	rest = append(rest, groups[best+1:]...)
	return groups[best], rest
}
