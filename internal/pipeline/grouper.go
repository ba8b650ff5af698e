package pipeline

import (
	"context"
	"encoding/json"
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

// Grouper clusters a document's splits by detected form type and merges
// each cluster into one grouped PDF, text blob, and field set. Grouping
// never crosses documents: the same form type in two documents yields two
// groups.
type Grouper struct {
	groups     repository.GroupRepository
	splits     repository.SplitRepository
	groupedDir string
	logger     *slog.Logger
}

func NewGrouper(groups repository.GroupRepository, splits repository.SplitRepository, groupedDir string, logger *slog.Logger) *Grouper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Grouper{groups: groups, splits: splits, groupedDir: groupedDir, logger: logger}
}

// GroupDocument builds groups for every split of the document. Cluster key
// is the case-normalized, whitespace-collapsed form type; the display name
// is the first-seen spelling. A cluster of one split is a valid group.
func (g *Grouper) GroupDocument(ctx context.Context, doc *entity.Document, splits []*entity.SplitArtifact) ([]*entity.Group, error) {
	if len(splits) == 0 {
		return nil, common.NewAppError("GROUP_EMPTY", "no splits to group", common.ErrInvalidInput)
	}

	type cluster struct {
		displayName string
		members     []*entity.SplitArtifact
	}
	var order []string
	clusters := make(map[string]*cluster)
	for _, sa := range splits {
		key := clusterKey(sa.DetectedFormType)
		c, ok := clusters[key]
		if !ok {
			c = &cluster{displayName: sa.DetectedFormType}
			clusters[key] = c
			order = append(order, key)
		}
		c.members = append(c.members, sa)
	}

	now := time.Now().UTC()
	groups := make([]*entity.Group, 0, len(order))
	for _, key := range order {
		c := clusters[key]
		grp, err := g.buildGroup(ctx, doc, c.displayName, c.members, now)
		if err != nil {
			return nil, err
		}
		groups = append(groups, grp)
	}

	if err := g.groups.ReplaceForDocument(ctx, doc.SessionID, doc.ID, groups); err != nil {
		return nil, err
	}
	g.logger.Info("grouper.ok", "document_id", doc.ID, "splits", len(splits), "groups", len(groups))
	return groups, nil
}

// GroupDir is grouped/{sessionId}/{documentId}/{formType}.
func (g *Grouper) GroupDir(sessionID, documentID uuid.UUID, formType string) string {
	return filepath.Join(g.DocumentDir(sessionID, documentID), sanitizeDirName(formType))
}

// DocumentDir is the document's whole grouped subtree.
func (g *Grouper) DocumentDir(sessionID, documentID uuid.UUID) string {
	return filepath.Join(g.groupedDir, sessionID.String(), documentID.String())
}

func (g *Grouper) buildGroup(ctx context.Context, doc *entity.Document, formType string, members []*entity.SplitArtifact, now time.Time) (*entity.Group, error) {
	dir := g.GroupDir(doc.SessionID, doc.ID, formType)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, writeFailed(err, dir)
	}

	pdfPaths := make([]string, 0, len(members))
	memberIDs := make([]uuid.UUID, 0, len(members))
	var text strings.Builder
	fields := make(map[string]string)
	for _, m := range members {
		pdfPaths = append(pdfPaths, m.PDFPath)
		memberIDs = append(memberIDs, m.ID)
		if text.Len() > 0 {
			text.WriteString("\n\f\n")
		}
		text.WriteString(m.OCRText)

		recs, err := g.splits.ListFields(ctx, m.ID)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			fields[r.Key] = r.Value
		}
	}

	mergedPDF := filepath.Join(dir, "document.pdf")
	if err := pdf.Merge(pdfPaths, mergedPDF); err != nil {
		return nil, writeFailed(err, mergedPDF)
	}
	// merging duplicates shared resources; shrink the result when possible
	if err := pdf.Optimize(mergedPDF, ""); err != nil {
		g.logger.Warn("grouper.optimize.skipped", "path", mergedPDF, "error", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "text.txt"), []byte(text.String()), 0o644); err != nil {
		return nil, writeFailed(err, "text.txt")
	}

	pdfBytes, err := os.ReadFile(mergedPDF)
	if err != nil {
		return nil, writeFailed(err, "read merged pdf")
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(dir, "fields.json"), fieldsJSON, 0o644); err != nil {
		return nil, writeFailed(err, "fields.json")
	}

	return &entity.Group{
		SessionID:  doc.SessionID,
		DocumentID: doc.ID,
		FormType:   formType,
		MemberIDs:  memberIDs,
		PDFBytes:   pdfBytes,
		OCRText:    text.String(),
		FieldsJSON: fieldsJSON,
		CreatedAt:  now,
	}, nil
}

// RenameGroup renames a group's form type in storage and on disk. Storage
// moves first inside one transaction; the directory rename follows, and a
// directory failure after commit is logged, not fatal, since re-grouping
// rebuilds the tree.
func (g *Grouper) RenameGroup(ctx context.Context, sessionID, documentID uuid.UUID, oldName, newName string) error {
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return common.NewAppError("GROUP_RENAME", "empty new name", common.ErrInvalidInput)
	}
	if err := g.groups.Rename(ctx, sessionID, documentID, oldName, newName); err != nil {
		return err
	}
	oldDir := g.GroupDir(sessionID, documentID, oldName)
	newDir := g.GroupDir(sessionID, documentID, newName)
	if oldDir != newDir {
		if err := os.Rename(oldDir, newDir); err != nil && !os.IsNotExist(err) {
			g.logger.Warn("grouper.rename.dir_failed", "old", oldDir, "new", newDir, "error", err)
		}
	}
	return nil
}

// clusterKey lowercases and collapses whitespace so "Commercial  Invoice"
// and "commercial invoice" cluster together.
func clusterKey(formType string) string {
	return strings.Join(strings.Fields(strings.ToLower(formType)), " ")
}

var dirNameReplacer = strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_")

func sanitizeDirName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "_"
	}
	return dirNameReplacer.Replace(name)
}
