package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tradefin/docintake/constants"
	"github.com/tradefin/docintake/internal/entity"
	"github.com/tradefin/docintake/internal/repository"
)

func newGrouperUnderTest(t *testing.T) (*Grouper, repository.SplitRepository, repository.GroupRepository) {
	t.Helper()
	db, err := repository.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := repository.EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	splits := repository.NewSplitRepository(db, nil)
	groups := repository.NewGroupRepository(db, nil)
	return NewGrouper(groups, splits, t.TempDir(), nil), splits, groups
}

func writeSplitPDF(t *testing.T, sa *entity.SplitArtifact) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(sa.PDFPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(sa.PDFPath, []byte("pdf-bytes-"+sa.DetectedFormType), 0o644); err != nil {
		t.Fatalf("write split pdf: %v", err)
	}
}

func splitFixture(t *testing.T, doc *entity.Document, dir string, index int, formType string) *entity.SplitArtifact {
	t.Helper()
	sa := &entity.SplitArtifact{
		ID:               uuid.New(),
		DocumentID:       doc.ID,
		SessionID:        doc.SessionID,
		SplitIndex:       index,
		PageRange:        entity.PageRange{Start: index + 1, End: index + 1},
		DetectedFormType: formType,
		PDFPath:          filepath.Join(dir, uuid.NewString()+".pdf"),
		OCRText:          "text " + formType,
		Confidence:       0.8,
		CreatedAt:        time.Now().UTC(),
	}
	writeSplitPDF(t, sa)
	return sa
}

func docFixture() *entity.Document {
	return &entity.Document{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		FileName:  "set.pdf",
		Status:    constants.DocStatusSplit,
	}
}

func TestGroupDocumentClustersCaseInsensitively(t *testing.T) {
	ctx := context.Background()
	g, splitsRepo, _ := newGrouperUnderTest(t)
	doc := docFixture()
	dir := t.TempDir()

	splits := []*entity.SplitArtifact{
		splitFixture(t, doc, dir, 0, "Commercial Invoice"),
		splitFixture(t, doc, dir, 1, "COMMERCIAL  INVOICE"),
		splitFixture(t, doc, dir, 2, "Packing List"),
	}
	if err := splitsRepo.ReplaceForDocument(ctx, doc.ID, splits); err != nil {
		t.Fatalf("persist splits: %v", err)
	}

	// single-member clusters keep the merge on the file-copy path
	groups, err := g.GroupDocument(ctx, doc, []*entity.SplitArtifact{splits[0], splits[2]})
	if err != nil {
		t.Fatalf("group: %v", err)
	}
	if len(groups) != 2 {
		t.Fatalf("got %d groups, want 2", len(groups))
	}
	if groups[0].FormType != "Commercial Invoice" {
		t.Fatalf("display name %q, want first-seen spelling", groups[0].FormType)
	}
	if len(groups[0].MemberIDs) != 1 {
		t.Fatalf("singleton cluster must still form a group: %+v", groups[0].MemberIDs)
	}

	// cluster key collapses case and whitespace
	if clusterKey("Commercial Invoice") != clusterKey("COMMERCIAL  INVOICE") {
		t.Fatal("cluster keys differ for equivalent spellings")
	}
}

func TestGroupArtifactsOnDisk(t *testing.T) {
	ctx := context.Background()
	g, splitsRepo, _ := newGrouperUnderTest(t)
	doc := docFixture()
	dir := t.TempDir()

	sa := splitFixture(t, doc, dir, 0, "Bill of Lading")
	if err := splitsRepo.ReplaceForDocument(ctx, doc.ID, []*entity.SplitArtifact{sa}); err != nil {
		t.Fatalf("persist splits: %v", err)
	}
	if err := splitsRepo.ReplaceFields(ctx, sa.ID, []entity.FieldRecord{
		{Key: "B/L NO", Value: "BL-1", ExtractedAt: time.Now().UTC()},
	}); err != nil {
		t.Fatalf("persist fields: %v", err)
	}

	if _, err := g.GroupDocument(ctx, doc, []*entity.SplitArtifact{sa}); err != nil {
		t.Fatalf("group: %v", err)
	}

	groupDir := g.GroupDir(doc.SessionID, doc.ID, "Bill of Lading")
	for _, f := range []string{"document.pdf", "text.txt", "fields.json"} {
		if _, err := os.Stat(filepath.Join(groupDir, f)); err != nil {
			t.Errorf("missing group artifact %s: %v", f, err)
		}
	}
}

func TestRenameGroupMovesDirectory(t *testing.T) {
	ctx := context.Background()
	g, splitsRepo, groupsRepo := newGrouperUnderTest(t)
	doc := docFixture()
	dir := t.TempDir()

	sa := splitFixture(t, doc, dir, 0, "Comercial Invoice")
	if err := splitsRepo.ReplaceForDocument(ctx, doc.ID, []*entity.SplitArtifact{sa}); err != nil {
		t.Fatalf("persist splits: %v", err)
	}
	if _, err := g.GroupDocument(ctx, doc, []*entity.SplitArtifact{sa}); err != nil {
		t.Fatalf("group: %v", err)
	}

	if err := g.RenameGroup(ctx, doc.SessionID, doc.ID, "Comercial Invoice", "Commercial Invoice"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	if _, err := os.Stat(g.GroupDir(doc.SessionID, doc.ID, "Commercial Invoice")); err != nil {
		t.Fatalf("renamed directory missing: %v", err)
	}
	if _, err := os.Stat(g.GroupDir(doc.SessionID, doc.ID, "Comercial Invoice")); !os.IsNotExist(err) {
		t.Fatal("old directory still present after rename")
	}

	groups, err := groupsRepo.ListByDocument(ctx, doc.SessionID, doc.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(groups) != 1 || groups[0].FormType != "Commercial Invoice" {
		t.Fatalf("storage rename incomplete: %+v", groups)
	}
}

func TestSanitizeDirName(t *testing.T) {
	if got := sanitizeDirName("SWIFT Message MT700"); got != "SWIFT Message MT700" {
		t.Fatalf("clean name mangled: %q", got)
	}
	if got := sanitizeDirName("A/B:C"); got != "A_B_C" {
		t.Fatalf("separator chars not sanitized: %q", got)
	}
}
