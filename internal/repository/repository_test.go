package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tradefin/docintake/constants"
	"github.com/tradefin/docintake/internal/common"
	"github.com/tradefin/docintake/internal/entity"
)

func newTestDB(t *testing.T) *testDB {
	t.Helper()
	db, err := OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := EnsureSchema(context.Background(), db); err != nil {
		t.Fatalf("ensure schema: %v", err)
	}
	return &testDB{
		docs:      NewDocumentRepository(db, nil),
		splits:    NewSplitRepository(db, nil),
		groups:    NewGroupRepository(db, nil),
		catalog:   NewCatalogRepository(db, nil),
		templates: NewTemplateRepository(db, nil),
	}
}

type testDB struct {
	docs      DocumentRepository
	splits    SplitRepository
	groups    GroupRepository
	catalog   CatalogRepository
	templates TemplateRepository
}

func makeDocument(sessionID uuid.UUID, name string, hash byte) *entity.Document {
	return &entity.Document{
		ID:          uuid.New(),
		SessionID:   sessionID,
		FileName:    name,
		FileType:    constants.PDF,
		FileSize:    1024,
		StoragePath: "/tmp/" + name,
		ContentHash: []byte{hash, 0x01, 0x02},
		Status:      constants.DocStatusUploaded,
		UploadedAt:  time.Now().UTC(),
	}
}

func makeSplit(doc *entity.Document, index, pageStart, pageEnd int, formType string) *entity.SplitArtifact {
	return &entity.SplitArtifact{
		ID:               uuid.New(),
		DocumentID:       doc.ID,
		SessionID:        doc.SessionID,
		SplitIndex:       index,
		PageRange:        entity.PageRange{Start: pageStart, End: pageEnd},
		DetectedFormType: formType,
		PDFPath:          "/tmp/out/" + formType + ".pdf",
		OCRText:          "text of " + formType,
		Confidence:       0.8,
	}
}

func TestRegisterDeduplicatesByContentHash(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	sessionID := uuid.New()

	first, dedup, err := db.docs.Register(ctx, makeDocument(sessionID, "a.pdf", 0xAA))
	if err != nil {
		t.Fatalf("register first: %v", err)
	}
	if dedup {
		t.Fatal("first registration reported as duplicate")
	}

	// same content, different file name
	dup := makeDocument(sessionID, "a-copy.pdf", 0xAA)
	stored, dedup, err := db.docs.Register(ctx, dup)
	if err != nil {
		t.Fatalf("register duplicate: %v", err)
	}
	if !dedup {
		t.Fatal("duplicate content not detected")
	}
	if stored.ID != first.ID {
		t.Fatalf("duplicate resolved to %s, want existing %s", stored.ID, first.ID)
	}

	// same content in another session registers fresh
	_, dedup, err = db.docs.Register(ctx, makeDocument(uuid.New(), "a.pdf", 0xAA))
	if err != nil {
		t.Fatalf("register other session: %v", err)
	}
	if dedup {
		t.Fatal("dedup must not cross sessions")
	}
}

func TestSplitReplaceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	doc, _, err := db.docs.Register(ctx, makeDocument(uuid.New(), "lc.pdf", 0x01))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	firstRun := []*entity.SplitArtifact{
		makeSplit(doc, 0, 1, 2, "Letter of Credit"),
		makeSplit(doc, 1, 3, 5, "Commercial Invoice"),
	}
	if err := db.splits.ReplaceForDocument(ctx, doc.ID, firstRun); err != nil {
		t.Fatalf("first replace: %v", err)
	}

	// different boundaries on re-run must fully supersede the first layout
	secondRun := []*entity.SplitArtifact{
		makeSplit(doc, 0, 1, 5, "Letter of Credit"),
	}
	if err := db.splits.ReplaceForDocument(ctx, doc.ID, secondRun); err != nil {
		t.Fatalf("second replace: %v", err)
	}

	got, err := db.splits.ListByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d splits after replace, want 1", len(got))
	}
	if got[0].PageRange.Start != 1 || got[0].PageRange.End != 5 {
		t.Fatalf("got range %d-%d, want 1-5", got[0].PageRange.Start, got[0].PageRange.End)
	}
}

func TestReplaceFieldsSupersedes(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	doc, _, _ := db.docs.Register(ctx, makeDocument(uuid.New(), "inv.pdf", 0x02))
	split := makeSplit(doc, 0, 1, 1, "Commercial Invoice")
	if err := db.splits.ReplaceForDocument(ctx, doc.ID, []*entity.SplitArtifact{split}); err != nil {
		t.Fatalf("replace splits: %v", err)
	}

	now := time.Now().UTC()
	first := []entity.FieldRecord{
		{Key: "INVOICE NO", Value: "INV-1", ExtractedAt: now},
		{Key: "AMOUNT", Value: "100.00", ExtractedAt: now},
	}
	if err := db.splits.ReplaceFields(ctx, split.ID, first); err != nil {
		t.Fatalf("first fields: %v", err)
	}
	second := []entity.FieldRecord{
		{Key: "INVOICE NO", Value: "INV-2", ExtractedAt: now},
	}
	if err := db.splits.ReplaceFields(ctx, split.ID, second); err != nil {
		t.Fatalf("second fields: %v", err)
	}

	got, err := db.splits.ListFields(ctx, split.ID)
	if err != nil {
		t.Fatalf("list fields: %v", err)
	}
	if len(got) != 1 || got[0].Key != "INVOICE NO" || got[0].Value != "INV-2" {
		t.Fatalf("fields not superseded: %+v", got)
	}
}

func TestGroupExclusivity(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	doc, _, _ := db.docs.Register(ctx, makeDocument(uuid.New(), "set.pdf", 0x03))
	split := makeSplit(doc, 0, 1, 1, "Packing List")
	if err := db.splits.ReplaceForDocument(ctx, doc.ID, []*entity.SplitArtifact{split}); err != nil {
		t.Fatalf("replace splits: %v", err)
	}

	groups := []*entity.Group{
		{
			SessionID: doc.SessionID, DocumentID: doc.ID, FormType: "Packing List",
			MemberIDs: []uuid.UUID{split.ID}, PDFBytes: []byte("pdf"), OCRText: "t", FieldsJSON: []byte("{}"),
		},
		{
			SessionID: doc.SessionID, DocumentID: doc.ID, FormType: "Commercial Invoice",
			MemberIDs: []uuid.UUID{split.ID}, PDFBytes: []byte("pdf"), OCRText: "t", FieldsJSON: []byte("{}"),
		},
	}
	err := db.groups.ReplaceForDocument(ctx, doc.SessionID, doc.ID, groups)
	if !errors.Is(err, common.ErrDataIntegrity) {
		t.Fatalf("split in two groups: got %v, want ErrDataIntegrity", err)
	}

	// the failed transaction must leave nothing behind
	got, listErr := db.groups.ListByDocument(ctx, doc.SessionID, doc.ID)
	if listErr != nil {
		t.Fatalf("list after failure: %v", listErr)
	}
	if len(got) != 0 {
		t.Fatalf("partial groups persisted after exclusivity violation: %d", len(got))
	}
}

func TestSameFormTypeAcrossDocumentsStaysSeparate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	sessionID := uuid.New()
	docA, _, _ := db.docs.Register(ctx, makeDocument(sessionID, "a.pdf", 0x04))
	docB, _, _ := db.docs.Register(ctx, makeDocument(sessionID, "b.pdf", 0x05))

	for _, doc := range []*entity.Document{docA, docB} {
		split := makeSplit(doc, 0, 1, 1, "Commercial Invoice")
		if err := db.splits.ReplaceForDocument(ctx, doc.ID, []*entity.SplitArtifact{split}); err != nil {
			t.Fatalf("splits for %s: %v", doc.FileName, err)
		}
		g := &entity.Group{
			SessionID: sessionID, DocumentID: doc.ID, FormType: "Commercial Invoice",
			MemberIDs: []uuid.UUID{split.ID}, PDFBytes: []byte("pdf"), OCRText: "t", FieldsJSON: []byte("{}"),
		}
		if err := db.groups.ReplaceForDocument(ctx, sessionID, doc.ID, []*entity.Group{g}); err != nil {
			t.Fatalf("groups for %s: %v", doc.FileName, err)
		}
	}

	for _, doc := range []*entity.Document{docA, docB} {
		got, err := db.groups.ListByDocument(ctx, sessionID, doc.ID)
		if err != nil {
			t.Fatalf("list groups: %v", err)
		}
		if len(got) != 1 {
			t.Fatalf("document %s has %d groups, want its own single group", doc.FileName, len(got))
		}
	}
}

func TestGroupRenameIsAtomicAcrossTables(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	doc, _, _ := db.docs.Register(ctx, makeDocument(uuid.New(), "set.pdf", 0x06))
	split := makeSplit(doc, 0, 1, 2, "Comercial Invoice") // misspelled on purpose
	if err := db.splits.ReplaceForDocument(ctx, doc.ID, []*entity.SplitArtifact{split}); err != nil {
		t.Fatalf("splits: %v", err)
	}
	g := &entity.Group{
		SessionID: doc.SessionID, DocumentID: doc.ID, FormType: "Comercial Invoice",
		MemberIDs: []uuid.UUID{split.ID}, PDFBytes: []byte("pdf"), OCRText: "t", FieldsJSON: []byte("{}"),
	}
	if err := db.groups.ReplaceForDocument(ctx, doc.SessionID, doc.ID, []*entity.Group{g}); err != nil {
		t.Fatalf("groups: %v", err)
	}
	cm := &entity.CatalogMatch{
		SessionID: doc.SessionID, DocumentID: doc.ID,
		GroupedFormType: "Comercial Invoice", ConfidenceScore: 0.42,
	}
	if err := db.catalog.Append(ctx, []*entity.CatalogMatch{cm}); err != nil {
		t.Fatalf("catalog: %v", err)
	}

	if err := db.groups.Rename(ctx, doc.SessionID, doc.ID, "Comercial Invoice", "Commercial Invoice"); err != nil {
		t.Fatalf("rename: %v", err)
	}

	groups, err := db.groups.ListByDocument(ctx, doc.SessionID, doc.ID)
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if len(groups) != 1 || groups[0].FormType != "Commercial Invoice" {
		t.Fatalf("grouped tables not renamed: %+v", groups)
	}
	if len(groups[0].MemberIDs) != 1 || groups[0].MemberIDs[0] != split.ID {
		t.Fatalf("membership lost on rename: %+v", groups[0].MemberIDs)
	}

	splits, err := db.splits.ListByDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("list splits: %v", err)
	}
	if splits[0].DetectedFormType != "Commercial Invoice" {
		t.Fatalf("split form type not renamed: %q", splits[0].DetectedFormType)
	}

	matches, err := db.catalog.History(ctx, doc.SessionID, doc.ID)
	if err != nil {
		t.Fatalf("catalog history: %v", err)
	}
	if matches[0].GroupedFormType != "Commercial Invoice" {
		t.Fatalf("catalog match not renamed: %q", matches[0].GroupedFormType)
	}
}

func TestRenameUnknownGroupIsNotFound(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	doc, _, _ := db.docs.Register(ctx, makeDocument(uuid.New(), "x.pdf", 0x07))

	err := db.groups.Rename(ctx, doc.SessionID, doc.ID, "Nope", "Other")
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestCascadeDeleteRemovesEverything(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	doc, _, _ := db.docs.Register(ctx, makeDocument(uuid.New(), "full.pdf", 0x08))
	split := makeSplit(doc, 0, 1, 1, "Bill of Lading")
	if err := db.splits.ReplaceForDocument(ctx, doc.ID, []*entity.SplitArtifact{split}); err != nil {
		t.Fatalf("splits: %v", err)
	}
	if err := db.splits.ReplaceFields(ctx, split.ID, []entity.FieldRecord{
		{Key: "B/L NO", Value: "BL-9", ExtractedAt: time.Now().UTC()},
	}); err != nil {
		t.Fatalf("fields: %v", err)
	}
	g := &entity.Group{
		SessionID: doc.SessionID, DocumentID: doc.ID, FormType: "Bill of Lading",
		MemberIDs: []uuid.UUID{split.ID}, PDFBytes: []byte("pdf"), OCRText: "t", FieldsJSON: []byte("{}"),
	}
	if err := db.groups.ReplaceForDocument(ctx, doc.SessionID, doc.ID, []*entity.Group{g}); err != nil {
		t.Fatalf("groups: %v", err)
	}
	if err := db.catalog.Append(ctx, []*entity.CatalogMatch{{
		SessionID: doc.SessionID, DocumentID: doc.ID,
		GroupedFormType: "Bill of Lading", ConfidenceScore: 0.9,
	}}); err != nil {
		t.Fatalf("catalog: %v", err)
	}

	if err := db.docs.Delete(ctx, doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := db.docs.GetByID(ctx, doc.ID); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("document still readable after delete: %v", err)
	}
	if splits, _ := db.splits.ListByDocument(ctx, doc.ID); len(splits) != 0 {
		t.Fatalf("%d splits survived delete", len(splits))
	}
	if fields, _ := db.splits.ListFields(ctx, split.ID); len(fields) != 0 {
		t.Fatalf("%d fields survived delete", len(fields))
	}
	if groups, _ := db.groups.ListByDocument(ctx, doc.SessionID, doc.ID); len(groups) != 0 {
		t.Fatalf("%d groups survived delete", len(groups))
	}
	if matches, _ := db.catalog.History(ctx, doc.SessionID, doc.ID); len(matches) != 0 {
		t.Fatalf("%d catalog matches survived delete", len(matches))
	}
}

func TestCatalogLatestResolvesMostRecentPerFormType(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	sessionID, documentID := uuid.New(), uuid.New()

	older := time.Now().UTC().Add(-time.Hour)
	newer := time.Now().UTC()
	name := "Commercial Invoice"
	if err := db.catalog.Append(ctx, []*entity.CatalogMatch{
		{SessionID: sessionID, DocumentID: documentID, GroupedFormType: "Invoice", ConfidenceScore: 0.42, CatalogedAt: older},
		{SessionID: sessionID, DocumentID: documentID, GroupedFormType: "Packing List", ConfidenceScore: 0.7, CatalogedAt: older},
	}); err != nil {
		t.Fatalf("append first run: %v", err)
	}
	if err := db.catalog.Append(ctx, []*entity.CatalogMatch{
		{SessionID: sessionID, DocumentID: documentID, GroupedFormType: "Invoice", MatchedTemplate: &name, ConfidenceScore: 0.88, CatalogedAt: newer},
	}); err != nil {
		t.Fatalf("append second run: %v", err)
	}

	latest, err := db.catalog.Latest(ctx, sessionID, documentID)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 2 {
		t.Fatalf("got %d latest matches, want 2 form types", len(latest))
	}
	for _, m := range latest {
		if m.GroupedFormType == "Invoice" {
			if m.ConfidenceScore != 0.88 || m.MatchedTemplate == nil {
				t.Fatalf("latest Invoice match is the stale row: %+v", m)
			}
		}
	}

	history, err := db.catalog.History(ctx, sessionID, documentID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 3 {
		t.Fatalf("audit trail lost rows: got %d, want 3", len(history))
	}
}

func TestTemplateUpsertKeepsIDs(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	in := []*entity.Template{
		{Name: "Commercial Invoice", Category: entity.TemplateMaster, Active: true},
		{Name: "Packing List", Category: entity.TemplateMaster, Active: true},
	}
	n, err := db.templates.Upsert(ctx, in)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if n != 2 {
		t.Fatalf("first upsert inserted %d, want 2", n)
	}
	first, err := db.templates.GetByName(ctx, "Commercial Invoice")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	again := []*entity.Template{
		{Name: "Commercial Invoice", Category: entity.TemplateSub, Active: true},
	}
	n, err = db.templates.Upsert(ctx, again)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if n != 0 {
		t.Fatalf("second upsert inserted %d, want 0", n)
	}
	updated, err := db.templates.GetByName(ctx, "Commercial Invoice")
	if err != nil {
		t.Fatalf("get after upsert: %v", err)
	}
	if updated.ID != first.ID {
		t.Fatal("upsert changed the template id")
	}
	if updated.Category != entity.TemplateSub {
		t.Fatalf("category not refreshed: %q", updated.Category)
	}
}
