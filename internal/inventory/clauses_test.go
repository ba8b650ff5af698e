package inventory

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/tradefin/docintake/internal/entity"
)

const sampleLC = `27: Sequence of Total
1/1
46A: Documents Required
1. SIGNED COMMERCIAL INVOICE IN 3 COPIES INDICATING LC NUMBER
2. FULL SET OF CLEAN ON BOARD OCEAN BILL OF LADING
3. PACKING LIST IN TWO COPIES
4. CERTIFICATE OF ORIGIN 2 FOLD ISSUED BY CHAMBER OF COMMERCE
47A: Additional Conditions
ALL DOCUMENTS MUST BE IN ENGLISH
`

func TestAnalyzeParsesNumberedClauses(t *testing.T) {
	got, err := NewRuleAnalyzer().Analyze(context.Background(), sampleLC)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d clauses, want 4: %+v", len(got), got)
	}

	tests := []struct {
		idx      int
		clauseNo int
		copies   int
		nameHas  string
	}{
		{0, 1, 3, "COMMERCIAL INVOICE"},
		{1, 2, 1, "BILL OF LADING"},
		{2, 3, 2, "PACKING LIST"},
		{3, 4, 2, "CERTIFICATE OF ORIGIN"},
	}
	for _, tt := range tests {
		doc := got[tt.idx]
		if doc.ClauseNo != tt.clauseNo {
			t.Errorf("clause %d: no = %d, want %d", tt.idx, doc.ClauseNo, tt.clauseNo)
		}
		if doc.Copies != tt.copies {
			t.Errorf("clause %d: copies = %d, want %d", tt.idx, doc.Copies, tt.copies)
		}
		if !strings.Contains(doc.Name, tt.nameHas) {
			t.Errorf("clause %d: name %q missing %q", tt.idx, doc.Name, tt.nameHas)
		}
	}
}

func TestAnalyzeStopsAtNextField(t *testing.T) {
	got, err := NewRuleAnalyzer().Analyze(context.Background(), sampleLC)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	for _, doc := range got {
		if strings.Contains(doc.Clause, "ENGLISH") {
			t.Fatalf("clause leaked past field 47A: %q", doc.Clause)
		}
	}
}

func TestAnalyzeNoSectionIsError(t *testing.T) {
	if _, err := NewRuleAnalyzer().Analyze(context.Background(), "45A: Description of Goods\nSTEEL COILS"); err == nil {
		t.Fatal("missing documents-required section must error")
	}
}

func TestBuildChecklist(t *testing.T) {
	required := []RequiredDocument{
		{ClauseNo: 1, Name: "SIGNED COMMERCIAL INVOICE", Copies: 3},
		{ClauseNo: 2, Name: "OCEAN BILL OF LADING", Copies: 1},
		{ClauseNo: 3, Name: "INSPECTION CERTIFICATE", Copies: 1},
	}
	groups := []*entity.Group{
		{SessionID: uuid.New(), DocumentID: uuid.New(), FormType: "Commercial Invoice"},
		{SessionID: uuid.New(), DocumentID: uuid.New(), FormType: "Bill of Lading"},
	}

	items := BuildChecklist(required, groups)
	if len(items) != 3 {
		t.Fatalf("got %d items, want one per requirement", len(items))
	}
	if items[0].Status != StatusPresent || items[0].MatchedAs != "Commercial Invoice" {
		t.Fatalf("invoice requirement not satisfied: %+v", items[0])
	}
	if items[1].Status != StatusPresent {
		t.Fatalf("bill of lading requirement not satisfied: %+v", items[1])
	}
	if items[2].Status != StatusMissing {
		t.Fatalf("inspection certificate wrongly satisfied: %+v", items[2])
	}
}

func TestChecklistGroupSatisfiesAtMostOneRequirement(t *testing.T) {
	required := []RequiredDocument{
		{ClauseNo: 1, Name: "COMMERCIAL INVOICE"},
		{ClauseNo: 2, Name: "SIGNED COMMERCIAL INVOICE"},
	}
	groups := []*entity.Group{
		{FormType: "Commercial Invoice"},
	}
	items := BuildChecklist(required, groups)
	present := 0
	for _, it := range items {
		if it.Status == StatusPresent {
			present++
		}
	}
	if present != 1 {
		t.Fatalf("one group satisfied %d requirements, want 1", present)
	}
}
