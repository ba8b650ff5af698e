package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/tradefin/docintake/constants"
	"github.com/tradefin/docintake/internal/llm"
	"github.com/tradefin/docintake/internal/ocr"
)

type fakeRecognizer struct {
	pages []ocr.PageText
	err   error
}

func (f *fakeRecognizer) RecognizeDocument(_ context.Context, _ string, _ int) ([]ocr.PageText, error) {
	return f.pages, f.err
}

func page(n int, text string, conf float32) ocr.PageText {
	return ocr.PageText{Page: n, Text: text, Confidence: conf}
}

func TestDetectSpans(t *testing.T) {
	tests := []struct {
		name      string
		pages     []ocr.PageText
		wantSpans []struct {
			start, end int
			formType   string
		}
	}{
		{
			name: "no signal yields one unclassified span over all pages",
			pages: []ocr.PageText{
				page(1, "lorem ipsum", 0.3),
				page(2, "dolor sit amet", 0.3),
				page(3, "consectetur", 0.3),
			},
			wantSpans: []struct {
				start, end int
				formType   string
			}{
				{1, 3, constants.UnclassifiedFormType},
			},
		},
		{
			name: "consecutive same type shares a span",
			pages: []ocr.PageText{
				page(1, "COMMERCIAL INVOICE\nInvoice No: 1", 0.9),
				page(2, "COMMERCIAL INVOICE\ncontinued", 0.9),
				page(3, "PACKING LIST\nGross weight", 0.9),
			},
			wantSpans: []struct {
				start, end int
				formType   string
			}{
				{1, 2, "Commercial Invoice"},
				{3, 3, "Packing List"},
			},
		},
		{
			name: "unclassifiable page extends the open span",
			pages: []ocr.PageText{
				page(1, "BILL OF LADING\nport of loading", 0.9),
				page(2, "terms and conditions continued", 0.9),
				page(3, "CERTIFICATE OF ORIGIN", 0.9),
			},
			wantSpans: []struct {
				start, end int
				formType   string
			}{
				{1, 2, "Bill of Lading"},
				{3, 3, "Certificate of Origin"},
			},
		},
		{
			name: "leading unclassified pages fold into the first form",
			pages: []ocr.PageText{
				page(1, "cover sheet", 0.4),
				page(2, "LETTER OF CREDIT\ndocumentary credit", 0.9),
			},
			wantSpans: []struct {
				start, end int
				formType   string
			}{
				{1, 2, "Letter of Credit"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewBoundaryDetector(&fakeRecognizer{pages: tt.pages}, nil, nil)
			spans, err := d.Detect(context.Background(), "in.pdf", len(tt.pages))
			if err != nil {
				t.Fatalf("detect: %v", err)
			}
			if len(spans) != len(tt.wantSpans) {
				t.Fatalf("got %d spans, want %d: %+v", len(spans), len(tt.wantSpans), spans)
			}
			for i, want := range tt.wantSpans {
				got := spans[i]
				if got.Range.Start != want.start || got.Range.End != want.end || got.FormType != want.formType {
					t.Errorf("span %d: got %d-%d %q, want %d-%d %q",
						i, got.Range.Start, got.Range.End, got.FormType,
						want.start, want.end, want.formType)
				}
			}
		})
	}
}

type fakeClassifier struct {
	formType string
	err      error
	calls    int
}

func (f *fakeClassifier) ClassifyPage(_ context.Context, _ llm.ClassifyRequest) (llm.Classification, []byte, error) {
	f.calls++
	if f.err != nil {
		return llm.Classification{}, nil, f.err
	}
	return llm.Classification{FormType: f.formType}, nil, nil
}

func TestClassifierRefinesUnclassifiedSpan(t *testing.T) {
	pages := []ocr.PageText{
		page(1, "handwritten annex", 0.2),
		page(2, "more handwriting", 0.2),
	}
	cls := &fakeClassifier{formType: "Insurance Certificate"}
	d := NewBoundaryDetectorWithClassifier(&fakeRecognizer{pages: pages}, nil, cls, nil)

	spans, err := d.Detect(context.Background(), "in.pdf", len(pages))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if len(spans) != 1 || spans[0].FormType != "Insurance Certificate" {
		t.Fatalf("span not refined: %+v", spans)
	}
	if cls.calls != 1 {
		t.Fatalf("classifier called %d times, want once per unclassified span", cls.calls)
	}
}

func TestClassifierFailureLeavesSpanUnclassified(t *testing.T) {
	pages := []ocr.PageText{page(1, "handwritten annex", 0.2)}
	cls := &fakeClassifier{err: errors.New("model unreachable")}
	d := NewBoundaryDetectorWithClassifier(&fakeRecognizer{pages: pages}, nil, cls, nil)

	spans, err := d.Detect(context.Background(), "in.pdf", len(pages))
	if err != nil {
		t.Fatalf("detect must not fail when refinement does: %v", err)
	}
	if len(spans) != 1 || spans[0].FormType != constants.UnclassifiedFormType {
		t.Fatalf("span changed despite classifier failure: %+v", spans)
	}
}

func TestClassifierSkippedWhenKeywordsClassify(t *testing.T) {
	pages := []ocr.PageText{page(1, "COMMERCIAL INVOICE\nInvoice No: 7", 0.9)}
	cls := &fakeClassifier{formType: "Packing List"}
	d := NewBoundaryDetectorWithClassifier(&fakeRecognizer{pages: pages}, nil, cls, nil)

	spans, err := d.Detect(context.Background(), "in.pdf", len(pages))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if spans[0].FormType != "Commercial Invoice" {
		t.Fatalf("keyword result overridden: %+v", spans)
	}
	if cls.calls != 0 {
		t.Fatalf("classifier consulted for an already classified span")
	}
}

func TestDetectCoversEveryPageExactlyOnce(t *testing.T) {
	pages := []ocr.PageText{
		page(1, "COMMERCIAL INVOICE", 0.9),
		page(2, "noise", 0),
		page(3, "PACKING LIST", 0.9),
		page(4, "noise", 0),
		page(5, "PACKING LIST", 0.9),
	}
	d := NewBoundaryDetector(&fakeRecognizer{pages: pages}, nil, nil)
	spans, err := d.Detect(context.Background(), "in.pdf", len(pages))
	if err != nil {
		t.Fatalf("detect: %v", err)
	}

	covered := make(map[int]int)
	next := 1
	for _, s := range spans {
		if s.Range.Start != next {
			t.Fatalf("spans not contiguous: span starts at %d, want %d", s.Range.Start, next)
		}
		for p := s.Range.Start; p <= s.Range.End; p++ {
			covered[p]++
		}
		next = s.Range.End + 1
	}
	for p := 1; p <= len(pages); p++ {
		if covered[p] != 1 {
			t.Fatalf("page %d covered %d times, want exactly once", p, covered[p])
		}
	}
}
