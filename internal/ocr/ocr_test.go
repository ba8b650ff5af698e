package ocr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/tradefin/docintake/internal/common"
)

// stubRunner fakes pdftoppm and tesseract. pdftoppm "renders" by writing an
// empty png next to the requested prefix; failPages makes rendering fail for
// those page numbers.
type stubRunner struct {
	pageText  string
	failPages map[int]bool
	failAll   bool
	calls     atomic.Int64
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	s.calls.Add(1)
	if s.failAll {
		return nil, []byte("stub failure"), errors.New("exit 1")
	}
	switch {
	case strings.Contains(name, "pdftoppm"):
		page := 0
		for i := 0; i < len(args)-1; i++ {
			if args[i] == "-f" {
				fmt.Sscanf(args[i+1], "%d", &page)
			}
		}
		if s.failPages[page] {
			return nil, []byte("render failed"), errors.New("exit 1")
		}
		prefix := args[len(args)-1]
		if err := os.WriteFile(fmt.Sprintf("%s-%d.png", prefix, page), []byte("png"), 0o644); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	case strings.Contains(name, "tesseract"):
		return []byte(s.pageText), nil, nil
	}
	return nil, nil, errors.New("unexpected command " + name)
}

func newTestEngine(r Runner) *Engine {
	return NewEngineWithRunner(Config{Workers: 2, MaxAttempts: 1}, r, nil)
}

func TestRecognizeDocumentOrdersPages(t *testing.T) {
	eng := newTestEngine(&stubRunner{pageText: "Invoice No: 1"})
	got, err := eng.RecognizeDocument(context.Background(), "in.pdf", 4)
	if err != nil {
		t.Fatalf("recognize: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("got %d pages, want 4", len(got))
	}
	for i, pt := range got {
		if pt.Page != i+1 {
			t.Fatalf("page %d out of order: %+v", i, pt)
		}
		if pt.Text == "" {
			t.Fatalf("page %d has no text", pt.Page)
		}
		if pt.Confidence <= 0 {
			t.Fatalf("page %d has zero confidence", pt.Page)
		}
	}
}

func TestRecognizeDocumentDegradesPerPage(t *testing.T) {
	eng := newTestEngine(&stubRunner{
		pageText:  "Packing List",
		failPages: map[int]bool{2: true},
	})
	got, err := eng.RecognizeDocument(context.Background(), "in.pdf", 3)
	if err != nil {
		t.Fatalf("one bad page must not fail the document: %v", err)
	}
	if got[1].Text != "" || got[1].Confidence != 0 {
		t.Fatalf("failed page not degraded: %+v", got[1])
	}
	if got[0].Text == "" || got[2].Text == "" {
		t.Fatal("healthy pages lost their text")
	}
}

func TestRecognizeDocumentAllPagesFailing(t *testing.T) {
	eng := newTestEngine(&stubRunner{failAll: true})
	_, err := eng.RecognizeDocument(context.Background(), "in.pdf", 2)
	if !errors.Is(err, common.ErrOCRUnavailable) {
		t.Fatalf("got %v, want ErrOCRUnavailable", err)
	}
}

func TestRecognizePageRetries(t *testing.T) {
	r := &stubRunner{failAll: true}
	eng := NewEngineWithRunner(Config{Workers: 1, MaxAttempts: 3}, r, nil)
	_, err := eng.RecognizeDocument(context.Background(), "in.pdf", 1)
	if !errors.Is(err, common.ErrOCRUnavailable) {
		t.Fatalf("got %v, want ErrOCRUnavailable", err)
	}
	if r.calls.Load() != 3 {
		t.Fatalf("runner called %d times, want one per attempt", r.calls.Load())
	}
}

func TestRecognizeDocumentRejectsZeroPages(t *testing.T) {
	eng := newTestEngine(&stubRunner{})
	if _, err := eng.RecognizeDocument(context.Background(), "in.pdf", 0); !errors.Is(err, common.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}
