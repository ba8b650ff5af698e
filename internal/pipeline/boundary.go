package pipeline

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/tradefin/docintake/constants"
	"github.com/tradefin/docintake/internal/entity"
	"github.com/tradefin/docintake/internal/llm"
	"github.com/tradefin/docintake/internal/ocr"
)

// PageRecognizer is the slice of the OCR engine the detector needs.
type PageRecognizer interface {
	RecognizeDocument(ctx context.Context, pdfPath string, pageCount int) ([]ocr.PageText, error)
}

// Span is a run of consecutive pages belonging to one logical form.
type Span struct {
	Range      entity.PageRange
	FormType   string
	Pages      []ocr.PageText // page order, covers exactly Range
	Confidence float32        // mean page OCR confidence
}

// BoundaryDetector turns a multi-form PDF into form spans. Every source
// page lands in exactly one span; spans are contiguous and ordered.
type BoundaryDetector struct {
	recognizer PageRecognizer
	vocab      *Vocabulary
	classifier llm.Classifier // optional second opinion for unclassified spans
	logger     *slog.Logger
}

func NewBoundaryDetector(recognizer PageRecognizer, vocab *Vocabulary, logger *slog.Logger) *BoundaryDetector {
	return NewBoundaryDetectorWithClassifier(recognizer, vocab, nil, logger)
}

func NewBoundaryDetectorWithClassifier(recognizer PageRecognizer, vocab *Vocabulary, classifier llm.Classifier, logger *slog.Logger) *BoundaryDetector {
	if vocab == nil {
		vocab = DefaultVocabulary()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &BoundaryDetector{recognizer: recognizer, vocab: vocab, classifier: classifier, logger: logger}
}

// Detect OCRs every page and folds classifications into spans. A page that
// classifies as a new form type starts a span; an unclassifiable page
// extends the current span. A document with no signal at all yields one
// span of UNCLASSIFIED covering every page.
func (d *BoundaryDetector) Detect(ctx context.Context, pdfPath string, pageCount int) ([]Span, error) {
	pages, err := d.recognizer.RecognizeDocument(ctx, pdfPath, pageCount)
	if err != nil {
		return nil, err
	}

	var spans []Span
	for _, pt := range pages {
		name, score := d.vocab.Classify(pt.Text)
		if len(spans) == 0 {
			// first page always opens a span, classified or not
			formType := constants.UnclassifiedFormType
			if score > 0 {
				formType = name
			}
			spans = append(spans, Span{
				Range:    entity.PageRange{Start: pt.Page, End: pt.Page},
				FormType: formType,
				Pages:    []ocr.PageText{pt},
			})
			continue
		}
		cur := &spans[len(spans)-1]
		switch {
		case score == 0, name == cur.FormType:
			cur.Range.End = pt.Page
			cur.Pages = append(cur.Pages, pt)
		case cur.FormType == constants.UnclassifiedFormType && len(spans) == 1:
			// leading unclassified pages belong to the first real form
			cur.FormType = name
			cur.Range.End = pt.Page
			cur.Pages = append(cur.Pages, pt)
		default:
			spans = append(spans, Span{
				Range:    entity.PageRange{Start: pt.Page, End: pt.Page},
				FormType: name,
				Pages:    []ocr.PageText{pt},
			})
		}
	}

	for i := range spans {
		spans[i].Confidence = meanConfidence(spans[i].Pages)
	}
	d.refine(ctx, pdfPath, spans)
	d.logger.Info("boundary.detect.ok", "path", pdfPath, "pages", pageCount, "spans", len(spans))
	return spans, nil
}

// refine asks the LLM classifier, when one is configured, to name the spans
// the keyword scorer could not. Failures leave the span unclassified; the
// pipeline never depends on the model being reachable.
func (d *BoundaryDetector) refine(ctx context.Context, pdfPath string, spans []Span) {
	if d.classifier == nil {
		return
	}
	candidates := d.vocab.Names()
	for i := range spans {
		if spans[i].FormType != constants.UnclassifiedFormType || len(spans[i].Pages) == 0 {
			continue
		}
		first := spans[i].Pages[0]
		cls, _, err := d.classifier.ClassifyPage(ctx, llm.ClassifyRequest{
			OCRText:      first.Text,
			PageNumber:   first.Page,
			FilenameHint: filepath.Base(pdfPath),
			Candidates:   candidates,
		})
		if err != nil {
			d.logger.Warn("boundary.refine.failed", "path", pdfPath, "page", first.Page, "error", err)
			continue
		}
		if cls.FormType == "" || cls.FormType == constants.UnclassifiedFormType {
			continue
		}
		d.logger.Info("boundary.refine.ok", "page", first.Page, "form_type", cls.FormType)
		spans[i].FormType = cls.FormType
	}
}

func meanConfidence(pages []ocr.PageText) float32 {
	if len(pages) == 0 {
		return 0
	}
	var sum float32
	for _, p := range pages {
		sum += p.Confidence
	}
	return sum / float32(len(pages))
}
