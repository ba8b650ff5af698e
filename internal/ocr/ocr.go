package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/tradefin/docintake/internal/common"
)

type Config struct {
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "eng"
	DPI           int    // rasterization DPI, default 300
	PSM           int    // page segmentation mode; 0 leaves tesseract's default
	Workers       int    // parallel page workers, default 4
	MaxAttempts   int    // attempts per page before giving up, default 3
}

// PageText is the recognized text of a single page.
type PageText struct {
	Page       int // 1-based
	Text       string
	Confidence float32
	Duration   time.Duration
}

// Engine rasterizes PDF pages and recognizes them one at a time, so each
// page's text stays attributable to its page number.
type Engine struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewEngine(cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "eng"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Engine{cfg: cfg, runner: execRunner{}, logger: logger}
}

// NewEngineWithRunner is for tests.
func NewEngineWithRunner(cfg Config, runner Runner, logger *slog.Logger) *Engine {
	e := NewEngine(cfg, logger)
	e.runner = runner
	return e
}

// RecognizeDocument OCRs pages [1, pageCount] of the PDF with bounded
// concurrency. Results come back ordered by page. A page that still fails
// after retries yields an empty PageText with zero confidence rather than
// sinking the document; only a total failure (no page recognized) returns
// ErrOCRUnavailable.
func (e *Engine) RecognizeDocument(ctx context.Context, pdfPath string, pageCount int) ([]PageText, error) {
	if pageCount < 1 {
		return nil, common.NewAppError("OCR_PAGES", fmt.Sprintf("page count %d", pageCount), common.ErrInvalidInput)
	}

	results := make([]PageText, pageCount)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Workers)

	for page := 1; page <= pageCount; page++ {
		g.Go(func() error {
			pt, err := e.recognizePageWithRetry(gctx, pdfPath, page)
			if err != nil {
				e.logger.Warn("page ocr failed, continuing", "path", pdfPath, "page", page, "error", err)
				pt = PageText{Page: page}
			}
			results[page-1] = pt
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	recognized := 0
	for _, pt := range results {
		if pt.Text != "" {
			recognized++
		}
	}
	if recognized == 0 {
		return nil, common.NewAppError("OCR_UNAVAILABLE", pdfPath, common.ErrOCRUnavailable)
	}
	e.logger.Info("document recognized", "path", pdfPath, "pages", pageCount, "recognized", recognized)
	return results, nil
}

func (e *Engine) recognizePageWithRetry(ctx context.Context, pdfPath string, page int) (PageText, error) {
	var lastErr error
	for attempt := 1; attempt <= e.cfg.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := backoff(ctx, attempt-1); err != nil {
				return PageText{}, err
			}
		}
		pt, err := e.RecognizePage(ctx, pdfPath, page)
		if err == nil {
			return pt, nil
		}
		lastErr = err
	}
	return PageText{}, lastErr
}

// RecognizePage rasterizes one page and runs tesseract on it.
func (e *Engine) RecognizePage(ctx context.Context, pdfPath string, page int) (PageText, error) {
	start := time.Now()

	tmpDir, err := os.MkdirTemp("", "di-pp-*")
	if err != nil {
		return PageText{}, err
	}
	defer os.RemoveAll(tmpDir)

	prefix := filepath.Join(tmpDir, "page")
	// pdftoppm -r 300 -f N -l N -png <in.pdf> <tmp/page>
	_, errb, err := e.runner.Run(ctx, e.cfg.Pdftoppm,
		"-r", fmt.Sprintf("%d", e.cfg.DPI),
		"-f", fmt.Sprintf("%d", page),
		"-l", fmt.Sprintf("%d", page),
		"-png", pdfPath, prefix)
	if err != nil {
		return PageText{}, fmt.Errorf("pdftoppm page %d: %w (%s)", page, err, truncate(string(errb), 512))
	}

	matches, _ := filepath.Glob(prefix + "-*.png")
	sort.Strings(matches)
	if len(matches) == 0 {
		return PageText{}, fmt.Errorf("pdftoppm rendered no image for page %d", page)
	}

	txt, err := e.tesseractOCR(ctx, matches[0])
	if err != nil {
		return PageText{}, err
	}
	txt = Normalize(txt)

	return PageText{
		Page:       page,
		Text:       txt,
		Confidence: heuristicConfidence(txt),
		Duration:   time.Since(start),
	}, nil
}

func (e *Engine) tesseractOCR(ctx context.Context, imgPath string) (string, error) {
	args := []string{imgPath, "stdout", "-l", e.cfg.TesseractLang}
	if e.cfg.PSM > 0 {
		args = append(args, "--psm", fmt.Sprintf("%d", e.cfg.PSM))
	}

	// tesseract <file> stdout -l <lang>
	out, errb, err := e.runner.Run(ctx, e.cfg.Tesseract, args...)
	if err != nil {
		return "", fmt.Errorf("tesseract: %w (%s)", err, truncate(string(errb), 512))
	}
	return string(out), nil
}
