package pdf

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/tradefin/docintake/internal/common"
	"github.com/tradefin/docintake/internal/entity"
)

// conf is shared across all operations. Relaxed validation keeps real-world
// scans from bank counterparties readable despite minor structural faults.
func conf() *model.Configuration {
	c := model.NewDefaultConfiguration()
	c.ValidationMode = model.ValidationRelaxed
	return c
}

// Validate confirms the file parses as a PDF at all. A corrupt or truncated
// upload surfaces as ErrSourceUnreadable before any pipeline stage runs.
func Validate(path string) error {
	if err := api.ValidateFile(path, conf()); err != nil {
		return common.NewAppError("PDF_UNREADABLE", path, fmt.Errorf("%w: %v", common.ErrSourceUnreadable, err))
	}
	return nil
}

// PageCount returns the number of pages in the document.
func PageCount(path string) (int, error) {
	n, err := api.PageCountFile(path)
	if err != nil {
		return 0, common.NewAppError("PDF_UNREADABLE", path, fmt.Errorf("%w: %v", common.ErrSourceUnreadable, err))
	}
	return n, nil
}

// ExtractRange writes pages [r.Start, r.End] (1-based, inclusive) of in
// to out as a standalone PDF.
func ExtractRange(in, out string, r entity.PageRange) error {
	if r.Start < 1 || r.End < r.Start {
		return common.NewAppError("PDF_RANGE", fmt.Sprintf("invalid page range %d-%d", r.Start, r.End), common.ErrInvalidInput)
	}
	sel := []string{fmt.Sprintf("%d-%d", r.Start, r.End)}
	if err := api.TrimFile(in, out, sel, conf()); err != nil {
		return common.NewAppError("PDF_TRIM", fmt.Sprintf("pages %d-%d of %s", r.Start, r.End, in), err)
	}
	return nil
}

// Merge concatenates the inputs, in order, into a single PDF at out.
func Merge(inFiles []string, out string) error {
	if len(inFiles) == 0 {
		return common.NewAppError("PDF_MERGE", "no input files", common.ErrInvalidInput)
	}
	if len(inFiles) == 1 {
		return CopyFile(inFiles[0], out)
	}
	if err := api.MergeCreateFile(inFiles, out, false, conf()); err != nil {
		return common.NewAppError("PDF_MERGE", out, err)
	}
	return nil
}

// Optimize rewrites the PDF removing redundant objects; an empty out
// rewrites in place. Best effort: an optimization failure leaves the input
// usable, so callers may ignore it.
func Optimize(in, out string) error {
	return api.OptimizeFile(in, out, conf())
}

// CopyFile copies src to dst, creating parent directories as needed.
func CopyFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return common.WrapError(err, "create directory")
	}
	in, err := os.Open(src)
	if err != nil {
		return common.WrapError(err, "open source")
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return common.WrapError(err, "create destination")
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return common.WrapError(err, "copy file")
	}
	return out.Close()
}
