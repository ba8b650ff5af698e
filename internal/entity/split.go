package entity

import (
	"time"

	"github.com/google/uuid"
)

// PageRange is an inclusive 1-based page span within the source document.
type PageRange struct {
	Start int
	End   int
}

// Pages returns the number of pages covered by the range.
func (r PageRange) Pages() int { return r.End - r.Start + 1 }

// SplitArtifact is one logical form extracted from a Document's page range.
// Page ranges across all splits of one document are contiguous,
// non-overlapping, and together cover every source page exactly once.
type SplitArtifact struct {
	ID               uuid.UUID
	DocumentID       uuid.UUID
	SessionID        uuid.UUID
	SplitIndex       int
	PageRange        PageRange
	DetectedFormType string
	PDFPath          string
	OCRText          string
	Confidence       float32
	CreatedAt        time.Time
}

// FieldRecord is one extracted key/value pair scoped to a SplitArtifact.
type FieldRecord struct {
	Key         string
	Value       string
	ExtractedAt time.Time
}
