package extract

import "context"

// TextExtractor pulls key/value fields out of recognized document text.
// Implementations must be deterministic for the same input text.
type TextExtractor interface {
	Extract(ctx context.Context, text string) (map[string]string, error)
}
