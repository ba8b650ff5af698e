package llm

import "context"

// ClassifyRequest asks for the document type of one page of recognized text.
type ClassifyRequest struct {
	OCRText      string
	PageNumber   int
	FilenameHint string
	// Candidates constrains the answer; an unrecognizable page must come
	// back as "UNCLASSIFIED".
	Candidates []string
}

// Classification is the normalized shape we want from the LLM.
type Classification struct {
	FormType        string  `json:"form_type"`
	SwiftMessageRef string  `json:"swift_message_ref,omitempty"` // e.g. "MT700"
	ModelConfidence float32 `json:"confidence,omitempty"`        // optional (0..1)
}

// Classifier is the interface the boundary detector depends on when LLM
// assistance is enabled. The keyword scorer remains the offline fallback.
type Classifier interface {
	ClassifyPage(ctx context.Context, req ClassifyRequest) (Classification, []byte /*rawJSON*/, error)
}
