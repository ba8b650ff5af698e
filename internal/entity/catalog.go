package entity

import (
	"time"

	"github.com/google/uuid"
)

// Template categories in the master document taxonomy.
const (
	TemplateMaster = "MASTER"
	TemplateSub    = "SUB"
)

// Template is one predefined document-type definition the matcher scores
// against. Read-only to the pipeline.
type Template struct {
	ID       uuid.UUID
	Name     string
	Category string // TemplateMaster | TemplateSub
	Active   bool
}

// CatalogMatch is the outcome of matching one Group against the taxonomy.
// MatchedTemplateID == nil means no confident match: the group is flagged
// for manual approval as a potential new template.
type CatalogMatch struct {
	ID                uuid.UUID
	SessionID         uuid.UUID
	DocumentID        uuid.UUID
	GroupedFormType   string
	MatchedTemplate   *string
	MatchedTemplateID *uuid.UUID
	ConfidenceScore   float64
	CatalogedAt       time.Time
}
