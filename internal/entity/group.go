package entity

import (
	"time"

	"github.com/google/uuid"
)

// Group is a named cluster of SplitArtifacts sharing a detected form type,
// scoped to one (session, document). A split belongs to at most one group
// per document.
type Group struct {
	SessionID  uuid.UUID
	DocumentID uuid.UUID
	FormType   string
	MemberIDs  []uuid.UUID
	PDFBytes   []byte
	OCRText    string
	FieldsJSON []byte // JSON object merging member field maps, later splits win
	CreatedAt  time.Time
}
