package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/tradefin/docintake/constants"
)

// Document is one uploaded source file, before splitting.
type Document struct {
	ID          uuid.UUID
	SessionID   uuid.UUID
	FileName    string
	FileType    string // constants.PDF | constants.IMAGE
	FileSize    int64
	StoragePath string
	ContentHash []byte // sha256 of the source file, for in-session dedup
	Status      constants.DocumentStatus
	StatusError *string // populated when Status == ERROR
	UploadedAt  time.Time
}

// BaseName is the upload file name without extension, used to derive the
// per-document output directory.
func (d *Document) BaseName() string {
	name := d.FileName
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i]
		}
		if name[i] == '/' || name[i] == '\\' {
			break
		}
	}
	return name
}
