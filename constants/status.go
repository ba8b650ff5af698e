package constants

// DocumentStatus is the canonical status for rows in documents.
// Only pipeline stages transition it; the UI never writes it directly.
type DocumentStatus string

// Stable values (store these exact strings in DB).
const (
	DocStatusUploaded   DocumentStatus = "UPLOADED"   // registered, no stage run yet
	DocStatusSplitting  DocumentStatus = "SPLITTING"  // boundary detection + split in progress
	DocStatusSplit      DocumentStatus = "SPLIT"      // splits + fields persisted
	DocStatusGrouping   DocumentStatus = "GROUPING"   // grouping in progress
	DocStatusGrouped    DocumentStatus = "GROUPED"    // groups persisted
	DocStatusCataloging DocumentStatus = "CATALOGING" // taxonomy matching in progress
	DocStatusCataloged  DocumentStatus = "CATALOGED"  // terminal success
	DocStatusError      DocumentStatus = "ERROR"      // stage failed; retry available
)

// NextOnSuccess maps an in-progress status to its completion status.
func (s DocumentStatus) NextOnSuccess() DocumentStatus {
	switch s {
	case DocStatusSplitting:
		return DocStatusSplit
	case DocStatusGrouping:
		return DocStatusGrouped
	case DocStatusCataloging:
		return DocStatusCataloged
	}
	return s
}
