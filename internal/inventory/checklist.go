package inventory

import (
	"fmt"

	"github.com/tradefin/docintake/internal/entity"
	"github.com/tradefin/docintake/internal/match"
)

// ChecklistStatus says how a required document fared against the cataloged
// groups.
type ChecklistStatus string

const (
	StatusPresent ChecklistStatus = "PRESENT"
	StatusMissing ChecklistStatus = "MISSING"
)

// ChecklistItem pairs one 46A requirement with the presentation outcome.
type ChecklistItem struct {
	Required  RequiredDocument
	Status    ChecklistStatus
	MatchedAs string  // group form type that satisfied it, if any
	Score     float64 // similarity of the satisfying group
}

// checklistCutoff is intentionally looser than the catalog threshold:
// "SIGNED COMMERCIAL INVOICE" should still find "Commercial Invoice".
const checklistCutoff = 0.5

// BuildChecklist compares the required inventory against the groups that
// actually arrived. Each group satisfies at most one requirement.
func BuildChecklist(required []RequiredDocument, groups []*entity.Group) []ChecklistItem {
	used := make(map[int]bool, len(groups))
	items := make([]ChecklistItem, 0, len(required))
	for _, req := range required {
		best, bestIdx := 0.0, -1
		for i, g := range groups {
			if used[i] {
				continue
			}
			s := match.Score(req.Name, g.FormType)
			if s > best {
				best, bestIdx = s, i
			}
		}
		item := ChecklistItem{Required: req, Status: StatusMissing}
		if bestIdx >= 0 && best >= checklistCutoff {
			used[bestIdx] = true
			item.Status = StatusPresent
			item.MatchedAs = groups[bestIdx].FormType
			item.Score = best
		}
		items = append(items, item)
	}
	return items
}

// Summary is a one-line human rendering, mostly for CLI output.
func Summary(items []ChecklistItem) string {
	present := 0
	for _, it := range items {
		if it.Status == StatusPresent {
			present++
		}
	}
	return fmt.Sprintf("required %d, present %d, missing %d",
		len(items), present, len(items)-present)
}
