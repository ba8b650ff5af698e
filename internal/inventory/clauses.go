package inventory

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/tradefin/docintake/internal/common"
)

// RequiredDocument is one entry parsed from a credit's documents-required
// clause (SWIFT field 46A).
type RequiredDocument struct {
	ClauseNo int
	Name     string
	Copies   int // 1 when the clause names no count
	Clause   string
}

// ClauseAnalyzer extracts the documents-required inventory from letter of
// credit text.
type ClauseAnalyzer interface {
	Analyze(ctx context.Context, lcText string) ([]RequiredDocument, error)
}

var (
	// "46A: Documents Required" or "DOCUMENTS REQUIRED"
	reSectionStart = regexp.MustCompile(`(?i)(?:^|\n)\s*(?:46A[:\s]|documents\s+required)`)
	// next SWIFT field tag, e.g. "47A:" on its own line
	reSectionEnd = regexp.MustCompile(`(?m)^\s*\d{2}[A-Z]?\s*:`)
	// "1." / "2)" / "+" clause markers
	reClauseStart = regexp.MustCompile(`(?m)^\s*(?:(\d{1,2})[.)]|\+)\s+`)

	reCopiesIn = regexp.MustCompile(`(?i)\bin\s+(\d+|one|two|three|four|five|six)\s+(?:copies|originals?)\b`)
	reFold     = regexp.MustCompile(`(?i)\b(\d+)\s*fold\b`)
)

var wordNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5, "six": 6,
}

// RuleAnalyzer parses 46A clauses with the patterns above.
type RuleAnalyzer struct{}

func NewRuleAnalyzer() *RuleAnalyzer { return &RuleAnalyzer{} }

func (a *RuleAnalyzer) Analyze(_ context.Context, lcText string) ([]RequiredDocument, error) {
	section, err := documentsSection(lcText)
	if err != nil {
		return nil, err
	}

	marks := reClauseStart.FindAllStringSubmatchIndex(section, -1)
	if len(marks) == 0 {
		// unnumbered single clause
		clause := strings.TrimSpace(section)
		if clause == "" {
			return nil, common.NewAppError("INVENTORY_EMPTY", "documents required section has no clauses", common.ErrInvalidInput)
		}
		return []RequiredDocument{clauseToDoc(1, clause)}, nil
	}

	var out []RequiredDocument
	for i, m := range marks {
		end := len(section)
		if i+1 < len(marks) {
			end = marks[i+1][0]
		}
		clause := strings.TrimSpace(section[m[1]:end])
		if clause == "" {
			continue
		}
		no := i + 1
		if m[2] >= 0 {
			if n, err := strconv.Atoi(section[m[2]:m[3]]); err == nil {
				no = n
			}
		}
		out = append(out, clauseToDoc(no, clause))
	}
	return out, nil
}

func documentsSection(lcText string) (string, error) {
	loc := reSectionStart.FindStringIndex(lcText)
	if loc == nil {
		return "", common.NewAppError("INVENTORY_NO_SECTION", "no documents-required section found", common.ErrInvalidInput)
	}
	rest := lcText[loc[1]:]
	if end := reSectionEnd.FindStringIndex(rest); end != nil {
		rest = rest[:end[0]]
	}
	return rest, nil
}

func clauseToDoc(no int, clause string) RequiredDocument {
	copies := 1
	if m := reCopiesIn.FindStringSubmatch(clause); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			copies = n
		} else if n, ok := wordNumbers[strings.ToLower(m[1])]; ok {
			copies = n
		}
	} else if m := reFold.FindStringSubmatch(clause); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			copies = n
		}
	}

	return RequiredDocument{
		ClauseNo: no,
		Name:     clauseName(clause),
		Copies:   copies,
		Clause:   clause,
	}
}

// clauseName takes the clause head up to the first qualifier as the
// document's name, e.g. "SIGNED COMMERCIAL INVOICE IN 3 COPIES" ->
// "SIGNED COMMERCIAL INVOICE".
func clauseName(clause string) string {
	head := clause
	if i := strings.IndexAny(head, ",;\n"); i > 0 {
		head = head[:i]
	}
	if m := reCopiesIn.FindStringIndex(head); m != nil {
		head = head[:m[0]]
	}
	if m := reFold.FindStringIndex(head); m != nil {
		head = head[:m[0]]
	}
	return strings.Join(strings.Fields(head), " ")
}
