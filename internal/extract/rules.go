package extract

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
)

var (
	// "Invoice No: ABC-123" and the fullwidth-colon variant seen in scans.
	reColonField = regexp.MustCompile(`^(.{2,60}?)\s*[:：]\s*(.+)$`)
	// "BENEFICIARY ACME TRADING LTD" style headers where the label is an
	// all-caps run followed by the value on the same line.
	reCapsField = regexp.MustCompile(`^([A-Z][A-Z /&.]{2,59})\s{2,}(\S.{0,119})$`)

	reNoise = regexp.MustCompile(`^[\W_]+$`)
)

// RuleExtractor is the default, offline field extractor. It scans line by
// line for labeled values; labels are trimmed and uppercased into stable
// keys so repeated labels across pages collapse to one field.
type RuleExtractor struct {
	logger *slog.Logger
}

func NewRuleExtractor(logger *slog.Logger) *RuleExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &RuleExtractor{logger: logger}
}

func (e *RuleExtractor) Extract(_ context.Context, text string) (map[string]string, error) {
	fields := make(map[string]string)
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" || reNoise.MatchString(line) {
			continue
		}
		if key, val, ok := matchLine(line); ok {
			// last occurrence wins when the same label repeats
			fields[key] = val
		}
	}
	e.logger.Debug("rule extraction complete", "fields", len(fields))
	return fields, nil
}

func matchLine(line string) (key, val string, ok bool) {
	if m := reColonField.FindStringSubmatch(line); m != nil {
		key, val = normalizeKey(m[1]), strings.TrimSpace(m[2])
	} else if m := reCapsField.FindStringSubmatch(line); m != nil {
		key, val = normalizeKey(m[1]), strings.TrimSpace(m[2])
	} else {
		return "", "", false
	}
	if key == "" || val == "" {
		return "", "", false
	}
	return key, val, true
}

// normalizeKey uppercases the label and collapses internal whitespace so
// "Invoice  no" and "INVOICE NO" become the same field.
func normalizeKey(label string) string {
	label = strings.TrimSpace(label)
	label = strings.Trim(label, ".:：-")
	words := strings.Fields(strings.ToUpper(label))
	key := strings.Join(words, " ")
	if len(key) < 2 || len(key) > 60 {
		return ""
	}
	return key
}
