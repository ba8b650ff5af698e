package ocr

import (
	"regexp"
	"strings"
)

var (
	reSpaces   = regexp.MustCompile(`[ \t]+`)
	reManyNL   = regexp.MustCompile(`\n{3,}`)
	reBoxNoise = regexp.MustCompile(`[|_]{4,}`)
)

// Normalize cleans raw tesseract output: strips ruled-line noise, collapses
// runs of spaces, caps blank runs at one empty line, and rejoins lines the
// scanner broke mid-sentence (a line ending in a lowercase word continued by
// a lowercase word on the next line).
func Normalize(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = reBoxNoise.ReplaceAllString(s, "")
	s = reSpaces.ReplaceAllString(s, " ")

	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if len(out) > 0 && shouldJoin(out[len(out)-1], ln) {
			out[len(out)-1] = out[len(out)-1] + " " + ln
			continue
		}
		out = append(out, ln)
	}

	s = strings.Join(out, "\n")
	s = reManyNL.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

func shouldJoin(prev, cur string) bool {
	if prev == "" || cur == "" {
		return false
	}
	p := prev[len(prev)-1]
	c := cur[0]
	return p >= 'a' && p <= 'z' && c >= 'a' && c <= 'z'
}
