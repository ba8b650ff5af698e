package match

import (
	"strings"
)

// Score rates how well a detected form type name matches a template name,
// in [0, 1]. It blends character-sequence similarity with token overlap so
// both "Comercial Invoice" (typo) and "Invoice, Commercial" (reordered)
// score high against "Commercial Invoice". Deterministic for any input pair.
func Score(formType, templateName string) float64 {
	a := normalize(formType)
	b := normalize(templateName)
	if a == "" || b == "" {
		return 0
	}
	if a == b {
		return 1
	}
	seq := sequenceRatio(a, b)
	tok := tokenJaccard(a, b)
	return 0.7*seq + 0.3*tok
}

func normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// sequenceRatio is the Ratcliff/Obershelp similarity: twice the total length
// of recursively matched blocks over the combined length.
func sequenceRatio(a, b string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	m := matchedLen(a, b)
	return 2 * float64(m) / float64(len(a)+len(b))
}

func matchedLen(a, b string) int {
	ai, bi, size := longestMatch(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchedLen(a[:ai], b[:bi]) +
		matchedLen(a[ai+size:], b[bi+size:])
}

func longestMatch(a, b string) (ai, bi, size int) {
	// classic dynamic table over the shorter dimension
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 0; i < len(a); i++ {
		for j := 0; j < len(b); j++ {
			if a[i] == b[j] {
				cur[j+1] = prev[j] + 1
				if cur[j+1] > size {
					size = cur[j+1]
					ai = i - size + 1
					bi = j - size + 1
				}
			} else {
				cur[j+1] = 0
			}
		}
		prev, cur = cur, prev
	}
	return ai, bi, size
}

func tokenJaccard(a, b string) float64 {
	at := strings.Fields(a)
	bt := strings.Fields(b)
	if len(at) == 0 || len(bt) == 0 {
		return 0
	}
	set := make(map[string]bool, len(at))
	for _, t := range at {
		set[t] = true
	}
	inter := 0
	union := len(set)
	seen := make(map[string]bool, len(bt))
	for _, t := range bt {
		if seen[t] {
			continue
		}
		seen[t] = true
		if set[t] {
			inter++
		} else {
			union++
		}
	}
	return float64(inter) / float64(union)
}
