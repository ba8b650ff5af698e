package pipeline

import (
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/tradefin/docintake/internal/common"
)

// Vocabulary maps canonical form-type names to the keywords that identify
// them near the top of a page. Loaded from YAML when configured, otherwise
// the compiled-in trade-document set applies.
type Vocabulary struct {
	entries []vocabEntry
}

type vocabEntry struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// defaultVocab covers the document types that routinely travel under a
// letter of credit.
var defaultVocab = []vocabEntry{
	{Name: "Letter of Credit", Keywords: []string{"letter of credit", "documentary credit", "irrevocable credit", "mt700", "mt 700"}},
	{Name: "Commercial Invoice", Keywords: []string{"commercial invoice", "invoice no", "invoice number", "proforma invoice"}},
	{Name: "Bill of Lading", Keywords: []string{"bill of lading", "b/l no", "ocean bill", "shipped on board", "port of loading"}},
	{Name: "Packing List", Keywords: []string{"packing list", "packing specification", "gross weight", "net weight"}},
	{Name: "Certificate of Origin", Keywords: []string{"certificate of origin", "country of origin"}},
	{Name: "Bill of Exchange", Keywords: []string{"bill of exchange", "exchange for", "pay this first", "at sight of this"}},
	{Name: "Insurance Certificate", Keywords: []string{"insurance certificate", "insurance policy", "certificate of insurance", "marine cargo"}},
	{Name: "Mill Certificate", Keywords: []string{"mill certificate", "mill test certificate", "inspection certificate"}},
	{Name: "Certificate of Weight", Keywords: []string{"certificate of weight", "weight certificate", "weight list"}},
	{Name: "Certificate from Shipping Company", Keywords: []string{"certificate from shipping", "shipping company certificate", "vessel certificate"}},
	{Name: "Shipping Guarantee", Keywords: []string{"shipping guarantee", "letter of guarantee", "letter of indemnity"}},
	{Name: "SWIFT Message", Keywords: []string{"swift", "mt7", "message type", "sender's reference"}},
}

// DefaultVocabulary returns the compiled-in set.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{entries: defaultVocab}
}

// LoadVocabulary reads a YAML vocabulary file. An empty path yields the
// default set.
func LoadVocabulary(path string) (*Vocabulary, error) {
	if path == "" {
		return DefaultVocabulary(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, common.NewAppError("VOCAB_READ", path, err)
	}
	var entries []vocabEntry
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return nil, common.NewAppError("VOCAB_PARSE", path, err)
	}
	if len(entries) == 0 {
		return nil, common.NewAppError("VOCAB_EMPTY", path, common.ErrInvalidInput)
	}
	for i := range entries {
		for j, kw := range entries[i].Keywords {
			entries[i].Keywords[j] = strings.ToLower(strings.TrimSpace(kw))
		}
	}
	return &Vocabulary{entries: entries}, nil
}

// Names returns the canonical form-type names in entry order.
func (v *Vocabulary) Names() []string {
	out := make([]string, len(v.entries))
	for i, e := range v.entries {
		out[i] = e.Name
	}
	return out
}

// headLines is how much of a page the classifier inspects. Form titles sit
// at the top; body text below only adds false positives.
const headLines = 12

// Classify scores the head of the page text against every vocabulary entry
// and returns the best canonical name with its score. Score 0 means no
// signal. Ties resolve to the highest score, then the alphabetically first
// name, so classification is deterministic.
func (v *Vocabulary) Classify(pageText string) (name string, score int) {
	head := strings.ToLower(headText(pageText))
	type candidate struct {
		name  string
		score int
	}
	var cands []candidate
	for _, e := range v.entries {
		s := 0
		for _, kw := range e.Keywords {
			if strings.Contains(head, kw) {
				s++
			}
		}
		if s > 0 {
			cands = append(cands, candidate{e.Name, s})
		}
	}
	if len(cands) == 0 {
		return "", 0
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].name < cands[j].name
	})
	return cands[0].name, cands[0].score
}

func headText(pageText string) string {
	lines := strings.Split(pageText, "\n")
	n := 0
	var kept []string
	for _, ln := range lines {
		ln = strings.TrimSpace(ln)
		if ln == "" {
			continue
		}
		kept = append(kept, ln)
		n++
		if n >= headLines {
			break
		}
	}
	return strings.Join(kept, "\n")
}
