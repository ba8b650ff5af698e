package pipeline

import (
	"os"
	"path/filepath"
	"testing"
)

func TestClassifyTieBreakIsDeterministic(t *testing.T) {
	v := &Vocabulary{entries: []vocabEntry{
		{Name: "Zeta Form", Keywords: []string{"shared marker"}},
		{Name: "Alpha Form", Keywords: []string{"shared marker"}},
	}}

	// equal scores resolve alphabetically, every time
	for i := 0; i < 10; i++ {
		name, score := v.Classify("SHARED MARKER\nbody text")
		if score != 1 {
			t.Fatalf("score = %d, want 1", score)
		}
		if name != "Alpha Form" {
			t.Fatalf("tie resolved to %q, want alphabetical first", name)
		}
	}
}

func TestClassifyPrefersHigherScore(t *testing.T) {
	v := DefaultVocabulary()
	name, score := v.Classify("BILL OF LADING\nB/L No: 77\nport of loading: Shanghai")
	if name != "Bill of Lading" {
		t.Fatalf("got %q, want Bill of Lading", name)
	}
	if score < 2 {
		t.Fatalf("score = %d, want multiple keyword hits", score)
	}
}

func TestClassifyIgnoresBodyText(t *testing.T) {
	// the marker sits far below the head window
	var body string
	for i := 0; i < headLines+5; i++ {
		body += "filler line\n"
	}
	body += "COMMERCIAL INVOICE"

	if name, score := DefaultVocabulary().Classify(body); score != 0 {
		t.Fatalf("matched %q from body text, want no signal", name)
	}
}

func TestLoadVocabularyYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vocab.yaml")
	yaml := `- name: Test Form
  keywords: ["TEST MARKER", "other"]
- name: Second Form
  keywords: ["second"]
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write vocab: %v", err)
	}

	v, err := LoadVocabulary(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	// keywords are lowercased on load
	name, score := v.Classify("test marker here")
	if name != "Test Form" || score != 1 {
		t.Fatalf("got %q/%d, want Test Form/1", name, score)
	}
}

func TestLoadVocabularyEmptyPathUsesDefaults(t *testing.T) {
	v, err := LoadVocabulary("")
	if err != nil {
		t.Fatalf("load default: %v", err)
	}
	if name, _ := v.Classify("LETTER OF CREDIT"); name != "Letter of Credit" {
		t.Fatalf("default vocabulary missing letter of credit: %q", name)
	}
}
