package match

import "testing"

func TestScoreBounds(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"identical", "Commercial Invoice", "Commercial Invoice"},
		{"typo", "Comercial Invoice", "Commercial Invoice"},
		{"reordered", "Invoice, Commercial", "Commercial Invoice"},
		{"unrelated", "Handwritten Annex", "Bill of Lading"},
		{"empty left", "", "Packing List"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Score(tt.a, tt.b)
			if s < 0 || s > 1 {
				t.Fatalf("Score(%q, %q) = %f outside [0,1]", tt.a, tt.b, s)
			}
		})
	}
}

func TestScoreIdenticalIsOne(t *testing.T) {
	if s := Score("Packing List", "packing  list"); s != 1 {
		t.Fatalf("normalized-identical names score %f, want 1", s)
	}
}

func TestScoreOrderingMatchesIntuition(t *testing.T) {
	typo := Score("Comercial Invoice", "Commercial Invoice")
	reordered := Score("Invoice Commercial", "Commercial Invoice")
	unrelated := Score("Handwritten Annex", "Commercial Invoice")

	if typo <= unrelated || reordered <= unrelated {
		t.Fatalf("near-misses (%f, %f) must outscore unrelated (%f)", typo, reordered, unrelated)
	}
	if typo < 0.6 {
		t.Fatalf("single-character typo scores %f, must clear the default threshold", typo)
	}
	if unrelated >= 0.6 {
		t.Fatalf("unrelated names score %f, must stay under the default threshold", unrelated)
	}
}

func TestScoreIsSymmetricEnoughForRanking(t *testing.T) {
	// ranking stability across repeated calls with the same inputs
	for i := 0; i < 10; i++ {
		if Score("Bill of Lading", "Bill of Exchange") != Score("Bill of Lading", "Bill of Exchange") {
			t.Fatal("score not deterministic")
		}
	}
}

func TestScoreEmptyInputs(t *testing.T) {
	if s := Score("", ""); s != 0 {
		t.Fatalf("empty inputs score %f, want 0", s)
	}
	if s := Score("???", "Packing List"); s != 0 {
		t.Fatalf("punctuation-only input scores %f, want 0", s)
	}
}
