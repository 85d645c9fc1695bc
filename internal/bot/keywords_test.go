package bot

import "testing"

func TestKeywordsScore(t *testing.T) {
	t.Parallel()
	docs := Strong("document", "paper").With(Weak("need"))

	tests := []struct {
		text string
		want float64
	}{
		{"What documents do I need?", 1.5},
		{"I NEED help", 0.5},
		{"paperwork and documents", 2},
		{"hello", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := docs.Score(tt.text); got != tt.want {
			t.Errorf("Score(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestStrongLowercasesTerms(t *testing.T) {
	t.Parallel()
	k := Strong("Status")
	if k[0].Term != "status" || k[0].Weight != 1 {
		t.Errorf("Strong() = %+v", k)
	}
	if w := Weak("x")[0].Weight; w != 0.5 {
		t.Errorf("Weak weight = %v", w)
	}
}
