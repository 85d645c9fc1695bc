package storage

import "testing"

func TestSanitizeSearchTerm(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hans", "hans"},
		{"50%", `50\%`},
		{"a_b", `a\_b`},
		{`c:\x`, `c:\\x`},
	}
	for _, tt := range tests {
		if got := sanitizeSearchTerm(tt.input); got != tt.want {
			t.Errorf("sanitizeSearchTerm(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
