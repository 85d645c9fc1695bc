// Package stringutil provides text normalization shared by identity
// matching, keyword dispatch and display formatting.
package stringutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold trims, case-folds and strips combining marks, so "  Élena " and
// "elena" compare equal. Full case folding turns ß into "ss"; letters
// without a decomposition such as ø are kept. Fold creates a fresh
// transformer per call and is safe for concurrent use.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		out = strings.TrimSpace(s)
	}
	return cases.Fold().String(out)
}

// Humanize replaces the first underscore with a space:
// "work_permit" becomes "work permit", "family_reunification" becomes
// "family reunification".
func Humanize(s string) string {
	return strings.Replace(s, "_", " ", 1)
}

// Title uppercases s and turns every underscore into a space:
// "student_visa" becomes "STUDENT VISA".
func Title(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, "_", " "))
}

// Prefix returns the first n runes of s.
func Prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// FirstName returns the first whitespace-separated field of name.
func FirstName(name string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(name), " ")
	return first
}
