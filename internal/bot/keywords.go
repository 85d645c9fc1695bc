package bot

import "strings"

// Keyword is a scored substring.
type Keyword struct {
	Term   string
	Weight float64
}

// Keywords is a handler's keyword table.
type Keywords []Keyword

// Strong returns weight-1 keywords.
func Strong(terms ...string) Keywords {
	return weighted(1, terms)
}

// Weak returns weight-0.5 keywords. They select a handler like strong ones
// but count half toward a message's keyword evidence.
func Weak(terms ...string) Keywords {
	return weighted(0.5, terms)
}

func weighted(w float64, terms []string) Keywords {
	out := make(Keywords, len(terms))
	for i, t := range terms {
		out[i] = Keyword{Term: strings.ToLower(t), Weight: w}
	}
	return out
}

// With concatenates keyword tables.
func (k Keywords) With(more Keywords) Keywords {
	out := make(Keywords, 0, len(k)+len(more))
	return append(append(out, k...), more...)
}

// Score sums the weights of the terms found in text. Matching is a plain
// substring test on the lowercased text.
func (k Keywords) Score(text string) float64 {
	lower := strings.ToLower(text)
	var score float64
	for _, kw := range k {
		if strings.Contains(lower, kw.Term) {
			score += kw.Weight
		}
	}
	return score
}
