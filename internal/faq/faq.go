// Package faq answers general visa-desk questions from a small embedded
// knowledge base ranked with BM25.
package faq

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"sync"

	bm25 "github.com/iwilltry42/bm25-go/bm25"

	"github.com/garyellow/visadesk/internal/logger"
)

// DefaultMinScore is the lowest BM25 score Answer accepts.
const DefaultMinScore = 1.2

//go:embed faq.json
var embeddedFAQ []byte

// Entry is one question and its answer.
type Entry struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Keywords []string `json:"keywords"`
	Answer   string   `json:"answer"`
}

// Result is a ranked entry.
type Result struct {
	Entry Entry
	Score float64
	Rank  int
}

// Index is a BM25 index over FAQ entries. It is safe for concurrent use.
type Index struct {
	mu       sync.RWMutex
	okapi    *bm25.BM25Okapi
	entries  []Entry
	minScore float64
	logger   *logger.Logger
}

// Entries returns the embedded FAQ.
func Entries() ([]Entry, error) {
	var entries []Entry
	if err := json.Unmarshal(embeddedFAQ, &entries); err != nil {
		return nil, fmt.Errorf("decode embedded faq: %w", err)
	}
	return entries, nil
}

// NewIndex builds an index over entries. minScore <= 0 uses
// DefaultMinScore.
func NewIndex(entries []Entry, minScore float64, log *logger.Logger) (*Index, error) {
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	idx := &Index{minScore: minScore, logger: log.WithModule("faq")}
	if err := idx.build(entries); err != nil {
		return nil, err
	}
	return idx, nil
}

// Load builds an index over the embedded FAQ.
func Load(minScore float64, log *logger.Logger) (*Index, error) {
	entries, err := Entries()
	if err != nil {
		return nil, err
	}
	return NewIndex(entries, minScore, log)
}

func (idx *Index) build(entries []Entry) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.entries = slices.Clone(entries)
	idx.okapi = nil
	if len(entries) == 0 {
		return nil
	}

	corpus := make([]string, len(entries))
	for i, e := range entries {
		corpus[i] = e.Question + " " + strings.Join(e.Keywords, " ")
	}

	// k1=1.5, b=0.75 are the standard BM25 parameters
	okapi, err := bm25.NewBM25Okapi(corpus, tokenize, 1.5, 0.75, nil)
	if err != nil {
		return fmt.Errorf("failed to create BM25 index: %w", err)
	}
	idx.okapi = okapi

	idx.logger.WithField("entries", len(entries)).Info("FAQ index initialized")
	return nil
}

// Count returns the number of indexed entries.
func (idx *Index) Count() int {
	if idx == nil {
		return 0
	}
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Search returns up to topN entries with a positive score, best first.
// topN <= 0 returns all of them.
func (idx *Index) Search(query string, topN int) ([]Result, error) {
	if idx == nil {
		return nil, nil
	}
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if idx.okapi == nil {
		return nil, nil
	}

	scores, err := idx.okapi.GetScores(tokens)
	if err != nil {
		return nil, fmt.Errorf("BM25 scoring failed: %w", err)
	}

	results := make([]Result, 0, len(scores))
	for i, score := range scores {
		if score > 0 && i < len(idx.entries) {
			results = append(results, Result{Entry: idx.entries[i], Score: score})
		}
	}
	// Stable so that equal scores keep file order.
	slices.SortStableFunc(results, func(a, b Result) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		default:
			return 0
		}
	})
	for i := range results {
		results[i].Rank = i + 1
	}
	if topN > 0 && len(results) > topN {
		results = results[:topN]
	}
	return results, nil
}

// Answer returns the best answer for query when its score reaches the
// minimum score.
func (idx *Index) Answer(query string) (string, bool) {
	results, err := idx.Search(query, 1)
	if err != nil {
		idx.logger.WithError(err).Warn("FAQ search failed")
		return "", false
	}
	if len(results) == 0 || results[0].Score < idx.minScore {
		return "", false
	}
	idx.logger.Debug("FAQ answered",
		"entry", results[0].Entry.ID,
		"score", results[0].Score)
	return results[0].Entry.Answer, true
}
