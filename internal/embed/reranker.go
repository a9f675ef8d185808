package embed

import (
	"context"
	"sort"
	"strings"
)

// StaticReranker scores documents by token-overlap with the query. It has
// none of a real cross-encoder's cross-attention, but gives deterministic,
// query-sensitive ordering for tests and offline development.
type StaticReranker struct{}

// NewStaticReranker creates a new static reranker.
func NewStaticReranker() *StaticReranker {
	return &StaticReranker{}
}

// Score implements Reranker.
func (r *StaticReranker) Score(ctx context.Context, query string, docs []string) ([]ScoredDoc, error) {
	queryTokens := tokenSet(query)

	scored := make([]ScoredDoc, len(docs))
	for i, doc := range docs {
		scored[i] = ScoredDoc{Index: i, Score: overlapScore(queryTokens, doc)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	return scored, nil
}

// Close implements Reranker.
func (r *StaticReranker) Close() error {
	return nil
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range tokenize(text) {
		if !programmingStopWords[tok] {
			set[tok] = true
		}
	}
	return set
}

func overlapScore(queryTokens map[string]bool, doc string) float32 {
	if len(queryTokens) == 0 {
		return 0
	}
	docTokens := tokenize(strings.ToLower(doc))
	var hits int
	seen := make(map[string]bool)
	for _, tok := range docTokens {
		if queryTokens[tok] && !seen[tok] {
			hits++
			seen[tok] = true
		}
	}
	return float32(hits) / float32(len(queryTokens))
}
