// Package retriever implements the query pipeline spec.md §4.5 defines:
// embed the query, oversample the Store's vector search, rerank the
// candidates, and return the top_n with a deterministic tie-break.
package retriever

import (
	"context"
	"sort"
	"strings"

	"ragrep/internal/embed"
	"ragrep/internal/errkit"
	"ragrep/internal/store"
)

// maxQueryBytes is the 2 KiB ceiling spec.md §4.5 places on query length.
const maxQueryBytes = 2 * 1024

// minOversampleCandidates is the floor on k1 even when top_n is small,
// so the reranker always has a useful pool of alternatives.
const minOversampleCandidates = 50

const (
	minTopN = 1
	maxTopN = 100
)

// defaultOversampleFactor is used when Query.OversampleFactor is unset;
// it mirrors config.RetrievalConfig's documented default.
const defaultOversampleFactor = 5

// Query is one search request.
type Query struct {
	Text             string
	TopN             int  // clamped to [1, 100]
	OversampleFactor int  // 0 uses defaultOversampleFactor
	FilesOnly        bool // omit Text from results when true
}

// Result is one ranked chunk, carrying everything needed to report a
// match without a second Store lookup.
type Result struct {
	FilePath  string
	StartLine int
	EndLine   int
	Text      string // empty when the query was files_only
	Score     float32
}

// Retriever runs the embed → recall → rerank pipeline against a Store.
type Retriever struct {
	embedder embed.Embedder
	reranker embed.Reranker
	store    store.Store
}

// New builds a Retriever over the given models and store.
func New(embedder embed.Embedder, reranker embed.Reranker, st store.Store) *Retriever {
	return &Retriever{embedder: embedder, reranker: reranker, store: st}
}

// Search runs the pipeline, returning at most q.TopN results ordered by
// descending rerank score with ties broken by ascending (file_path,
// start_line).
func (r *Retriever) Search(ctx context.Context, q Query) ([]Result, error) {
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return nil, errkit.New(errkit.InvalidQuery, "query must not be empty")
	}
	if len(q.Text) > maxQueryBytes {
		return nil, errkit.New(errkit.InvalidQuery, "query exceeds %d bytes", maxQueryBytes)
	}

	topN := clamp(q.TopN, minTopN, maxTopN)
	oversample := q.OversampleFactor
	if oversample < 1 {
		oversample = defaultOversampleFactor
	}
	k1 := topN * oversample
	if k1 < minOversampleCandidates {
		k1 = minOversampleCandidates
	}

	qv, err := r.embedder.EmbedQuery(ctx, text)
	if err != nil {
		return nil, errkit.Wrap(errkit.Internal, err, "embed query")
	}

	candidates, err := r.store.Search(ctx, qv, k1)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return []Result{}, nil
	}

	docs := make([]string, len(candidates))
	for i, c := range candidates {
		docs[i] = c.Text
	}
	scored, err := r.reranker.Score(ctx, text, docs)
	if err != nil {
		return nil, errkit.Wrap(errkit.Internal, err, "rerank candidates")
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		ci, cj := candidates[scored[i].Index], candidates[scored[j].Index]
		if ci.FilePath != cj.FilePath {
			return ci.FilePath < cj.FilePath
		}
		return ci.StartLine < cj.StartLine
	})

	n := topN
	if n > len(scored) {
		n = len(scored)
	}

	results := make([]Result, n)
	for i := 0; i < n; i++ {
		c := candidates[scored[i].Index]
		res := Result{
			FilePath:  c.FilePath,
			StartLine: c.StartLine,
			EndLine:   c.EndLine,
			Score:     scored[i].Score,
		}
		if !q.FilesOnly {
			res.Text = c.Text
		}
		results[i] = res
	}
	return results, nil
}

// clamp restricts v to [lo, hi]. A caller that wants config's
// top_n_default rather than an explicit value is expected to set
// Query.TopN to that default before calling Search; clamp only enforces
// the [1, 100] bound spec.md §4.5 requires, treating 0 or negative as lo.
func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
