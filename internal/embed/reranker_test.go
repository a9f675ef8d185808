package embed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticReranker_ScoresByTokenOverlap(t *testing.T) {
	r := NewStaticReranker()
	defer r.Close()

	docs := []string{
		"func multiply(a, b int) int { return a * b }",
		"func add(a, b int) int { return a + b }",
		"class UserRepository { findById() }",
	}

	scored, err := r.Score(context.Background(), "add two numbers", docs)
	require.NoError(t, err)
	require.Len(t, scored, 3)

	assert.Equal(t, 1, scored[0].Index, "the add function should rank first for an add query")
}

func TestStaticReranker_ResultsSortedDescending(t *testing.T) {
	r := NewStaticReranker()
	defer r.Close()

	docs := []string{"alpha beta", "alpha beta gamma delta", "unrelated text"}
	scored, err := r.Score(context.Background(), "alpha beta gamma delta", docs)
	require.NoError(t, err)

	for i := 1; i < len(scored); i++ {
		assert.GreaterOrEqual(t, scored[i-1].Score, scored[i].Score)
	}
}

func TestStaticReranker_EmptyQueryScoresZero(t *testing.T) {
	r := NewStaticReranker()
	defer r.Close()

	scored, err := r.Score(context.Background(), "", []string{"anything"})
	require.NoError(t, err)
	require.Len(t, scored, 1)
	assert.Equal(t, float32(0), scored[0].Score)
}

func TestStaticReranker_ImplementsRerankerInterface(t *testing.T) {
	r := NewStaticReranker()
	defer r.Close()
	var _ Reranker = r
}
