package embed

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vectorMagnitude(v []float32) float64 {
	var sumSquares float64
	for _, x := range v {
		sumSquares += float64(x) * float64(x)
	}
	return math.Sqrt(sumSquares)
}

func cosineSimilarity(a, b []float32) float64 {
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func joinStrings(strs []string, sep string) string {
	if len(strs) == 0 {
		return ""
	}
	result := strs[0]
	for i := 1; i < len(strs); i++ {
		result += sep + strs[i]
	}
	return result
}

func TestStaticEmbedder_EmbedDocument_ReturnsCorrectDimensions(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer embedder.Close()

	embedding, err := embedder.EmbedDocument(context.Background(), "func main() {}")
	require.NoError(t, err)
	assert.Len(t, embedding, Dimensions)
}

func TestStaticEmbedder_EmbedDocument_VectorIsNormalized(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer embedder.Close()

	embedding, err := embedder.EmbedDocument(context.Background(), "func main() {}")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, vectorMagnitude(embedding), 1e-3)
}

func TestStaticEmbedder_EmbedQuery_IsDeterministic(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer embedder.Close()

	text := "func add(a, b int) int { return a + b }"

	emb1, err1 := embedder.EmbedQuery(context.Background(), text)
	emb2, err2 := embedder.EmbedQuery(context.Background(), text)

	require.NoError(t, err1)
	require.NoError(t, err2)
	assert.Equal(t, emb1, emb2)
}

func TestStaticEmbedder_EmbedQueryAndEmbedDocument_DifferFromEachOther(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer embedder.Close()

	text := "parse request body"
	queryEmb, err := embedder.EmbedQuery(context.Background(), text)
	require.NoError(t, err)
	docEmb, err := embedder.EmbedDocument(context.Background(), text)
	require.NoError(t, err)

	assert.NotEqual(t, queryEmb, docEmb, "query and document embeddings use different task prefixes")
}

func TestStaticEmbedder_DeterministicAcrossInstances(t *testing.T) {
	embedder1 := NewStaticEmbedder()
	embedder2 := NewStaticEmbedder()
	defer embedder1.Close()
	defer embedder2.Close()

	text := "func getUserById(id string) (*User, error)"

	emb1, _ := embedder1.EmbedDocument(context.Background(), text)
	emb2, _ := embedder2.EmbedDocument(context.Background(), text)

	assert.Equal(t, emb1, emb2)
}

func TestStaticEmbedder_DifferentTextsProduceDifferentVectors(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer embedder.Close()

	emb1, _ := embedder.EmbedDocument(context.Background(), "func add()")
	emb2, _ := embedder.EmbedDocument(context.Background(), "class Database")

	assert.NotEqual(t, emb1, emb2)
}

func TestStaticEmbedder_EmptyInput_ReturnsZeroVector(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer embedder.Close()

	embedding, err := embedder.EmbedDocument(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, embedding, Dimensions)
	for i, v := range embedding {
		assert.Equal(t, float32(0), v, "element %d should be zero", i)
	}
}

func TestStaticEmbedder_WhitespaceOnly_ReturnsZeroVector(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer embedder.Close()

	embedding, err := embedder.EmbedDocument(context.Background(), "   \t\n  ")
	require.NoError(t, err)
	for _, v := range embedding {
		assert.Equal(t, float32(0), v)
	}
}

func TestStaticEmbedder_SimilarCodeHasHigherSimilarity(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer embedder.Close()

	add := "func add(a, b int) int { return a + b }"
	sum := "func sum(x, y int) int { return x + y }"
	repository := "class UserRepository { findById() }"

	addEmb, _ := embedder.EmbedDocument(context.Background(), add)
	sumEmb, _ := embedder.EmbedDocument(context.Background(), sum)
	repoEmb, _ := embedder.EmbedDocument(context.Background(), repository)

	addSumSim := cosineSimilarity(addEmb, sumEmb)
	addRepoSim := cosineSimilarity(addEmb, repoEmb)

	assert.Greater(t, addSumSim, addRepoSim)
}

func TestStaticEmbedder_CamelCaseTokenizesLikeSpaceSeparated(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer embedder.Close()

	camelEmb, _ := embedder.EmbedDocument(context.Background(), "getUserById")
	spaceEmb, _ := embedder.EmbedDocument(context.Background(), "get user by id")

	similarity := cosineSimilarity(camelEmb, spaceEmb)
	assert.Greater(t, similarity, 0.3)
}

func TestStaticEmbedder_SnakeCaseTokenizesLikeSpaceSeparated(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer embedder.Close()

	snakeEmb, _ := embedder.EmbedDocument(context.Background(), "get_user_by_id")
	spaceEmb, _ := embedder.EmbedDocument(context.Background(), "get user by id")

	similarity := cosineSimilarity(snakeEmb, spaceEmb)
	assert.Greater(t, similarity, 0.3)
}

func TestStaticEmbedder_Performance(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer embedder.Close()

	texts := make([]string, 1000)
	for i := range texts {
		texts[i] = "func test" + string(rune('A'+i%26)) + "() { return i + 1 }"
	}

	start := time.Now()
	for _, text := range texts {
		_, err := embedder.EmbedDocument(context.Background(), text)
		require.NoError(t, err)
	}
	elapsed := time.Since(start)

	assert.Less(t, elapsed, 1*time.Second)
}

func TestStaticEmbedder_ImplementsEmbedderInterface(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer embedder.Close()

	var _ Embedder = embedder
}

func TestStaticEmbedder_ID(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer embedder.Close()

	assert.Equal(t, "static-v1", embedder.ID())
}

func TestStaticEmbedder_CloseIsIdempotent(t *testing.T) {
	embedder := NewStaticEmbedder()

	assert.NoError(t, embedder.Close())
	assert.NoError(t, embedder.Close())
	assert.NoError(t, embedder.Close())
}

func TestStaticEmbedder_EmbedAfterCloseReturnsError(t *testing.T) {
	embedder := NewStaticEmbedder()
	_ = embedder.Close()

	_, err := embedder.EmbedDocument(context.Background(), "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestStaticEmbedder_TokenizeCamelCase(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
	}{
		{"basic camelCase", "getUserById", []string{"get", "user", "id"}},
		{"acronym at start", "HTTPRequest", []string{"http", "request"}},
		{"acronym in middle", "parseJSONData", []string{"parse", "json", "data"}},
	}

	embedder := NewStaticEmbedder()
	defer embedder.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			camelEmb, _ := embedder.EmbedDocument(context.Background(), tt.input)
			tokensEmb, _ := embedder.EmbedDocument(context.Background(), joinStrings(tt.contains, " "))

			similarity := cosineSimilarity(camelEmb, tokensEmb)
			assert.Greater(t, similarity, 0.2)
		})
	}
}

func TestStaticEmbedder_TokenizeSnakeCase(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
	}{
		{"basic snake_case", "get_user_by_id", []string{"get", "user", "id"}},
		{"uppercase snake_case", "MAX_BUFFER_SIZE", []string{"max", "buffer", "size"}},
	}

	embedder := NewStaticEmbedder()
	defer embedder.Close()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snakeEmb, _ := embedder.EmbedDocument(context.Background(), tt.input)
			tokensEmb, _ := embedder.EmbedDocument(context.Background(), joinStrings(tt.contains, " "))

			similarity := cosineSimilarity(snakeEmb, tokensEmb)
			assert.Greater(t, similarity, 0.2)
		})
	}
}

func TestStaticEmbedder_StopWordFiltering(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer embedder.Close()

	withStopWords := "func return int string bool void"
	withoutStopWords := "calculate process validate"

	embWith, _ := embedder.EmbedDocument(context.Background(), withStopWords)
	embWithout, _ := embedder.EmbedDocument(context.Background(), withoutStopWords)

	similarity := cosineSimilarity(embWith, embWithout)
	assert.Less(t, similarity, 0.5)
}

func TestStaticEmbedder_UnicodeTextNoError(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer embedder.Close()

	texts := []string{
		"func 日本語() {}",
		"// комментарий",
		"const emoji = 'x'",
	}

	for _, text := range texts {
		embedding, err := embedder.EmbedDocument(context.Background(), text)
		require.NoError(t, err)
		assert.Len(t, embedding, Dimensions)
	}
}

func TestStaticEmbedder_LongTextNoError(t *testing.T) {
	embedder := NewStaticEmbedder()
	defer embedder.Close()

	longText := ""
	for i := 0; i < 10000; i++ {
		longText += "word "
	}

	embedding, err := embedder.EmbedDocument(context.Background(), longText)
	require.NoError(t, err)
	assert.Len(t, embedding, Dimensions)
	assert.InDelta(t, 1.0, vectorMagnitude(embedding), 1e-3)
}
