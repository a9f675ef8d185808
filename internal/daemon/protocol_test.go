package daemon

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragrep/internal/retriever"
)

func TestRequest_JSON(t *testing.T) {
	req := Request{Type: "request", ID: 1, Query: "test query", TopN: 10, FilesOnly: true}

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var decoded Request
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, "request", decoded.Type)
	assert.Equal(t, uint64(1), decoded.ID)
	assert.Equal(t, "test query", decoded.Query)
	assert.Equal(t, 10, decoded.TopN)
	assert.True(t, decoded.FilesOnly)
}

func TestResponse_JSON(t *testing.T) {
	resp := Response{
		Type: "response",
		ID:   7,
		Results: []Result{
			{FilePath: "a.rs", StartLine: 1, EndLine: 3, Text: "fn foo(){}", Score: 0.5},
		},
		Stats: Stats{TotalTimeMs: 12, NumCandidates: 5, NumResults: 1},
	}

	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded Response
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, uint64(7), decoded.ID)
	require.Len(t, decoded.Results, 1)
	assert.Equal(t, "a.rs", decoded.Results[0].FilePath)
	assert.Equal(t, 5, decoded.Stats.NumCandidates)
}

func TestResult_FilesOnlyOmitsText(t *testing.T) {
	r := Result{FilePath: "a.py", StartLine: 1, EndLine: 2, Score: 0.1}
	data, err := json.Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `"text"`)
}

func TestError_ImplementsError(t *testing.T) {
	e := &Error{Type: "error", ID: 3, Kind: ErrInvalidQuery, Message: "query must not be empty"}
	assert.Contains(t, e.Error(), "InvalidQuery")
	assert.Contains(t, e.Error(), "query must not be empty")
}

func TestErrorKindConstants(t *testing.T) {
	assert.Equal(t, ErrorKind("InvalidQuery"), ErrInvalidQuery)
	assert.Equal(t, ErrorKind("Busy"), ErrBusy)
	assert.Equal(t, ErrorKind("Internal"), ErrInternal)
	assert.Equal(t, ErrorKind("IncompatibleIndex"), ErrIncompatibleIndex)
}

func TestResultsFrom(t *testing.T) {
	rs := []retriever.Result{
		{FilePath: "b.ts", StartLine: 2, EndLine: 4, Text: "class X {}", Score: 0.7},
	}
	out := resultsFrom(rs)
	require.Len(t, out, 1)
	assert.Equal(t, "b.ts", out[0].FilePath)
	assert.Equal(t, 2, out[0].StartLine)
	assert.InDelta(t, 0.7, out[0].Score, 0.0001)
}
