package daemon

import (
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragrep/internal/chunk"
	"ragrep/internal/config"
	"ragrep/internal/embed"
	"ragrep/internal/index"
	"ragrep/internal/scanner"
)

const pySample = `def add(a, b):
    return a + b

def sub(a, b):
    return a - b
`

// newTestServer boots a full Server (State + Indexer, no Watcher) over a
// project root with one indexed file, returning it unstarted along with
// its Config.
func newTestServer(t *testing.T) (*Server, Config, string) {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "math.py"), []byte(pySample), 0o644))

	dataDir := filepath.Join(root, config.DataDirName)
	require.NoError(t, os.MkdirAll(dataDir, 0o755))

	cfg := config.Default()
	cfg.Store.Path = filepath.Join(dataDir, "index.db")

	embedder := embed.NewStaticEmbedder()
	t.Cleanup(func() { embedder.Close() })
	reranker := embed.NewStaticReranker()

	state, err := Boot(context.Background(), root, cfg, embedder, reranker)
	require.NoError(t, err)

	sc, err := scanner.New(root, config.DataDirName)
	require.NoError(t, err)
	codeChunker := chunk.NewCodeChunker()
	t.Cleanup(codeChunker.Close)

	ix := index.New(root, sc, codeChunker, state.Embedder(), state.Store())
	_, err = ix.FullIndex(context.Background())
	require.NoError(t, err)

	daemonCfg := PathsFor(dataDir)
	t.Cleanup(func() { os.Remove(daemonCfg.SocketPath) })

	srv := NewServer(daemonCfg, state, ix, nil, nil)
	return srv, daemonCfg, root
}

func startServer(t *testing.T, srv *Server) (context.CancelFunc, chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe(ctx) }()
	time.Sleep(100 * time.Millisecond)
	return cancel, errCh
}

func TestServer_ListenAndServe_CreatesSocket(t *testing.T) {
	srv, cfg, _ := newTestServer(t)
	cancel, errCh := startServer(t, srv)
	defer cancel()

	_, err := os.Stat(cfg.SocketPath)
	require.NoError(t, err)

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServer_CleansUpSocket(t *testing.T) {
	srv, cfg, _ := newTestServer(t)
	cancel, errCh := startServer(t, srv)

	_, err := os.Stat(cfg.SocketPath)
	require.NoError(t, err)

	cancel()
	<-errCh
	time.Sleep(50 * time.Millisecond)

	_, err = os.Stat(cfg.SocketPath)
	assert.True(t, os.IsNotExist(err), "socket should be cleaned up")
}

func sendRequest(t *testing.T, socketPath string, req Request) json.RawMessage {
	t.Helper()
	conn, err := net.Dial("unix", socketPath)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, json.NewEncoder(conn).Encode(req))

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(conn).Decode(&raw))
	return raw
}

func TestServer_HandleSearch_ReturnsMatch(t *testing.T) {
	srv, cfg, _ := newTestServer(t)
	cancel, _ := startServer(t, srv)
	defer cancel()

	raw := sendRequest(t, cfg.SocketPath, Request{Type: "request", ID: 1, Query: "add", TopN: 5})

	var resp Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, "math.py", resp.Results[0].FilePath)
	assert.Equal(t, 2, resp.Stats.NumResults)
}

func TestServer_HandleSearch_InvalidQuery(t *testing.T) {
	srv, cfg, _ := newTestServer(t)
	cancel, _ := startServer(t, srv)
	defer cancel()

	raw := sendRequest(t, cfg.SocketPath, Request{Type: "request", ID: 2, Query: "", TopN: 5})

	var wireErr Error
	require.NoError(t, json.Unmarshal(raw, &wireErr))
	assert.Equal(t, ErrInvalidQuery, wireErr.Kind)
}

func TestServer_FilesOnlyOmitsText(t *testing.T) {
	srv, cfg, _ := newTestServer(t)
	cancel, _ := startServer(t, srv)
	defer cancel()

	raw := sendRequest(t, cfg.SocketPath, Request{Type: "request", ID: 3, Query: "add", TopN: 5, FilesOnly: true})

	var resp Response
	require.NoError(t, json.Unmarshal(raw, &resp))
	require.NotEmpty(t, resp.Results)
	assert.Empty(t, resp.Results[0].Text)
}

func TestServer_ConcurrentConnections(t *testing.T) {
	srv, cfg, _ := newTestServer(t)
	cancel, _ := startServer(t, srv)
	defer cancel()

	const numClients = 5
	done := make(chan bool, numClients)

	for i := 0; i < numClients; i++ {
		go func(id int) {
			raw := sendRequest(t, cfg.SocketPath, Request{Type: "request", ID: uint64(id), Query: "add", TopN: 5})
			var resp Response
			done <- json.Unmarshal(raw, &resp) == nil && len(resp.Results) > 0
		}(i)
	}

	successCount := 0
	for i := 0; i < numClients; i++ {
		if <-done {
			successCount++
		}
	}
	assert.Equal(t, numClients, successCount, "all clients should succeed")
}

func TestServer_QueryBusyWhileReindexing(t *testing.T) {
	srv, cfg, _ := newTestServer(t)
	cancel, _ := startServer(t, srv)
	defer cancel()

	// Hold the exclusive lock to simulate an in-progress reindex.
	srv.state.Lock()
	defer srv.state.Unlock()

	// query_timeout_ms default is 30s; shrink it for the test.
	shortCfg := srv.state.cfg
	shortCfg.Retrieval.QueryTimeoutMs = 50
	srv.state.cfg = shortCfg

	raw := sendRequest(t, cfg.SocketPath, Request{Type: "request", ID: 99, Query: "add", TopN: 5})
	var wireErr Error
	require.NoError(t, json.Unmarshal(raw, &wireErr))
	assert.Equal(t, ErrBusy, wireErr.Kind)
}
