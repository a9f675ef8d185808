package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"ragrep/internal/config"
	"ragrep/internal/embed"
	"ragrep/internal/errkit"
	"ragrep/internal/retriever"
	"ragrep/internal/store"
)

// Client connects to a project's daemon over its Unix-domain socket and
// runs one search request per call, per spec.md §4.8.
type Client struct {
	socketPath string
	timeout    time.Duration
	requestID  atomic.Uint64
}

// NewClient builds a Client bound to a single project's socket.
func NewClient(cfg Config) *Client {
	return &Client{socketPath: cfg.SocketPath, timeout: cfg.Timeout}
}

// Connect dials the daemon's socket.
func (c *Client) Connect() (net.Conn, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, errkit.Wrap(errkit.IoError, err, "connect to daemon at %s", c.socketPath)
	}
	return conn, nil
}

// IsRunning reports whether a daemon is accepting connections on the
// socket. It does not distinguish "no socket file" from "socket exists
// but nothing is listening" — both mean no usable daemon.
func (c *Client) IsRunning() bool {
	conn, err := c.Connect()
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// Search sends one Request and returns the decoded Response, or the
// error carried by a wire-level Error reply.
func (c *Client) Search(ctx context.Context, q retriever.Query) (*Response, error) {
	conn, err := c.Connect()
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, errkit.Wrap(errkit.IoError, err, "set connection deadline")
	}

	req := Request{
		Type:      "request",
		ID:        c.nextID(),
		Query:     q.Text,
		TopN:      q.TopN,
		FilesOnly: q.FilesOnly,
	}
	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, errkit.Wrap(errkit.IoError, err, "send request")
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, errkit.Wrap(errkit.IoError, err, "receive response")
	}

	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(line, &envelope); err != nil {
		return nil, errkit.Wrap(errkit.Internal, err, "decode response envelope")
	}

	switch envelope.Type {
	case "error":
		var wireErr Error
		if err := json.Unmarshal(line, &wireErr); err != nil {
			return nil, errkit.Wrap(errkit.Internal, err, "decode error response")
		}
		return nil, &wireErr
	default:
		var resp Response
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, errkit.Wrap(errkit.Internal, err, "decode response")
		}
		return &resp, nil
	}
}

func (c *Client) nextID() uint64 { return c.requestID.Add(1) }

// FindProjectSocket implements spec.md §4.8's server discovery: starting
// at startDir, walk up the directory tree until an ancestor's
// <config.DataDirName>/server.sock is found. Returns "" if none exists.
func FindProjectSocket(startDir string) string {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, config.DataDirName, SocketFileName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// ProjectRootFor returns the ancestor directory owning socketPath, i.e.
// the workspace root whose <config.DataDirName>/server.sock is
// socketPath.
func ProjectRootFor(socketPath string) string {
	return filepath.Dir(filepath.Dir(socketPath))
}

// RunStandalone implements the transparent fallback spec.md §4.8
// requires when no server is running: construct a one-shot ServerState
// (load models, open the store read-only-in-spirit, run the Retriever),
// then discard everything. The caller's result format matches Search's
// exactly, so this is invisible to whatever formats the final output.
func RunStandalone(ctx context.Context, root string, q retriever.Query, embedder embed.Embedder, reranker embed.Reranker) (*Response, error) {
	dataDir := filepath.Join(root, config.DataDirName)
	cfg, err := config.Load(root, dataDir)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(ctx, cfg.Store.Path, embedder.ID(), embed.Dimensions)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	r := retriever.New(embedder, reranker, st)

	start := time.Now()
	results, err := r.Search(ctx, q)
	if err != nil {
		return nil, err
	}

	return &Response{
		Type:    "response",
		Results: resultsFrom(results),
		Stats: Stats{
			TotalTimeMs:   time.Since(start).Milliseconds(),
			NumCandidates: len(results),
			NumResults:    len(results),
		},
	}, nil
}
