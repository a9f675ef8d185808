package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"ragrep/internal/errkit"
	"ragrep/internal/index"
	"ragrep/internal/retriever"
	"ragrep/internal/watcher"
)

// queryTimeout converts the config's millisecond field into a Duration.
func queryTimeout(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// Server owns a project's ServerState and Watcher for the process
// lifetime, accepting one request per connection over a Unix-domain
// socket, per spec.md §4.7.
type Server struct {
	cfg     Config
	state   *State
	indexer *index.Indexer
	watch   *watcher.Watcher
	pidFile *PIDFile

	listener net.Listener
	started  time.Time

	mu       sync.Mutex
	shutdown bool
	wg       sync.WaitGroup
}

// NewServer wires a booted State, a ready-to-reuse Indexer and an
// optional Watcher (nil if disabled or unavailable) into a Server.
func NewServer(cfg Config, state *State, ix *index.Indexer, w *watcher.Watcher, pidFile *PIDFile) *Server {
	return &Server{cfg: cfg, state: state, indexer: ix, watch: w, pidFile: pidFile}
}

// ListenAndServe performs the socket-and-watcher half of spec.md §4.7's
// boot sequence (PID/Store/model steps already ran to produce Server's
// State) and then blocks, serving requests until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	_ = os.Remove(s.cfg.SocketPath)

	listener, err := net.Listen("unix", s.cfg.SocketPath)
	if err != nil {
		return errkit.Wrap(errkit.IoError, err, "listen on %s", s.cfg.SocketPath)
	}
	if err := os.Chmod(s.cfg.SocketPath, 0600); err != nil {
		_ = listener.Close()
		return errkit.Wrap(errkit.IoError, err, "chmod socket %s", s.cfg.SocketPath)
	}
	s.listener = listener
	s.started = time.Now()

	defer func() {
		_ = listener.Close()
		_ = os.Remove(s.cfg.SocketPath)
	}()

	if s.watch != nil {
		go s.runWatcher(ctx)
	}

	slog.Info("server ready",
		slog.String("socket", s.cfg.SocketPath),
		slog.Bool("watching", s.watch != nil))

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.mu.Lock()
			shuttingDown := s.shutdown
			s.mu.Unlock()
			if shuttingDown {
				break
			}
			slog.Error("accept error", slog.String("error", err.Error()))
			continue
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(ctx, conn)
		}()
	}

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-time.After(s.cfg.ShutdownGracePeriod):
		slog.Warn("shutdown grace period elapsed with handlers still running")
	}

	if s.watch != nil {
		_ = s.watch.Stop()
	}
	if err := s.state.Close(); err != nil {
		slog.Error("error closing server state", slog.String("error", err.Error()))
	}
	if s.pidFile != nil {
		_ = s.pidFile.Release()
	}
	return ctx.Err()
}

// runWatcher drains the Watcher's debounced reindex requests one at a
// time. Because Watcher.Requests() is an unbuffered channel fed by a
// blocking send, the next request is never emitted until this loop has
// finished handling the current one and called Requests() again — the
// serialization guarantee spec.md §4.6 requires.
func (s *Server) runWatcher(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-s.watch.Requests():
			if !ok {
				return
			}
			s.state.Lock()
			stats := s.indexer.ReindexFiles(ctx, req.Paths)
			s.state.Unlock()
			slog.Info("incremental reindex complete",
				slog.Int("files_reindexed", stats.FilesReindexed),
				slog.Int("files_deleted", stats.FilesDeleted),
				slog.Int("files_failed", stats.FilesFailed),
				slog.Int("chunks_reused", stats.ChunksReused),
				slog.Int("chunks_recomputed", stats.ChunksRecomputed))
		case err, ok := <-s.watch.Errors():
			if !ok {
				continue
			}
			slog.Warn("watcher error", slog.String("error", err.Error()))
		}
	}
}

// handleConnection implements spec.md §6.3's one-shot framing: decode
// exactly one Request, acquire the read lock, run it, write exactly one
// Response or Error, then close.
func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(queryTimeout(s.state.Config().Retrieval.QueryTimeoutMs))); err != nil {
		slog.Warn("failed to set connection deadline", slog.String("error", err.Error()))
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		s.writeError(conn, 0, ErrInternal, "failed to read request")
		return
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		s.writeError(conn, 0, ErrInternal, "malformed request")
		return
	}

	resp := s.handleRequest(ctx, req)
	// The lock wait in handleRequest can use up the whole connection
	// deadline; give the reply its own window so a Busy error still
	// reaches the client.
	_ = conn.SetWriteDeadline(time.Now().Add(queryTimeout(s.state.Config().Retrieval.QueryTimeoutMs)))
	s.writeResponse(conn, resp)
}

func (s *Server) handleRequest(ctx context.Context, req Request) any {
	timeout := queryTimeout(s.state.Config().Retrieval.QueryTimeoutMs)
	if !s.state.TryRLockTimeout(timeout) {
		return &Error{Type: "error", ID: req.ID, Kind: ErrBusy, Message: "server is reindexing, try again"}
	}
	defer s.state.RUnlock()

	topN := req.TopN
	if topN == 0 {
		topN = s.state.Config().Retrieval.TopNDefault
	}

	start := time.Now()
	results, err := s.state.Search(ctx, retriever.Query{
		Text:             req.Query,
		TopN:             topN,
		OversampleFactor: s.state.Config().Retrieval.OversampleFactor,
		FilesOnly:        req.FilesOnly,
	})
	if err != nil {
		return &Error{Type: "error", ID: req.ID, Kind: kindFor(err), Message: err.Error()}
	}

	return &Response{
		Type:    "response",
		ID:      req.ID,
		Results: resultsFrom(results),
		Stats: Stats{
			TotalTimeMs:   time.Since(start).Milliseconds(),
			NumCandidates: len(results),
			NumResults:    len(results),
		},
	}
}

func kindFor(err error) ErrorKind {
	switch errkit.KindOf(err) {
	case errkit.InvalidQuery:
		return ErrInvalidQuery
	case errkit.IncompatibleIndex:
		return ErrIncompatibleIndex
	case errkit.Busy:
		return ErrBusy
	default:
		return ErrInternal
	}
}

func (s *Server) writeResponse(conn net.Conn, msg any) {
	enc := json.NewEncoder(conn)
	if err := enc.Encode(msg); err != nil {
		slog.Warn("failed to write response", slog.String("error", err.Error()))
	}
}

func (s *Server) writeError(conn net.Conn, id uint64, kind ErrorKind, message string) {
	s.writeResponse(conn, &Error{Type: "error", ID: id, Kind: kind, Message: message})
}

// Close stops the server from outside the context-cancellation path
// (used by tests and by a caller that wants to force shutdown).
func (s *Server) Close() error {
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}
