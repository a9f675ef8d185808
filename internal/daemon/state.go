package daemon

import (
	"context"
	"sync"
	"time"

	"ragrep/internal/config"
	"ragrep/internal/embed"
	"ragrep/internal/retriever"
	"ragrep/internal/store"
)

// lockPollInterval is how often TryRLockTimeout retries acquiring the
// state lock. sync.RWMutex has no blocking-with-timeout primitive, so a
// read attempt is modeled as a short poll loop against TryRLock.
const lockPollInterval = 2 * time.Millisecond

// State is the process-singleton runtime tuple spec.md §3 calls
// ServerState: {embedder, reranker, store, config, watcher}, minus the
// watcher handle itself (owned by Server, which drives State's
// exclusive lock around each reindex pass).
//
// mu is spec.md §5's state_lock: a reader-writer guard over the
// composite {embedder, reranker, store}. Query handlers take a read
// lock; a reindex pass takes the write lock. The embedder and reranker
// are additionally wrapped in their own mutexes (embedder_lock,
// reranker_lock) so concurrent readers serialize on the non-reentrant
// model objects without blocking each other's Store reads.
type State struct {
	mu sync.RWMutex

	embedder  embed.Embedder
	reranker  embed.Reranker
	store     store.Store
	retriever *retriever.Retriever
	cfg       config.Config
	root      string
}

// Boot performs the model-and-store half of spec.md §4.7's boot
// sequence: open the Store (verifying embedder_id) and wrap the already
// loaded embedder/reranker in per-model mutexes. Socket binding and PID
// ownership are the caller's (Server's) responsibility, since they are
// process-lifecycle concerns rather than ServerState's.
func Boot(ctx context.Context, root string, cfg config.Config, embedder embed.Embedder, reranker embed.Reranker) (*State, error) {
	st, err := store.Open(ctx, cfg.Store.Path, embedder.ID(), embed.Dimensions)
	if err != nil {
		return nil, err
	}

	lockedEmbedder := &lockingEmbedder{inner: embedder}
	lockedReranker := &lockingReranker{inner: reranker}

	return &State{
		embedder:  lockedEmbedder,
		reranker:  lockedReranker,
		store:     st,
		retriever: retriever.New(lockedEmbedder, lockedReranker, st),
		cfg:       cfg,
		root:      root,
	}, nil
}

// Embedder exposes the mutex-wrapped Embedder so the Indexer embeds
// chunks through the same serialization point query handlers use.
func (s *State) Embedder() embed.Embedder { return s.embedder }

// Store exposes the underlying Store for the Indexer. Callers must hold
// the exclusive lock (via Lock/Unlock) for the duration of any mutating
// pass; read-only access (e.g. Stats for a status report) may be taken
// under RLock instead.
func (s *State) Store() store.Store { return s.store }

// Config returns the configuration State was booted with.
func (s *State) Config() config.Config { return s.cfg }

// Root returns the workspace root State was booted against.
func (s *State) Root() string { return s.root }

// Search runs a query through the Retriever. Callers must already hold
// the read lock (see TryRLockTimeout).
func (s *State) Search(ctx context.Context, q retriever.Query) ([]retriever.Result, error) {
	return s.retriever.Search(ctx, q)
}

// Lock acquires the exclusive state lock for a reindex pass.
func (s *State) Lock() { s.mu.Lock() }

// Unlock releases the exclusive state lock.
func (s *State) Unlock() { s.mu.Unlock() }

// TryRLockTimeout attempts to acquire the shared (read) state lock,
// giving up after timeout elapses. Per spec.md §4.7, a query that
// cannot acquire the lock within query_timeout_ms fails with Busy
// rather than queueing indefinitely.
func (s *State) TryRLockTimeout(timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if s.mu.TryRLock() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(lockPollInterval)
	}
}

// RUnlock releases the shared state lock acquired by TryRLockTimeout.
func (s *State) RUnlock() { s.mu.RUnlock() }

// Close releases the store and both models. Called once during server
// shutdown, after the Watcher has stopped and no handler can still be
// holding the lock.
func (s *State) Close() error {
	var firstErr error
	if err := s.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.embedder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.reranker.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// lockingEmbedder wraps an Embedder in a mutex, since spec.md §4.3 and
// §9 treat inference backends as non-reentrant and require callers to
// serialize access.
type lockingEmbedder struct {
	mu    sync.Mutex
	inner embed.Embedder
}

func (l *lockingEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.EmbedQuery(ctx, text)
}

func (l *lockingEmbedder) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.EmbedDocument(ctx, text)
}

func (l *lockingEmbedder) ID() string { return l.inner.ID() }

func (l *lockingEmbedder) Close() error { return l.inner.Close() }

// lockingReranker wraps a Reranker in a mutex for the same reason.
type lockingReranker struct {
	mu    sync.Mutex
	inner embed.Reranker
}

func (l *lockingReranker) Score(ctx context.Context, query string, docs []string) ([]embed.ScoredDoc, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inner.Score(ctx, query, docs)
}

func (l *lockingReranker) Close() error { return l.inner.Close() }
