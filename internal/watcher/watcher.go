// Package watcher observes working-tree edits under a project root and
// hands the Indexer debounced batches of changed paths, per spec.md
// §4.6.
package watcher

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"ragrep/internal/errkit"
	"ragrep/internal/scanner"
)

// Operation is the file system operation an event represents.
type Operation int

const (
	OpCreate Operation = iota
	OpModify
	OpDelete
	OpRename
)

func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is a single filtered, coalesced file system change.
type FileEvent struct {
	Path      string
	Operation Operation
	Timestamp time.Time
}

// ReindexRequest is the "pending ⊂ paths" set spec.md §4.6 describes,
// swapped out atomically when the debounce timer fires.
type ReindexRequest struct {
	Paths []string
}

// Watcher watches a project root with OS-level fs notifications,
// filters events through the same ignore rules and extension set as
// the Indexer's full walk, debounces them, and emits ReindexRequest
// values one at a time.
type Watcher struct {
	root      string
	scanner   *scanner.Scanner
	debouncer *Debouncer
	fsWatcher *fsnotify.Watcher

	requests chan ReindexRequest
	errors   chan error
	stopCh   chan struct{}

	mu      sync.Mutex
	stopped bool
}

// New creates a Watcher. It fails with WatcherUnavailable if the
// platform's fs-notification mechanism cannot be initialized (spec.md
// §4.6 "start() may fail... callers treat this as non-fatal").
func New(root string, sc *scanner.Scanner, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errkit.Wrap(errkit.WatcherUnavailable, err, "create fs notification watcher")
	}
	return &Watcher{
		root:      root,
		scanner:   sc,
		debouncer: NewDebouncer(debounce),
		fsWatcher: fsw,
		requests:  make(chan ReindexRequest),
		errors:    make(chan error, 10),
		stopCh:    make(chan struct{}),
	}, nil
}

// Start registers the root directory tree (skipping ignored subtrees)
// and blocks, forwarding debounced batches until ctx is cancelled or
// Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	absRoot, err := filepath.Abs(w.root)
	if err != nil {
		return errkit.Wrap(errkit.WatcherUnavailable, err, "resolve watch root")
	}
	w.root = absRoot

	if err := w.addRecursive(absRoot); err != nil {
		return errkit.Wrap(errkit.WatcherUnavailable, err, "register watch directories")
	}

	go w.forwardDebounced(ctx)

	for {
		select {
		case <-ctx.Done():
			_ = w.Stop()
			return ctx.Err()
		case <-w.stopCh:
			return nil
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.emitError(err)
		}
	}
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		relPath, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		relPath = filepath.ToSlash(relPath)
		if relPath == "." {
			return w.fsWatcher.Add(path)
		}
		if w.scanner.ShouldIgnore(relPath) {
			return filepath.SkipDir
		}
		return w.fsWatcher.Add(path)
	})
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	relPath, err := filepath.Rel(w.root, event.Name)
	if err != nil {
		relPath = event.Name
	}
	relPath = filepath.ToSlash(relPath)

	if w.scanner.ShouldIgnore(relPath) {
		return
	}

	isDir := false
	if info, statErr := os.Stat(event.Name); statErr == nil {
		isDir = info.IsDir()
	}
	if isDir {
		if event.Op&fsnotify.Create != 0 {
			_ = w.fsWatcher.Add(event.Name)
		}
		return
	}

	if !scanner.SupportedExtension(filepath.Ext(relPath)) {
		return
	}

	var op Operation
	switch {
	case event.Op&fsnotify.Create != 0:
		op = OpCreate
	case event.Op&fsnotify.Write != 0:
		op = OpModify
	case event.Op&fsnotify.Remove != 0:
		op = OpDelete
	case event.Op&fsnotify.Rename != 0:
		op = OpRename
	default:
		return
	}

	w.debouncer.Add(FileEvent{Path: relPath, Operation: op, Timestamp: time.Now()})
}

// forwardDebounced converts debounced FileEvent batches into
// ReindexRequest sends on the unbuffered requests channel. Because the
// channel is unbuffered, this send blocks until a caller receives it —
// giving the serialization guarantee spec.md §4.6 requires (a second
// request is never emitted before the caller finishes the previous
// reindex and calls Requests() again).
func (w *Watcher) forwardDebounced(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case events, ok := <-w.debouncer.Output():
			if !ok {
				return
			}
			if len(events) == 0 {
				continue
			}
			paths := make([]string, 0, len(events))
			for _, e := range events {
				paths = append(paths, e.Path)
			}
			select {
			case w.requests <- ReindexRequest{Paths: paths}:
			case <-ctx.Done():
				return
			case <-w.stopCh:
				return
			}
		}
	}
}

func (w *Watcher) emitError(err error) {
	select {
	case w.errors <- err:
	default:
	}
}

// Requests returns the channel of coalesced reindex requests.
func (w *Watcher) Requests() <-chan ReindexRequest { return w.requests }

// Errors returns the channel of non-fatal watcher errors (e.g. fsnotify
// internal errors surfaced after Start has succeeded).
func (w *Watcher) Errors() <-chan error { return w.errors }

// Stop halts the watcher and drains the debounce timer. Safe to call
// multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.stopCh)
	w.debouncer.Stop()
	return w.fsWatcher.Close()
}
