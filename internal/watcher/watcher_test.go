package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragrep/internal/scanner"
)

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpCreate, "CREATE"},
		{OpModify, "MODIFY"},
		{OpDelete, "DELETE"},
		{OpRename, "RENAME"},
		{Operation(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.op.String())
	}
}

func newTestWatcher(t *testing.T, root string) *Watcher {
	t.Helper()
	sc, err := scanner.New(root, ".data")
	require.NoError(t, err)
	w, err := New(root, sc, 50*time.Millisecond)
	require.NoError(t, err)
	return w
}

func TestWatcher_EmitsRequestOnFileCreate(t *testing.T) {
	root := t.TempDir()

	w := newTestWatcher(t, root)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	time.Sleep(50 * time.Millisecond) // let addRecursive register the root

	path := filepath.Join(root, "main.rs")
	require.NoError(t, os.WriteFile(path, []byte("fn main() {}"), 0o644))

	select {
	case req := <-w.Requests():
		assert.Contains(t, req.Paths, "main.rs")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for reindex request")
	}

	cancel()
	<-done
}

func TestWatcher_IgnoresUnsupportedExtension(t *testing.T) {
	root := t.TempDir()

	w := newTestWatcher(t, root)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, "README.md"), []byte("# hi"), 0o644))

	select {
	case req := <-w.Requests():
		t.Fatalf("unexpected reindex request for ignored extension: %v", req.Paths)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	<-done
}

func TestWatcher_IgnoresDataDirectory(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".data"), 0o755))

	w := newTestWatcher(t, root)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(filepath.Join(root, ".data", "scratch.rs"), []byte("fn f(){}"), 0o644))

	select {
	case req := <-w.Requests():
		t.Fatalf("unexpected reindex request under data dir: %v", req.Paths)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	<-done
}

func TestWatcher_StopIsIdempotent(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t, root)

	assert.NoError(t, w.Stop())
	assert.NoError(t, w.Stop())
}

func TestWatcher_StartReturnsContextCancelled(t *testing.T) {
	root := t.TempDir()
	w := newTestWatcher(t, root)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after context cancellation")
	}
}
