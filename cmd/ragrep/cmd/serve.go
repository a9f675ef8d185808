package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ragrep/internal/chunk"
	"ragrep/internal/config"
	"ragrep/internal/daemon"
	"ragrep/internal/embed"
	"ragrep/internal/errkit"
	"ragrep/internal/index"
	"ragrep/internal/scanner"
	"ragrep/internal/watcher"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve [path]",
		Short: "Run the background server for a project, in the foreground",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runServe(cmd, path)
		},
	}
	return cmd
}

// runServe implements spec.md §4.7's boot sequence: claim the PID file,
// open the Store and load the models, bind the socket, start the
// Watcher (non-fatal on failure), then serve until interrupted.
func runServe(cmd *cobra.Command, path string) error {
	root, err := resolveRoot(path)
	if err != nil {
		return err
	}

	cleanup, err := setupLogging(root)
	if err != nil {
		return err
	}
	defer cleanup()

	dataDir, err := dataDirFor(root)
	if err != nil {
		return err
	}

	cfg, err := config.Load(root, dataDir)
	if err != nil {
		return err
	}

	daemonCfg := daemon.PathsFor(dataDir)
	pidFile := daemon.NewPIDFile(daemonCfg.PIDPath)
	if err := pidFile.Acquire(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	embedder := embed.NewStaticEmbedder()
	reranker := embed.NewStaticReranker()

	state, err := daemon.Boot(ctx, root, cfg, embedder, reranker)
	if err != nil {
		_ = pidFile.Release()
		return err
	}

	sc, err := scanner.New(root, config.DataDirName)
	if err != nil {
		_ = state.Close()
		_ = pidFile.Release()
		return err
	}
	codeChunker := chunk.NewCodeChunker()
	defer codeChunker.Close()

	ix := index.New(root, sc, codeChunker, state.Embedder(), state.Store())
	if _, err := ix.FullIndex(ctx); err != nil {
		slog.Warn("initial full index failed", slog.String("error", err.Error()))
	}

	var w *watcher.Watcher
	if cfg.Watch.Enabled {
		w, err = watcher.New(root, sc, time.Duration(cfg.Watch.DebounceMs)*time.Millisecond)
		if err != nil {
			slog.Warn("watcher unavailable, continuing without live reindex",
				slog.String("error", err.Error()), slog.String("kind", string(errkit.KindOf(err))))
			w = nil
		} else {
			go func() {
				if err := w.Start(ctx); err != nil && ctx.Err() == nil {
					slog.Error("watcher stopped unexpectedly", slog.String("error", err.Error()))
				}
			}()
		}
	}

	srv := daemon.NewServer(daemonCfg, state, ix, w, pidFile)
	fmt.Fprintf(cmd.OutOrStdout(), "ragrep serving %s on %s\n", root, daemonCfg.SocketPath)

	if err := srv.ListenAndServe(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
