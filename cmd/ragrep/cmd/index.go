package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"ragrep/internal/chunk"
	"ragrep/internal/config"
	"ragrep/internal/embed"
	"ragrep/internal/index"
	"ragrep/internal/scanner"
	"ragrep/internal/store"
)

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Build or replace the semantic index for a workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}
			return runIndex(cmd, path)
		},
	}
	return cmd
}

func runIndex(cmd *cobra.Command, path string) error {
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

	embedder := embed.NewStaticEmbedder()
	defer embedder.Close()

	ctx := cmd.Context()
	st, err := store.Open(ctx, cfg.Store.Path, embedder.ID(), embed.Dimensions)
	if err != nil {
		return err
	}
	defer st.Close()

	sc, err := scanner.New(root, config.DataDirName)
	if err != nil {
		return err
	}

	codeChunker := chunk.NewCodeChunker()
	defer codeChunker.Close()

	ix := index.New(root, sc, codeChunker, embedder, st)
	stats, err := ix.FullIndex(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d files (%d chunks), skipped %d\n",
		stats.FilesIndexed, stats.Chunks, stats.FilesSkipped)
	return nil
}
