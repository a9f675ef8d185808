package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"ragrep/internal/daemon"
	"ragrep/internal/embed"
	"ragrep/internal/retriever"
)

func newSearchCmd() *cobra.Command {
	var topN int
	var filesOnly bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the index for code matching a natural-language or code query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd, args[0], topN, filesOnly, asJSON)
		},
	}

	cmd.Flags().IntVar(&topN, "top-n", 10, "number of results to return")
	cmd.Flags().BoolVar(&filesOnly, "files-only", false, "omit chunk text, report file paths and line ranges only")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, topN int, filesOnly, asJSON bool) error {
	root, err := resolveRoot("")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	q := retriever.Query{Text: query, TopN: topN, FilesOnly: filesOnly}

	resp, err := searchViaDaemonOrStandalone(ctx, root, q)
	if err != nil {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}

	for _, r := range resp.Results {
		fmt.Fprintf(cmd.OutOrStdout(), "%s:%d-%d  score=%.4f\n", r.FilePath, r.StartLine, r.EndLine, r.Score)
		if !filesOnly && r.Text != "" {
			fmt.Fprintln(cmd.OutOrStdout(), r.Text)
		}
	}
	return nil
}

// searchViaDaemonOrStandalone implements the transparent client/fallback
// split: use the running project daemon if one is reachable, otherwise
// fall back to a one-shot in-process search.
func searchViaDaemonOrStandalone(ctx context.Context, root string, q retriever.Query) (*daemon.Response, error) {
	if sockPath := daemon.FindProjectSocket(root); sockPath != "" {
		client := daemon.NewClient(daemon.PathsFor(filepath.Dir(sockPath)))
		if client.IsRunning() {
			return client.Search(ctx, q)
		}
	}

	embedder := embed.NewStaticEmbedder()
	defer embedder.Close()
	reranker := embed.NewStaticReranker()

	return daemon.RunStandalone(ctx, root, q, embedder, reranker)
}
