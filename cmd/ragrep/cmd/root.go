// Package cmd provides the ragrep CLI commands.
package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"ragrep/internal/config"
	"ragrep/internal/logging"
)

var debugMode bool

// NewRootCmd builds the root ragrep command and wires its subcommands.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ragrep",
		Short: "Local, project-scoped semantic code search",
		Long: `ragrep indexes a codebase into chunks with embeddings and serves
semantic search over them, either as a background daemon or as a
one-shot in-process fallback when no daemon is running.`,
	}

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "enable debug-level logging to <project>/.data/server.log")

	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newServeCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

// dataDirFor returns the persisted-state directory for root, creating it
// if necessary.
func dataDirFor(root string) (string, error) {
	dataDir := filepath.Join(root, config.DataDirName)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data directory: %w", err)
	}
	return dataDir, nil
}

// setupLogging installs file-backed structured logging for root and
// returns the cleanup function to defer.
func setupLogging(root string) (func(), error) {
	dataDir, err := dataDirFor(root)
	if err != nil {
		return nil, err
	}

	cfg := logging.DefaultConfig(dataDir)
	if debugMode {
		cfg = logging.DebugConfig(dataDir)
	}

	logger, cleanup, err := logging.Setup(cfg)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return cleanup, nil
}

// resolveRoot returns arg if non-empty, otherwise the current working
// directory, as an absolute path.
func resolveRoot(arg string) (string, error) {
	if arg == "" {
		arg = "."
	}
	return filepath.Abs(arg)
}
