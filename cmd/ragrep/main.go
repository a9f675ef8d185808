// Command ragrep is the CLI entrypoint for local, project-scoped semantic
// code search: index a workspace, search it, or run the background
// server that keeps an index current.
package main

import (
	"fmt"
	"os"

	"ragrep/cmd/ragrep/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ragrep:", err)
		os.Exit(1)
	}
}
