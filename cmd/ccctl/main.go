// Package main implements ccctl, a command-line client for the contextcore
// HTTP API.
package main

import (
	"context"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// cli carries the persistent flags shared by every command.
type cli struct {
	serverURL string
	timeout   time.Duration
	jsonOut   bool
}

func (c *cli) client() *client {
	return newClient(c.serverURL, c.timeout)
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "ccctl",
		Short: "CLI for the contextcore HTTP API",
		Long: `ccctl records, searches and manages development logs stored by a
contextcore server.

Examples:
  # Record a decision
  ccctl add --title "Use SQLite for logs" --content "..." --type decision --tags storage

  # Semantic search restricted to a module
  ccctl search "why did we pick sqlite" --module storage

  # Use a different server
  ccctl list --server http://localhost:8080`,
		Version:      version,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&c.serverURL, "server", "http://localhost:9090", "contextcore server URL")
	root.PersistentFlags().DurationVar(&c.timeout, "timeout", 30*time.Second, "request timeout")
	root.PersistentFlags().BoolVar(&c.jsonOut, "json", false, "print raw JSON responses")

	root.AddCommand(
		newAddCmd(c),
		newGetCmd(c),
		newListCmd(c),
		newSearchCmd(c),
		newDeleteCmd(c),
		newReindexCmd(c),
		newContextCmd(c),
		newHealthCmd(c),
	)
	return root
}
