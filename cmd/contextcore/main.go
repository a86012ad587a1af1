// Contextcore stores development logs and serves hybrid semantic and
// metadata search over them.
//
// By default it serves the HTTP API. With --mcp it serves the same
// operations as MCP tools over stdio, for use by coding agents.
//
// Configuration is read from ~/.config/contextcore/config.yaml and
// CONTEXTCORE_* environment variables. See internal/config for details.
//
// Usage:
//
//	# HTTP API on 127.0.0.1:9090
//	contextcore
//
//	# MCP over stdio
//	contextcore --mcp
//
//	# Explicit config file
//	contextcore --config /etc/contextcore/config.yaml
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/contextcore/internal/config"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

type options struct {
	configPath string
	mcpStdio   bool
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "contextcore",
		Short: "Development log store with hybrid semantic search",
		Long: `contextcore stores development logs in SQLite, indexes them in a vector
store and answers semantic searches constrained by tags, module, type and
date range.

Examples:
  # Serve the HTTP API
  contextcore

  # Serve MCP tools over stdio
  contextcore --mcp`,
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, opts)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/contextcore/config.yaml)")
	cmd.Flags().BoolVar(&opts.mcpStdio, "mcp", false, "serve MCP tools over stdio instead of HTTP")
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "contextcore by Fyrsmith Labs\n")
			fmt.Fprintf(out, "Version:    %s\n", version)
			fmt.Fprintf(out, "Commit:     %s\n", gitCommit)
			fmt.Fprintf(out, "Build Date: %s\n", buildDate)
		},
	}
}

// run loads configuration, wires the application and serves until ctx is
// cancelled.
func run(ctx context.Context, opts *options) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	// stdout carries the MCP protocol.
	if opts.mcpStdio {
		cfg.Logging.Output.Stdout = false
		cfg.Logging.Output.Stderr = true
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if opts.mcpStdio {
		return a.serveMCP(ctx)
	}
	return a.serveHTTP(ctx)
}
