package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/contextcore/internal/devlog"
	httpapi "github.com/fyrsmithlabs/contextcore/internal/http"
)

// filterFlags are the metadata filters shared by list and search.
type filterFlags struct {
	tags    []string
	module  string
	logType string
	from    string
	to      string
	limit   int
}

func (f *filterFlags) register(cmd *cobra.Command, defaultLimitHelp string) {
	cmd.Flags().StringSliceVar(&f.tags, "tags", nil, "match logs with any of these tags (comma-separated)")
	cmd.Flags().StringVar(&f.module, "module", "", "only logs of this module")
	cmd.Flags().StringVar(&f.logType, "type", "", "only logs of this type (feature, bug, decision, note)")
	cmd.Flags().StringVar(&f.from, "from", "", "earliest timestamp (RFC 3339 or YYYY-MM-DD)")
	cmd.Flags().StringVar(&f.to, "to", "", "latest timestamp (RFC 3339 or YYYY-MM-DD, a date includes the whole day)")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum results "+defaultLimitHelp)
}

func (f *filterFlags) query() url.Values {
	q := url.Values{}
	if len(f.tags) > 0 {
		q.Set("tags", strings.Join(f.tags, ","))
	}
	if f.module != "" {
		q.Set("module", f.module)
	}
	if f.logType != "" {
		q.Set("type", f.logType)
	}
	if f.from != "" {
		q.Set("from", f.from)
	}
	if f.to != "" {
		q.Set("to", f.to)
	}
	if f.limit != 0 {
		q.Set("limit", strconv.Itoa(f.limit))
	}
	return q
}

func (f *filterFlags) searchRequest(query string) (httpapi.SearchRequest, error) {
	req := httpapi.SearchRequest{
		Query:  query,
		Limit:  f.limit,
		Tags:   f.tags,
		Module: f.module,
		Type:   f.logType,
	}
	from, err := devlog.ParseTimeBound(f.from, false)
	if err != nil {
		return req, fmt.Errorf("--from: %w", err)
	}
	if !from.IsZero() {
		req.From = &from
	}
	to, err := devlog.ParseTimeBound(f.to, true)
	if err != nil {
		return req, fmt.Errorf("--to: %w", err)
	}
	if !to.IsZero() {
		req.To = &to
	}
	return req, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTimestamp(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}

func newAddCmd(c *cli) *cobra.Command {
	var (
		in        httpapi.AddLogRequest
		timestamp string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record a development log",
		Long: `Record a development log. The content is read from stdin when
--content is "-".

Examples:
  ccctl add --title "Fix flaky test" --content "..." --type bug --module api
  git log -1 --format=%B | ccctl add --title "Release notes" --content -`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if in.Content == "-" {
				data, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return fmt.Errorf("failed to read from stdin: %w", err)
				}
				in.Content = string(data)
			}
			if timestamp != "" {
				ts, err := devlog.ParseTimeBound(timestamp, false)
				if err != nil {
					return fmt.Errorf("--timestamp: %w", err)
				}
				in.Timestamp = &ts
			}

			var resp httpapi.AddLogResponse
			if err := c.client().do(cmd.Context(), http.MethodPost, "/api/v1/logs", in, &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOut {
				return printJSON(out, resp)
			}
			fmt.Fprintf(out, "Log saved: %s\n", resp.Log.ID)
			if resp.IndexingDeferred {
				fmt.Fprintf(out, "Indexing deferred at %s stage: %s\n", resp.DeferredStage, resp.DeferredReason)
				fmt.Fprintf(out, "The log is listed but not searchable until it is reindexed.\n")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Title, "title", "", "log title")
	cmd.Flags().StringVar(&in.Content, "content", "", `log content ("-" reads stdin)`)
	cmd.Flags().StringSliceVar(&in.Tags, "tags", nil, "tags (comma-separated)")
	cmd.Flags().StringVar(&in.Module, "module", "", "module the log belongs to")
	cmd.Flags().StringVar(&in.Type, "type", "", "feature, bug, decision or note (default note)")
	cmd.Flags().StringVar(&timestamp, "timestamp", "", "when it happened (RFC 3339 or YYYY-MM-DD, default now)")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("content")
	return cmd
}

func newGetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Show a log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var l devlog.Log
			if err := c.client().do(cmd.Context(), http.MethodGet, "/api/v1/logs/"+url.PathEscape(args[0]), nil, &l); err != nil {
				if isNotFound(err) {
					return fmt.Errorf("log %s not found", args[0])
				}
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOut {
				return printJSON(out, l)
			}
			fmt.Fprintf(out, "%s\n\n", l.Title)
			fmt.Fprintf(out, "ID:      %s\n", l.ID)
			fmt.Fprintf(out, "Type:    %s\n", l.Type)
			if l.Module != "" {
				fmt.Fprintf(out, "Module:  %s\n", l.Module)
			}
			if len(l.Tags) > 0 {
				fmt.Fprintf(out, "Tags:    %s\n", strings.Join(l.Tags, ", "))
			}
			fmt.Fprintf(out, "When:    %s\n", formatTimestamp(l.Timestamp))
			fmt.Fprintf(out, "Index:   %s\n\n", l.IndexStatus)
			fmt.Fprintln(out, l.Content)
			return nil
		},
	}
}

func newListCmd(c *cli) *cobra.Command {
	var f filterFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List logs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := "/api/v1/logs"
			if q := f.query().Encode(); q != "" {
				path += "?" + q
			}

			var resp httpapi.ListLogsResponse
			if err := c.client().do(cmd.Context(), http.MethodGet, path, nil, &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOut {
				return printJSON(out, resp)
			}
			if resp.Count == 0 {
				fmt.Fprintln(out, "No logs found.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tTYPE\tMODULE\tWHEN\tINDEX\tTITLE")
			for _, s := range resp.Logs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					s.ID, s.Type, s.Module, formatTimestamp(s.Timestamp), s.IndexStatus, s.Title)
			}
			return tw.Flush()
		},
	}
	f.register(cmd, "(default 50, max 500)")
	return cmd
}

func newSearchCmd(c *cli) *cobra.Command {
	var f filterFlags

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search logs by meaning",
		Long: `Search logs by semantic similarity, optionally constrained by tags,
module, type and date range.

Examples:
  ccctl search "retry logic for the embedder"
  ccctl search "schema change" --type decision --from 2026-01-01`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := f.searchRequest(strings.Join(args, " "))
			if err != nil {
				return err
			}

			var resp httpapi.SearchResponse
			if err := c.client().do(cmd.Context(), http.MethodPost, "/api/v1/search", req, &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOut {
				return printJSON(out, resp)
			}
			if resp.Count == 0 {
				fmt.Fprintln(out, "No matching logs.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "SCORE\tID\tTYPE\tMODULE\tTITLE")
			for _, r := range resp.Results {
				fmt.Fprintf(tw, "%.3f\t%s\t%s\t%s\t%s\n", r.Score, r.Log.ID, r.Log.Type, r.Log.Module, r.Log.Title)
			}
			return tw.Flush()
		},
	}
	f.register(cmd, "(default 10, max 100)")
	return cmd
}

func newDeleteCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a log and its vector",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client().do(cmd.Context(), http.MethodDelete, "/api/v1/logs/"+url.PathEscape(args[0]), nil, nil); err != nil {
				if isNotFound(err) {
					return fmt.Errorf("log %s not found", args[0])
				}
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Log deleted: %s\n", args[0])
			return nil
		},
	}
}

func newReindexCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <id>",
		Short: "Re-embed and re-index a log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp httpapi.ReindexResponse
			path := "/api/v1/logs/" + url.PathEscape(args[0]) + "/reindex"
			if err := c.client().do(cmd.Context(), http.MethodPost, path, nil, &resp); err != nil {
				return err
			}
			if c.jsonOut {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Log reindexed: %s (%s)\n", resp.ID, resp.IndexStatus)
			return nil
		},
	}
}

func newContextCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "context",
		Short: "Summarize all logs by type and module",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var pc devlog.ProjectContext
			if err := c.client().do(cmd.Context(), http.MethodGet, "/api/v1/context", nil, &pc); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOut {
				return printJSON(out, pc)
			}
			fmt.Fprintf(out, "Total logs: %d\n", pc.TotalLogs)
			fmt.Fprintf(out, "  Features:  %d\n", pc.FeatureCount)
			fmt.Fprintf(out, "  Bugs:      %d\n", pc.BugCount)
			fmt.Fprintf(out, "  Decisions: %d\n", pc.DecisionCount)
			fmt.Fprintf(out, "  Notes:     %d\n", pc.NoteCount)
			if len(pc.LogsByModule) > 0 {
				fmt.Fprintln(out, "Modules:")
				tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
				for _, module := range sortedKeys(pc.LogsByModule) {
					fmt.Fprintf(tw, "  %s\t%d\n", module, len(pc.LogsByModule[module]))
				}
				return tw.Flush()
			}
			return nil
		},
	}
}

func newHealthCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check contextcore server health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var report devlog.HealthReport
			err := c.client().do(cmd.Context(), http.MethodGet, "/health", nil, &report)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if c.jsonOut {
				return printJSON(out, report)
			}
			fmt.Fprintf(out, "Status: %s (%d logs, %d vectors)\n", report.Status, report.Logs, report.Vectors)
			for _, name := range sortedKeys(report.Components) {
				h := report.Components[name]
				if h.Error != "" {
					fmt.Fprintf(out, "  %s: %s (%s)\n", name, h.Status, h.Error)
					continue
				}
				fmt.Fprintf(out, "  %s: %s\n", name, h.Status)
			}
			return nil
		},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
