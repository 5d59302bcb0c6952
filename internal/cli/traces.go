package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/tracestore/internal/sqlite"
	"github.com/mesh-intelligence/tracestore/pkg/types"
)

// Export formats accepted by the export command.
const (
	formatCSV   = "csv"
	formatJSONL = "jsonl"
)

const defaultSearchLimit = 10

func newStoreCmd() *cobra.Command {
	var metaJSON string
	cmd := &cobra.Command{
		Use:   "store <prompt> <response>",
		Short: "Record a trace",
		Long: `Store records one prompt/response pair with optional metadata.

Example:
  tracestore store "What is 2+2?" "4" --meta '{"model":"gpt-4"}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var meta types.Meta
			if metaJSON != "" {
				if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
					return userError(fmt.Errorf("invalid --meta: must be a JSON object: %w", err))
				}
			}
			return withStore(cmd, func(st *sqlite.Store) error {
				stored, err := st.Store(cmd.Context(), args[0], args[1], meta)
				if err != nil {
					return sysError(fmt.Errorf("store trace: %w", err))
				}
				if flags.jsonMode {
					return printJSON(cmd, stored)
				}
				fmt.Fprintln(cmd.OutOrStdout(), stored.TraceID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&metaJSON, "meta", "", "metadata as a JSON object")
	return cmd
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <trace-id>",
		Short: "Get a trace by ID",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(st *sqlite.Store) error {
				tr, err := st.Get(cmd.Context(), args[0])
				if errors.Is(err, types.ErrNotFound) {
					return userError(fmt.Errorf("trace %q not found", args[0]))
				}
				if err != nil {
					return sysError(fmt.Errorf("get trace: %w", err))
				}
				if flags.jsonMode {
					return printJSON(cmd, tr)
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "trace_id:  %s\n", tr.TraceID)
				fmt.Fprintf(out, "timestamp: %s\n", tr.Timestamp)
				fmt.Fprintf(out, "metadata:  %s\n", tr.Metadata)
				fmt.Fprintf(out, "prompt:\n%s\n", tr.Prompt)
				fmt.Fprintf(out, "response:\n%s\n", tr.Response)
				return nil
			})
		},
	}
}

func newSearchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Find traces whose prompt or response contains query",
		Long: `Search matches query as a case-sensitive literal substring of each
trace's prompt or response. Results come back in insertion order.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, func(st *sqlite.Store) error {
				traces, err := st.Search(cmd.Context(), args[0], limit)
				if err != nil {
					return sysError(fmt.Errorf("search traces: %w", err))
				}
				if flags.jsonMode {
					return printJSON(cmd, traces)
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "TRACE ID\tTIMESTAMP\tPROMPT")
				for _, tr := range traces {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", tr.TraceID, tr.Timestamp, truncate(tr.Prompt, 60))
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", defaultSearchLimit, "maximum number of results")
	return cmd
}

func newExportCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export every trace to a file in the data directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != formatCSV && format != formatJSONL {
				return userError(fmt.Errorf("unknown format %q (valid: %s, %s)", format, formatCSV, formatJSONL))
			}
			return withStore(cmd, func(st *sqlite.Store) error {
				var (
					path  string
					count int
					err   error
				)
				if format == formatJSONL {
					path, count, err = st.ExportJSONL(cmd.Context())
				} else {
					path, count, err = st.ExportAll(cmd.Context())
				}
				if err != nil {
					return sysError(fmt.Errorf("export traces: %w", err))
				}
				if flags.jsonMode {
					return printJSON(cmd, map[string]any{"exported_file": path, "count": count})
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported %d traces to %s\n", count, path)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", formatCSV, "export format: csv or jsonl")
	return cmd
}

// truncate shortens s to n runes on a single line for tabular output.
func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
