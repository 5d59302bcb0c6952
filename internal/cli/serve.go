package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/tracestore/internal/mcp"
	"github.com/mesh-intelligence/tracestore/internal/metrics"
	"github.com/mesh-intelligence/tracestore/internal/sqlite"
	"github.com/mesh-intelligence/tracestore/pkg/tracestore"
)

func newServeCmd() *cobra.Command {
	var metricsAddr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the trace tools over MCP on stdin/stdout",
		Long: `Serve speaks newline-delimited JSON-RPC 2.0 on stdin/stdout and exposes
store_trace, search_traces, get_trace, and export_traces_to_csv as MCP tools.
Logs go to stderr. The server exits when stdin closes.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveSettings()
			if err != nil {
				return sysError(err)
			}
			if cmd.Flags().Changed("metrics-addr") {
				s.MetricsAddr = metricsAddr
			}
			return runServe(cmd, s)
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	return cmd
}

func runServe(cmd *cobra.Command, s settings) error {
	m := metrics.New()
	st, logger, err := openStore(cmd, s, sqlite.WithMetrics(m))
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	defer st.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := mcp.NewServer(st, logger, tracestore.Version)
	logger.Info("serve",
		zap.String("database", s.storeConfig().DatabasePath()),
		zap.String("metrics_addr", s.MetricsAddr))

	g, gctx := errgroup.WithContext(ctx)
	if s.MetricsAddr != "" {
		g.Go(func() error {
			if err := m.Serve(gctx, s.MetricsAddr); err != nil {
				return sysError(fmt.Errorf("metrics server: %w", err))
			}
			return nil
		})
	}
	g.Go(func() error {
		// Serve blocks reading stdin, so a signal must not wait for it.
		done := make(chan error, 1)
		go func() { done <- srv.Serve(gctx, cmd.InOrStdin(), cmd.OutOrStdout()) }()
		select {
		case err := <-done:
			stop()
			if err != nil && !errors.Is(err, context.Canceled) {
				return sysError(fmt.Errorf("mcp server: %w", err))
			}
			return nil
		case <-gctx.Done():
			return nil
		}
	})

	err = g.Wait()
	return err
}
