package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/tracestore/internal/logging"
	"github.com/mesh-intelligence/tracestore/internal/sqlite"
)

// openStore builds the logger and an initialized store for s. Initialization
// failure is a system error. The caller must Close the store and Sync the
// logger.
func openStore(cmd *cobra.Command, s settings, opts ...sqlite.Option) (*sqlite.Store, *zap.Logger, error) {
	logger, err := logging.New(s.LogLevel)
	if err != nil {
		return nil, nil, userError(err)
	}

	opts = append([]sqlite.Option{sqlite.WithLogger(logger)}, opts...)
	st := sqlite.NewStore(s.storeConfig(), opts...)
	if err := st.Initialize(cmd.Context()); err != nil {
		_ = logger.Sync()
		return nil, nil, sysError(fmt.Errorf("initialize storage: %w", err))
	}
	return st, logger, nil
}

// withStore resolves settings, opens the store, runs fn, and closes the store.
func withStore(cmd *cobra.Command, fn func(st *sqlite.Store) error) error {
	s, err := resolveSettings()
	if err != nil {
		return sysError(err)
	}
	st, logger, err := openStore(cmd, s)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	defer st.Close()

	return fn(st)
}

// printJSON writes v as indented JSON to the command's output.
func printJSON(cmd *cobra.Command, v any) error {
	output, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return sysError(fmt.Errorf("marshal output: %w", err))
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(output))
	return nil
}
