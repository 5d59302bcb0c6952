package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize trace storage",
		Long:  "Create the configuration and data directories, write a default config.yaml\nif none exists, then create the trace table.",
		Args:  cobra.NoArgs,
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	s, err := resolveSettings()
	if err != nil {
		return sysError(err)
	}

	if err := os.MkdirAll(s.ConfigDir, 0o755); err != nil {
		return sysError(fmt.Errorf("create config directory: %w", err))
	}
	created, err := writeConfigIfMissing(configPath(s.ConfigDir), s)
	if err != nil {
		return sysError(fmt.Errorf("write config: %w", err))
	}

	st, logger, err := openStore(cmd, s)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck
	if err := st.Close(); err != nil {
		return sysError(fmt.Errorf("close store: %w", err))
	}

	dbPath := s.storeConfig().DatabasePath()
	if flags.jsonMode {
		return printJSON(cmd, map[string]string{
			"config_file": configPath(s.ConfigDir),
			"database":    dbPath,
		})
	}
	if created {
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", configPath(s.ConfigDir))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Trace store initialized at %s\n", dbPath)
	return nil
}
