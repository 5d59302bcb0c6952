package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/tracestore/internal/logging"
	"github.com/mesh-intelligence/tracestore/internal/paths"
	"github.com/mesh-intelligence/tracestore/pkg/types"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	configFileExt  = "config.yaml"

	envPrefix = "TRACESTORE"

	cfgKeyDataDir      = "data_dir"
	cfgKeyDatabaseFile = "database_file"
	cfgKeyExportFile   = "export_file"
	cfgKeyLogLevel     = "log_level"
	cfgKeyMetricsAddr  = "metrics_addr"
)

// configFile holds the structure written to config.yaml.
type configFile struct {
	DataDir      string `yaml:"data_dir,omitempty"`
	DatabaseFile string `yaml:"database_file"`
	ExportFile   string `yaml:"export_file"`
	LogLevel     string `yaml:"log_level"`
	MetricsAddr  string `yaml:"metrics_addr,omitempty"`
}

// settings is the fully resolved configuration for one command invocation.
type settings struct {
	ConfigDir    string `json:"config_dir" yaml:"config_dir"`
	ConfigFile   string `json:"config_file,omitempty" yaml:"config_file,omitempty"`
	DataDir      string `json:"data_dir" yaml:"data_dir"`
	DatabaseFile string `json:"database_file" yaml:"database_file"`
	ExportFile   string `json:"export_file" yaml:"export_file"`
	LogLevel     string `json:"log_level" yaml:"log_level"`
	MetricsAddr  string `json:"metrics_addr,omitempty" yaml:"metrics_addr,omitempty"`
}

// storeConfig converts the settings into the store configuration.
func (s settings) storeConfig() types.Config {
	return types.Config{
		DataDir:      s.DataDir,
		DatabaseFile: s.DatabaseFile,
		ExportFile:   s.ExportFile,
	}
}

// loadConfig reads config.yaml from configDir using Viper. A missing
// config.yaml is not an error.
//
// data_dir is not bound to the environment. A config file value wins over
// TRACESTORE_DATA_DIR, which paths.ResolveDataDir consults afterwards.
func loadConfig(configDir string) (*viper.Viper, error) {
	v := viper.New()
	v.SetDefault(cfgKeyDatabaseFile, types.DefaultDatabaseFile)
	v.SetDefault(cfgKeyExportFile, types.DefaultExportFile)
	v.SetDefault(cfgKeyLogLevel, logging.DefaultLevel)
	v.SetConfigName(configFileName)
	v.SetConfigType(configFileType)
	v.AddConfigPath(configDir)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	for _, key := range []string{cfgKeyDatabaseFile, cfgKeyExportFile, cfgKeyLogLevel, cfgKeyMetricsAddr} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return v, nil
}

// resolveSettings combines flags, config.yaml, the environment, and the
// built-in defaults. Flags always win.
func resolveSettings() (settings, error) {
	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return settings{}, fmt.Errorf("resolve config dir: %w", err)
	}

	v, err := loadConfig(configDir)
	if err != nil {
		return settings{}, err
	}

	dataDir, err := paths.ResolveDataDir(flags.dataDir, v.GetString(cfgKeyDataDir))
	if err != nil {
		return settings{}, fmt.Errorf("resolve data dir: %w", err)
	}

	s := settings{
		ConfigDir:    configDir,
		ConfigFile:   v.ConfigFileUsed(),
		DataDir:      dataDir,
		DatabaseFile: v.GetString(cfgKeyDatabaseFile),
		ExportFile:   v.GetString(cfgKeyExportFile),
		LogLevel:     v.GetString(cfgKeyLogLevel),
		MetricsAddr:  v.GetString(cfgKeyMetricsAddr),
	}
	if flags.logLevel != "" {
		s.LogLevel = flags.logLevel
	}
	return s, nil
}

// writeConfigIfMissing creates config.yaml with default values if the file
// does not exist. If it already exists, the function returns nil.
func writeConfigIfMissing(path string, s settings) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		return false, nil
	} else if !os.IsNotExist(err) {
		return false, fmt.Errorf("stat config file: %w", err)
	}

	cfg := configFile{
		DatabaseFile: s.DatabaseFile,
		ExportFile:   s.ExportFile,
		LogLevel:     s.LogLevel,
	}
	if flags.dataDir != "" {
		cfg.DataDir = s.DataDir
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return false, fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := resolveSettings()
			if err != nil {
				return sysError(err)
			}
			if flags.jsonMode {
				return printJSON(cmd, s)
			}
			data, err := yaml.Marshal(&s)
			if err != nil {
				return sysError(fmt.Errorf("marshal settings: %w", err))
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

// configPath returns the config.yaml path inside configDir.
func configPath(configDir string) string {
	return filepath.Join(configDir, configFileExt)
}
