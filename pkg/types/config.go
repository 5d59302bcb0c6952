package types

import (
	"errors"
	"path/filepath"
	"strings"
)

// Default file names inside the data directory.
const (
	DefaultDatabaseFile    = "llm_traces.db"
	DefaultExportFile      = "traces_export.csv"
	DefaultJSONLExportFile = "traces_export.jsonl"
)

// Config locates the durable trace table and the export destination.
type Config struct {
	DataDir      string `json:"data_dir" yaml:"data_dir"`
	DatabaseFile string `json:"database_file,omitempty" yaml:"database_file,omitempty"`
	ExportFile   string `json:"export_file,omitempty" yaml:"export_file,omitempty"`
}

// Config validation errors.
var (
	ErrDataDirEmpty    = errors.New("data directory must not be empty")
	ErrInvalidFileName = errors.New("file name must be a plain name inside the data directory")
)

// Validate checks that the Config is well-formed. Empty file names are
// valid and fall back to the defaults.
func (c Config) Validate() error {
	if c.DataDir == "" {
		return ErrDataDirEmpty
	}
	for _, name := range []string{c.DatabaseFile, c.ExportFile} {
		if name == "" {
			continue
		}
		if name != filepath.Base(name) || name == "." || name == ".." || strings.ContainsRune(name, filepath.Separator) {
			return ErrInvalidFileName
		}
	}
	return nil
}

// DatabasePath returns the absolute-or-relative path of the SQLite file.
func (c Config) DatabasePath() string {
	name := c.DatabaseFile
	if name == "" {
		name = DefaultDatabaseFile
	}
	return filepath.Join(c.DataDir, name)
}

// ExportPath returns the CSV export destination.
func (c Config) ExportPath() string {
	name := c.ExportFile
	if name == "" {
		name = DefaultExportFile
	}
	return filepath.Join(c.DataDir, name)
}

// JSONLExportPath returns the JSONL export destination.
func (c Config) JSONLExportPath() string {
	return filepath.Join(c.DataDir, DefaultJSONLExportFile)
}
