// Package config provides configuration management for the scopestar CLI.
//
// It extends the shared project settings from internal/config with the
// fields only the command line cares about: journal location, logging and
// output format.
package config

import (
	"log/slog"

	sharedcfg "github.com/leapstack-labs/scopestar/internal/config"
)

// ProjectConfig is an alias for the shared project configuration.
type ProjectConfig = sharedcfg.ProjectConfig

// DialectConfig is an alias for the shared dialect configuration.
type DialectConfig = sharedcfg.DialectConfig

// Config holds all CLI configuration options.
type Config struct {
	ProjectConfig `koanf:",squash"`

	// Journal is the path of the SQLite run journal. Empty disables it.
	Journal      string     `koanf:"journal"`
	LogLevel     slog.Level `koanf:"log_level"`
	LogFormat    string     `koanf:"log_format"`
	OutputFormat string     `koanf:"output"`
	Verbose      bool       `koanf:"verbose"`

	// ProjectRoot is the directory relative paths are resolved against.
	ProjectRoot string `koanf:"-"`
}

// Default configuration values.
const (
	DefaultJournalFile = ".scopestar/journal.db"
	DefaultLogLevel    = "warn"
	DefaultLogFormat   = "text"
	DefaultOutput      = "auto" // Auto-detect: TTY=text, non-TTY=plain text without color
)
