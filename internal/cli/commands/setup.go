package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/scopestar/internal/cli/config"
	"github.com/leapstack-labs/scopestar/internal/cli/output"
	intconfig "github.com/leapstack-labs/scopestar/internal/config"
	"github.com/leapstack-labs/scopestar/internal/engine"
	starrt "github.com/leapstack-labs/scopestar/internal/starlark"
	"github.com/leapstack-labs/scopestar/internal/state"
)

// CommandContext holds common dependencies for CLI commands.
type CommandContext struct {
	Cfg      *config.Config
	Logger   *slog.Logger
	Renderer *output.Renderer
}

// NewCommandContext creates a CommandContext from the loaded configuration
// and the logger stored in the command context.
func NewCommandContext(cmd *cobra.Command) *CommandContext {
	cfg := getConfig()
	return &CommandContext{
		Cfg:      cfg,
		Logger:   config.GetLogger(cmd.Context()),
		Renderer: output.NewRenderer(cmd.OutOrStdout(), cmd.ErrOrStderr(), output.Mode(cfg.OutputFormat)),
	}
}

// getConfig returns the current configuration, or the defaults when no
// configuration was loaded (commands constructed directly in tests).
func getConfig() *config.Config {
	if cfg := config.GetCurrentConfig(); cfg != nil {
		return cfg
	}
	cfg := &config.Config{
		LogLevel:     slog.LevelWarn,
		LogFormat:    config.DefaultLogFormat,
		OutputFormat: config.DefaultOutput,
	}
	intconfig.ApplyDefaults(&cfg.ProjectConfig)
	return cfg
}

// engineOptions carries per-invocation settings that are not configuration.
type engineOptions struct {
	stdout   io.Writer
	store    state.Store
	observer starrt.Observer
}

func newEngine(cmdCtx *CommandContext, opts engineOptions) *engine.Engine {
	cfg := cmdCtx.Cfg
	return engine.New(engine.Config{
		Entry:      cfg.Entry,
		SearchPath: cfg.SearchPath,
		Options:    cfg.RewriteOptions(),
		MaxSteps:   cfg.MaxSteps,
		Jobs:       cfg.Jobs,
		Stdout:     opts.stdout,
		Store:      opts.store,
		Observer:   opts.observer,
		Logger:     cmdCtx.Logger,
	})
}

// openJournal opens (creating and migrating) the journal at path.
func openJournal(path string, logger *slog.Logger) (*state.SQLiteStore, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create journal directory: %w", err)
			}
		}
	}
	store := state.NewSQLiteStore(logger)
	if err := store.Open(path); err != nil {
		return nil, fmt.Errorf("failed to open journal %s: %w", path, err)
	}
	return store, nil
}

// journalPath returns the configured journal or the default location under
// the project root.
func journalPath(cfg *config.Config) string {
	if cfg.Journal != "" {
		return cfg.Journal
	}
	root := cfg.ProjectRoot
	if root == "" {
		root = "."
	}
	return filepath.Join(root, config.DefaultJournalFile)
}
