package commands

import (
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/scopestar/internal/cli/config"
	"github.com/leapstack-labs/scopestar/internal/lsp"
)

type lspOptions struct {
	Listen string
	Debug  bool
}

// NewLSPCommand creates the lsp command.
func NewLSPCommand(version string) *cobra.Command {
	var opts lspOptions

	cmd := &cobra.Command{
		Use:   "lsp",
		Short: "Start the Language Server Protocol server",
		Long: `Start the LSP server for editor integration.

The server communicates over stdin/stdout using JSON-RPC, or accepts clients
on a TCP address with --listen. It reports transformation errors and reads of
private members as you type, and answers hover, completion and
go-to-definition for classes and their members. The destructor prefix and
dialect come from the project configuration.`,
		Example: `  # Start LSP server (usually called by an editor)
  scopestar lsp

  # Serve editors over TCP
  scopestar lsp --listen 127.0.0.1:7998`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLSP(cmd, version, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Listen, "listen", "", "Accept clients on this TCP address instead of stdio")
	cmd.Flags().BoolVar(&opts.Debug, "debug", false, "Log every JSON-RPC message")

	return cmd
}

func runLSP(cmd *cobra.Command, version string, opts lspOptions) error {
	cfg := getConfig()
	server := lsp.NewServer(lsp.Config{
		Options: cfg.RewriteOptions(),
		Version: version,
		Debug:   opts.Debug,
		Logger:  config.GetLogger(cmd.Context()),
	})

	if opts.Listen != "" {
		return server.ServeTCP(opts.Listen)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err := server.Serve(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
	if errors.Is(err, lsp.ErrExitWithoutShutdown) {
		return &ExitError{Code: 1, Err: err}
	}
	return err
}
