package commands

import (
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/scopestar/pkg/format"
)

// NewRewriteCommand creates the rewrite command.
func NewRewriteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rewrite <file>",
		Short: "Print the lowered Starlark module",
		Long: `Print the plain Starlark that a module is compiled to: classes become
factory functions with an explicit this parameter, and top-level functions
are wrapped for scope tracking.`,
		Example: `  scopestar rewrite main.star`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx := NewCommandContext(cmd)
			unit, err := newEngine(cmdCtx, engineOptions{}).Rewrite(args[0])
			if err != nil {
				cmdCtx.Renderer.Diagnostic(diagnose(err))
				return &ExitError{Code: 1, Err: err}
			}
			cmdCtx.Renderer.Printf("%s", format.Format(unit.File))
			return nil
		},
	}
}
