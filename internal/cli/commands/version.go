package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	starrt "github.com/leapstack-labs/scopestar/internal/starlark"
)

// NewVersionCommand creates the version command.
func NewVersionCommand(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display scopestar version and build information.`,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "scopestar v%s\n", version)
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Class lifecycles for Starlark (feature module %s)\n", starrt.FeatureVersion)
		},
	}
}
