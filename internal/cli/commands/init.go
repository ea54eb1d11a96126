package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/scopestar/internal/cli/output"
	intconfig "github.com/leapstack-labs/scopestar/internal/config"
)

// NewInitCommand creates the init command.
func NewInitCommand() *cobra.Command {
	var force bool
	var example bool

	cmd := &cobra.Command{
		Use:   "init [directory]",
		Short: "Initialize a new scopestar project",
		Long: `Initialize a new scopestar project.

This creates:
  - scopestar.yaml configuration file
  - main.star with a small class and a main function
  - .gitignore excluding the .scopestar/ state directory

Use --example to create a project with a lib/ directory on the search path,
two classes and a journal configured.`,
		Example: `  # Initialize in current directory
  scopestar init

  # Initialize a new directory with the example project
  scopestar init bank --example

  # Overwrite an existing configuration
  scopestar init --force`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "."
			if len(args) > 0 {
				dir = args[0]
			}
			r := NewCommandContext(cmd).Renderer

			template := "minimal"
			if example {
				template = "example"
			}
			return runInit(r, template, dir, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	cmd.Flags().BoolVar(&example, "example", false, "Create the example project with a lib/ directory")

	return cmd
}

func runInit(r *output.Renderer, template, dir string, force bool) error {
	if dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	configPath := filepath.Join(dir, intconfig.ConfigFileName)
	if _, err := os.Stat(configPath); err == nil && !force {
		return fmt.Errorf("%s already exists. Use --force to overwrite", intconfig.ConfigFileName)
	}

	if err := copyTemplate(template, dir, force); err != nil {
		return fmt.Errorf("failed to initialize project: %w", err)
	}

	files, err := listTemplateFiles(template)
	if err != nil {
		return err
	}
	groups := groupTemplateFiles(files)

	r.Header(2, "Configuration")
	for _, f := range groups["config"] {
		r.StatusLine(f, "success", "")
	}
	r.Println("")
	r.Header(2, "Modules")
	for _, f := range groups["modules"] {
		r.StatusLine(f, "success", "")
	}

	r.Println("")
	r.Success("scopestar project initialized!")
	r.Println("")
	r.Println("Next steps:")
	r.Println("  scopestar run main.star       Run main() and tear down its instances")
	r.Println("  scopestar inspect main.star   List classes, members and visibility")
	r.Println("  scopestar repl                Try statements interactively")

	return nil
}
