package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/scopestar/internal/cli/output"
)

// NewCheckCommand creates the check command.
func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check <file>...",
		Short: "Validate class syntax without running",
		Long: `Rewrite each file and report malformed lifecycle syntax: duplicate
constructors or destructors, misplaced visibility markers, destructors with
parameters and the like. Nothing is executed.`,
		Example: `  scopestar check main.star lib/*.star`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args)
		},
	}
}

type checkResult struct {
	Path    string             `json:"path" yaml:"path"`
	Classes int                `json:"classes" yaml:"classes"`
	Feature bool               `json:"feature" yaml:"feature"`
	Error   *output.Diagnostic `json:"error,omitempty" yaml:"error,omitempty"`
}

func runCheck(cmd *cobra.Command, paths []string) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer
	eng := newEngine(cmdCtx, engineOptions{})

	results := make([]checkResult, 0, len(paths))
	failed := 0
	for _, path := range paths {
		res := checkResult{Path: path}
		unit, err := eng.Rewrite(path)
		if err != nil {
			d := diagnose(err)
			res.Error = &d
			failed++
		} else {
			res.Classes = len(unit.Classes)
			res.Feature = unit.Requested
		}
		results = append(results, res)
	}

	if ok, err := r.Structured(results); ok {
		if err != nil {
			return err
		}
	} else {
		for _, res := range results {
			if res.Error != nil {
				r.Diagnostic(*res.Error)
				r.StatusLine(res.Path, "error", "")
				continue
			}
			detail := fmt.Sprintf("(%d classes)", res.Classes)
			if !res.Feature {
				detail = "(plain starlark)"
			}
			r.StatusLine(res.Path, "success", detail)
		}
	}

	if failed > 0 {
		return &ExitError{Code: 1, Err: fmt.Errorf("%d of %d files failed to check", failed, len(paths))}
	}
	return nil
}
