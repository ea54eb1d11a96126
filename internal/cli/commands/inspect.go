package commands

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/scopestar/internal/rewrite"
)

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Describe the classes of a module",
		Long: `List every class of a module with its members, methods, lifecycle hooks
and their visibility.`,
		Example: `  # Table per class
  scopestar inspect lib/account.star

  # Descriptors as JSON
  scopestar inspect -o json lib/account.star`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args[0])
		},
	}
}

func runInspect(cmd *cobra.Command, path string) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	unit, err := newEngine(cmdCtx, engineOptions{}).Rewrite(path)
	if err != nil {
		r.Diagnostic(diagnose(err))
		return &ExitError{Code: 1, Err: err}
	}

	classes := unit.Classes
	if classes == nil {
		classes = []*rewrite.ClassDescriptor{}
	}
	if ok, err := r.Structured(classes); ok {
		return err
	}

	if len(classes) == 0 {
		r.Println(r.Muted("no classes in " + path))
		return nil
	}
	for i, c := range classes {
		if i > 0 {
			r.Println()
		}
		r.Header(2, classTitle(c))
		if c.Doc != "" {
			r.Println(r.Muted(c.Doc))
		}
		r.Table(table.Row{"Name", "Kind", "Access", "Signature", "Line"}, classRows(c))
	}
	return nil
}

func classTitle(c *rewrite.ClassDescriptor) string {
	var hooks []string
	if c.Constructor != "" {
		hooks = append(hooks, "constructor")
	}
	if c.Destructor != "" {
		hooks = append(hooks, "destructor")
	}
	if len(hooks) == 0 {
		return c.Name
	}
	return fmt.Sprintf("%s (%s)", c.Name, strings.Join(hooks, ", "))
}

func classRows(c *rewrite.ClassDescriptor) []table.Row {
	rows := make([]table.Row, 0, len(c.Members)+len(c.Methods))
	for _, m := range c.Members {
		sig := m.Type
		if m.HasDefault {
			sig += " = " + m.Default
		}
		rows = append(rows, table.Row{m.Name, "member", m.Access.String(), strings.TrimSpace(sig), m.Pos.Line})
	}
	for _, m := range c.Methods {
		access := m.Access.String()
		if m.Kind != rewrite.MethodOrdinary {
			access = "-"
		}
		sig := "(" + strings.Join(m.Params, ", ") + ")"
		rows = append(rows, table.Row{m.Name, string(m.Kind), access, sig, m.Pos.Line})
	}
	return rows
}
