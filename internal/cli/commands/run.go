package commands

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/scopestar/internal/cli/output"
	"github.com/leapstack-labs/scopestar/internal/engine"
	starrt "github.com/leapstack-labs/scopestar/internal/starlark"
	"github.com/leapstack-labs/scopestar/internal/state"
)

// RunOptions holds options for the run command.
type RunOptions struct {
	Watch bool
	Trace bool
}

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	opts := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run <file>...",
		Short: "Run entry modules",
		Long: `Load each entry module, call its entry function and tear down every
instance it created.

Modules that load("cpp", "magic") are rewritten first: classes get constructors,
destructors and member visibility. The process exits with the code returned by
the entry function (None is 0). Several files run concurrently, up to --jobs
at a time.`,
		Example: `  # Run a program
  scopestar run main.star

  # Run several programs and record them in the journal
  scopestar run --journal .scopestar/journal.db a.star b.star

  # Rerun whenever a .star file changes
  scopestar run --watch main.star

  # Print lifecycle events to stderr
  scopestar run --trace main.star`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, args, opts)
		},
	}

	cmd.Flags().Int("jobs", 0, "Maximum number of modules run concurrently")
	cmd.Flags().String("journal", "", "Record runs and lifecycle events in this SQLite file")
	cmd.Flags().BoolVarP(&opts.Watch, "watch", "w", false, "Rerun when a .star file changes")
	cmd.Flags().BoolVar(&opts.Trace, "trace", false, "Print lifecycle events to stderr")

	return cmd
}

// runSummary is the machine-readable form of a run result.
type runSummary struct {
	Path       string             `json:"path" yaml:"path"`
	RunID      string             `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	ExitCode   int                `json:"exit_code" yaml:"exit_code"`
	Value      any                `json:"value,omitempty" yaml:"value,omitempty"`
	Events     int                `json:"events" yaml:"events"`
	DurationMS int64              `json:"duration_ms" yaml:"duration_ms"`
	Error      *output.Diagnostic `json:"error,omitempty" yaml:"error,omitempty"`
}

func runRun(cmd *cobra.Command, paths []string, opts *RunOptions) error {
	cmdCtx := NewCommandContext(cmd)
	r := cmdCtx.Renderer

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store state.Store
	if cmdCtx.Cfg.Journal != "" {
		s, err := openJournal(cmdCtx.Cfg.Journal, cmdCtx.Logger)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()
		store = s
	}

	var observer starrt.Observer
	if opts.Trace {
		observer = traceObserver(r)
	}

	eng := newEngine(cmdCtx, engineOptions{stdout: cmd.OutOrStdout(), store: store, observer: observer})

	if opts.Watch {
		return eng.Watch(ctx, paths, func(results []*engine.Result) {
			_ = report(r, results, true)
		})
	}

	results := eng.RunAll(ctx, paths)
	if err := report(r, results, cmdCtx.Cfg.Verbose); err != nil {
		return err
	}
	if code := engine.ExitCode(results); code != 0 {
		return &ExitError{Code: code, Err: engine.Errors(results)}
	}
	return nil
}

// report renders results: diagnostics for failures and, when verbose or
// when several files ran, one status line per file.
func report(r *output.Renderer, results []*engine.Result, verbose bool) error {
	summaries := make([]runSummary, len(results))
	for i, res := range results {
		summaries[i] = runSummary{
			Path:       res.Path,
			RunID:      res.RunID,
			ExitCode:   res.ExitCode,
			Value:      res.Value,
			Events:     res.Events,
			DurationMS: res.Duration.Milliseconds(),
		}
		if res.Err != nil {
			d := diagnose(res.Err)
			summaries[i].Error = &d
		}
	}

	if ok, err := r.Structured(summaries); ok {
		return err
	}

	for _, s := range summaries {
		if s.Error != nil {
			r.Diagnostic(*s.Error)
		}
	}
	if !verbose && len(results) == 1 {
		return nil
	}
	for i, s := range summaries {
		detail := fmt.Sprintf("(exit %d, %d events, %s)", s.ExitCode, s.Events, results[i].Duration.Round(time.Millisecond))
		switch {
		case s.Error != nil:
			r.StatusLine(s.Path, "error", detail)
		case s.ExitCode != 0:
			r.StatusLine(s.Path, "warning", detail)
		default:
			r.StatusLine(s.Path, "success", detail)
		}
	}
	return nil
}

// traceObserver prints lifecycle events to stderr, indented by scope depth.
// RunAll calls it from several goroutines; each event is one Fprintf.
func traceObserver(r *output.Renderer) starrt.Observer {
	return starrt.ObserverFunc(func(e starrt.Event) {
		indent := strings.Repeat("  ", e.Depth)
		subject := e.Scope
		if e.Instance != "" {
			subject = e.Instance + " in " + e.Scope
		}
		line := fmt.Sprintf("%s%s %s", indent, e.Kind, subject)
		if e.Err != nil {
			line += ": " + e.Err.Error()
		}
		_, _ = fmt.Fprintln(r.ErrWriter(), r.Muted(line))
	})
}
