package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/scopestar/internal/state"
)

// NewJournalCommand creates the journal command group.
func NewJournalCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "Inspect recorded runs",
		Long: `Read the run journal written by "scopestar run --journal". The journal
location comes from --journal, the journal config key, or defaults to
.scopestar/journal.db in the project root.`,
	}
	cmd.PersistentFlags().String("journal", "", "Journal file to read")
	cmd.AddCommand(newJournalRunsCommand(), newJournalEventsCommand())
	return cmd
}

func newJournalRunsCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs",
		Example: `  scopestar journal runs --limit 5
  scopestar journal runs -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withJournal(cmd, func(cmdCtx *CommandContext, store state.Store) error {
				runs, err := store.ListRuns(limit)
				if err != nil {
					return err
				}
				if runs == nil {
					runs = []*state.Run{}
				}
				r := cmdCtx.Renderer
				if ok, err := r.Structured(runs); ok {
					return err
				}
				if len(runs) == 0 {
					r.Println(r.Muted("no runs recorded"))
					return nil
				}
				rows := make([]table.Row, len(runs))
				for i, run := range runs {
					duration := "-"
					if run.CompletedAt != nil {
						duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
					}
					rows[i] = table.Row{run.ID, run.Entry, string(run.Status), run.ExitCode, run.StartedAt.Local().Format(time.DateTime), duration}
				}
				r.Table(table.Row{"ID", "Entry", "Status", "Exit", "Started", "Duration"}, rows)
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs (0 for all)")
	return cmd
}

func newJournalEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "events <run-id>",
		Short:   "Show the lifecycle events of a run",
		Example: `  scopestar journal events 3f0c9a52-...`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withJournal(cmd, func(cmdCtx *CommandContext, store state.Store) error {
				run, err := store.GetRun(args[0])
				if err != nil {
					return err
				}
				events, err := store.ListEvents(run.ID)
				if err != nil {
					return err
				}
				if events == nil {
					events = []state.Event{}
				}
				r := cmdCtx.Renderer
				if ok, err := r.Structured(events); ok {
					return err
				}

				r.Header(2, fmt.Sprintf("%s %s (exit %d)", run.Entry, run.Status, run.ExitCode))
				if run.Error != "" {
					r.Println(r.Muted(run.Error))
				}
				rows := make([]table.Row, len(events))
				for i, e := range events {
					rows[i] = table.Row{e.Seq, e.Kind, e.Scope, e.Depth, e.Instance, e.Error}
				}
				r.Table(table.Row{"Seq", "Kind", "Scope", "Depth", "Instance", "Error"}, rows)
				return nil
			})
		},
	}
}

// withJournal opens the journal for reading and passes it to fn.
func withJournal(cmd *cobra.Command, fn func(*CommandContext, state.Store) error) error {
	cmdCtx := NewCommandContext(cmd)
	path := journalPath(cmdCtx.Cfg)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("no journal at %s: %w", path, err)
	}
	store, err := openJournal(path, cmdCtx.Logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()
	return fn(cmdCtx, store)
}
