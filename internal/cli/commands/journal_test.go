package commands

import (
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/scopestar/internal/cli/config"
	"github.com/leapstack-labs/scopestar/internal/cli/testutil"
	"github.com/leapstack-labs/scopestar/internal/state"
)

// seedJournal records one finished run in the default journal of dir.
func seedJournal(t *testing.T, dir string) *state.Run {
	t.Helper()
	store, err := openJournal(filepath.Join(dir, config.DefaultJournalFile), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	run, err := store.CreateRun("main.star")
	require.NoError(t, err)
	at := time.Now()
	require.NoError(t, store.AppendEvents(run.ID, []state.Event{
		{Kind: "scope_enter", Scope: "main", Depth: 1, At: at},
		{Kind: "construct", Class: "Account", Instance: "Account#1", Scope: "main", Depth: 1, At: at},
		{Kind: "destruct_error", Class: "Account", Instance: "Account#1", Scope: "main", Depth: 1, Error: "boom", At: at},
		{Kind: "scope_exit", Scope: "main", Depth: 1, At: at},
	}))
	require.NoError(t, store.CompleteRun(run.ID, state.RunStatusFailed, 1, "destructor of Account#1 failed"))
	return run
}

func TestJournalCommand(t *testing.T) {
	dir := setupProject(t)

	_, _, err := execute(NewJournalCommand(), "runs")
	assert.ErrorContains(t, err, "no journal at")

	run := seedJournal(t, dir)

	stdout, _, err := execute(NewJournalCommand(), "runs")
	require.NoError(t, err)
	testutil.AssertNoANSI(t, stdout)
	testutil.AssertLinesInOrder(t, stdout, "ID", "ENTRY", "STATUS", run.ID, "main.star", "failed")

	stdout, _, err = execute(NewJournalCommand(), "events", run.ID)
	require.NoError(t, err)
	testutil.AssertLinesInOrder(t, stdout,
		"## main.star failed (exit 1)",
		"destructor of Account#1 failed",
		"scope_enter",
		"construct",
		"Account#1",
		"destruct_error",
		"boom",
		"scope_exit",
	)

	_, _, err = execute(NewJournalCommand(), "events", "missing")
	assert.ErrorContains(t, err, "run not found")
}
