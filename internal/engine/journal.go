package engine

import (
	"log/slog"

	starrt "github.com/leapstack-labs/scopestar/internal/starlark"
	"github.com/leapstack-labs/scopestar/internal/state"
)

// journal buffers the lifecycle events of one run. Events are written to
// the store in one batch when the run finishes.
type journal struct {
	run    *state.Run
	events []state.Event
}

func (j *journal) Observe(e starrt.Event) {
	ev := state.Event{
		Kind:     string(e.Kind),
		Class:    e.Class,
		Instance: e.Instance,
		Scope:    e.Scope,
		Depth:    e.Depth,
		At:       e.At,
	}
	if e.Err != nil {
		ev.Error = e.Err.Error()
	}
	j.events = append(j.events, ev)
}

func (e *Engine) startJournal(path string) *journal {
	j := &journal{}
	if e.cfg.Store == nil {
		return j
	}
	run, err := e.cfg.Store.CreateRun(path)
	if err != nil {
		e.logger.Warn("journal unavailable", slog.String("path", path), slog.String("error", err.Error()))
		return j
	}
	j.run = run
	return j
}

// finishJournal stores the buffered events and the outcome, returning the
// run id. Journal failures are logged, not returned.
func (e *Engine) finishJournal(j *journal, res *Result) string {
	if j.run == nil {
		return ""
	}
	store := e.cfg.Store
	if err := store.AppendEvents(j.run.ID, j.events); err != nil {
		e.logger.Warn("failed to journal events", slog.String("run_id", j.run.ID), slog.String("error", err.Error()))
	}

	status := state.RunStatusCompleted
	errMsg := ""
	if res.Err != nil {
		status = state.RunStatusFailed
		errMsg = res.Err.Error()
	}
	if err := store.CompleteRun(j.run.ID, status, res.ExitCode, errMsg); err != nil {
		e.logger.Warn("failed to complete run", slog.String("run_id", j.run.ID), slog.String("error", err.Error()))
	}
	return j.run.ID
}
