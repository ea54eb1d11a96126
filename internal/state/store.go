// Package state is the run journal: a SQLite store of program runs and the
// lifecycle events observed while they executed.
package state

import (
	"errors"
	"time"
)

var (
	// ErrNotOpen is returned by store methods called before Open.
	ErrNotOpen = errors.New("journal not opened")
	// ErrRunNotFound is returned for an unknown run ID.
	ErrRunNotFound = errors.New("run not found")
)

// RunStatus is the outcome of a run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Run is one execution of an entry module.
type Run struct {
	ID          string     `json:"id" yaml:"id"`
	Entry       string     `json:"entry" yaml:"entry"`
	Status      RunStatus  `json:"status" yaml:"status"`
	StartedAt   time.Time  `json:"started_at" yaml:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	ExitCode    int        `json:"exit_code" yaml:"exit_code"`
	Error       string     `json:"error,omitempty" yaml:"error,omitempty"`
}

// Event is a journaled lifecycle event.
type Event struct {
	RunID    string    `json:"run_id" yaml:"run_id"`
	Seq      int       `json:"seq" yaml:"seq"`
	Kind     string    `json:"kind" yaml:"kind"`
	Class    string    `json:"class,omitempty" yaml:"class,omitempty"`
	Instance string    `json:"instance,omitempty" yaml:"instance,omitempty"`
	Scope    string    `json:"scope,omitempty" yaml:"scope,omitempty"`
	Depth    int       `json:"depth" yaml:"depth"`
	Error    string    `json:"error,omitempty" yaml:"error,omitempty"`
	At       time.Time `json:"at" yaml:"at"`
}

// Store persists runs and their events.
type Store interface {
	CreateRun(entry string) (*Run, error)
	CompleteRun(id string, status RunStatus, exitCode int, errMsg string) error
	GetRun(id string) (*Run, error)
	ListRuns(limit int) ([]*Run, error)
	AppendEvents(runID string, events []Event) error
	ListEvents(runID string) ([]Event, error)
	Close() error
}

var _ Store = (*SQLiteStore)(nil)
