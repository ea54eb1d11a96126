// Package scope tracks live instances per lexical activation and tears them
// down in strict reverse construction order when the activation ends.
//
// A Tracker owns a stack of Records. Each tracked call opens a Record on
// entry and sweeps it on every exit path (return, early return, error).
// Instances register with the innermost open Record once their constructor
// has completed, so the registration order is the construction order.
package scope

import (
	"errors"
	"fmt"
	"log/slog"
)

// State is the lifecycle state of a Record.
type State int

// Record states. OPEN accepts registrations, SWEEPING runs finalizers and
// rejects registrations, CLOSED is terminal.
const (
	StateOpen State = iota
	StateSweeping
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateSweeping:
		return "sweeping"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrScopeClosed is returned when registering with a record that is
	// already sweeping or closed.
	ErrScopeClosed = errors.New("scope is no longer open")

	// ErrScopeOrder is returned when a record other than the innermost one
	// is exited.
	ErrScopeOrder = errors.New("scope exited out of order")

	// ErrNoScope is returned when registering without any open record.
	ErrNoScope = errors.New("no open scope")
)

// Finalizer is something a Record tears down at scope exit.
type Finalizer interface {
	// Finalize runs the teardown hook. It is called exactly once.
	Finalize() error
	// Label identifies the finalizer in diagnostics (e.g. "Greeter#2").
	Label() string
}

// Record is the ordered set of finalizers registered within one activation.
type Record struct {
	ID    uint64
	Label string
	Depth int

	state   State
	entries []Finalizer
}

// State returns the record's current state.
func (r *Record) State() State {
	return r.state
}

// Len returns the number of registered finalizers.
func (r *Record) Len() int {
	return len(r.entries)
}

// Labels returns the labels of the registered finalizers in registration order.
func (r *Record) Labels() []string {
	labels := make([]string, len(r.entries))
	for i, f := range r.entries {
		labels[i] = f.Label()
	}
	return labels
}

func (r *Record) register(f Finalizer) error {
	if r.state != StateOpen {
		return fmt.Errorf("register %s in scope %s (%s): %w", f.Label(), r.Label, r.state, ErrScopeClosed)
	}
	r.entries = append(r.entries, f)
	return nil
}

// sweep finalizes every entry in reverse order. All entries run even if an
// earlier one fails; the first failure is returned.
func (r *Record) sweep(logger *slog.Logger) error {
	if r.state == StateClosed {
		return nil
	}
	r.state = StateSweeping

	var first *LifecycleError
	for i := len(r.entries) - 1; i >= 0; i-- {
		f := r.entries[i]
		err := f.Finalize()
		if err == nil {
			continue
		}
		if first == nil {
			first = &LifecycleError{Scope: r.Label, Subject: f.Label(), Cause: err}
			continue
		}
		logger.Warn("deferred destructor error",
			slog.String("scope", r.Label),
			slog.String("subject", f.Label()),
			slog.String("error", err.Error()))
		first.Suppressed = append(first.Suppressed, &LifecycleError{Scope: r.Label, Subject: f.Label(), Cause: err})
	}

	r.entries = nil
	r.state = StateClosed

	if first != nil {
		return first
	}
	return nil
}

// Tracker is a stack of scope records belonging to one thread of execution.
// It is not safe for concurrent use; each thread owns its own Tracker.
type Tracker struct {
	logger  *slog.Logger
	records []*Record
	nextID  uint64
}

// NewTracker creates an empty tracker.
func NewTracker(logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Tracker{logger: logger}
}

// Enter opens a new record on top of the stack.
func (t *Tracker) Enter(label string) *Record {
	t.nextID++
	r := &Record{
		ID:    t.nextID,
		Label: label,
		Depth: len(t.records),
	}
	t.records = append(t.records, r)
	return r
}

// Current returns the innermost record, or nil if none is open.
func (t *Tracker) Current() *Record {
	if len(t.records) == 0 {
		return nil
	}
	return t.records[len(t.records)-1]
}

// Depth returns the number of records on the stack.
func (t *Tracker) Depth() int {
	return len(t.records)
}

// Register adds f to the innermost record.
func (t *Tracker) Register(f Finalizer) (*Record, error) {
	r := t.Current()
	if r == nil {
		return nil, fmt.Errorf("register %s: %w", f.Label(), ErrNoScope)
	}
	if err := r.register(f); err != nil {
		return nil, err
	}
	return r, nil
}

// Exit sweeps r and removes it from the stack. r must be the innermost
// record. Exiting a closed record is a no-op.
func (t *Tracker) Exit(r *Record) error {
	if r.state == StateClosed {
		return nil
	}
	if t.Current() != r {
		return fmt.Errorf("exit scope %s: %w", r.Label, ErrScopeOrder)
	}

	err := r.sweep(t.logger)
	t.records = t.records[:len(t.records)-1]
	return err
}

// Unwind exits every open record from the innermost outwards, returning the
// first error.
func (t *Tracker) Unwind() error {
	var first error
	for len(t.records) > 0 {
		if err := t.Exit(t.Current()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// First returns the error that should surface at a scope exit point: the
// body error if there was one, otherwise the sweep error.
func First(bodyErr, sweepErr error) error {
	if bodyErr != nil {
		return bodyErr
	}
	return sweepErr
}
