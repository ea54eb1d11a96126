package starlark

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/scopestar/internal/rewrite"
	"github.com/leapstack-labs/scopestar/internal/scope"
	"github.com/leapstack-labs/scopestar/internal/visibility"
)

// FeatureVersion is reported by the feature module.
const FeatureVersion = "1.0"

// InteractiveFile is the filename of chunks evaluated by an interactive
// session.
const InteractiveFile = "<repl>"

// rootScope labels the record that owns module-level instances.
const rootScope = "<module>"

const runtimeKey = "scopestar.runtime"

// ErrClosed is returned when calling into a closed runtime.
var ErrClosed = errors.New("runtime is closed")

// Config configures a Runtime.
type Config struct {
	// Name names the interpreter thread in diagnostics.
	Name string
	// Thread is used instead of a fresh thread when set.
	Thread *starlark.Thread
	// Logger receives diagnostics. Defaults to a discard logger.
	Logger *slog.Logger
	// Observer receives lifecycle events.
	Observer Observer
	// Enforcer holds class boundaries. A private enforcer is created when nil.
	Enforcer *visibility.Enforcer
	// Stdout receives print() output. Defaults to io.Discard.
	Stdout io.Writer
	// MaxSteps bounds execution; zero means unlimited.
	MaxSteps uint64
	// DestructorPrefix is reported by the feature module.
	DestructorPrefix string
	// Interactive marks a runtime driven by a REPL.
	Interactive bool
}

// Runtime executes rewritten modules on one Starlark thread. It owns the
// scope tracker for that thread, so it must not be shared between
// goroutines.
type Runtime struct {
	cfg      Config
	logger   *slog.Logger
	thread   *starlark.Thread
	tracker  *scope.Tracker
	enforcer *visibility.Enforcer
	observer Observer

	root    *scope.Record
	callers []*Instance
	seq     uint64
	closed  bool
}

// NewRuntime creates a runtime and opens its root scope.
func NewRuntime(cfg Config) *Runtime {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	enforcer := cfg.Enforcer
	if enforcer == nil {
		enforcer = visibility.NewEnforcer()
	}
	stdout := cfg.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	if cfg.DestructorPrefix == "" {
		cfg.DestructorPrefix = rewrite.DefaultDestructorPrefix
	}

	thread := cfg.Thread
	if thread == nil {
		thread = &starlark.Thread{}
	}
	if cfg.Name != "" {
		thread.Name = cfg.Name
	}
	thread.Print = func(_ *starlark.Thread, msg string) {
		_, _ = fmt.Fprintln(stdout, msg)
	}
	if cfg.MaxSteps > 0 {
		thread.SetMaxExecutionSteps(cfg.MaxSteps)
	}

	rt := &Runtime{
		cfg:      cfg,
		logger:   logger,
		thread:   thread,
		tracker:  scope.NewTracker(logger),
		enforcer: enforcer,
		observer: cfg.Observer,
	}
	thread.SetLocal(runtimeKey, rt)
	rt.root = rt.tracker.Enter(rootScope)
	return rt
}

// RuntimeOf returns the runtime bound to thread, or nil.
func RuntimeOf(thread *starlark.Thread) *Runtime {
	rt, _ := thread.Local(runtimeKey).(*Runtime)
	return rt
}

// Thread returns the interpreter thread.
func (rt *Runtime) Thread() *starlark.Thread {
	return rt.thread
}

// Logger returns the runtime logger.
func (rt *Runtime) Logger() *slog.Logger {
	return rt.logger
}

// Enforcer returns the visibility enforcer.
func (rt *Runtime) Enforcer() *visibility.Enforcer {
	return rt.enforcer
}

// Interactive reports whether the runtime is driven by a REPL.
func (rt *Runtime) Interactive() bool {
	return rt.cfg.Interactive
}

// Depth returns the number of open scope records, including the root.
func (rt *Runtime) Depth() int {
	return rt.tracker.Depth()
}

// Live returns the labels of instances owned by the innermost scope.
func (rt *Runtime) Live() []string {
	if r := rt.tracker.Current(); r != nil {
		return r.Labels()
	}
	return nil
}

// Call invokes fn on the runtime thread. Cancelling ctx cancels the thread.
func (rt *Runtime) Call(ctx context.Context, fn starlark.Value, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if rt.closed {
		return nil, ErrClosed
	}
	stop := context.AfterFunc(ctx, func() {
		rt.thread.Cancel(context.Cause(ctx).Error())
	})
	defer stop()
	return starlark.Call(rt.thread, fn, args, kwargs)
}

// Close destroys every instance still alive, innermost scope first and the
// module-level instances last, in reverse construction order. It is safe to
// call more than once.
func (rt *Runtime) Close() error {
	if rt.closed {
		return nil
	}
	rt.closed = true
	return rt.tracker.Unwind()
}

// enter opens a scope record for one tracked activation.
func (rt *Runtime) enter(label string, self *Instance) *scope.Record {
	rec := rt.tracker.Enter(label)
	rt.callers = append(rt.callers, self)
	rt.emit(Event{Kind: EventScopeEnter, Scope: label, Depth: rec.Depth})
	return rec
}

// exit pops the caller pushed by enter and sweeps rec.
func (rt *Runtime) exit(rec *scope.Record) error {
	rt.callers = rt.callers[:len(rt.callers)-1]
	err := rt.tracker.Exit(rec)
	rt.emit(Event{Kind: EventScopeExit, Scope: rec.Label, Depth: rec.Depth, Err: err})
	return err
}

// invoke calls fn as a tracked activation. self is the receiver for methods
// and nil for free functions; it becomes the privileged caller for the
// duration of the call.
func (rt *Runtime) invoke(thread *starlark.Thread, label string, self *Instance, fn starlark.Callable, args starlark.Tuple, kwargs []starlark.Tuple) (v starlark.Value, err error) {
	rec := rt.enter(label, self)
	defer func() {
		err = scope.First(err, rt.exit(rec))
	}()

	if self != nil {
		full := make(starlark.Tuple, 0, len(args)+1)
		full = append(full, self)
		args = append(full, args...)
	}
	return starlark.Call(thread, fn, args, kwargs)
}

// internal reports whether the innermost tracked activation is a method of
// inst and the code running now is written inside that class. A function
// defined elsewhere and called from the method is outside.
func (rt *Runtime) internal(inst *Instance) bool {
	n := len(rt.callers)
	if n == 0 || rt.callers[n-1] != inst {
		return false
	}
	fn := rt.running()
	return fn != nil && inst.class.encloses(fn)
}

// running returns the innermost Starlark function on the thread, skipping
// builtins such as getattr that act for their caller.
func (rt *Runtime) running() *starlark.Function {
	for i := 0; i < rt.thread.CallStackDepth(); i++ {
		if fn, ok := rt.thread.DebugFrame(i).Callable().(*starlark.Function); ok {
			return fn
		}
	}
	return nil
}

func (rt *Runtime) nextSeq() uint64 {
	rt.seq++
	return rt.seq
}

func (rt *Runtime) emit(e Event) {
	if rt.observer == nil {
		return
	}
	if e.At.IsZero() {
		e.At = time.Now()
	}
	rt.observer.Observe(e)
}

// checkAccess consults the enforcer and reports violations to the observer.
func (rt *Runtime) checkAccess(inst *Instance, member string, op visibility.Op) error {
	err := rt.enforcer.Check(inst.class.qualified, member, op, rt.internal(inst))
	if err != nil {
		rt.emit(Event{
			Kind:     EventAccessViolation,
			Class:    inst.class.name,
			Instance: inst.Label(),
			Scope:    rt.currentScope(),
			Depth:    rt.tracker.Depth() - 1,
			Err:      err,
		})
	}
	return err
}

func (rt *Runtime) currentScope() string {
	if r := rt.tracker.Current(); r != nil {
		return r.Label
	}
	return ""
}
