// Package engine runs entry modules: it wires a runtime, a loader and the
// optional journal together, calls the entry function and turns its result
// into an exit code.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.starlark.net/lib/json"
	"go.starlark.net/lib/math"
	startime "go.starlark.net/lib/time"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/leapstack-labs/scopestar/internal/dag"
	"github.com/leapstack-labs/scopestar/internal/loader"
	"github.com/leapstack-labs/scopestar/internal/rewrite"
	starrt "github.com/leapstack-labs/scopestar/internal/starlark"
	"github.com/leapstack-labs/scopestar/internal/state"
	"github.com/leapstack-labs/scopestar/internal/visibility"
)

// DefaultEntry is the entry function called after the module is loaded.
const DefaultEntry = "main"

// Config holds engine configuration.
type Config struct {
	// Entry names the function called after loading. Defaults to "main".
	Entry string
	// SearchPath is consulted by load() after the loading file's directory.
	SearchPath []string
	// Options control rewriting and the Starlark dialect.
	Options rewrite.Options
	// MaxSteps bounds each run; zero means unlimited.
	MaxSteps uint64
	// Jobs bounds concurrent runs in RunAll. Defaults to 4.
	Jobs int
	// Stdout receives print() output. Defaults to os.Stdout.
	Stdout io.Writer
	// Store journals runs and lifecycle events when set.
	Store state.Store
	// Observer receives every lifecycle event in addition to the journal. It
	// is called from several goroutines when RunAll runs modules in parallel.
	Observer starrt.Observer
	// Logger is the structured logger (optional, uses discard if nil)
	Logger *slog.Logger
}

// Engine executes entry modules.
type Engine struct {
	cfg      Config
	logger   *slog.Logger
	enforcer *visibility.Enforcer
}

// Result is the outcome of one run.
type Result struct {
	Path     string
	RunID    string
	ExitCode int
	// Value is the entry function's return value converted to Go.
	Value   any
	Classes []*rewrite.ClassDescriptor
	// Modules lists the absolute paths of the modules loaded, dependencies
	// first and the entry module last.
	Modules  []string
	Events   int
	Duration time.Duration
	Err      error

	graph *dag.Graph[*loader.Module]
}

// New creates an engine.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Entry == "" {
		cfg.Entry = DefaultEntry
	}
	if cfg.Jobs <= 0 {
		cfg.Jobs = 4
	}
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	if cfg.Options.DestructorPrefix == "" {
		cfg.Options.DestructorPrefix = rewrite.DefaultDestructorPrefix
	}
	return &Engine{
		cfg:      cfg,
		logger:   logger,
		enforcer: visibility.NewEnforcer(),
	}
}

// Predeclared returns the builtins every module sees besides the Starlark
// universe.
func Predeclared() starlark.StringDict {
	return starlark.StringDict{
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"json":   json.Module,
		"math":   math.Module,
		"time":   startime.Module,
	}
}

// Rewrite reads and rewrites path without executing it.
func (e *Engine) Rewrite(path string) (*rewrite.Unit, error) {
	src, err := os.ReadFile(path) //nolint:gosec // G304: path is supplied by the user
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return rewrite.Rewrite(path, src, e.cfg.Options)
}

// Run executes one entry module.
func (e *Engine) Run(ctx context.Context, path string) (*Result, error) {
	results := e.RunAll(ctx, []string{path})
	return results[0], results[0].Err
}

// RunAll executes entry modules concurrently, at most Jobs at a time. Each
// module gets its own thread, runtime and loader. Results are in path order.
func (e *Engine) RunAll(ctx context.Context, paths []string) []*Result {
	results := make([]*Result, len(paths))
	journals := make([]*journal, len(paths))
	tasks := make([]starrt.EvalTask, len(paths))

	for i, path := range paths {
		res := &Result{Path: path}
		results[i] = res
		j := e.startJournal(path)
		journals[i] = j

		tasks[i] = starrt.EvalTask{
			Name: filepath.Base(path),
			Configure: func(cfg *starrt.Config) {
				cfg.Observer = starrt.Observers{starrt.LogObserver{Logger: e.logger}, j, e.cfg.Observer}
			},
			Run: func(ctx context.Context, rt *starrt.Runtime) (starlark.Value, error) {
				start := time.Now()
				defer func() { res.Duration = time.Since(start) }()
				return e.execute(ctx, rt, res)
			},
		}
	}

	exec := starrt.NewParallelExecutor(e.cfg.Jobs, starrt.Config{
		Logger:           e.logger,
		Enforcer:         e.enforcer,
		Stdout:           e.cfg.Stdout,
		MaxSteps:         e.cfg.MaxSteps,
		DestructorPrefix: e.cfg.Options.DestructorPrefix,
	})

	for i, out := range exec.Execute(ctx, tasks) {
		res := results[i]
		res.Err = out.Error
		res.Events = len(journals[i].events)
		if res.Err == nil {
			res.ExitCode, res.Err = starrt.ExitCode(out.Value)
			res.Value = toGo(out.Value)
		}
		if res.Err != nil {
			res.ExitCode = 1
		}
		res.RunID = e.finishJournal(journals[i], res)

		level := slog.LevelInfo
		if res.Err != nil {
			level = slog.LevelError
		}
		e.logger.Log(ctx, level, "run finished",
			slog.String("path", res.Path),
			slog.Int("exit_code", res.ExitCode),
			slog.Int("events", res.Events),
			slog.Duration("duration", res.Duration))
	}
	return results
}

// execute loads the entry module and calls its entry function.
func (e *Engine) execute(ctx context.Context, rt *starrt.Runtime, res *Result) (starlark.Value, error) {
	l := loader.New(rt, loader.Config{
		SearchPath:  e.cfg.SearchPath,
		Options:     e.cfg.Options,
		Predeclared: Predeclared(),
		Logger:      e.logger,
	})

	m, err := l.LoadFile(res.Path)
	res.graph = l.Graph()
	res.Modules = l.Order()
	if err != nil {
		return nil, err
	}
	if m.Unit != nil {
		res.Classes = m.Unit.Classes
	}

	fn, ok := m.Globals[e.cfg.Entry]
	if !ok {
		e.logger.Debug("no entry function", slog.String("path", res.Path), slog.String("entry", e.cfg.Entry))
		return starlark.None, nil
	}
	if _, ok := fn.(starlark.Callable); !ok {
		return nil, fmt.Errorf("%s: entry %s is a %s, not a function", res.Path, e.cfg.Entry, fn.Type())
	}
	return rt.Call(ctx, fn, nil, nil)
}

func toGo(v starlark.Value) any {
	if v == nil {
		return nil
	}
	if g, err := starrt.ToGo(v); err == nil {
		return g
	}
	return v.String()
}

// ExitCode folds several results into one process exit code: the first
// non-zero code wins.
func ExitCode(results []*Result) int {
	for _, r := range results {
		if r.ExitCode != 0 {
			return r.ExitCode
		}
	}
	return 0
}

// Errors joins the errors of failed results.
func Errors(results []*Result) error {
	var errs []error
	for _, r := range results {
		if r.Err != nil {
			errs = append(errs, r.Err)
		}
	}
	return errors.Join(errs...)
}
