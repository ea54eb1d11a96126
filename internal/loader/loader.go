// Package loader resolves, rewrites and executes Starlark modules for a
// runtime. It implements starlark.Thread.Load: modules that load the feature
// module are passed through the import hook before compilation, all others
// run as plain Starlark.
package loader

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.starlark.net/starlark"

	"github.com/leapstack-labs/scopestar/internal/dag"
	"github.com/leapstack-labs/scopestar/internal/hook"
	"github.com/leapstack-labs/scopestar/internal/rewrite"
	starrt "github.com/leapstack-labs/scopestar/internal/starlark"
)

var (
	// ErrNotFound is returned when a module name resolves to no file.
	ErrNotFound = errors.New("module not found")

	// ErrInteractive is returned when the feature module is loaded from an
	// interactive session, which has no file-backed module to rewrite.
	ErrInteractive = errors.New("the class dialect is not supported in interactive sessions")

	// ErrCycle is returned when a module loads itself, directly or not.
	ErrCycle = errors.New("load cycle")
)

// Config configures a Loader.
type Config struct {
	// SearchPath is consulted after the loading module's directory.
	SearchPath []string
	// Options are used to rewrite modules and parse plain ones.
	Options rewrite.Options
	// Predeclared holds extra builtins visible to every module.
	Predeclared starlark.StringDict
	Logger      *slog.Logger
}

type moduleState int

const (
	stateLoading moduleState = iota
	stateLoaded
)

// Module is a loaded, initialised module.
type Module struct {
	// Path is the absolute path of the source file.
	Path string
	// Unit is the rewrite result, nil for plain modules.
	Unit *rewrite.Unit
	// Globals are the module's global bindings after initialisation.
	Globals starlark.StringDict

	state moduleState
}

// Rewritten reports whether the module was compiled from rewritten source.
func (m *Module) Rewritten() bool {
	return m.Unit != nil
}

// Exports returns the globals whose names do not start with an underscore.
func (m *Module) Exports() starlark.StringDict {
	exports := make(starlark.StringDict, len(m.Globals))
	for name, value := range m.Globals {
		if !strings.HasPrefix(name, "_") {
			exports[name] = value
		}
	}
	return exports
}

// Loader loads modules on behalf of one runtime. Like the runtime, it is not
// safe for concurrent use.
type Loader struct {
	rt        *starrt.Runtime
	cfg       Config
	logger    *slog.Logger
	transform rewrite.Transformer

	modules map[string]*Module
	stack   []string
	graph   *dag.Graph[*Module]
	// deps holds the modules loaded by a module that is still initialising.
	deps map[string][]string
}

// New creates a loader and installs it as rt's thread loader.
func New(rt *starrt.Runtime, cfg Config) *Loader {
	logger := cfg.Logger
	if logger == nil {
		logger = rt.Logger()
	}
	l := &Loader{
		rt:        rt,
		cfg:       cfg,
		logger:    logger,
		transform: rewrite.NewTransformer(cfg.Options),
		modules:   make(map[string]*Module),
		graph:     dag.New[*Module](),
		deps:      make(map[string][]string),
	}
	rt.Thread().Load = l.Load
	return l
}

// Load implements starlark.Thread.Load. Module names are resolved relative
// to the loading file, then against the search path.
func (l *Loader) Load(thread *starlark.Thread, name string) (starlark.StringDict, error) {
	from := ""
	if thread.CallStackDepth() > 0 {
		from = thread.CallFrame(0).Pos.Filename()
	}

	if name == rewrite.FeatureModule {
		if from == starrt.InteractiveFile {
			return nil, fmt.Errorf("load(%q): %w", name, ErrInteractive)
		}
		hook.Install()
		return l.rt.FeatureModule(), nil
	}

	path, err := l.resolve(from, name)
	if err != nil {
		return nil, err
	}
	m, err := l.load(path)
	if err != nil {
		return nil, err
	}
	if from != "" && from != starrt.InteractiveFile {
		l.deps[from] = append(l.deps[from], path)
	}
	// Loaded modules may be shared by several importers.
	m.Globals.Freeze()
	return m.Exports(), nil
}

// LoadFile loads the entry module at path. Its globals are left unfrozen.
func (l *Loader) LoadFile(path string) (*Module, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, &LoadError{File: path, Message: "invalid path", Err: err}
	}
	return l.load(abs)
}

// Modules returns the modules loaded so far, keyed by absolute path.
func (l *Loader) Modules() map[string]*Module {
	out := make(map[string]*Module, len(l.modules))
	for path, m := range l.modules {
		if m.state == stateLoaded {
			out[path] = m
		}
	}
	return out
}

// Graph returns the load graph of the modules loaded so far: an edge runs
// from each module to every module that loaded it.
func (l *Loader) Graph() *dag.Graph[*Module] {
	return l.graph
}

// Order returns the paths of the loaded modules, dependencies first.
func (l *Loader) Order() []string {
	paths, err := l.graph.Order()
	if err != nil {
		return nil
	}
	return paths
}

func (l *Loader) resolve(from, name string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}

	var candidates []string
	if from != "" && from != starrt.InteractiveFile {
		candidates = append(candidates, filepath.Join(filepath.Dir(from), name))
	} else if wd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(wd, name))
	}
	for _, dir := range l.cfg.SearchPath {
		candidates = append(candidates, filepath.Join(dir, name))
	}

	for _, c := range candidates {
		info, err := os.Stat(c)
		if err == nil && !info.IsDir() {
			return filepath.Abs(c)
		}
	}
	return "", &LoadError{File: name, Message: "cannot resolve module", Err: ErrNotFound}
}

func (l *Loader) load(path string) (*Module, error) {
	if m, ok := l.modules[path]; ok {
		if m.state == stateLoading {
			chain := append(append([]string(nil), l.stack...), path)
			for i := range chain {
				chain[i] = filepath.Base(chain[i])
			}
			return nil, &LoadError{File: path, Message: strings.Join(chain, " -> "), Err: ErrCycle}
		}
		return m, nil
	}

	src, err := os.ReadFile(path) //nolint:gosec // G304: module paths are resolved from load statements
	if err != nil {
		return nil, &LoadError{File: path, Message: "failed to read file", Err: err}
	}

	m := &Module{Path: path, state: stateLoading}
	l.modules[path] = m
	l.stack = append(l.stack, path)
	defer func() { l.stack = l.stack[:len(l.stack)-1] }()

	err = l.exec(m, src)
	deps := l.deps[path]
	delete(l.deps, path)
	if err != nil {
		delete(l.modules, path)
		return nil, err
	}
	m.state = stateLoaded

	l.graph.Add(path, m)
	for _, dep := range deps {
		if err := l.graph.Link(dep, path); err != nil {
			return nil, &LoadError{File: path, Message: "invalid load", Err: err}
		}
	}
	return m, nil
}

func (l *Loader) exec(m *Module, src []byte) error {
	if rewrite.Requested(src) {
		hook.Install()
	}

	unit, err := hook.Apply(l.transform, m.Path, src)
	if err != nil {
		return &LoadError{File: m.Path, Message: "rewrite failed", Err: err}
	}

	thread := l.rt.Thread()
	if unit == nil {
		l.logger.Debug("loading plain module", slog.String("path", m.Path))
		opts := l.cfg.Options.Dialect
		globals, err := starlark.ExecFileOptions(&opts, thread, m.Path, src, l.cfg.Predeclared)
		if err != nil {
			return &LoadError{File: m.Path, Message: "execution failed", Err: err}
		}
		m.Globals = globals
		return nil
	}

	l.logger.Debug("loading rewritten module",
		slog.String("path", m.Path),
		slog.Int("classes", len(unit.Classes)),
		slog.Int("functions", len(unit.Functions)))

	predeclared := l.rt.Predeclared(unit)
	for name, v := range l.cfg.Predeclared {
		if _, reserved := predeclared[name]; !reserved {
			predeclared[name] = v
		}
	}
	prog, err := starlark.FileProgram(unit.File, predeclared.Has)
	if err != nil {
		return &LoadError{File: m.Path, Message: "compilation failed", Err: err}
	}
	globals, err := prog.Init(thread, predeclared)
	if err != nil {
		return &LoadError{File: m.Path, Message: "execution failed", Err: err}
	}
	m.Unit = unit
	m.Globals = globals
	return nil
}

// LoadError represents an error loading a module.
type LoadError struct {
	File    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return fmt.Sprintf("%s: %s: %v", e.File, e.Message, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
