package loader

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.starlark.net/starlark"

	"github.com/leapstack-labs/scopestar/internal/hook"
	"github.com/leapstack-labs/scopestar/internal/rewrite"
	starrt "github.com/leapstack-labs/scopestar/internal/starlark"
	"github.com/leapstack-labs/scopestar/internal/testutil"
)

// writeFiles creates files under a fresh temp dir and returns its path.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func newLoader(t *testing.T, cfg Config) (*Loader, *bytes.Buffer) {
	t.Helper()
	out := &bytes.Buffer{}
	rt := starrt.NewRuntime(starrt.Config{
		Name:   t.Name(),
		Logger: testutil.NewTestLogger(t),
		Stdout: out,
	})
	t.Cleanup(func() { _ = rt.Close() })
	if cfg.Options.DestructorPrefix == "" {
		cfg.Options = rewrite.DefaultOptions()
	}
	return New(rt, cfg), out
}

func TestLoader_EntryWithDependencies(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"main.star": `load("cpp", "magic")
load("lib/shapes.star", "Square")
load("lib/util.star", "double")

class Logger:
    def Logger():
        print("open log")
    def _Logger():
        print("close log")

def main():
    log = Logger()
    sq = Square(3)
    print("area", double(sq.area()) // 2)
`,
		"lib/shapes.star": `load("cpp", "magic")

class Square:
    side: int
    def Square(s):
        this.side = s
    def _Square():
        print("drop square", this.side)
    def area():
        return this.side * this.side
`,
		"lib/util.star": `
def double(n):
    return n * 2

_hidden = 1
`,
	})

	l, out := newLoader(t, Config{})
	m, err := l.LoadFile(filepath.Join(dir, "main.star"))
	require.NoError(t, err)
	assert.True(t, m.Rewritten())
	assert.Equal(t, []string{"main"}, m.Unit.Functions)
	assert.True(t, hook.Installed())

	_, err = l.rt.Call(context.Background(), m.Globals["main"], nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "open log\narea 9\ndrop square 3\nclose log\n", out.String())

	modules := l.Modules()
	require.Len(t, modules, 3)
	util := modules[filepath.Join(dir, "lib", "util.star")]
	require.NotNil(t, util)
	assert.False(t, util.Rewritten())
	assert.Contains(t, util.Globals, "_hidden")
	assert.NotContains(t, util.Exports(), "_hidden")

	mainPath := filepath.Join(dir, "main.star")
	assert.Equal(t, []string{
		filepath.Join(dir, "lib", "shapes.star"),
		filepath.Join(dir, "lib", "util.star"),
	}, l.Graph().Upstream(mainPath))
	order := l.Order()
	require.Len(t, order, 3)
	assert.Equal(t, mainPath, order[2])
}

func TestLoader_OptionsPerLoader(t *testing.T) {
	src := `load("cpp", "magic")

class B:
    def B():
        print("make B")
    def del_B():
        print("drop B")

def main():
    b = B()
`
	dir := writeFiles(t, map[string]string{"a.star": src, "b.star": src})

	first, firstOut := newLoader(t, Config{})
	a, err := first.LoadFile(filepath.Join(dir, "a.star"))
	require.NoError(t, err)
	assert.Empty(t, a.Unit.Classes[0].Destructor)

	// The hook is already installed; the second loader still rewrites with
	// its own destructor prefix.
	opts := rewrite.DefaultOptions()
	opts.DestructorPrefix = "del_"
	second, secondOut := newLoader(t, Config{Options: opts})
	b, err := second.LoadFile(filepath.Join(dir, "b.star"))
	require.NoError(t, err)
	assert.Equal(t, "del_B", b.Unit.Classes[0].Destructor)

	_, err = first.rt.Call(context.Background(), a.Globals["main"], nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "make B\n", firstOut.String())

	_, err = second.rt.Call(context.Background(), b.Globals["main"], nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "make B\ndrop B\n", secondOut.String())
}

func TestLoader_Errors(t *testing.T) {
	tests := []struct {
		name    string
		files   map[string]string
		entry   string
		wantErr error
		wantMsg string
	}{
		{
			name: "cycle",
			files: map[string]string{
				"a.star": "load(\"b.star\", \"b\")\na = 1\n",
				"b.star": "load(\"a.star\", \"a\")\nb = 2\n",
			},
			entry:   "a.star",
			wantErr: ErrCycle,
			wantMsg: "a.star -> b.star -> a.star",
		},
		{
			name:    "missing module",
			files:   map[string]string{"main.star": "load(\"nope.star\", \"x\")\n"},
			entry:   "main.star",
			wantErr: ErrNotFound,
		},
		{
			name:    "missing entry",
			files:   map[string]string{},
			entry:   "absent.star",
			wantErr: os.ErrNotExist,
		},
		{
			name:    "class without feature request",
			files:   map[string]string{"main.star": "class A:\n    x: int = 0\n"},
			entry:   "main.star",
			wantMsg: "class",
		},
		{
			name: "error in dependency",
			files: map[string]string{
				"main.star": "load(\"dep.star\", \"x\")\n",
				"dep.star":  "x = 1 // 0\n",
			},
			entry:   "main.star",
			wantMsg: "division by zero",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeFiles(t, tt.files)
			l, _ := newLoader(t, Config{})

			_, err := l.LoadFile(filepath.Join(dir, tt.entry))
			require.Error(t, err)
			var lerr *LoadError
			assert.ErrorAs(t, err, &lerr)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
			assert.Empty(t, l.Modules(), "failed modules are not cached")
		})
	}
}

func TestLoader_TransformationError(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"bad.star": `load("cpp", "magic")

class A(Base):
    pass
`,
	})

	l, _ := newLoader(t, Config{})
	_, err := l.LoadFile(filepath.Join(dir, "bad.star"))
	require.Error(t, err)

	var terr *rewrite.TransformationError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, int32(3), terr.Line)
	assert.Equal(t, "A", terr.Class)
}

func TestLoader_SearchPath(t *testing.T) {
	libs := writeFiles(t, map[string]string{"greet.star": "def hello():\n    return \"hi\"\n"})
	dir := writeFiles(t, map[string]string{
		"main.star": "load(\"greet.star\", \"hello\")\nmsg = hello()\n",
	})

	l, _ := newLoader(t, Config{SearchPath: []string{libs}})
	m, err := l.LoadFile(filepath.Join(dir, "main.star"))
	require.NoError(t, err)
	assert.Equal(t, starlark.String("hi"), m.Globals["msg"])
}

func TestLoader_CachesAndFreezes(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"shared.star": "print(\"init shared\")\nitems = []\n",
		"a.star":      "load(\"shared.star\", \"items\")\nn = len(items)\n",
		"main.star": `load("a.star", "n")
load("shared.star", "items")

def mutate():
    items.append(1)
`,
	})

	l, out := newLoader(t, Config{})
	m, err := l.LoadFile(filepath.Join(dir, "main.star"))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out.String(), "init shared"))

	_, err = starlark.Call(l.rt.Thread(), m.Globals["mutate"], nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frozen")

	shared := filepath.Join(dir, "shared.star")
	assert.Equal(t, []string{shared, filepath.Join(dir, "a.star"), filepath.Join(dir, "main.star")}, l.Order())
	assert.Equal(t, 3, l.Graph().Edges())
	assert.Equal(t, []string{filepath.Join(dir, "a.star"), filepath.Join(dir, "main.star"), shared},
		l.Graph().Affected([]string{shared}))
}

func TestLoader_Predeclared(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"main.star": `load("cpp", "magic")

class Box:
    v: int = answer

def get():
    return Box().v
`,
		"plain.star": "x = answer + 1\n",
	})

	l, _ := newLoader(t, Config{Predeclared: starlark.StringDict{"answer": starlark.MakeInt(42)}})
	m, err := l.LoadFile(filepath.Join(dir, "main.star"))
	require.NoError(t, err)
	v, err := l.rt.Call(context.Background(), m.Globals["get"], nil, nil)
	require.NoError(t, err)
	assert.Equal(t, starlark.MakeInt(42), v)

	p, err := l.LoadFile(filepath.Join(dir, "plain.star"))
	require.NoError(t, err)
	assert.Equal(t, starlark.MakeInt(43), p.Globals["x"])
}

func TestLoader_InteractiveFeatureLoad(t *testing.T) {
	dir := writeFiles(t, map[string]string{
		"lib.star": `load("cpp", "magic")

class C:
    def C():
        print("construct C")
    def _C():
        print("destruct C")

def use():
    c = C()
`,
	})
	t.Chdir(dir)

	rt := starrt.NewRuntime(starrt.Config{Interactive: true})
	New(rt, Config{Options: rewrite.DefaultOptions()})
	s := starrt.NewSession(rt, nil, nil)

	err := s.Exec(`load("cpp", "magic")`)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInteractive)

	// File-backed modules are still rewritten.
	require.NoError(t, s.Exec(`load("lib.star", "use")`))
	require.NoError(t, s.Exec(`use()`))
}
