package engine

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/leapstack-labs/scopestar/internal/dag"
	"github.com/leapstack-labs/scopestar/internal/loader"
	"github.com/leapstack-labs/scopestar/internal/rewrite"
	"github.com/leapstack-labs/scopestar/internal/scope"
	starrt "github.com/leapstack-labs/scopestar/internal/starlark"
	"github.com/leapstack-labs/scopestar/internal/state"
	"github.com/leapstack-labs/scopestar/internal/testutil"
	"github.com/leapstack-labs/scopestar/internal/visibility"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestEngine(t *testing.T, cfg Config) (*Engine, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	cfg.Stdout = out
	cfg.Logger = testutil.NewTestLogger(t)
	return New(cfg), out
}

func testdata(name string) string {
	return filepath.Join("testdata", name)
}

func TestEngine_Run(t *testing.T) {
	tests := []struct {
		name        string
		file        string
		wantCode    int
		wantOut     string
		wantErr     string
		wantValue   any
		wantClasses []string
	}{
		{
			name:        "reverse destruction",
			file:        "lifecycle.star",
			wantOut:     "construct A\nconstruct B\nbody\ndestruct B\ndestruct A\n",
			wantClasses: []string{"A", "B"},
		},
		{
			name:      "exit code from main",
			file:      "exit_code.star",
			wantCode:  3,
			wantValue: int64(3),
			wantOut:   "closing account of alice\n",
		},
		{
			name:     "access violation",
			file:     "violation.star",
			wantCode: 1,
			wantErr:  `cannot read private member "funds"`,
			wantOut:  "closing account of bob\n",
		},
		{
			name:      "plain module with predeclared libraries",
			file:      "plain.star",
			wantOut:   "{\"x\":1,\"y\":2}\n",
			wantValue: int64(0),
		},
		{
			name:     "rewrite error",
			file:     "rewrite_error.star",
			wantCode: 1,
			wantErr:  "multiple constructors",
		},
		{
			name:     "missing file",
			file:     "absent.star",
			wantCode: 1,
			wantErr:  "failed to read file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng, out := newTestEngine(t, Config{})

			res, err := eng.Run(context.Background(), testdata(tt.file))
			require.NotNil(t, res)
			assert.Equal(t, tt.wantCode, res.ExitCode)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantOut, out.String())
			if tt.wantValue != nil {
				assert.Equal(t, tt.wantValue, res.Value)
			}
			if tt.wantClasses != nil {
				var names []string
				for _, c := range res.Classes {
					names = append(names, c.Name)
				}
				assert.Equal(t, tt.wantClasses, names)
			}
		})
	}
}

func TestEngine_RunErrorsAreTyped(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})

	_, err := eng.Run(context.Background(), testdata("violation.star"))
	var violation *visibility.AccessViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "funds", violation.Member)
	assert.True(t, strings.HasSuffix(violation.Class, "account.star:Account"))

	_, err = eng.Run(context.Background(), testdata("rewrite_error.star"))
	var terr *rewrite.TransformationError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "Broken", terr.Class)

	res, err := eng.Run(context.Background(), testdata("teardown_error.star"))
	var lerr *scope.LifecycleError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "main", lerr.Scope)
	assert.Contains(t, lerr.Error(), "cannot release local")
	assert.Equal(t, 1, res.ExitCode)
}

func TestEngine_EntryOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "entry.star")
	require.NoError(t, os.WriteFile(path, []byte("def start():\n    return 7\n\nmain = 1\n"), 0o644))

	eng, _ := newTestEngine(t, Config{Entry: "start"})
	res, err := eng.Run(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, 7, res.ExitCode)

	eng, _ = newTestEngine(t, Config{})
	_, err = eng.Run(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a function")
}

func TestEngine_RunAll(t *testing.T) {
	defer goleak.VerifyNone(t)

	eng, out := newTestEngine(t, Config{Jobs: 2})
	paths := []string{
		testdata("lifecycle.star"),
		testdata("exit_code.star"),
		testdata("violation.star"),
		testdata("lifecycle.star"),
	}

	results := eng.RunAll(context.Background(), paths)
	require.Len(t, results, 4)
	for i, r := range results {
		assert.Equal(t, paths[i], r.Path)
	}
	assert.NoError(t, results[0].Err)
	assert.Equal(t, 3, results[1].ExitCode)
	assert.Error(t, results[2].Err)
	assert.NoError(t, results[3].Err)

	assert.Equal(t, 3, ExitCode(results))
	assert.ErrorContains(t, Errors(results), "funds")
	assert.Equal(t, 2, strings.Count(out.String(), "destruct A"))
}

func TestEngine_Cancelled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spin.star")
	require.NoError(t, os.WriteFile(path, []byte(`load("cpp", "magic")

def main():
    for i in range(1000000000):
        pass
`), 0o644))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	eng, _ := newTestEngine(t, Config{})
	res, err := eng.Run(ctx, path)
	require.Error(t, err)
	assert.Equal(t, 1, res.ExitCode)
}

func TestEngine_MaxSteps(t *testing.T) {
	eng, _ := newTestEngine(t, Config{MaxSteps: 10000})
	dir := t.TempDir()
	path := filepath.Join(dir, "spin.star")
	require.NoError(t, os.WriteFile(path, []byte("def main():\n    for i in range(1000000):\n        pass\n"), 0o644))

	_, err := eng.Run(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too many steps")
}

func TestEngine_Journal(t *testing.T) {
	store := state.NewSQLiteStore(testutil.NewTestLogger(t))
	require.NoError(t, store.Open(":memory:"))
	t.Cleanup(func() { _ = store.Close() })

	var observed []starrt.EventKind
	var mu sync.Mutex
	eng, _ := newTestEngine(t, Config{
		Store: store,
		Observer: starrt.ObserverFunc(func(e starrt.Event) {
			mu.Lock()
			defer mu.Unlock()
			observed = append(observed, e.Kind)
		}),
	})

	res, err := eng.Run(context.Background(), testdata("lifecycle.star"))
	require.NoError(t, err)
	require.NotEmpty(t, res.RunID)

	run, err := store.GetRun(res.RunID)
	require.NoError(t, err)
	assert.Equal(t, state.RunStatusCompleted, run.Status)

	events, err := store.ListEvents(res.RunID)
	require.NoError(t, err)
	assert.Len(t, events, res.Events)
	assert.Len(t, observed, res.Events)

	var lifecycle []string
	for _, e := range events {
		if e.Kind == "construct" || e.Kind == "destruct" {
			lifecycle = append(lifecycle, e.Kind+" "+e.Instance)
		}
	}
	assert.Equal(t, []string{"construct A#1", "construct B#2", "destruct B#2", "destruct A#1"}, lifecycle)

	failed, err := eng.Run(context.Background(), testdata("violation.star"))
	require.Error(t, err)
	run, err = store.GetRun(failed.RunID)
	require.NoError(t, err)
	assert.Equal(t, state.RunStatusFailed, run.Status)
	assert.Equal(t, 1, run.ExitCode)
	assert.Contains(t, run.Error, "funds")
}

func TestEngine_Rewrite(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})

	unit, err := eng.Rewrite(testdata("lib/account.star"))
	require.NoError(t, err)
	require.Len(t, unit.Classes, 1)
	assert.Equal(t, "A bank account that reports when it is closed.", unit.Classes[0].Doc)

	_, err = eng.Rewrite(testdata("absent.star"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEngine_Modules(t *testing.T) {
	eng, _ := newTestEngine(t, Config{})

	res, err := eng.Run(context.Background(), testdata("exit_code.star"))
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	entry, err := filepath.Abs(testdata("exit_code.star"))
	require.NoError(t, err)
	account, err := filepath.Abs(testdata("lib/account.star"))
	require.NoError(t, err)
	assert.Equal(t, []string{account, entry}, res.Modules)
}

func TestAffectedEntries(t *testing.T) {
	dir := t.TempDir()
	abs := func(name string) string { return filepath.Join(dir, name) }

	graph := dag.New[*loader.Module]()
	for _, name := range []string{"a.star", "b.star", "lib.star"} {
		graph.Add(abs(name), nil)
	}
	require.NoError(t, graph.Link(abs("lib.star"), abs("a.star")))

	paths := []string{abs("a.star"), abs("b.star")}
	tests := []struct {
		name    string
		changed []string
		want    []string
	}{
		{name: "dependency", changed: []string{abs("lib.star")}, want: []string{abs("a.star")}},
		{name: "entry", changed: []string{abs("b.star")}, want: []string{abs("b.star")}},
		{name: "unknown file", changed: []string{abs("new.star")}, want: paths},
		{name: "nothing", changed: nil, want: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed := make(map[string]bool)
			for _, c := range tt.changed {
				changed[c] = true
			}
			assert.Equal(t, tt.want, affectedEntries(graph, paths, changed))
		})
	}
}

func TestEngine_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "watched.star")
	require.NoError(t, os.WriteFile(path, []byte("def main():\n    return 1\n"), 0o644))

	eng, _ := newTestEngine(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rounds := make(chan int, 4)
	done := make(chan error, 1)
	go func() {
		done <- eng.Watch(ctx, []string{path}, func(results []*Result) {
			rounds <- results[0].ExitCode
		})
	}()

	select {
	case code := <-rounds:
		assert.Equal(t, 1, code)
	case <-time.After(5 * time.Second):
		t.Fatal("no initial run")
	}

	require.NoError(t, os.WriteFile(path, []byte("def main():\n    return 2\n"), 0o644))
	select {
	case code := <-rounds:
		assert.Equal(t, 2, code)
	case <-time.After(5 * time.Second):
		t.Fatal("no rerun after change")
	}

	cancel()
	require.NoError(t, <-done)
}
