package scope

import (
	"errors"
	"fmt"
	"testing"

	"github.com/leapstack-labs/scopestar/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFinalizer struct {
	name string
	log  *[]string
	err  error
}

func (f *fakeFinalizer) Finalize() error {
	*f.log = append(*f.log, "destroy "+f.name)
	return f.err
}

func (f *fakeFinalizer) Label() string { return f.name }

func TestTracker_ReverseOrder(t *testing.T) {
	for _, n := range []int{0, 1, 2, 5, 17} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			var log []string
			tr := NewTracker(testutil.NewTestLogger(t))
			rec := tr.Enter("fn")

			for i := 0; i < n; i++ {
				_, err := tr.Register(&fakeFinalizer{name: fmt.Sprint(i), log: &log})
				require.NoError(t, err)
			}
			require.NoError(t, tr.Exit(rec))

			want := make([]string, 0, n)
			for i := n - 1; i >= 0; i-- {
				want = append(want, "destroy "+fmt.Sprint(i))
			}
			assert.Equal(t, want, append([]string{}, log...))
			assert.Equal(t, StateClosed, rec.State())
			assert.Equal(t, 0, tr.Depth())
		})
	}
}

func TestTracker_NestedScopesOwnTheirInstances(t *testing.T) {
	var log []string
	tr := NewTracker(nil)

	outer := tr.Enter("outer")
	_, err := tr.Register(&fakeFinalizer{name: "a", log: &log})
	require.NoError(t, err)

	inner := tr.Enter("inner")
	_, err = tr.Register(&fakeFinalizer{name: "b", log: &log})
	require.NoError(t, err)
	require.NoError(t, tr.Exit(inner))

	// b was created by the inner activation and is gone before outer ends.
	assert.Equal(t, []string{"destroy b"}, log)

	_, err = tr.Register(&fakeFinalizer{name: "c", log: &log})
	require.NoError(t, err)
	require.NoError(t, tr.Exit(outer))

	assert.Equal(t, []string{"destroy b", "destroy c", "destroy a"}, log)
}

func TestTracker_FirstErrorWins(t *testing.T) {
	var log []string
	tr := NewTracker(testutil.NewTestLogger(t))
	rec := tr.Enter("fn")

	errA := errors.New("a failed")
	errC := errors.New("c failed")
	for _, f := range []*fakeFinalizer{
		{name: "a", log: &log, err: errA},
		{name: "b", log: &log},
		{name: "c", log: &log, err: errC},
	} {
		_, err := tr.Register(f)
		require.NoError(t, err)
	}

	err := tr.Exit(rec)
	require.Error(t, err)

	// Every destructor ran despite the failures.
	assert.Equal(t, []string{"destroy c", "destroy b", "destroy a"}, log)

	var lerr *LifecycleError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "c", lerr.Subject)
	assert.ErrorIs(t, err, errC)
	require.Len(t, lerr.Suppressed, 1)
	assert.Equal(t, "a", lerr.Suppressed[0].Subject)
	assert.Contains(t, err.Error(), "1 more destructor error(s) suppressed")
}

func TestTracker_StateMachine(t *testing.T) {
	var log []string
	tr := NewTracker(nil)
	rec := tr.Enter("fn")
	assert.Equal(t, StateOpen, rec.State())

	sweeper := &registeringFinalizer{tracker: tr, log: &log}
	_, err := tr.Register(sweeper)
	require.NoError(t, err)

	require.NoError(t, tr.Exit(rec))
	assert.ErrorIs(t, sweeper.registerErr, ErrScopeClosed, "registration during sweep must be rejected")
	assert.Equal(t, StateClosed, rec.State())

	// Exiting a closed record is a no-op.
	assert.NoError(t, tr.Exit(rec))
}

// registeringFinalizer tries to register into the record being swept.
type registeringFinalizer struct {
	tracker     *Tracker
	log         *[]string
	registerErr error
}

func (f *registeringFinalizer) Finalize() error {
	_, f.registerErr = f.tracker.Register(&fakeFinalizer{name: "late", log: f.log})
	return nil
}

func (f *registeringFinalizer) Label() string { return "registering" }

func TestTracker_ExitOutOfOrder(t *testing.T) {
	tr := NewTracker(nil)
	outer := tr.Enter("outer")
	tr.Enter("inner")

	err := tr.Exit(outer)
	assert.ErrorIs(t, err, ErrScopeOrder)
	assert.Equal(t, 2, tr.Depth())
}

func TestTracker_RegisterWithoutScope(t *testing.T) {
	var log []string
	tr := NewTracker(nil)
	_, err := tr.Register(&fakeFinalizer{name: "x", log: &log})
	assert.ErrorIs(t, err, ErrNoScope)
}

func TestTracker_Unwind(t *testing.T) {
	var log []string
	tr := NewTracker(nil)
	tr.Enter("root")
	_, _ = tr.Register(&fakeFinalizer{name: "a", log: &log})
	tr.Enter("child")
	_, _ = tr.Register(&fakeFinalizer{name: "b", log: &log})

	require.NoError(t, tr.Unwind())
	assert.Equal(t, []string{"destroy b", "destroy a"}, log)
	assert.Equal(t, 0, tr.Depth())
}

func TestFirst(t *testing.T) {
	body := errors.New("body")
	sweep := errors.New("sweep")

	assert.Equal(t, body, First(body, sweep))
	assert.Equal(t, sweep, First(nil, sweep))
	assert.NoError(t, First(nil, nil))
}

func TestRecord_Labels(t *testing.T) {
	var log []string
	tr := NewTracker(nil)
	rec := tr.Enter("fn")
	_, _ = tr.Register(&fakeFinalizer{name: "A#1", log: &log})
	_, _ = tr.Register(&fakeFinalizer{name: "B#2", log: &log})

	assert.Equal(t, []string{"A#1", "B#2"}, rec.Labels())
	assert.Equal(t, 2, rec.Len())
	assert.Equal(t, 0, rec.Depth)
}
