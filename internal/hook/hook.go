// Package hook holds the process-wide import hook that substitutes rewritten
// modules for raw source at load time.
//
// The hook is installed at most once per process. Modules compiled before
// installation are never revisited; only later loads are transformed. The
// hook is only the switch: every load supplies the transformer of its own
// loader, so loaders with different rewrite options coexist.
package hook

import (
	"sync"

	"github.com/leapstack-labs/scopestar/internal/rewrite"
)

var (
	mu        sync.RWMutex
	installed bool
)

// Install activates the hook. It reports true only for the call that
// actually installed it; later calls are no-ops.
func Install() bool {
	mu.Lock()
	defer mu.Unlock()
	if installed {
		return false
	}
	installed = true
	return true
}

// Installed reports whether the hook is active.
func Installed() bool {
	mu.RLock()
	defer mu.RUnlock()
	return installed
}

// Apply transforms src with t when the hook is installed and the module
// requests the feature. A nil unit with a nil error means "load the source
// as is".
func Apply(t rewrite.Transformer, filename string, src []byte) (*rewrite.Unit, error) {
	if !Installed() || !rewrite.Requested(src) {
		return nil, nil
	}
	return t(filename, src)
}

// reset clears the hook. Used by tests.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	installed = false
}
