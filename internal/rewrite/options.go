package rewrite

import "go.starlark.net/syntax"

// Names shared between the rewriter and the runtime that executes its output.
const (
	// FeatureModule is the module a source loads to request the rewrite.
	FeatureModule = "cpp"
	// FeatureSymbol is the conventional symbol loaded from FeatureModule.
	FeatureSymbol = "magic"
	// ThisParam is the receiver parameter inserted into every method.
	ThisParam = "this"
	// ClassBuiltin builds a class value from a rewritten factory.
	ClassBuiltin = "__class__"
	// TrackBuiltin wraps a top-level function in scope tracking.
	TrackBuiltin = "__track__"
	// DefaultDestructorPrefix marks a destructor: "_" + class name.
	DefaultDestructorPrefix = "_"
)

// Options configures a rewrite.
type Options struct {
	// DestructorPrefix is prepended to the class name to name its destructor.
	DestructorPrefix string
	// Dialect holds the Starlark dialect flags. GlobalReassign is always
	// enabled for rewritten modules.
	Dialect syntax.FileOptions
}

// DefaultOptions returns options with the default destructor prefix.
func DefaultOptions() Options {
	return Options{DestructorPrefix: DefaultDestructorPrefix}
}

func (o Options) prefix() string {
	if o.DestructorPrefix == "" {
		return DefaultDestructorPrefix
	}
	return o.DestructorPrefix
}

// FileOptions returns the dialect used to parse and compile rewritten modules.
func (o Options) FileOptions() *syntax.FileOptions {
	opts := o.Dialect
	opts.GlobalReassign = true
	return &opts
}
