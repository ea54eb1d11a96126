// Package config provides the project configuration shared by the engine
// and the CLI. It is decoupled from CLI concerns such as flags and output.
package config

import (
	"go.starlark.net/syntax"

	"github.com/leapstack-labs/scopestar/internal/rewrite"
)

// DialectConfig toggles optional Starlark language features.
type DialectConfig struct {
	Set             bool `koanf:"set"`
	While           bool `koanf:"while"`
	TopLevelControl bool `koanf:"top_level_control"`
	Recursion       bool `koanf:"recursion"`
}

// FileOptions converts the dialect to parser options.
func (d DialectConfig) FileOptions() syntax.FileOptions {
	return syntax.FileOptions{
		Set:             d.Set,
		While:           d.While,
		TopLevelControl: d.TopLevelControl,
		Recursion:       d.Recursion,
	}
}

// ProjectConfig holds the settings that control how modules are rewritten
// and run.
type ProjectConfig struct {
	// Entry names the function called after the entry module is loaded.
	Entry string `koanf:"entry"`
	// DestructorPrefix is prepended to a class name to name its destructor.
	DestructorPrefix string `koanf:"destructor_prefix"`
	// SearchPath lists directories consulted by load() after the loading
	// file's own directory.
	SearchPath []string      `koanf:"search_path"`
	MaxSteps   uint64        `koanf:"max_steps"`
	Jobs       int           `koanf:"jobs"`
	Dialect    DialectConfig `koanf:"dialect"`
}

// RewriteOptions returns the rewriter options described by c.
func (c *ProjectConfig) RewriteOptions() rewrite.Options {
	return rewrite.Options{
		DestructorPrefix: c.DestructorPrefix,
		Dialect:          c.Dialect.FileOptions(),
	}
}
