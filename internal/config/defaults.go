package config

import (
	"fmt"
	"unicode"

	"github.com/leapstack-labs/scopestar/internal/rewrite"
)

// Default configuration values.
const (
	DefaultEntry            = "main"
	DefaultDestructorPrefix = rewrite.DefaultDestructorPrefix
	DefaultJobs             = 4
)

// Defaults returns the default values keyed like the config file.
func Defaults() map[string]any {
	return map[string]any{
		"entry":             DefaultEntry,
		"destructor_prefix": DefaultDestructorPrefix,
		"jobs":              DefaultJobs,
		"max_steps":         0,
	}
}

// ApplyDefaults fills unset values of a ProjectConfig.
func ApplyDefaults(c *ProjectConfig) {
	if c == nil {
		return
	}
	if c.Entry == "" {
		c.Entry = DefaultEntry
	}
	if c.DestructorPrefix == "" {
		c.DestructorPrefix = DefaultDestructorPrefix
	}
	if c.Jobs <= 0 {
		c.Jobs = DefaultJobs
	}
}

// Validate checks the project settings.
func (c *ProjectConfig) Validate() error {
	if !isIdentifier(c.Entry) {
		return fmt.Errorf("entry %q is not a valid identifier", c.Entry)
	}
	// The prefix is glued to a class name, so prefix+"A" must be an identifier.
	if c.DestructorPrefix == "" || !isIdentifier(c.DestructorPrefix+"A") {
		return fmt.Errorf("destructor_prefix %q cannot start an identifier", c.DestructorPrefix)
	}
	if c.Jobs < 1 {
		return fmt.Errorf("jobs must be at least 1, got %d", c.Jobs)
	}
	return nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return false
	}
	return true
}
