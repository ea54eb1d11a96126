package config

import (
	"fmt"
	"slices"
)

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if err := c.ProjectConfig.Validate(); err != nil {
		return err
	}
	if !slices.Contains([]string{"text", "json"}, c.LogFormat) {
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	if !slices.Contains([]string{"auto", "text", "json", "yaml"}, c.OutputFormat) {
		return fmt.Errorf("output must be one of auto, text, json, yaml, got %q", c.OutputFormat)
	}
	return nil
}
