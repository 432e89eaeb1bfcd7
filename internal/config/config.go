// SPDX-FileCopyrightText: 2025 The Kepler Authors
// SPDX-License-Identifier: Apache-2.0

// Package config holds the ambient, in-process configuration shared by
// the audit core's components. File-based configuration loading and
// the command-line flag surface are the external collaborator's
// responsibility (see cmd/auditor); this package only validates and
// stringifies the small set of values the core cares about.
package config

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

// Log controls the ambient slog setup shared by every component.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete in-process configuration for an audit run.
type Config struct {
	Log Log `yaml:"log"`
}

// Default returns a Config with the teacher's defaults: info level,
// text format.
func Default() *Config {
	return &Config{
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

func (c *Config) sanitize() {
	c.Log.Level = strings.TrimSpace(c.Log.Level)
	c.Log.Format = strings.TrimSpace(c.Log.Format)
}

// Validate checks for configuration errors, returning every violation
// found rather than failing on the first one.
func (c *Config) Validate() error {
	c.sanitize()

	var errs []string
	if !validLogLevels[c.Log.Level] {
		errs = append(errs, fmt.Sprintf("invalid log level: %s", c.Log.Level))
	}
	if !validLogFormats[c.Log.Format] {
		errs = append(errs, fmt.Sprintf("invalid log format: %s", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, ", "))
	}
	return nil
}

var (
	validLogLevels = map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	validLogFormats = map[string]bool{
		"text": true,
		"json": true,
	}
)

// String renders the configuration as YAML, for startup diagnostics.
func (c *Config) String() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		// NOTE: should not happen for this small a struct; fall back
		// to a manual rendering rather than panic on a debug path.
		return fmt.Sprintf("log:\n  level: %s\n  format: %s\n", c.Log.Level, c.Log.Format)
	}
	return string(b)
}
