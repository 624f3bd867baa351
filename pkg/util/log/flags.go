// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package log

import "github.com/spf13/pflag"

// Config holds the logging options settable from the command line.
type Config struct {
	Verbosity  int32
	Redactable bool
}

// AddFlags registers the logging flags on fs. Apply must be called after the
// flags are parsed.
func (c *Config) AddFlags(fs *pflag.FlagSet) {
	fs.Int32Var(&c.Verbosity, "v", 0, "log level for V logs")
	fs.BoolVar(&c.Redactable, "redactable-logs", false,
		"keep redaction markers around potentially sensitive values in log entries")
}

// Apply installs the configuration in the process-wide logger.
func (c *Config) Apply() {
	SetVerbosity(c.Verbosity)
	SetRedactable(c.Redactable)
}
