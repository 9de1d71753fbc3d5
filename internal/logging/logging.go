// Package logging constructs the structured loggers threaded through the
// bundle adjustment core. No package keeps a process-wide logger; every
// constructor here returns a value the caller passes down explicitly.
package logging

import "go.uber.org/zap"

// New builds a production zap.Logger, or a development one with
// human-friendly console output when verbose is set.
func New(verbose bool) (*zap.Logger, error) {
	if verbose {
		cfg := zap.NewDevelopmentConfig()
		return cfg.Build()
	}
	cfg := zap.NewProductionConfig()
	return cfg.Build()
}

// Nop returns a logger that discards everything, for tests.
func Nop() *zap.Logger {
	return zap.NewNop()
}
