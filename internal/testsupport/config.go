// Package testsupport provides shared fixtures for tests: temp-dir
// seeded configurations and small media and annotation files.
package testsupport

import (
	"path/filepath"
	"testing"

	"palign/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per
// test. The basic engine is the default so tests run without an
// acoustic model on disk.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.WorkDir = filepath.Join(base, "work")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Align.Aligner = "basic"
	cfg.Align.Workers = 1
	cfg.Model.SnapToleranceMs = 5

	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithAligner overrides the engine on the test config.
func WithAligner(name string) ConfigOption {
	return func(c *config.Config) {
		c.Align.Aligner = name
	}
}

// WithPolicy overrides the unknown-word policy on the test config.
func WithPolicy(policy string) ConfigOption {
	return func(c *config.Config) {
		c.Align.UnknownWordPolicy = policy
	}
}
