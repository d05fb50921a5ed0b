// Package testsupport provides shared fixtures for package tests.
package testsupport

import (
	"path/filepath"
	"testing"

	"apflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Explain.Enabled = false

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithExplainEnabled switches the explain stage on for tests that provide a
// stub LLM.
func WithExplainEnabled() ConfigOption {
	return func(cfg *config.Config) {
		cfg.Explain.Enabled = true
	}
}

// WithAutoApproveLimit overrides the risk auto-approve limit.
func WithAutoApproveLimit(limit float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Risk.AutoApproveLimit = limit
	}
}
