package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	LogDir   string `toml:"log_dir"`
	APIBind  string `toml:"api_bind"`
	APIToken string `toml:"api_token"`
}

// Logging selects log verbosity and output format.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Workflow contains worker pool sizing and polling/backoff intervals.
type Workflow struct {
	WorkerCount          int `toml:"worker_count"`
	QueuePollMS          int `toml:"queue_poll_ms"`
	ClaimRetryMS         int `toml:"claim_retry_ms"`
	ErrorRetrySeconds    int `toml:"error_retry_seconds"`
	StaleTaskTimeoutSecs int `toml:"stale_task_timeout_seconds"`
	ReapIntervalSeconds  int `toml:"reap_interval_seconds"`
	ShutdownGraceSeconds int `toml:"shutdown_grace_seconds"`
}

// Validation contains tolerances for the invoice validation stage.
type Validation struct {
	AmountTolerancePct float64 `toml:"amount_tolerance_pct"`
}

// POMatch contains tolerances for purchase-order line matching.
type POMatch struct {
	PriceTolerancePct float64 `toml:"price_tolerance_pct"`
	QtyTolerancePct   float64 `toml:"qty_tolerance_pct"`
}

// Coding contains defaults for the accounting code assignment stage.
type Coding struct {
	MinConfidence      float64           `toml:"min_confidence"`
	CompanyCostCenters map[string]string `toml:"company_cost_centers"`
}

// Risk contains thresholds for the risk and approval stage. Masterdata
// approval rules override these when present.
type Risk struct {
	AutoApproveLimit float64  `toml:"auto_approve_limit"`
	VendorBlacklist  []string `toml:"vendor_blacklist"`
}

// LLM contains connection settings for the explanation generator.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Explain contains settings for the explain collaborator.
type Explain struct {
	Enabled          bool `toml:"enabled"`
	MaxRetrievalHits int  `toml:"max_retrieval_hits"`
}

// Config is the root configuration shared by the daemon and CLI.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Logging    Logging    `toml:"logging"`
	Workflow   Workflow   `toml:"workflow"`
	Validation Validation `toml:"validation"`
	POMatch    POMatch    `toml:"po_match"`
	Coding     Coding     `toml:"coding"`
	Risk       Risk       `toml:"risk"`
	LLM        LLM        `toml:"llm"`
	Explain    Explain    `toml:"explain"`
}

// DefaultConfigPath returns the canonical location of the configuration file.
func DefaultConfigPath() string {
	return "~/.config/apflow/config.toml"
}

// Load reads the configuration at path (or the default location when path is
// empty), merges it over defaults, normalizes, and validates. It returns the
// config, the resolved path, and whether a file was found.
func Load(path string) (*Config, string, bool, error) {
	resolved := strings.TrimSpace(path)
	if resolved == "" {
		resolved = DefaultConfigPath()
	}
	expanded, err := expandPath(resolved)
	if err != nil {
		return nil, "", false, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Default()
	found := false
	data, err := os.ReadFile(expanded)
	switch {
	case err == nil:
		found = true
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, expanded, true, fmt.Errorf("parse %s: %w", expanded, err)
		}
	case errors.Is(err, fs.ErrNotExist):
		// Defaults only.
	default:
		return nil, expanded, false, fmt.Errorf("read %s: %w", expanded, err)
	}

	if err := cfg.normalize(); err != nil {
		return nil, expanded, found, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, expanded, found, err
	}
	return &cfg, expanded, found, nil
}

// EnsureDirectories creates the data and log directories when missing.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the SQLite database location inside the data directory.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.DataDir, "apflow.db")
}

// LockFilePath returns the daemon single-instance lock location.
func (c *Config) LockFilePath() string {
	return filepath.Join(c.Paths.DataDir, "apflowd.lock")
}

// LogFilePath returns the daemon log file location.
func (c *Config) LogFilePath() string {
	return filepath.Join(c.Paths.LogDir, "apflowd.log")
}

// WriteSample writes the embedded sample configuration to path, refusing to
// overwrite an existing file.
func WriteSample(path string) (string, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(expanded); err == nil {
		return expanded, fmt.Errorf("config file already exists at %s", expanded)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return expanded, fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return expanded, fmt.Errorf("write sample config: %w", err)
	}
	return expanded, nil
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" || strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Clean(trimmed), nil
}
