package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"apflow/internal/config"
)

func TestLoadDefaultsWhenFileAbsent(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantData := filepath.Join(tempHome, ".local", "share", "apflow", "data")
	if cfg.Paths.DataDir != wantData {
		t.Fatalf("unexpected data dir: got %q want %q", cfg.Paths.DataDir, wantData)
	}
	if cfg.Paths.APIBind != "127.0.0.1:7419" {
		t.Fatalf("unexpected api bind: %q", cfg.Paths.APIBind)
	}
	if cfg.Workflow.WorkerCount != config.Default().Workflow.WorkerCount {
		t.Fatalf("unexpected worker count: %d", cfg.Workflow.WorkerCount)
	}
	if cfg.POMatch.PriceTolerancePct != 5.0 {
		t.Fatalf("unexpected price tolerance: %v", cfg.POMatch.PriceTolerancePct)
	}
	if cfg.Coding.CompanyCostCenters["1000"] != "CC1000" {
		t.Fatalf("unexpected cost center map: %v", cfg.Coding.CompanyCostCenters)
	}
	if !cfg.Explain.Enabled {
		t.Fatal("expected explain enabled by default")
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "apflow.toml")

	type payload struct {
		Paths struct {
			DataDir string `toml:"data_dir"`
			APIBind string `toml:"api_bind"`
		} `toml:"paths"`
		Workflow struct {
			WorkerCount int `toml:"worker_count"`
		} `toml:"workflow"`
		Risk struct {
			AutoApproveLimit float64  `toml:"auto_approve_limit"`
			VendorBlacklist  []string `toml:"vendor_blacklist"`
		} `toml:"risk"`
	}
	custom := payload{}
	custom.Paths.DataDir = filepath.Join(tempDir, "data")
	custom.Paths.APIBind = "127.0.0.1:9000"
	custom.Workflow.WorkerCount = 6
	custom.Risk.AutoApproveLimit = 1000
	custom.Risk.VendorBlacklist = []string{"V666"}
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Paths.APIBind != "127.0.0.1:9000" {
		t.Fatalf("expected bind override, got %q", cfg.Paths.APIBind)
	}
	if cfg.Workflow.WorkerCount != 6 {
		t.Fatalf("expected 6 workers, got %d", cfg.Workflow.WorkerCount)
	}
	if len(cfg.Risk.VendorBlacklist) != 1 || cfg.Risk.VendorBlacklist[0] != "V666" {
		t.Fatalf("unexpected blacklist: %v", cfg.Risk.VendorBlacklist)
	}
	// Unset sections keep their defaults.
	if cfg.Validation.AmountTolerancePct != config.Default().Validation.AmountTolerancePct {
		t.Fatalf("unexpected amount tolerance: %v", cfg.Validation.AmountTolerancePct)
	}
}

func TestEnvVarsFillAPICredentials(t *testing.T) {
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)
	t.Setenv("APFLOW_API_TOKEN", "env-token")
	t.Setenv("APFLOW_LLM_API_KEY", "env-llm")

	cfg, _, _, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Paths.APIToken != "env-token" {
		t.Fatalf("expected API token from env, got %q", cfg.Paths.APIToken)
	}
	if cfg.LLM.APIKey != "env-llm" {
		t.Fatalf("expected LLM key from env, got %q", cfg.LLM.APIKey)
	}
}

func TestWriteSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	written, err := config.WriteSample(path)
	if err != nil {
		t.Fatalf("WriteSample failed: %v", err)
	}
	if written != path {
		t.Fatalf("unexpected written path %q", written)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[workflow]") {
		t.Fatalf("sample config missing workflow section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}

	if _, err := config.WriteSample(path); err == nil {
		t.Fatal("expected error when sample already exists")
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Logging.Format = "xml"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log format")
	}

	cfg = config.Default()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log level")
	}

	cfg = config.Default()
	cfg.Validation.AmountTolerancePct = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative tolerance")
	}

	cfg = config.Default()
	cfg.Coding.MinConfidence = 1.5
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for confidence above 1")
	}

	cfg = config.Default()
	cfg.Risk.AutoApproveLimit = -100
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative approval limit")
	}
}
