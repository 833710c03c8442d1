package config

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/knadh/koanf/v2"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"SOLVERE_ENV", "SOLVERE_LOG_LEVEL", "SOLVERE_CACHE_SIZE",
		"SOLVERE_MAX_DEPTH", "SOLVERE_MAX_CNAME_CHAIN",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.CacheSize != 40960 {
		t.Errorf("expected CacheSize=40960, got %d", cfg.CacheSize)
	}
	if cfg.MaxDepth != 10 {
		t.Errorf("expected MaxDepth=10, got %d", cfg.MaxDepth)
	}
	if cfg.MaxCNAMEChain != 16 {
		t.Errorf("expected MaxCNAMEChain=16, got %d", cfg.MaxCNAMEChain)
	}
	if cfg.QueryDeadline != 10*time.Second {
		t.Errorf("expected QueryDeadline=10s, got %s", cfg.QueryDeadline)
	}
	if !cfg.StrictCNAMETrust {
		t.Errorf("expected StrictCNAMETrust=true by default")
	}
}

func TestLoad_ValidOverrides(t *testing.T) {
	t.Setenv("SOLVERE_CACHE_SIZE", "2048")
	t.Setenv("SOLVERE_MAX_DEPTH", "5")
	t.Setenv("SOLVERE_ENV", "dev")
	t.Setenv("SOLVERE_LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.CacheSize != 2048 {
		t.Errorf("expected CacheSize=2048, got %d", cfg.CacheSize)
	}
	if cfg.MaxDepth != 5 {
		t.Errorf("expected MaxDepth=5, got %d", cfg.MaxDepth)
	}
	if cfg.Env != "dev" {
		t.Errorf("expected Env=dev, got %q", cfg.Env)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel=debug, got %q", cfg.LogLevel)
	}
}

func TestLoad_WhenKoanfEnvLoadFails(t *testing.T) {
	orig := envLoader
	envLoader = func(k *koanf.Koanf) error {
		return errors.New("mocked error")
	}
	defer func() { envLoader = orig }()

	_, err := Load()
	if err == nil || !strings.Contains(err.Error(), "mocked error") {
		t.Fatalf("expected mocked error, got %v", err)
	}
}

func TestLoad_InvalidEnv(t *testing.T) {
	t.Setenv("SOLVERE_ENV", "staging")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid SOLVERE_ENV, got nil")
	}
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("SOLVERE_LOG_LEVEL", "trace")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid SOLVERE_LOG_LEVEL, got nil")
	}
}

func TestLoad_InvalidCacheSize(t *testing.T) {
	t.Setenv("SOLVERE_CACHE_SIZE", "-1")
	_, err := Load()
	if err == nil {
		t.Fatal("expected error for invalid SOLVERE_CACHE_SIZE, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}

	bad := Default()
	bad.MaxCNAMEChain = 0
	if err := bad.Validate(); err == nil {
		t.Fatal("expected validation error for zero MaxCNAMEChain")
	}
}
