package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_ExpandsEnv(t *testing.T) {
	t.Setenv("ADVISOR_TEST_KEY", "sk-test")

	cfg, err := Parse([]byte(`
version: "1"
completer:
  api_key: ${ADVISOR_TEST_KEY}
  model: ${ADVISOR_TEST_MODEL:-gpt-4o-mini}
dedup:
  threshold: 0.85
  index_ttl: 2h
context:
  cache_ttl: 10m
rate_limit:
  enterprise:
    per_day: -1
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Completer.APIKey != "sk-test" {
		t.Errorf("api_key = %q, want sk-test", cfg.Completer.APIKey)
	}
	if cfg.Completer.Model != "gpt-4o-mini" {
		t.Errorf("model = %q, want default gpt-4o-mini", cfg.Completer.Model)
	}
	if cfg.Dedup.Threshold != 0.85 {
		t.Errorf("dedup.threshold = %v, want 0.85", cfg.Dedup.Threshold)
	}
	if cfg.Dedup.IndexTTL != 2*time.Hour {
		t.Errorf("dedup.index_ttl = %v, want 2h", cfg.Dedup.IndexTTL)
	}
	if cfg.Context.CacheTTL != 10*time.Minute {
		t.Errorf("context.cache_ttl = %v, want 10m", cfg.Context.CacheTTL)
	}
	if cfg.RateLimit.Enterprise.PerDay != -1 {
		t.Errorf("enterprise per_day = %d, want -1", cfg.RateLimit.Enterprise.PerDay)
	}
	if cfg.Storage.Driver != DriverMemory || cfg.Log.Level != "info" {
		t.Errorf("top-level defaults not applied: %+v %+v", cfg.Storage, cfg.Log)
	}
}

func TestParse_UnresolvedVariable(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("completer:\n  api_key: ${ADVISOR_SURELY_UNSET_VAR}\n"))
	if err == nil {
		t.Fatal("expected error for unresolved variable")
	}
	if !strings.Contains(err.Error(), "ADVISOR_SURELY_UNSET_VAR") {
		t.Errorf("error %q does not name the variable", err)
	}
}

func TestParse_UnknownField(t *testing.T) {
	t.Parallel()

	_, err := Parse([]byte("version: \"1\"\ndedup:\n  treshold: 0.5\n"))
	if err == nil {
		t.Fatal("expected error for misspelled key")
	}
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if cfg.Version != CurrentVersion {
		t.Errorf("version = %q, want %q", cfg.Version, CurrentVersion)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("empty config should validate: %v", err)
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "advisor.yaml")
	if err := os.WriteFile(path, []byte("version: \"1\"\nstorage:\n  driver: sqlite\n  path: ${ADVISOR_DB:-advisor.db}\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != "advisor.db" {
		t.Errorf("storage.path = %q, want advisor.db", cfg.Storage.Path)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestExpandEnv_EscapedDefault(t *testing.T) {
	t.Parallel()

	out, err := expandEnv([]byte(`${ADVISOR_SURELY_UNSET_VAR:-a\}b}`))
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `a\}b` {
		t.Errorf("got %q", out)
	}
}
