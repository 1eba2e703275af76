package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultServerConfig_Valid(t *testing.T) {
	cfg := DefaultServerConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	if cfg.AnonymousKeep != 50 {
		t.Errorf("AnonymousKeep = %d, want 50", cfg.AnonymousKeep)
	}
	if cfg.PollStart != 500*time.Millisecond || cfg.PollStep != 250*time.Millisecond || cfg.PollSteps != 10 {
		t.Errorf("poll schedule = %v/%v/%d, want 500ms/250ms/10", cfg.PollStart, cfg.PollStep, cfg.PollSteps)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.AnonymousKeep = 0
	cfg.PollSteps = 0
	cfg.Executors = []ExecutorConfig{{Name: "x"}}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() = nil, want error")
	}
	for _, want := range []string{"anonymous_keep", "poll_", "executors[0]"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autograde.yaml")
	content := `
addr: ":9090"
merge_window: 30s
anonymous_keep: 5
executors:
  - name: local
    base_url: http://localhost:5111
    max_load: 2
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := DefaultServerConfig()
	if err := LoadFile(path, &cfg); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.Addr != ":9090" {
		t.Errorf("Addr = %q, want :9090", cfg.Addr)
	}
	if cfg.MergeWindow != 30*time.Second {
		t.Errorf("MergeWindow = %v, want 30s", cfg.MergeWindow)
	}
	if cfg.AnonymousKeep != 5 {
		t.Errorf("AnonymousKeep = %d, want 5", cfg.AnonymousKeep)
	}
	if len(cfg.Executors) != 1 || cfg.Executors[0].MaxLoad != 2 {
		t.Errorf("Executors = %+v, want one with max_load 2", cfg.Executors)
	}
	// Untouched keys keep their defaults.
	if cfg.PollSteps != 10 {
		t.Errorf("PollSteps = %d, want default 10", cfg.PollSteps)
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"AUTOGRADE_ADDR":           ":7000",
		"AUTOGRADE_MAX_CONCURRENT": "8",
		"AUTOGRADE_MERGE_WINDOW":   "1m",
		"AUTOGRADE_REDIS_ADDR":     "localhost:6379",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := DefaultServerConfig()
	if err := ApplyEnv(&cfg, lookup); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.Addr != ":7000" {
		t.Errorf("Addr = %q, want :7000", cfg.Addr)
	}
	if cfg.MaxConcurrent != 8 {
		t.Errorf("MaxConcurrent = %d, want 8", cfg.MaxConcurrent)
	}
	if cfg.MergeWindow != time.Minute {
		t.Errorf("MergeWindow = %v, want 1m", cfg.MergeWindow)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
}

func TestApplyEnv_BadValue(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "AUTOGRADE_ANONYMOUS_KEEP" {
			return "lots", true
		}
		return "", false
	}
	cfg := DefaultServerConfig()
	if err := ApplyEnv(&cfg, lookup); err == nil {
		t.Fatal("ApplyEnv with bad int = nil, want error")
	}
}

func TestParse_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autograde.yaml")
	if err := os.WriteFile(path, []byte("addr: \":9090\"\nanonymous_keep: 7\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	envPath := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envPath, []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Parse("server", []string{"-config", path, "-env-file", envPath, "-addr", ":1234", "-debug"})
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Addr != ":1234" {
		t.Errorf("Addr = %q, want flag value :1234", cfg.Addr)
	}
	if cfg.AnonymousKeep != 7 {
		t.Errorf("AnonymousKeep = %d, want file value 7", cfg.AnonymousKeep)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}
