package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.jsonc")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	content := `{
	// JSONC comments are allowed
	"gateway": {
		"host": "0.0.0.0",
		"port": 9999,
	},
	"models": {
		"default": "claude",
		"providers": {
			"claude": {
				"driver": "anthropic",
				"model": "claude-sonnet-4-20250514",
				"auth": { "api_key": "${{ .Env.ANTHROPIC_API_KEY }}" },
				"max_tokens": 4096,
				"timeout": "90s"
			}
		}
	},
	"workflow": {
		"revision_bound": 2,
		"validator_policy": "fail_closed",
		"topology": "sequential"
	},
	"storage": { "driver": "memory" },
	"recovery": { "on_startup": false, "schedule": "@every 5m" }
}`
	t.Setenv("ANTHROPIC_API_KEY", "test-key-123")

	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "0.0.0.0" || cfg.Gateway.Port != 9999 {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	p, ok := cfg.Models.Providers["claude"]
	if !ok {
		t.Fatal("expected claude provider")
	}
	if p.Auth.APIKey != "test-key-123" {
		t.Errorf("api_key = %q, want test-key-123", p.Auth.APIKey)
	}
	if p.Timeout.Duration().Seconds() != 90 {
		t.Errorf("timeout = %v, want 90s", p.Timeout.Duration())
	}
	if cfg.Workflow.RevisionBound != 2 {
		t.Errorf("revision_bound = %d, want 2", cfg.Workflow.RevisionBound)
	}
	if cfg.Workflow.ValidatorPolicy != ValidatorFailClosed {
		t.Errorf("validator_policy = %q", cfg.Workflow.ValidatorPolicy)
	}
	if cfg.Workflow.Topology != TopologySequential {
		t.Errorf("topology = %q", cfg.Workflow.Topology)
	}
	if cfg.Storage.Path != "" {
		t.Errorf("memory storage should have no path, got %q", cfg.Storage.Path)
	}
	if cfg.Recovery.RunOnStartup() {
		t.Error("on_startup should be false")
	}
	if cfg.Recovery.Schedule != "@every 5m" {
		t.Errorf("schedule = %q", cfg.Recovery.Schedule)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("QUILL_PATH", "/tmp/quill-defaults")

	cfg, err := Load(writeConfig(t, `{}`))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Gateway.Host != "127.0.0.1" || cfg.Gateway.Port != 18430 {
		t.Errorf("gateway = %+v", cfg.Gateway)
	}
	if cfg.Events.BufferSize != 1024 || cfg.Events.LogLevel != "info" {
		t.Errorf("events = %+v", cfg.Events)
	}
	if cfg.Models.Default != "gemini" {
		t.Errorf("default model = %q, want gemini", cfg.Models.Default)
	}
	if cfg.Search.Web.Provider != "duckduckgo" || cfg.Search.Academic.Provider != "semanticscholar" {
		t.Errorf("search = %+v", cfg.Search)
	}
	if cfg.Storage.Driver != "sqlite" || cfg.Storage.Path != "/tmp/quill-defaults/checkpoints.sqlite" {
		t.Errorf("storage = %+v", cfg.Storage)
	}
	w := cfg.Workflow
	if w.RevisionBound != 3 || w.ValidatorPolicy != ValidatorFailOpen || w.ValidatorDraftLimit != 3000 ||
		w.Topology != TopologyParallel || w.MaxSteps != 50 {
		t.Errorf("workflow = %+v", w)
	}
	if !cfg.Recovery.RunOnStartup() {
		t.Error("on_startup should default to true")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"policy", `{"workflow": {"validator_policy": "maybe"}}`, "validator_policy"},
		{"topology", `{"workflow": {"topology": "ring"}}`, "topology"},
		{"storage", `{"storage": {"driver": "redis"}}`, "storage.driver"},
		{"bound", `{"workflow": {"revision_bound": -1}}`, "revision_bound"},
		{"max steps", `{"workflow": {"revision_bound": 12, "max_steps": 50}}`, "workflow.max_steps"},
		{"default model", `{"models": {"default": "nope", "providers": {"a": {"driver": "ollama"}}}}`, "models.default"},
		{"syntax", `{"gateway": `, "parse config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q should mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestMaxStepsFollowsRevisionBound(t *testing.T) {
	cfg, err := Load(writeConfig(t, `{"workflow": {"revision_bound": 20, "topology": "sequential"}}`))
	if err != nil {
		t.Fatal(err)
	}
	if got, want := cfg.Workflow.MaxSteps, MinMaxSteps(20, TopologySequential); got != want {
		t.Errorf("max_steps = %d, want %d", got, want)
	}

	tests := []struct {
		bound    int
		topology string
		want     int
	}{
		{2, TopologyParallel, 11},
		{3, TopologyParallel, 15},
		{12, TopologyParallel, 51},
		{2, TopologySequential, 14},
		{0, TopologyParallel, 5},
	}
	for _, tt := range tests {
		if got := MinMaxSteps(tt.bound, tt.topology); got != tt.want {
			t.Errorf("MinMaxSteps(%d, %s) = %d, want %d", tt.bound, tt.topology, got, tt.want)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.jsonc")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExpandEnvTemplates(t *testing.T) {
	t.Setenv("QUILL_TEST_HOST", "example.org")
	got := expandEnvTemplates(`{"host": "${{ .Env.QUILL_TEST_HOST }}", "port": "${{.Env.QUILL_TEST_UNSET}}"}`)
	want := `{"host": "example.org", "port": ""}`
	if got != want {
		t.Errorf("got %s, want %s", got, want)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARN":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
