package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDotenv(t *testing.T) {
	content := `# Provider keys
GEMINI_API_KEY=gm-123
export ANTHROPIC_API_KEY=sk-ant

QUOTED="with # hash"
SINGLE='single-quoted'
SPACED_KEY = spaced_value # trailing comment
not a pair
`
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	keys := []string{"GEMINI_API_KEY", "ANTHROPIC_API_KEY", "QUOTED", "SINGLE", "SPACED_KEY"}
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	if err := LoadDotenv(path); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		key, want string
	}{
		{"GEMINI_API_KEY", "gm-123"},
		{"ANTHROPIC_API_KEY", "sk-ant"},
		{"QUOTED", "with # hash"},
		{"SINGLE", "single-quoted"},
		{"SPACED_KEY", "spaced_value"},
	}
	for _, tt := range tests {
		if got := os.Getenv(tt.key); got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestLoadDotenvNoOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte(`EXISTING_VAR=new-value`), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("EXISTING_VAR", "original")

	if err := LoadDotenv(path); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("EXISTING_VAR"); got != "original" {
		t.Errorf("expected existing var to be preserved, got %q", got)
	}
}

func TestLoadDotenvMissingFile(t *testing.T) {
	if err := LoadDotenv(filepath.Join(t.TempDir(), ".env")); err != nil {
		t.Errorf("missing file should be ignored, got: %v", err)
	}
}
