package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/tailscale/hujson"
)

var envTemplateRe = regexp.MustCompile(`\$\{\{\s*\.Env\.(\w+)\s*\}\}`)

// Workflow defaults.
const (
	DefaultRevisionBound       = 3
	DefaultValidatorDraftLimit = 3000
	DefaultMaxSteps            = 50

	ValidatorFailOpen   = "fail_open"
	ValidatorFailClosed = "fail_closed"

	TopologyParallel   = "parallel"
	TopologySequential = "sequential"
)

// Load reads a JSONC config file, expands ${{ .Env.VAR }} templates, standardizes
// it to plain JSON, unmarshals it into Config, and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variable templates (before standardizing, since templates are in strings)
	expanded := expandEnvTemplates(string(data))

	std, err := hujson.Standardize([]byte(expanded))
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(std, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with every default applied, used when no file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// expandEnvTemplates replaces ${{ .Env.VAR }} with the env var value.
func expandEnvTemplates(s string) string {
	return envTemplateRe.ReplaceAllStringFunc(s, func(match string) string {
		parts := envTemplateRe.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}
		return os.Getenv(parts[1])
	})
}

// applyDefaults fills in zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Gateway.Host == "" {
		cfg.Gateway.Host = "127.0.0.1"
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18430
	}
	if cfg.Events.BufferSize == 0 {
		cfg.Events.BufferSize = 1024
	}
	if cfg.Events.LogLevel == "" {
		cfg.Events.LogLevel = "info"
	}
	if cfg.Events.LogDir == "" {
		cfg.Events.LogDir = EventLogDir()
	}

	// Without providers, default to Gemini at temperature 0 for reproducible drafts.
	if cfg.Models.Providers == nil {
		cfg.Models.Providers = map[string]ProviderConfig{}
	}
	if len(cfg.Models.Providers) == 0 {
		cfg.Models.Providers["gemini"] = ProviderConfig{
			Driver:  "gemini",
			Model:   "gemini-2.0-flash",
			Options: map[string]any{"temperature": 0.0},
		}
	}
	if cfg.Models.Default == "" {
		if _, ok := cfg.Models.Providers["gemini"]; ok {
			cfg.Models.Default = "gemini"
		} else {
			for name := range cfg.Models.Providers {
				cfg.Models.Default = name
				break
			}
		}
	}

	if cfg.Search.Web.Provider == "" {
		cfg.Search.Web.Provider = "duckduckgo"
	}
	if cfg.Search.Academic.Provider == "" {
		cfg.Search.Academic.Provider = "semanticscholar"
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.Path == "" {
		switch cfg.Storage.Driver {
		case "sqlite", "file":
			cfg.Storage.Path = StoragePath(cfg.Storage.Driver)
		}
	}

	if cfg.Workflow.RevisionBound == 0 {
		cfg.Workflow.RevisionBound = DefaultRevisionBound
	}
	if cfg.Workflow.ValidatorPolicy == "" {
		cfg.Workflow.ValidatorPolicy = ValidatorFailOpen
	}
	if cfg.Workflow.ValidatorDraftLimit == 0 {
		cfg.Workflow.ValidatorDraftLimit = DefaultValidatorDraftLimit
	}
	if cfg.Workflow.Topology == "" {
		cfg.Workflow.Topology = TopologyParallel
	}
	if cfg.Workflow.MaxSteps == 0 {
		cfg.Workflow.MaxSteps = max(DefaultMaxSteps, MinMaxSteps(cfg.Workflow.RevisionBound, cfg.Workflow.Topology))
	}
}

// MinMaxSteps is the number of supersteps one call needs to reach human review
// when validation never passes: bound+1 research/write/validate passes with a
// refiner between each, or a resume from review followed by one such pass.
func MinMaxSteps(bound int, topology string) int {
	pass := 3
	if topology == TopologySequential {
		pass = 4
	}
	return max((bound+1)*pass+bound, 2+pass)
}

// Validate rejects configurations the workflow cannot run with.
func Validate(cfg *Config) error {
	if cfg.Workflow.RevisionBound < 0 {
		return fmt.Errorf("workflow.revision_bound must be >= 0, got %d", cfg.Workflow.RevisionBound)
	}
	switch cfg.Workflow.ValidatorPolicy {
	case ValidatorFailOpen, ValidatorFailClosed:
	default:
		return fmt.Errorf("workflow.validator_policy: unknown policy %q", cfg.Workflow.ValidatorPolicy)
	}
	switch cfg.Workflow.Topology {
	case TopologyParallel, TopologySequential:
	default:
		return fmt.Errorf("workflow.topology: unknown topology %q", cfg.Workflow.Topology)
	}
	if need := MinMaxSteps(cfg.Workflow.RevisionBound, cfg.Workflow.Topology); cfg.Workflow.MaxSteps < need {
		return fmt.Errorf("workflow.max_steps: %d is below the %d supersteps a revision_bound of %d needs",
			cfg.Workflow.MaxSteps, need, cfg.Workflow.RevisionBound)
	}
	switch cfg.Storage.Driver {
	case "sqlite", "file", "memory":
	default:
		return fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver)
	}
	if cfg.Models.Default != "" {
		if _, ok := cfg.Models.Providers[cfg.Models.Default]; !ok {
			return fmt.Errorf("models.default: provider %q not configured", cfg.Models.Default)
		}
	}
	return nil
}

// ParseLogLevel maps events.log_level to a slog level. Unknown values fall back to info.
func ParseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
