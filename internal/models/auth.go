package models

import (
	"fmt"
	"os"
	"strings"

	"github.com/dohr-michael/quill/internal/config"
	"github.com/dohr-michael/quill/internal/secrets"
)

// driverEnvKeys lists the environment variables consulted per driver, in order.
var driverEnvKeys = map[string][]string{
	"gemini":    {"GOOGLE_API_KEY", "GEMINI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"openai":    {"OPENAI_API_KEY"},
	"mistral":   {"MISTRAL_API_KEY"},
}

// revealSecret decrypts ENC[age:...] values; plain values pass through.
var revealSecret = func(v string) (string, error) {
	return secrets.Default().Reveal(v)
}

// ResolveAuth resolves the API key for a provider.
// Resolution order: auth.api_key (literal or ${VAR}) then the driver's default env vars.
// Encrypted values are revealed with the Quill age key.
func ResolveAuth(cfg config.ProviderConfig) (string, error) {
	if key := resolveValue(cfg.Auth.APIKey); key != "" {
		return revealSecret(key)
	}

	driver := strings.ToLower(cfg.Driver)
	envs, ok := driverEnvKeys[driver]
	if !ok {
		return "", fmt.Errorf("unknown driver %q: cannot resolve auth", cfg.Driver)
	}
	for _, env := range envs {
		if key := os.Getenv(env); key != "" {
			plain, err := revealSecret(key)
			if err != nil {
				return "", fmt.Errorf("%s: %w", env, err)
			}
			return plain, nil
		}
	}
	return "", fmt.Errorf("%s not set", strings.Join(envs, " or "))
}

func resolveValue(v string) string {
	trimmed := strings.TrimSpace(v)
	if strings.HasPrefix(trimmed, "${") && strings.HasSuffix(trimmed, "}") {
		return os.Getenv(trimmed[2 : len(trimmed)-1])
	}
	return trimmed
}
