package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/quill/internal/config"
)

// CreateModel creates a model.BaseChatModel from a provider config.
func CreateModel(ctx context.Context, cfg config.ProviderConfig) (model.BaseChatModel, error) {
	switch strings.ToLower(cfg.Driver) {
	case "gemini":
		key, err := ResolveAuth(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve auth: %w", err)
		}
		return NewGemini(ctx, cfg, key)
	case "anthropic":
		key, err := ResolveAuth(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve auth: %w", err)
		}
		return NewAnthropic(ctx, cfg, key)
	case "openai":
		key, err := ResolveAuth(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve auth: %w", err)
		}
		return NewOpenAI(ctx, cfg, key)
	case "mistral":
		key, err := ResolveAuth(cfg)
		if err != nil {
			return nil, fmt.Errorf("resolve auth: %w", err)
		}
		return NewMistral(ctx, cfg, key)
	case "ollama":
		return NewOllama(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown driver: %s", cfg.Driver)
	}
}
