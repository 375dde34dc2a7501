package models

import (
	"context"

	einoclaude "github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/quill/internal/config"
)

const (
	defaultAnthropicModel     = "claude-sonnet-4-20250514"
	defaultAnthropicMaxTokens = 4096
)

// NewAnthropic creates an Anthropic ChatModel.
func NewAnthropic(ctx context.Context, cfg config.ProviderConfig, apiKey string) (model.BaseChatModel, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultAnthropicModel
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	modelConfig := &einoclaude.Config{
		APIKey:    apiKey,
		Model:     modelName,
		MaxTokens: maxTokens,
	}
	if cfg.BaseURL != "" {
		baseURL := cfg.BaseURL
		modelConfig.BaseURL = &baseURL
	}
	if t, ok := floatOption(cfg.Options, "temperature"); ok {
		modelConfig.Temperature = &t
	}
	if p, ok := floatOption(cfg.Options, "top_p"); ok {
		modelConfig.TopP = &p
	}

	return einoclaude.NewChatModel(ctx, modelConfig)
}
