package models

import (
	"context"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/quill/internal/config"
)

// NewOpenAI creates a new OpenAI ChatModel.
func NewOpenAI(ctx context.Context, cfg config.ProviderConfig, apiKey string) (model.BaseChatModel, error) {
	timeout := timeoutOr(cfg.Timeout.Duration(), 60*time.Second)
	modelConfig := &einoopenai.ChatModelConfig{
		APIKey:     apiKey,
		Model:      cfg.Model,
		Timeout:    timeout,
		HTTPClient: newHTTPClient("openai", timeout),
	}

	if cfg.BaseURL != "" {
		modelConfig.BaseURL = cfg.BaseURL
	}

	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxCompletionTokens = &maxTokens
	}

	if t, ok := floatOption(cfg.Options, "temperature"); ok {
		modelConfig.Temperature = &t
	}

	return einoopenai.NewChatModel(ctx, modelConfig)
}
