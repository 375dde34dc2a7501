package models

import (
	"context"
	"time"

	einoopenai "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/quill/internal/config"
)

const (
	defaultMistralBaseURL = "https://api.mistral.ai/v1"
	defaultMistralModel   = "mistral-small-latest"
)

// NewMistral creates a Mistral ChatModel via the OpenAI-compatible API.
func NewMistral(ctx context.Context, cfg config.ProviderConfig, apiKey string) (model.BaseChatModel, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultMistralModel
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultMistralBaseURL
	}

	timeout := timeoutOr(cfg.Timeout.Duration(), 5*time.Minute)
	modelConfig := &einoopenai.ChatModelConfig{
		APIKey:     apiKey,
		Model:      modelName,
		BaseURL:    baseURL,
		Timeout:    timeout,
		HTTPClient: newHTTPClient("mistral", timeout),
	}

	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxCompletionTokens = &maxTokens
	}

	if t, ok := floatOption(cfg.Options, "temperature"); ok {
		modelConfig.Temperature = &t
	}
	if p, ok := floatOption(cfg.Options, "top_p"); ok {
		modelConfig.TopP = &p
	}

	return einoopenai.NewChatModel(ctx, modelConfig)
}
