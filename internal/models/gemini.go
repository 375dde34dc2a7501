package models

import (
	"context"
	"fmt"
	"time"

	einogemini "github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"

	"github.com/dohr-michael/quill/internal/config"
)

const defaultGeminiModel = "gemini-2.0-flash"

// NewGemini creates a Gemini ChatModel backed by the Gemini API.
func NewGemini(ctx context.Context, cfg config.ProviderConfig, apiKey string) (model.BaseChatModel, error) {
	modelName := cfg.Model
	if modelName == "" {
		modelName = defaultGeminiModel
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: newHTTPClient("gemini", timeoutOr(cfg.Timeout.Duration(), 2*time.Minute)),
	}
	if cfg.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	modelConfig := &einogemini.Config{
		Client: client,
		Model:  modelName,
	}
	if cfg.MaxTokens > 0 {
		maxTokens := cfg.MaxTokens
		modelConfig.MaxTokens = &maxTokens
	}
	if t, ok := floatOption(cfg.Options, "temperature"); ok {
		modelConfig.Temperature = &t
	}
	if p, ok := floatOption(cfg.Options, "top_p"); ok {
		modelConfig.TopP = &p
	}

	return einogemini.NewChatModel(ctx, modelConfig)
}
