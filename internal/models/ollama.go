package models

import (
	"context"
	"time"

	einoollama "github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino/components/model"

	"github.com/dohr-michael/quill/internal/config"
)

const defaultOllamaBaseURL = "http://localhost:11434"

// NewOllama creates a new Ollama ChatModel.
func NewOllama(ctx context.Context, cfg config.ProviderConfig) (model.BaseChatModel, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOllamaBaseURL
	}

	timeout := timeoutOr(cfg.Timeout.Duration(), 300*time.Second)
	modelConfig := &einoollama.ChatModelConfig{
		BaseURL:    baseURL,
		Model:      cfg.Model,
		Timeout:    timeout,
		HTTPClient: newHTTPClient("ollama", timeout),
	}

	opts := &einoollama.Options{}

	if cfg.MaxTokens > 0 {
		opts.NumPredict = cfg.MaxTokens
	}

	if len(cfg.Options) > 0 {
		if temp, ok := floatOption(cfg.Options, "temperature"); ok {
			opts.Temperature = temp
		}
		if numCtx, ok := cfg.Options["num_ctx"].(float64); ok {
			opts.NumCtx = int(numCtx)
		}
		if numPredict, ok := cfg.Options["num_predict"].(float64); ok {
			opts.NumPredict = int(numPredict)
		}
		if topP, ok := floatOption(cfg.Options, "top_p"); ok {
			opts.TopP = topP
		}
		if topK, ok := cfg.Options["top_k"].(float64); ok {
			opts.TopK = int(topK)
		}
	}

	modelConfig.Options = opts

	return einoollama.NewChatModel(ctx, modelConfig)
}
