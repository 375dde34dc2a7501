package search

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/tool/bingsearch"
	duckduckgo "github.com/cloudwego/eino-ext/components/tool/duckduckgo/v2"
	"github.com/cloudwego/eino-ext/components/tool/googlesearch"
	"github.com/cloudwego/eino/components/tool"

	"github.com/dohr-michael/quill/internal/config"
)

const defaultWebMaxResults = 5

// NewWebTool creates the web search tool for the configured provider.
// Supported: "duckduckgo" (default, no API key), "google", "bing".
func NewWebTool(ctx context.Context, cfg config.WebSearchConfig) (tool.InvokableTool, error) {
	provider := cfg.Provider
	if provider == "" {
		provider = "duckduckgo"
	}

	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultWebMaxResults
	}
	timeout := parseTimeout(cfg.Timeout, 30*time.Second)

	var (
		inner tool.InvokableTool
		err   error
	)
	switch provider {
	case "duckduckgo":
		inner, err = duckduckgo.NewTextSearchTool(ctx, &duckduckgo.Config{
			ToolName:   "web_search",
			ToolDesc:   "Search the web using DuckDuckGo.",
			MaxResults: maxResults,
			Timeout:    timeout,
		})
	case "google":
		if cfg.GoogleAPIKey == "" || cfg.GoogleCX == "" {
			return nil, fmt.Errorf("web search: google requires google_api_key and google_cx")
		}
		inner, err = googlesearch.NewTool(ctx, &googlesearch.Config{
			APIKey:         cfg.GoogleAPIKey,
			SearchEngineID: cfg.GoogleCX,
			Num:            maxResults,
			ToolName:       "web_search",
			ToolDesc:       "Search the web using Google.",
		})
	case "bing":
		if cfg.BingAPIKey == "" {
			return nil, fmt.Errorf("web search: bing requires bing_api_key")
		}
		inner, err = bingsearch.NewTool(ctx, &bingsearch.Config{
			APIKey:     cfg.BingAPIKey,
			MaxResults: maxResults,
			Timeout:    timeout,
			ToolName:   "web_search",
			ToolDesc:   "Search the web using Bing.",
		})
	default:
		return nil, fmt.Errorf("web search: unknown provider %q", provider)
	}
	if err != nil {
		return nil, fmt.Errorf("web search: init %s: %w", provider, err)
	}
	return inner, nil
}
