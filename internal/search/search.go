// Package search adapts eino tools to the research Searcher interface.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"

	"github.com/dohr-michael/quill/internal/config"
)

// ToolSearcher runs a search tool with a {"query": ...} argument.
type ToolSearcher struct {
	name  string
	inner tool.InvokableTool
}

// NewToolSearcher wraps an invokable search tool.
func NewToolSearcher(name string, inner tool.InvokableTool) *ToolSearcher {
	return &ToolSearcher{name: name, inner: inner}
}

// Name returns the provider name.
func (s *ToolSearcher) Name() string { return s.name }

type queryInput struct {
	Query string `json:"query"`
}

// Search invokes the tool and flattens structured results to text.
func (s *ToolSearcher) Search(ctx context.Context, query string) (string, error) {
	args, err := json.Marshal(queryInput{Query: query})
	if err != nil {
		return "", fmt.Errorf("%s: marshal input: %w", s.name, err)
	}
	out, err := s.inner.InvokableRun(ctx, string(args))
	if err != nil {
		return "", fmt.Errorf("%s: %w", s.name, err)
	}
	return formatResults(out), nil
}

// New builds the web and academic searchers from config.
func New(ctx context.Context, cfg config.SearchConfig) (web, academic *ToolSearcher, err error) {
	webTool, err := NewWebTool(ctx, cfg.Web)
	if err != nil {
		return nil, nil, err
	}
	academicTool, err := NewAcademicTool(cfg.Academic)
	if err != nil {
		return nil, nil, err
	}
	return NewToolSearcher(cfg.Web.Provider, webTool), NewToolSearcher(cfg.Academic.Provider, academicTool), nil
}

// formatResults renders JSON result lists as "title\nurl\nsnippet" blocks.
// Output that is not a recognizable result list is returned as is.
func formatResults(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return trimmed
	}

	var doc any
	if err := json.Unmarshal([]byte(trimmed), &doc); err != nil {
		return trimmed
	}

	items, ok := findResultList(doc)
	if !ok {
		return trimmed
	}

	var sb strings.Builder
	for _, item := range items {
		title := firstString(item, "title", "name")
		link := firstString(item, "url", "link", "href")
		snippet := firstString(item, "summary", "snippet", "description", "body", "desc")
		if title == "" && link == "" && snippet == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		for _, line := range []string{title, link, snippet} {
			if line != "" {
				sb.WriteString(line)
				sb.WriteString("\n")
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func findResultList(doc any) ([]map[string]any, bool) {
	switch v := doc.(type) {
	case []any:
		items := make([]map[string]any, 0, len(v))
		for _, e := range v {
			if m, ok := e.(map[string]any); ok {
				items = append(items, m)
			}
		}
		return items, true
	case map[string]any:
		for _, key := range []string{"results", "items", "data", "web_pages"} {
			if inner, ok := v[key]; ok {
				return findResultList(inner)
			}
		}
		if _, ok := v["message"]; ok && len(v) <= 2 {
			return nil, true
		}
	}
	return nil, false
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func parseTimeout(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
