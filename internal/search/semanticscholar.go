package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/quill/internal/config"
)

const (
	defaultSemanticScholarURL = "https://api.semanticscholar.org/graph/v1"
	defaultAcademicMaxResults = 3
	semanticScholarFields     = "title,abstract,year,authors,url"
	abstractLimit             = 1200
)

// NoResults is returned when a query matches no papers.
const NoResults = "No results found."

// NewAcademicTool creates the academic search tool for the configured provider.
func NewAcademicTool(cfg config.AcademicSearchConfig) (tool.InvokableTool, error) {
	switch cfg.Provider {
	case "", "semanticscholar":
		return NewSemanticScholarTool(cfg), nil
	default:
		return nil, fmt.Errorf("academic search: unknown provider %q", cfg.Provider)
	}
}

// SemanticScholarTool queries the Semantic Scholar Graph API paper search.
type SemanticScholarTool struct {
	client     *http.Client
	baseURL    string
	apiKey     string
	maxResults int
}

// NewSemanticScholarTool builds the tool. The API key is optional.
func NewSemanticScholarTool(cfg config.AcademicSearchConfig) *SemanticScholarTool {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultSemanticScholarURL
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = defaultAcademicMaxResults
	}
	return &SemanticScholarTool{
		client:     &http.Client{Timeout: parseTimeout(cfg.Timeout, 30*time.Second)},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		maxResults: maxResults,
	}
}

// Info returns the tool info for Eino registration.
func (t *SemanticScholarTool) Info(_ context.Context) (*schema.ToolInfo, error) {
	return &schema.ToolInfo{
		Name: "academic_search",
		Desc: "Search Semantic Scholar for academic papers. Returns year, title, authors and abstract.",
		ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
			"query": {Type: schema.String, Desc: "The search query", Required: true},
		}),
	}, nil
}

type paperSearchResponse struct {
	Total int     `json:"total"`
	Data  []paper `json:"data"`
}

type paper struct {
	Title    string `json:"title"`
	Abstract string `json:"abstract"`
	Year     int    `json:"year"`
	URL      string `json:"url"`
	Authors  []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

// InvokableRun searches papers and renders them as text.
func (t *SemanticScholarTool) InvokableRun(ctx context.Context, argumentsInJSON string, _ ...tool.Option) (string, error) {
	var input queryInput
	if err := json.Unmarshal([]byte(argumentsInJSON), &input); err != nil {
		return "", fmt.Errorf("academic_search: parse input: %w", err)
	}
	if strings.TrimSpace(input.Query) == "" {
		return "", fmt.Errorf("academic_search: query is required")
	}

	params := url.Values{}
	params.Set("query", input.Query)
	params.Set("limit", strconv.Itoa(t.maxResults))
	params.Set("fields", semanticScholarFields)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/paper/search?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("academic_search: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "Quill/1.0 (academic_search)")
	if t.apiKey != "" {
		req.Header.Set("x-api-key", t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("academic_search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("academic_search: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result paperSearchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<20)).Decode(&result); err != nil {
		return "", fmt.Errorf("academic_search: decode response: %w", err)
	}

	return renderPapers(result.Data), nil
}

func renderPapers(papers []paper) string {
	if len(papers) == 0 {
		return NoResults
	}

	blocks := make([]string, 0, len(papers))
	for _, p := range papers {
		names := make([]string, 0, len(p.Authors))
		for _, a := range p.Authors {
			names = append(names, a.Name)
		}

		var sb strings.Builder
		if p.Year > 0 {
			fmt.Fprintf(&sb, "Published year: %d\n", p.Year)
		}
		fmt.Fprintf(&sb, "Title: %s\n", p.Title)
		if len(names) > 0 {
			fmt.Fprintf(&sb, "Authors: %s\n", strings.Join(names, ", "))
		}
		if p.URL != "" {
			fmt.Fprintf(&sb, "URL: %s\n", p.URL)
		}
		abstract := strings.TrimSpace(p.Abstract)
		if abstract == "" {
			abstract = "(no abstract)"
		}
		if r := []rune(abstract); len(r) > abstractLimit {
			abstract = string(r[:abstractLimit]) + "..."
		}
		fmt.Fprintf(&sb, "Abstract: %s", abstract)
		blocks = append(blocks, sb.String())
	}
	return strings.Join(blocks, "\n\n")
}
