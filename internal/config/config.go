package config

import "time"

// Config is the root configuration for Quill.
type Config struct {
	Gateway  GatewayConfig  `json:"gateway"`
	Models   ModelsConfig   `json:"models"`
	Search   SearchConfig   `json:"search"`
	Storage  StorageConfig  `json:"storage"`
	Workflow WorkflowConfig `json:"workflow"`
	Events   EventsConfig   `json:"events"`
	Recovery RecoveryConfig `json:"recovery"`
}

// GatewayConfig holds the gateway server settings.
type GatewayConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ModelsConfig holds model provider configuration.
type ModelsConfig struct {
	Default   string                    `json:"default"`
	Providers map[string]ProviderConfig `json:"providers"`
}

// ProviderConfig configures a single LLM provider.
type ProviderConfig struct {
	Driver    string         `json:"driver"` // "gemini", "anthropic", "openai", "mistral", "ollama"
	Model     string         `json:"model"`
	BaseURL   string         `json:"base_url,omitempty"`
	Auth      AuthConfig     `json:"auth"`
	MaxTokens int            `json:"max_tokens,omitempty"`
	Timeout   Duration       `json:"timeout,omitempty"`
	Options   map[string]any `json:"options,omitempty"`
}

// AuthConfig configures API key resolution.
type AuthConfig struct {
	APIKey string `json:"api_key,omitempty"` // Direct API key or ${{ .Env.VAR }} template
}

// SearchConfig configures the two research capabilities.
type SearchConfig struct {
	Web      WebSearchConfig      `json:"web"`
	Academic AcademicSearchConfig `json:"academic"`
}

// WebSearchConfig selects and configures the web search provider.
type WebSearchConfig struct {
	Provider     string `json:"provider"` // "duckduckgo" (default), "google", "bing"
	MaxResults   int    `json:"max_results,omitempty"`
	Timeout      string `json:"timeout,omitempty"`
	GoogleAPIKey string `json:"google_api_key,omitempty"`
	GoogleCX     string `json:"google_cx,omitempty"`
	BingAPIKey   string `json:"bing_api_key,omitempty"`
}

// AcademicSearchConfig configures the academic search provider.
type AcademicSearchConfig struct {
	Provider   string `json:"provider"` // "semanticscholar"
	BaseURL    string `json:"base_url,omitempty"`
	APIKey     string `json:"api_key,omitempty"`
	MaxResults int    `json:"max_results,omitempty"`
	Timeout    string `json:"timeout,omitempty"`
}

// StorageConfig selects the checkpoint backend.
type StorageConfig struct {
	Driver string `json:"driver"` // "sqlite" (default), "file", "memory"
	Path   string `json:"path,omitempty"`
}

// WorkflowConfig tunes the research workflow.
type WorkflowConfig struct {
	RevisionBound       int            `json:"revision_bound"`
	ValidatorPolicy     string         `json:"validator_policy"` // "fail_open" | "fail_closed"
	ValidatorDraftLimit int            `json:"validator_draft_limit"`
	Topology            string         `json:"topology"` // "parallel" | "sequential"
	MaxSteps            int            `json:"max_steps"`
	StepModels          StepModelNames `json:"step_models"`
}

// StepModelNames maps LLM-backed steps to provider names. Empty means models.default.
type StepModelNames struct {
	Writer    string `json:"writer,omitempty"`
	Validator string `json:"validator,omitempty"`
	Refiner   string `json:"refiner,omitempty"`
}

// EventsConfig holds event bus settings.
type EventsConfig struct {
	BufferSize int    `json:"buffer_size"`
	LogLevel   string `json:"log_level"`
	LogDir     string `json:"log_dir,omitempty"`
}

// RecoveryConfig controls automatic resumption of interrupted threads.
type RecoveryConfig struct {
	OnStartup *bool  `json:"on_startup,omitempty"`
	Schedule  string `json:"schedule,omitempty"` // cron expression or @every descriptor
}

// RunOnStartup reports whether interrupted threads are resumed when the gateway starts.
func (c RecoveryConfig) RunOnStartup() bool {
	return c.OnStartup == nil || *c.OnStartup
}

// Duration wraps time.Duration for JSON unmarshaling.
type Duration time.Duration

func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	// Remove quotes
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}
