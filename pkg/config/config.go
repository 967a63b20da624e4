package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultSettingsPath = "config/settings.yaml"
	DefaultSecretPath   = "secret"
	DefaultBaseURL      = "https://openrouter.ai/api/v1"
)

// Error is a configuration problem detected before any collaborator runs.
type Error struct {
	Field string
	Msg   string
	Err   error
}

func (e *Error) Error() string {
	msg := e.Msg
	if e.Field != "" {
		msg = e.Field + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return "config: " + msg
}

func (e *Error) Unwrap() error { return e.Err }

type Config struct {
	Runtime       RuntimeConfig       `yaml:"runtime"`
	Models        ModelConfig         `yaml:"models"`
	Search        SearchConfig        `yaml:"search"`
	API           APIConfig           `yaml:"api"`
	Gateways      GatewaysConfig      `yaml:"gateways"`
	Storage       StorageConfig       `yaml:"storage"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// RuntimeConfig governs the orchestration loop.
type RuntimeConfig struct {
	Locale            string `yaml:"locale"`
	MaxIterations     int    `yaml:"max_iterations"`
	HumanReview       bool   `yaml:"human_review"`
	MaxReviewAttempts int    `yaml:"max_review_attempts"`
	Degradation       string `yaml:"degradation"`
	BatchParallel     int    `yaml:"batch_parallel"`
}

// ModelConfig selects the LLMs, served through an OpenAI-compatible endpoint.
type ModelConfig struct {
	Planner     string  `yaml:"planner"`
	Researcher  string  `yaml:"researcher"`
	Reporter    string  `yaml:"reporter"`
	Temperature float64 `yaml:"temperature"`
	BaseURL     string  `yaml:"base_url"`
	PromptsDir  string  `yaml:"prompts_dir"`
	UseTools    bool    `yaml:"use_tools"`
}

type SearchConfig struct {
	Provider       string   `yaml:"provider"`
	MaxQueries     int      `yaml:"max_queries"`
	TimeoutSeconds float64  `yaml:"timeout_seconds"`
	MaxNotes       *int     `yaml:"max_notes"`
	FetchArticles  bool     `yaml:"fetch_articles"`
	Browser        bool     `yaml:"browser"`
	DenyQueries    []string `yaml:"deny_queries"`
	DenyProviders  []string `yaml:"deny_providers"`
}

// Timeout returns the per-search timeout.
func (s SearchConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds * float64(time.Second))
}

type APIConfig struct {
	OpenRouterKey string `yaml:"openrouter_key"`
	TavilyKey     string `yaml:"tavily_key"`
}

type GatewaysConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

type TelegramConfig struct {
	Token   string `yaml:"token"`
	ChatID  string `yaml:"chat_id"`
	Enabled bool   `yaml:"enabled"`
}

type StorageConfig struct {
	PlansPath string `yaml:"plans_path"`
	DBPath    string `yaml:"db_path"`
	OutputDir string `yaml:"output_dir"`
}

type ObservabilityConfig struct {
	LLMLogPath       string `yaml:"llm_log_path"`
	LangsmithProject string `yaml:"langsmith_project"`
	LangsmithAPIKey  string `yaml:"langsmith_api_key"`
}

// Default returns the built-in settings used when no file overrides them.
func Default() *Config {
	return &Config{
		Runtime: RuntimeConfig{
			Locale:            "zh-CN",
			MaxIterations:     6,
			HumanReview:       true,
			MaxReviewAttempts: 3,
			BatchParallel:     2,
		},
		Models: ModelConfig{
			Planner:     "gpt-4o-mini",
			Researcher:  "gpt-4o-mini",
			Reporter:    "gpt-4o-mini",
			Temperature: 0,
			BaseURL:     DefaultBaseURL,
			PromptsDir:  "prompts",
			UseTools:    true,
		},
		Search: SearchConfig{
			Provider:       "tavily",
			MaxQueries:     3,
			TimeoutSeconds: 8,
		},
		Storage: StorageConfig{
			PlansPath: "output/plans/plans.jsonl",
			DBPath:    "output/runs.db",
			OutputDir: "output",
		},
		Observability: ObservabilityConfig{
			LLMLogPath: "logs/llm.jsonl",
		},
	}
}

// Load reads the settings YAML and merges the secret file over it. Either
// file may be missing.
func Load(settingsPath, secretPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(settingsPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, &Error{Field: settingsPath, Msg: "read settings", Err: err}
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, &Error{Field: settingsPath, Msg: "settings must contain a mapping of known sections", Err: err}
		}
	}

	if secretPath != "" {
		secrets, err := godotenv.Read(secretPath)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, &Error{Field: secretPath, Msg: "read secret file", Err: err}
		}
		cfg.MergeSecrets(secrets)
	}

	return cfg, nil
}

// MergeSecrets applies KEY=VALUE secrets. Keys are matched loosely so that
// OPENROUTER_API_KEY, open_router_key and similar spellings all work.
func (c *Config) MergeSecrets(secrets map[string]string) {
	for rawKey, rawValue := range secrets {
		key := strings.ToLower(strings.TrimSpace(rawKey))
		value := strings.TrimSpace(rawValue)

		switch {
		case strings.HasPrefix(key, "langsmith"):
			if strings.HasSuffix(key, "project") {
				c.Observability.LangsmithProject = value
			} else {
				c.Observability.LangsmithAPIKey = value
			}
		case strings.Contains(key, "openrouter"), strings.Contains(key, "open_router"):
			c.API.OpenRouterKey = value
		case strings.Contains(key, "tavily"):
			c.API.TavilyKey = value
		case strings.Contains(key, "telegram"):
			if strings.Contains(key, "chat") {
				c.Gateways.Telegram.ChatID = value
			} else {
				c.Gateways.Telegram.Token = value
			}
		}
	}
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Runtime.Locale) == "":
		return &Error{Field: "runtime.locale", Msg: "must not be empty"}
	case c.Runtime.MaxIterations < 1:
		return &Error{Field: "runtime.max_iterations", Msg: "must be at least 1"}
	case c.Runtime.MaxReviewAttempts < 1:
		return &Error{Field: "runtime.max_review_attempts", Msg: "must be at least 1"}
	case c.Models.Temperature < 0 || c.Models.Temperature > 2:
		return &Error{Field: "models.temperature", Msg: "must be within [0, 2]"}
	case c.Search.MaxQueries < 1:
		return &Error{Field: "search.max_queries", Msg: "must be at least 1"}
	case c.Search.TimeoutSeconds <= 0:
		return &Error{Field: "search.timeout_seconds", Msg: "must be positive"}
	case c.Search.MaxNotes != nil && *c.Search.MaxNotes < 1:
		return &Error{Field: "search.max_notes", Msg: "must be at least 1"}
	}
	switch c.Search.Provider {
	case "tavily", "duckduckgo":
	default:
		return &Error{Field: "search.provider", Msg: fmt.Sprintf("unknown provider %q", c.Search.Provider)}
	}
	for _, p := range c.Search.DenyProviders {
		if strings.EqualFold(strings.TrimSpace(p), c.Search.Provider) {
			return &Error{Field: "search.deny_providers", Msg: fmt.Sprintf("denies the configured provider %q", c.Search.Provider)}
		}
	}
	return nil
}

// RequirePlanner fails when the planner LLM cannot be reached.
func (c *Config) RequirePlanner() error {
	if c.API.OpenRouterKey == "" {
		return &Error{Field: "api.openrouter_key", Msg: "missing OpenRouter API key; add OPENROUTER_API_KEY to the secret file"}
	}
	if c.Models.Planner == "" {
		return &Error{Field: "models.planner", Msg: "must not be empty"}
	}
	return nil
}

// RequireSearch fails when the configured provider needs a key that is absent.
func (c *Config) RequireSearch() error {
	if c.Search.Provider == "tavily" && c.API.TavilyKey == "" {
		return &Error{Field: "api.tavily_key", Msg: "missing Tavily API key; add TAVILY_API_KEY to the secret file"}
	}
	return nil
}

// RequireTelegram fails when the Telegram reviewer cannot be used.
func (c *Config) RequireTelegram() error {
	tg := c.Gateways.Telegram
	if tg.Token == "" {
		return &Error{Field: "gateways.telegram.token", Msg: "missing bot token; add TELEGRAM_BOT_TOKEN to the secret file"}
	}
	if tg.ChatID == "" {
		return &Error{Field: "gateways.telegram.chat_id", Msg: "must be set to the review chat"}
	}
	return nil
}

// SearchCredential returns the key for the configured search provider.
func (c *Config) SearchCredential() string {
	if c.Search.Provider == "tavily" {
		return c.API.TavilyKey
	}
	return ""
}
