package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harun/hybridsolver/internal/logger"
)

// ErrNoCredentials is returned when no provider credential is configured.
var ErrNoCredentials = errors.New("no provider credentials configured")

// Config represents the solver configuration
type Config struct {
	// Quiz identity sent with every submission
	Email  string `json:"email" mapstructure:"email"`
	Secret string `json:"-" mapstructure:"secret"`

	Server    ServerConfig    `json:"server" mapstructure:"server"`
	Providers ProvidersConfig `json:"providers" mapstructure:"providers"`
	Keys      KeysConfig      `json:"keys" mapstructure:"keys"`
	Cache     CacheConfig     `json:"cache" mapstructure:"cache"`
	HTTP      HTTPConfig      `json:"http" mapstructure:"http"`
	Bridge    BridgeConfig    `json:"bridge" mapstructure:"bridge"`
	Agent     AgentConfig     `json:"agent" mapstructure:"agent"`
	Tools     ToolsConfig     `json:"tools" mapstructure:"tools"`
	Logging   logger.Config   `json:"logging" mapstructure:"logging"`
	Tracing   TracingConfig   `json:"tracing" mapstructure:"tracing"`
}

// ServerConfig holds the HTTP front end settings
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// ProvidersConfig selects the primary and fallback LLM providers.
type ProvidersConfig struct {
	UseGemini   bool   `json:"use_gemini" mapstructure:"use_gemini"`
	GeminiModel string `json:"gemini_model" mapstructure:"gemini_model"`

	// Secondary is "openai" or "anthropic".
	Secondary           string `json:"secondary" mapstructure:"secondary"`
	PrimaryOpenAIModel  string `json:"primary_openai_model" mapstructure:"primary_openai_model"`
	FallbackOpenAIModel string `json:"fallback_openai_model" mapstructure:"fallback_openai_model"`
	OpenAIBaseURL       string `json:"openai_base_url" mapstructure:"openai_base_url"`
	OpenAIAPIKey        string `json:"-" mapstructure:"openai_api_key"`
	AnthropicModel      string `json:"anthropic_model" mapstructure:"anthropic_model"`
	AnthropicAPIKey     string `json:"-" mapstructure:"anthropic_api_key"`

	Temperature float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens   int     `json:"max_tokens" mapstructure:"max_tokens"`

	// QuotaIndicators extends the quota classifier's message fallback.
	QuotaIndicators []string `json:"quota_indicators" mapstructure:"quota_indicators"`
}

// KeysConfig controls how the primary key pool is loaded and recovered.
type KeysConfig struct {
	EnvPrefix        string `json:"env_prefix" mapstructure:"env_prefix"`
	CooldownSchedule string `json:"cooldown_schedule" mapstructure:"cooldown_schedule"`
	RequestsPerKey   int    `json:"requests_per_key" mapstructure:"requests_per_key"` // per minute

	// Values are read from the environment, never from the config file.
	Values []string `json:"-" mapstructure:"-"`
}

// CacheConfig bounds the scrape cache
type CacheConfig struct {
	MaxSize    int           `json:"max_size" mapstructure:"max_size"`
	DefaultTTL time.Duration `json:"default_ttl" mapstructure:"default_ttl"`
}

// HTTPConfig holds the shared outbound client settings
type HTTPConfig struct {
	Timeout         time.Duration `json:"timeout" mapstructure:"timeout"`
	MaxConns        int           `json:"max_conns" mapstructure:"max_conns"`
	MaxIdleConns    int           `json:"max_idle_conns" mapstructure:"max_idle_conns"`
	IdleConnTimeout time.Duration `json:"idle_conn_timeout" mapstructure:"idle_conn_timeout"`
	MaxAttempts     int           `json:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff  time.Duration `json:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff      time.Duration `json:"max_backoff" mapstructure:"max_backoff"`
}

// BridgeConfig holds execution bridge settings
type BridgeConfig struct {
	MaxInFlight int `json:"max_in_flight" mapstructure:"max_in_flight"`
}

// AgentConfig holds run loop settings
type AgentConfig struct {
	MaxAttemptsPerQuestion int           `json:"max_attempts_per_question" mapstructure:"max_attempts_per_question"`
	MaxToolTurns           int           `json:"max_tool_turns" mapstructure:"max_tool_turns"`
	QuestionTimeBudget     time.Duration `json:"question_time_budget" mapstructure:"question_time_budget"`
}

// ToolsConfig holds tool runtime settings
type ToolsConfig struct {
	WorkDir     string        `json:"work_dir" mapstructure:"work_dir"`
	ExecTimeout time.Duration `json:"exec_timeout" mapstructure:"exec_timeout"`
	Runner      string        `json:"runner" mapstructure:"runner"`
	OutputLimit int           `json:"output_limit" mapstructure:"output_limit"`
	Browser     BrowserConfig `json:"browser" mapstructure:"browser"`
}

// BrowserConfig controls headless rendering
type BrowserConfig struct {
	Enabled     bool          `json:"enabled" mapstructure:"enabled"`
	Headless    bool          `json:"headless" mapstructure:"headless"`
	BinPath     string        `json:"bin_path" mapstructure:"bin_path"`
	PageTimeout time.Duration `json:"page_timeout" mapstructure:"page_timeout"`
}

// TracingConfig controls OpenTelemetry
type TracingConfig struct {
	Enabled     bool    `json:"enabled" mapstructure:"enabled"`
	SampleRatio float64 `json:"sample_ratio" mapstructure:"sample_ratio"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8000},
		Providers: ProvidersConfig{
			UseGemini:           true,
			GeminiModel:         "gemini-2.5-flash",
			Secondary:           "openai",
			PrimaryOpenAIModel:  "gpt-4o-mini",
			FallbackOpenAIModel: "gpt-4o-mini",
			AnthropicModel:      "claude-sonnet-4-20250514",
			Temperature:         0,
			MaxTokens:           4096,
		},
		Keys: KeysConfig{
			EnvPrefix:        "GOOGLE_API_KEY",
			CooldownSchedule: "@every 1m",
			RequestsPerKey:   15,
		},
		Cache: CacheConfig{MaxSize: 100, DefaultTTL: time.Hour},
		HTTP: HTTPConfig{
			Timeout:         30 * time.Second,
			MaxConns:        100,
			MaxIdleConns:    20,
			IdleConnTimeout: 30 * time.Second,
			MaxAttempts:     3,
			InitialBackoff:  2 * time.Second,
			MaxBackoff:      10 * time.Second,
		},
		Bridge: BridgeConfig{MaxInFlight: 64},
		Agent: AgentConfig{
			MaxAttemptsPerQuestion: 15,
			MaxToolTurns:           40,
			QuestionTimeBudget:     180 * time.Second,
		},
		Tools: ToolsConfig{
			WorkDir:     "hybrid_llm_files",
			ExecTimeout: 90 * time.Second,
			Runner:      "uv",
			OutputLimit: 10 * 1024,
			Browser: BrowserConfig{
				Enabled:     true,
				Headless:    true,
				PageTimeout: 30 * time.Second,
			},
		},
		Logging: logger.DefaultConfig(),
		Tracing: TracingConfig{Enabled: false, SampleRatio: 1},
	}
}

// HasSecondary reports whether a fallback provider has a credential.
func (c *Config) HasSecondary() bool {
	switch c.Providers.Secondary {
	case "anthropic":
		return c.Providers.AnthropicAPIKey != ""
	default:
		return c.Providers.OpenAIAPIKey != ""
	}
}

// Validate checks the configuration. A missing credential set is reported
// as ErrNoCredentials.
func (c *Config) Validate() error {
	if c.Providers.UseGemini && len(c.Keys.Values) == 0 && !c.HasSecondary() {
		return fmt.Errorf("%w: set %s or a %s key", ErrNoCredentials, c.Keys.EnvPrefix, c.Providers.Secondary)
	}
	if !c.Providers.UseGemini && !c.HasSecondary() {
		return fmt.Errorf("%w: gemini disabled and no %s key", ErrNoCredentials, c.Providers.Secondary)
	}

	if errs := NewValidator().ValidateConfig(c); len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// String renders the configuration without credentials.
func (c *Config) String() string {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
