package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Loader handles configuration loading
type Loader struct {
	configPath string
	getenv     func(string) string
}

// NewLoader creates a new config loader
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath, getenv: os.Getenv}
}

// GetConfigPath returns the config file path
func (l *Loader) GetConfigPath() string {
	if l.configPath != "" {
		return l.configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".hybridsolver", "config.json")
}

// setDefaults registers every key so HYBRID_* environment overrides apply
// even without a config file.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("email", d.Email)
	v.SetDefault("secret", d.Secret)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)

	v.SetDefault("providers.use_gemini", d.Providers.UseGemini)
	v.SetDefault("providers.gemini_model", d.Providers.GeminiModel)
	v.SetDefault("providers.secondary", d.Providers.Secondary)
	v.SetDefault("providers.primary_openai_model", d.Providers.PrimaryOpenAIModel)
	v.SetDefault("providers.fallback_openai_model", d.Providers.FallbackOpenAIModel)
	v.SetDefault("providers.openai_base_url", d.Providers.OpenAIBaseURL)
	v.SetDefault("providers.openai_api_key", d.Providers.OpenAIAPIKey)
	v.SetDefault("providers.anthropic_model", d.Providers.AnthropicModel)
	v.SetDefault("providers.anthropic_api_key", d.Providers.AnthropicAPIKey)
	v.SetDefault("providers.temperature", d.Providers.Temperature)
	v.SetDefault("providers.max_tokens", d.Providers.MaxTokens)
	v.SetDefault("providers.quota_indicators", d.Providers.QuotaIndicators)

	v.SetDefault("keys.env_prefix", d.Keys.EnvPrefix)
	v.SetDefault("keys.cooldown_schedule", d.Keys.CooldownSchedule)
	v.SetDefault("keys.requests_per_key", d.Keys.RequestsPerKey)

	v.SetDefault("cache.max_size", d.Cache.MaxSize)
	v.SetDefault("cache.default_ttl", d.Cache.DefaultTTL)

	v.SetDefault("http.timeout", d.HTTP.Timeout)
	v.SetDefault("http.max_conns", d.HTTP.MaxConns)
	v.SetDefault("http.max_idle_conns", d.HTTP.MaxIdleConns)
	v.SetDefault("http.idle_conn_timeout", d.HTTP.IdleConnTimeout)
	v.SetDefault("http.max_attempts", d.HTTP.MaxAttempts)
	v.SetDefault("http.initial_backoff", d.HTTP.InitialBackoff)
	v.SetDefault("http.max_backoff", d.HTTP.MaxBackoff)

	v.SetDefault("bridge.max_in_flight", d.Bridge.MaxInFlight)

	v.SetDefault("agent.max_attempts_per_question", d.Agent.MaxAttemptsPerQuestion)
	v.SetDefault("agent.max_tool_turns", d.Agent.MaxToolTurns)
	v.SetDefault("agent.question_time_budget", d.Agent.QuestionTimeBudget)

	v.SetDefault("tools.work_dir", d.Tools.WorkDir)
	v.SetDefault("tools.exec_timeout", d.Tools.ExecTimeout)
	v.SetDefault("tools.runner", d.Tools.Runner)
	v.SetDefault("tools.output_limit", d.Tools.OutputLimit)
	v.SetDefault("tools.browser.enabled", d.Tools.Browser.Enabled)
	v.SetDefault("tools.browser.headless", d.Tools.Browser.Headless)
	v.SetDefault("tools.browser.bin_path", d.Tools.Browser.BinPath)
	v.SetDefault("tools.browser.page_timeout", d.Tools.Browser.PageTimeout)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.dir", d.Logging.Dir)
	v.SetDefault("logging.console", d.Logging.Console)
	v.SetDefault("logging.pretty", d.Logging.Pretty)
	v.SetDefault("logging.redaction", d.Logging.Redaction)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_age", d.Logging.MaxAge)
	v.SetDefault("logging.compress", d.Logging.Compress)

	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.sample_ratio", d.Tracing.SampleRatio)
}

// Load reads the config file if present, then HYBRID_* overrides, then the
// provider variables (GOOGLE_API_KEY, OPENAI_API_KEY, TDS_EMAIL, ...).
func (l *Loader) Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	v.SetEnvPrefix("HYBRID")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, DefaultConfig())

	path := l.GetConfigPath()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if l.configPath != "" && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnv(cfg, l.getenv)
	return cfg, nil
}

// Save writes the non-secret part of cfg as JSON.
func (l *Loader) Save(cfg *Config) error {
	path := l.GetConfigPath()
	if path == "" {
		return fmt.Errorf("failed to resolve config path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(cfg.String()+"\n"), 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Load is a convenience function that creates a loader and loads the config
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
