package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// Validator validates configuration values
type Validator struct{}

// NewValidator creates a new validator
func NewValidator() *Validator {
	return &Validator{}
}

// ValidateAPIKey validates an API key format
func (v *Validator) ValidateAPIKey(key string, provider string) error {
	if key == "" {
		return fmt.Errorf("%s API key cannot be empty", provider)
	}

	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("invalid Anthropic API key format (should start with sk-ant-)")
		}
	case "gemini":
		if strings.ContainsAny(key, " \t\n") {
			return fmt.Errorf("invalid Gemini API key format (contains whitespace)")
		}
	}

	return nil
}

// ValidatePort validates a listen port
func (v *Validator) ValidatePort(port int) error {
	if port <= 0 || port > 65535 {
		return fmt.Errorf("server port must be in 1..65535, got %d", port)
	}
	return nil
}

// ValidateBaseURL validates an optional provider base URL
func (v *Validator) ValidateBaseURL(raw string) error {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base URL: %q", raw)
	}
	return nil
}

// ValidateSchedule validates a cron spec or descriptor such as "@every 1m".
func (v *Validator) ValidateSchedule(spec string) error {
	if spec == "" {
		return nil
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cooldown schedule %q: %w", spec, err)
	}
	return nil
}

// ValidateLogLevel validates log level
func (v *Validator) ValidateLogLevel(level string) error {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if level == valid {
			return nil
		}
	}
	return fmt.Errorf("invalid log level: %s (must be one of: %s)", level, strings.Join(validLevels, ", "))
}

// ValidateConfig performs comprehensive validation
func (v *Validator) ValidateConfig(cfg *Config) []error {
	var errs []error

	if err := v.ValidatePort(cfg.Server.Port); err != nil {
		errs = append(errs, err)
	}

	for i, k := range cfg.Keys.Values {
		if err := v.ValidateAPIKey(k, "gemini"); err != nil {
			errs = append(errs, fmt.Errorf("%s #%d: %w", cfg.Keys.EnvPrefix, i+1, err))
		}
	}
	if cfg.Providers.AnthropicAPIKey != "" {
		if err := v.ValidateAPIKey(cfg.Providers.AnthropicAPIKey, "anthropic"); err != nil {
			errs = append(errs, err)
		}
	}
	switch cfg.Providers.Secondary {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("providers.secondary must be openai or anthropic, got %q", cfg.Providers.Secondary))
	}
	if err := v.ValidateBaseURL(cfg.Providers.OpenAIBaseURL); err != nil {
		errs = append(errs, err)
	}
	if cfg.Keys.RequestsPerKey < 0 {
		errs = append(errs, fmt.Errorf("keys.requests_per_key must be >= 0"))
	}
	if err := v.ValidateSchedule(cfg.Keys.CooldownSchedule); err != nil {
		errs = append(errs, err)
	}

	if cfg.Cache.MaxSize <= 0 {
		errs = append(errs, fmt.Errorf("cache.max_size must be > 0"))
	}
	if cfg.Cache.DefaultTTL <= 0 {
		errs = append(errs, fmt.Errorf("cache.default_ttl must be > 0"))
	}

	if cfg.HTTP.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("http.max_attempts must be >= 1"))
	}
	if cfg.HTTP.InitialBackoff < 0 || cfg.HTTP.MaxBackoff < cfg.HTTP.InitialBackoff {
		errs = append(errs, fmt.Errorf("http backoff must satisfy 0 <= initial <= max"))
	}
	if cfg.HTTP.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("http.timeout must be > 0"))
	}

	if cfg.Bridge.MaxInFlight < 1 {
		errs = append(errs, fmt.Errorf("bridge.max_in_flight must be >= 1"))
	}
	if cfg.Agent.MaxAttemptsPerQuestion < 1 {
		errs = append(errs, fmt.Errorf("agent.max_attempts_per_question must be >= 1"))
	}
	if cfg.Tools.ExecTimeout <= 0 {
		errs = append(errs, fmt.Errorf("tools.exec_timeout must be > 0"))
	}

	if err := v.ValidateLogLevel(cfg.Logging.Level); err != nil {
		errs = append(errs, err)
	}

	return errs
}
