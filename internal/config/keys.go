package config

import (
	"fmt"
	"os"
	"strings"
)

// LoadKeys reads prefix, prefix_2, prefix_3, ... from getenv and stops at the
// first variable that is unset or blank.
func LoadKeys(getenv func(string) string, prefix string) []string {
	if getenv == nil {
		getenv = os.Getenv
	}

	var keys []string
	if k := strings.TrimSpace(getenv(prefix)); k != "" {
		keys = append(keys, k)
	} else {
		return nil
	}

	for i := 2; ; i++ {
		k := strings.TrimSpace(getenv(fmt.Sprintf("%s_%d", prefix, i)))
		if k == "" {
			return keys
		}
		keys = append(keys, k)
	}
}

func firstEnv(getenv func(string) string, names ...string) string {
	for _, n := range names {
		if v := strings.TrimSpace(getenv(n)); v != "" {
			return v
		}
	}
	return ""
}

// applyEnv copies the well-known provider and quiz variables onto cfg.
func applyEnv(cfg *Config, getenv func(string) string) {
	if v := firstEnv(getenv, "TDS_EMAIL", "EMAIL"); v != "" {
		cfg.Email = v
	}
	if v := firstEnv(getenv, "TDS_SECRET", "SECRET"); v != "" {
		cfg.Secret = v
	}
	if v := firstEnv(getenv, "USE_GEMINI"); v != "" {
		cfg.Providers.UseGemini = strings.EqualFold(v, "true") || v == "1"
	}
	if v := firstEnv(getenv, "GEMINI_MODEL"); v != "" {
		cfg.Providers.GeminiModel = v
	}
	if v := firstEnv(getenv, "PRIMARY_OPENAI_MODEL"); v != "" {
		cfg.Providers.PrimaryOpenAIModel = v
	}
	if v := firstEnv(getenv, "FALLBACK_OPENAI_MODEL"); v != "" {
		cfg.Providers.FallbackOpenAIModel = v
	}
	if v := firstEnv(getenv, "OPENAI_API_KEY"); v != "" {
		cfg.Providers.OpenAIAPIKey = v
	}
	if v := firstEnv(getenv, "OPENAI_BASE_URL"); v != "" {
		cfg.Providers.OpenAIBaseURL = v
	}
	if v := firstEnv(getenv, "ANTHROPIC_API_KEY"); v != "" {
		cfg.Providers.AnthropicAPIKey = v
	}

	cfg.Keys.Values = LoadKeys(getenv, cfg.Keys.EnvPrefix)
}
