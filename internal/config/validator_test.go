package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidator(t *testing.T) {
	v := NewValidator()

	t.Run("api keys", func(t *testing.T) {
		assert.Error(t, v.ValidateAPIKey("", "openai"))
		assert.NoError(t, v.ValidateAPIKey("sk-ant-abc", "anthropic"))
		assert.Error(t, v.ValidateAPIKey("sk-abc", "anthropic"))
		assert.Error(t, v.ValidateAPIKey("AIza with space", "gemini"))
		assert.NoError(t, v.ValidateAPIKey("AIzaSyOK", "gemini"))
	})

	t.Run("port", func(t *testing.T) {
		assert.NoError(t, v.ValidatePort(8000))
		assert.Error(t, v.ValidatePort(0))
		assert.Error(t, v.ValidatePort(70000))
	})

	t.Run("base url", func(t *testing.T) {
		assert.NoError(t, v.ValidateBaseURL(""))
		assert.NoError(t, v.ValidateBaseURL("https://api.example.com/v1"))
		assert.Error(t, v.ValidateBaseURL("not a url"))
	})

	t.Run("schedule", func(t *testing.T) {
		assert.NoError(t, v.ValidateSchedule("@every 1m"))
		assert.NoError(t, v.ValidateSchedule("*/5 * * * *"))
		assert.Error(t, v.ValidateSchedule("whenever"))
	})

	t.Run("log level", func(t *testing.T) {
		assert.NoError(t, v.ValidateLogLevel("debug"))
		assert.Error(t, v.ValidateLogLevel("verbose"))
	})
}

func TestValidateConfigDefaultsAreValid(t *testing.T) {
	assert.Empty(t, NewValidator().ValidateConfig(DefaultConfig()))
}
