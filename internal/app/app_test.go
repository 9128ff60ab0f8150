package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/harun/hybridsolver/internal/config"
	"github.com/harun/hybridsolver/pkg/tools"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Email = "student@example.com"
	cfg.Secret = "s3cret"
	cfg.Tools.WorkDir = t.TempDir()
	cfg.Tools.Browser.Enabled = false
	cfg.Logging.Dir = ""
	return cfg
}

func closeApp(t *testing.T, a *App) {
	t.Helper()
	require.NoError(t, a.Close(context.Background()))
}

func TestNewRequiresCredentials(t *testing.T) {
	cfg := testConfig(t)

	_, err := New(context.Background(), cfg, zerolog.Nop())
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrNoCredentials)
}

func TestNewWithGeminiKeys(t *testing.T) {
	cfg := testConfig(t)
	cfg.Keys.Values = []string{"key-one", "key-two", "key-three"}

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer closeApp(t, a)

	require.NotNil(t, a.Pool())
	assert.Equal(t, 3, a.Pool().Size())
	assert.NotNil(t, a.Runner())
	assert.Same(t, a.Tracker(), a.Runner().Tracker())
	assert.Equal(t, []string{
		tools.ToolAddDependencies,
		tools.ToolDownloadFile,
		tools.ToolExtractContext,
		tools.ToolGetRenderedHTML,
		tools.ToolPostRequest,
		tools.ToolRunCode,
	}, a.Registry().Names())
}

func TestNewSecondaryOnly(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers.UseGemini = false
	cfg.Keys.Values = []string{"ignored"}
	cfg.Providers.OpenAIAPIKey = "sk-test"

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer closeApp(t, a)

	assert.Nil(t, a.Pool())
	assert.Same(t, cfg, a.Config())
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers.OpenAIAPIKey = "sk-test"
	cfg.Keys.CooldownSchedule = "not a schedule"

	_, err := New(context.Background(), cfg, zerolog.Nop())
	assert.Error(t, err)
}

func TestRunAgainstOpenAICompatibleServer(t *testing.T) {
	var calls atomic.Int32
	llm := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"created": 1,
			"model": "gpt-4o-mini",
			"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "END"}}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 1, "total_tokens": 11}
		}`))
	}))
	defer llm.Close()

	cfg := testConfig(t)
	cfg.Providers.UseGemini = false
	cfg.Providers.OpenAIAPIKey = "sk-test"
	cfg.Providers.OpenAIBaseURL = llm.URL + "/v1/"

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)
	defer closeApp(t, a)

	summary, err := a.Runner().Run(context.Background(), "https://quiz.example/q1")
	require.NoError(t, err)
	assert.Zero(t, summary.Correct)
	assert.Zero(t, summary.Wrong)
	assert.Equal(t, int32(1), calls.Load())
}

func TestCloseIsIdempotent(t *testing.T) {
	cfg := testConfig(t)
	cfg.Providers.OpenAIAPIKey = "sk-test"

	a, err := New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, a.Close(context.Background()))
	require.NoError(t, a.Close(context.Background()))
}

func TestSystemPromptCarriesCredentials(t *testing.T) {
	prompt := SystemPrompt("me@example.com", "hunter2")
	assert.Contains(t, prompt, "email = me@example.com")
	assert.Contains(t, prompt, "secret = hunter2")
	assert.Contains(t, prompt, "END")
	assert.Contains(t, prompt, tools.LastBase64Marker)
}
