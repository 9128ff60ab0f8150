package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/harun/hybridsolver/internal/config"
	"github.com/harun/hybridsolver/internal/observability"
	"github.com/harun/hybridsolver/internal/tracing"
	"github.com/harun/hybridsolver/pkg/agent"
	"github.com/harun/hybridsolver/pkg/bridge"
	"github.com/harun/hybridsolver/pkg/cache"
	"github.com/harun/hybridsolver/pkg/httpclient"
	"github.com/harun/hybridsolver/pkg/keypool"
	"github.com/harun/hybridsolver/pkg/sandbox"
	"github.com/harun/hybridsolver/pkg/session"
	"github.com/harun/hybridsolver/pkg/tools"
	"github.com/rs/zerolog"
)

const serviceName = "hybridsolver"

// App owns every long-lived service of the solver. It is the only place
// the key pool, cache, bridge, HTTP client and tracker are created.
type App struct {
	config *config.Config
	logger zerolog.Logger

	pool     *keypool.Pool
	cooldown *keypool.CooldownScheduler
	cache    *cache.Cache
	bridge   *bridge.Bridge
	http     *httpclient.Client
	sandbox  *sandbox.HostSandbox
	tracker  *session.Tracker
	toolset  *tools.Toolset
	registry *tools.Registry

	orchestrator *agent.Orchestrator
	runner       *agent.Runner

	tracingEnabled bool
	closers        []func(ctx context.Context) error
}

// New validates cfg and builds the services in dependency order. On failure
// anything already started is shut down.
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	if cfg == nil {
		return nil, errors.New("app: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	observability.EnsureRegistered()
	a := &App{config: cfg, logger: logger.With().Str("component", "app").Logger()}

	if cfg.Tracing.Enabled {
		if err := tracing.InitOpenTelemetry(serviceName, cfg.Tracing.SampleRatio); err != nil {
			a.logger.Warn().Err(err).Msg("Failed to initialize tracing, continuing without it")
		} else {
			a.tracingEnabled = true
			a.onClose(tracing.ShutdownOpenTelemetry)
		}
	}

	if err := a.initCore(ctx, logger); err != nil {
		_ = a.Close(context.Background())
		return nil, fmt.Errorf("failed to initialize core services: %w", err)
	}
	if err := a.initTools(logger); err != nil {
		_ = a.Close(context.Background())
		return nil, fmt.Errorf("failed to initialize tools: %w", err)
	}
	if err := a.initAgent(logger); err != nil {
		_ = a.Close(context.Background())
		return nil, fmt.Errorf("failed to initialize agent: %w", err)
	}

	a.logger.Info().
		Bool("gemini", a.pool != nil).
		Bool("secondary", cfg.HasSecondary()).
		Strs("tools", a.registry.Names()).
		Msg("Solver ready")
	return a, nil
}

func (a *App) onClose(fn func(ctx context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *App) initCore(ctx context.Context, logger zerolog.Logger) error {
	cfg := a.config

	if cfg.Providers.UseGemini && len(cfg.Keys.Values) > 0 {
		pool, err := keypool.New(cfg.Keys.Values, keypool.Options{
			RequestsPerKey: cfg.Keys.RequestsPerKey,
			Logger:         logger,
		})
		if err != nil {
			return fmt.Errorf("key pool: %w", err)
		}
		a.pool = pool

		cooldown, err := keypool.NewCooldownScheduler(pool, cfg.Keys.CooldownSchedule, logger)
		if err != nil {
			return err
		}
		cooldown.Start()
		a.cooldown = cooldown
		a.onClose(func(context.Context) error {
			cooldown.Stop()
			return nil
		})
	}

	a.cache = cache.New(cache.Options{
		MaxSize:    cfg.Cache.MaxSize,
		DefaultTTL: cfg.Cache.DefaultTTL,
		Logger:     logger,
	})
	a.onClose(func(context.Context) error {
		a.cache.Clear()
		return nil
	})

	b, err := bridge.New(bridge.Options{MaxInFlight: cfg.Bridge.MaxInFlight, Logger: logger})
	if err != nil {
		return err
	}
	a.bridge = b
	a.onClose(b.Shutdown)

	a.http = httpclient.New(httpclient.Options{
		Timeout:         cfg.HTTP.Timeout,
		MaxConns:        cfg.HTTP.MaxConns,
		MaxIdleConns:    cfg.HTTP.MaxIdleConns,
		IdleConnTimeout: cfg.HTTP.IdleConnTimeout,
		MaxAttempts:     cfg.HTTP.MaxAttempts,
		InitialBackoff:  cfg.HTTP.InitialBackoff,
		MaxBackoff:      cfg.HTTP.MaxBackoff,
		Logger:          logger,
	})
	a.onClose(func(context.Context) error { return a.http.Close() })

	sbCfg := sandbox.DefaultConfig()
	sbCfg.WorkDir = cfg.Tools.WorkDir
	sbCfg.Timeout = cfg.Tools.ExecTimeout
	sb, err := sandbox.NewHostSandbox(sbCfg)
	if err != nil {
		return fmt.Errorf("sandbox: %w", err)
	}
	if err := sb.Start(ctx); err != nil {
		return fmt.Errorf("sandbox: %w", err)
	}
	a.sandbox = sb
	a.onClose(sb.Stop)

	a.tracker = session.NewTracker(cfg.Agent.QuestionTimeBudget)
	return nil
}

func (a *App) initTools(logger zerolog.Logger) error {
	cfg := a.config

	var renderer tools.Renderer
	if cfg.Tools.Browser.Enabled {
		renderer = tools.NewRodRenderer(tools.RodOptions{
			Headless:    cfg.Tools.Browser.Headless,
			BinPath:     cfg.Tools.Browser.BinPath,
			PageTimeout: cfg.Tools.Browser.PageTimeout,
			Logger:      logger,
		})
	}

	toolset, err := tools.New(tools.Deps{
		HTTP:           a.http,
		Cache:          a.cache,
		Bridge:         a.bridge,
		Sandbox:        a.sandbox,
		Tracker:        a.tracker,
		Renderer:       renderer,
		WorkDir:        a.sandbox.WorkDir(),
		Runner:         cfg.Tools.Runner,
		ExecTimeout:    cfg.Tools.ExecTimeout,
		HTMLTTL:        cfg.Cache.DefaultTTL,
		QuestionBudget: cfg.Agent.QuestionTimeBudget,
		Logger:         logger,
	})
	if err != nil {
		return err
	}
	a.toolset = toolset
	a.onClose(func(context.Context) error { return toolset.Close() })

	a.registry = tools.NewRegistry(tools.RegistryOptions{
		OutputLimit: cfg.Tools.OutputLimit,
		Logger:      logger,
	})
	return toolset.Register(a.registry)
}

func (a *App) initAgent(logger zerolog.Logger) error {
	cfg := a.config.Providers

	// LLM calls share the pooled transport but not the per-request timeout
	// meant for quiz pages.
	llmClient := &http.Client{Transport: a.http.HTTPClient().Transport}

	orchCfg := agent.OrchestratorConfig{
		Classifier: agent.NewDefaultClassifier(cfg.QuotaIndicators...),
		Logger:     logger,
	}

	if a.pool != nil {
		primary, err := agent.NewProvider(agent.ProviderConfig{Name: agent.ProviderGemini, HTTPClient: llmClient})
		if err != nil {
			return err
		}
		orchCfg.Primary = primary
		orchCfg.PrimaryModel = cfg.GeminiModel
		orchCfg.Pool = a.pool
	}

	if a.config.HasSecondary() {
		secondary, model, err := a.secondaryProvider(llmClient)
		if err != nil {
			return err
		}
		orchCfg.Secondary = secondary
		orchCfg.SecondaryModel = model
	}

	orch, err := agent.NewOrchestrator(orchCfg)
	if err != nil {
		return err
	}
	a.orchestrator = orch

	runner, err := agent.NewRunner(agent.Config{
		Stepper:                orch,
		Tools:                  a.registry,
		Tracker:                a.tracker,
		SystemPrompt:           SystemPrompt(a.config.Email, a.config.Secret),
		Temperature:            cfg.Temperature,
		MaxTokens:              cfg.MaxTokens,
		MaxAttemptsPerQuestion: a.config.Agent.MaxAttemptsPerQuestion,
		MaxToolTurns:           a.config.Agent.MaxToolTurns,
		Logger:                 logger,
	})
	if err != nil {
		return err
	}
	a.runner = runner
	return nil
}

// secondaryProvider builds the fallback provider. OpenAI uses the fallback
// model when Gemini is primary and the primary model otherwise.
func (a *App) secondaryProvider(hc *http.Client) (agent.LLMProvider, string, error) {
	cfg := a.config.Providers

	if cfg.Secondary == agent.ProviderAnthropic {
		p, err := agent.NewProvider(agent.ProviderConfig{
			Name:       agent.ProviderAnthropic,
			APIKey:     cfg.AnthropicAPIKey,
			HTTPClient: hc,
		})
		return p, cfg.AnthropicModel, err
	}

	model := cfg.PrimaryOpenAIModel
	if a.pool != nil {
		model = cfg.FallbackOpenAIModel
	}
	p, err := agent.NewProvider(agent.ProviderConfig{
		Name:       agent.ProviderOpenAI,
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		HTTPClient: hc,
	})
	return p, model, err
}

// Runner returns the quiz runner.
func (a *App) Runner() *agent.Runner { return a.runner }

// Tracker returns the session tracker.
func (a *App) Tracker() *session.Tracker { return a.tracker }

// Pool returns the primary key pool, or nil when Gemini is not in use.
func (a *App) Pool() *keypool.Pool { return a.pool }

// Registry returns the tool registry.
func (a *App) Registry() *tools.Registry { return a.registry }

// Config returns the configuration the app was built from.
func (a *App) Config() *config.Config { return a.config }

// Close shuts services down in reverse construction order and returns the
// joined errors.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if err := errors.Join(errs...); err != nil {
		a.logger.Warn().Err(err).Msg("Errors during shutdown")
		return err
	}
	a.logger.Info().Msg("Solver stopped")
	return nil
}
