package agent

import (
	"context"
	"errors"
	"time"

	"github.com/harun/hybridsolver/internal/observability"
	"github.com/harun/hybridsolver/internal/tracing"
	"github.com/harun/hybridsolver/pkg/keypool"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// OrchestratorConfig holds orchestrator dependencies.
type OrchestratorConfig struct {
	// Primary is tried once per pooled key. Nil disables the primary.
	Primary      LLMProvider
	PrimaryModel string
	Pool         *keypool.Pool

	// Secondary is tried once when the primary yields nothing usable.
	Secondary      LLMProvider
	SecondaryModel string

	Classifier Classifier
	Logger     zerolog.Logger
}

// StepResult is the outcome of one orchestrated model call.
type StepResult struct {
	Response *LLMResponse
	Provider string
	// PrimaryAttempts counts primary calls made during the step.
	PrimaryAttempts int
	// Terminate is set when no provider produced a usable response.
	Terminate bool
	// LastErr is the last provider failure seen, if any.
	LastErr error
}

// Orchestrator calls the primary provider across the key pool and falls back
// to the secondary provider.
type Orchestrator struct {
	primary        LLMProvider
	primaryModel   string
	pool           *keypool.Pool
	secondary      LLMProvider
	secondaryModel string
	classifier     Classifier
	logger         zerolog.Logger
}

// NewOrchestrator validates cfg and builds an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig) (*Orchestrator, error) {
	if cfg.Primary == nil && cfg.Secondary == nil {
		return nil, errors.New("agent: at least one provider is required")
	}
	if cfg.Primary != nil && cfg.Pool == nil {
		return nil, errors.New("agent: primary provider requires a key pool")
	}
	if cfg.Classifier == nil {
		cfg.Classifier = NewDefaultClassifier()
	}
	observability.EnsureRegistered()

	return &Orchestrator{
		primary:        cfg.Primary,
		primaryModel:   cfg.PrimaryModel,
		pool:           cfg.Pool,
		secondary:      cfg.Secondary,
		secondaryModel: cfg.SecondaryModel,
		classifier:     cfg.Classifier,
		logger:         cfg.Logger.With().Str("component", "orchestrator").Logger(),
	}, nil
}

// Step produces the next model response. The returned error is non-nil only
// when ctx is done; provider failures are reported through StepResult.
func (o *Orchestrator) Step(ctx context.Context, req LLMRequest) (StepResult, error) {
	logger := tracing.LoggerFromContext(ctx, o.logger)
	var res StepResult

	if o.primary != nil {
		attempts := o.pool.Size()
		for i := 0; i < attempts; i++ {
			if err := o.pool.Wait(ctx); err != nil {
				return res, err
			}
			key := o.pool.Next()
			res.PrimaryAttempts++

			preq := req
			preq.Model = o.primaryModel
			preq.APIKey = key
			resp, err := o.call(ctx, o.primary, preq)
			if err == nil {
				res.Response = resp
				res.Provider = o.primary.Provider()
				return res, nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			res.LastErr = err

			var perr *ProviderError
			if errors.As(err, &perr) && perr.Kind == KindQuotaExceeded {
				logger.Warn().
					Str("key", keypool.Preview(key)).
					Int("attempt", i+1).
					Int("of", attempts).
					Msg("Primary key exhausted, rotating")
				o.pool.MarkExhausted()
				o.pool.Rotate()
				continue
			}

			logger.Warn().Err(err).Msg("Primary provider failed, falling back")
			break
		}
		observability.RecordFallback()
	}

	if o.secondary == nil {
		res.Terminate = true
		return res, nil
	}

	sreq := req
	sreq.Model = o.secondaryModel
	sreq.APIKey = ""
	resp, err := o.call(ctx, o.secondary, sreq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, ctxErr
		}
		logger.Error().Err(err).Msg("Secondary provider failed")
		res.LastErr = err
		res.Terminate = true
		return res, nil
	}

	res.Response = resp
	res.Provider = o.secondary.Provider()
	return res, nil
}

// call wraps a single provider call with classification, span and metrics.
// Empty responses are reported as KindEmptyResponse failures.
func (o *Orchestrator) call(ctx context.Context, p LLMProvider, req LLMRequest) (*LLMResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "agent.provider_call",
		attribute.String("provider", p.Provider()),
		attribute.String("model", req.Model),
	)
	defer span.End()

	start := time.Now()
	resp, err := p.Call(ctx, req)
	if err == nil && resp.Empty() {
		err = ErrEmptyResponse
	}
	if err != nil {
		kind := o.classifier.Classify(err)
		observability.RecordProviderCall(p.Provider(), string(kind), time.Since(start))
		perr := &ProviderError{Provider: p.Provider(), Kind: kind, Err: err}
		tracing.RecordError(span, perr)
		return nil, perr
	}

	observability.RecordProviderCall(p.Provider(), "ok", time.Since(start))
	return resp, nil
}
