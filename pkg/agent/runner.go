package agent

import (
	"context"
	"errors"
	"fmt"

	"github.com/harun/hybridsolver/internal/observability"
	"github.com/harun/hybridsolver/internal/tracing"
	"github.com/harun/hybridsolver/pkg/session"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
)

// Runner defaults.
const (
	DefaultMaxAttemptsPerQuestion = 15
	DefaultMaxToolTurns           = 40
)

// ToolExecutor runs tool calls requested by the model.
type ToolExecutor interface {
	Specs() []ToolSpec
	Execute(ctx context.Context, call ToolCall) ToolOutcome
}

// Stepper produces the next model response for a conversation.
type Stepper interface {
	Step(ctx context.Context, req LLMRequest) (StepResult, error)
}

// Config holds runner configuration
type Config struct {
	Stepper      Stepper
	Tools        ToolExecutor
	Tracker      *session.Tracker
	SystemPrompt string
	Temperature  float64
	MaxTokens    int

	// MaxAttemptsPerQuestion bounds wrong submissions per question.
	MaxAttemptsPerQuestion int
	// MaxToolTurns bounds model steps per conversation.
	MaxToolTurns int

	Logger zerolog.Logger
}

// Runner drives the tool loop for a quiz chain and its retry passes.
type Runner struct {
	stepper      Stepper
	tools        ToolExecutor
	tracker      *session.Tracker
	systemPrompt string
	temperature  float64
	maxTokens    int
	maxAttempts  int
	maxTurns     int
	logger       zerolog.Logger
}

// NewRunner creates a new agent runner
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Stepper == nil {
		return nil, errors.New("agent: stepper is required")
	}
	if cfg.Tools == nil {
		return nil, errors.New("agent: tool executor is required")
	}
	if cfg.Tracker == nil {
		cfg.Tracker = session.NewTracker(0)
	}
	if cfg.MaxAttemptsPerQuestion <= 0 {
		cfg.MaxAttemptsPerQuestion = DefaultMaxAttemptsPerQuestion
	}
	if cfg.MaxToolTurns <= 0 {
		cfg.MaxToolTurns = DefaultMaxToolTurns
	}
	observability.EnsureRegistered()

	return &Runner{
		stepper:      cfg.Stepper,
		tools:        cfg.Tools,
		tracker:      cfg.Tracker,
		systemPrompt: cfg.SystemPrompt,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		maxAttempts:  cfg.MaxAttemptsPerQuestion,
		maxTurns:     cfg.MaxToolTurns,
		logger:       cfg.Logger.With().Str("component", "runner").Logger(),
	}, nil
}

// Tracker returns the session tracker the runner records into.
func (r *Runner) Tracker() *session.Tracker {
	return r.tracker
}

// Run solves the quiz chain starting at url, then retries wrong questions
// until none remain or a retry pass makes no progress. It returns the final
// summary; only a cancelled ctx yields an error.
func (r *Runner) Run(ctx context.Context, url string) (session.Summary, error) {
	ctx = tracing.NewRunContext(ctx)
	ctx, span := tracing.StartSpan(ctx, "agent.run", attribute.String("url", url))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.logger)

	r.tracker.Reset()
	logger.Info().Str("url", url).Msg("Run started")

	if err := r.Solve(ctx, url, url); err != nil {
		tracing.RecordError(span, err)
		return r.tracker.Summary(), err
	}
	observability.RecordRunPass()

	prevCorrect := -1
	for pass := 1; ; pass++ {
		summary := r.tracker.Summary()
		if len(summary.WrongURLs) == 0 {
			break
		}
		if summary.Correct == prevCorrect {
			logger.Info().Int("pass", pass).Int("correct", summary.Correct).Msg("No progress in retry, stopping")
			break
		}
		prevCorrect = summary.Correct

		logger.Info().Int("pass", pass).Int("wrong", len(summary.WrongURLs)).Msg("Retrying wrong questions")
		for _, wrong := range summary.WrongURLs {
			prompt := fmt.Sprintf("Retry this question from scratch:\n%s", wrong)
			if err := r.Solve(ctx, wrong, prompt); err != nil {
				tracing.RecordError(span, err)
				return r.tracker.Summary(), err
			}
		}
		observability.RecordRunPass()
	}

	final := r.tracker.Summary()
	logger.Info().
		Int("correct", final.Correct).
		Int("wrong", final.Wrong).
		Int("total", final.Total).
		Msg("Run finished")
	return final, nil
}

// Solve runs one conversation starting at url with the given opening prompt.
// It ends when the model replies END, the attempt budget for the current
// question is spent, no provider answers, or the turn limit is reached.
func (r *Runner) Solve(ctx context.Context, url, prompt string) error {
	ctx = tracing.WithQuestionURL(ctx, url)
	logger := tracing.LoggerFromContext(ctx, r.logger)

	r.tracker.Open(url)
	messages := []AgentMessage{{Role: RoleUser, Content: prompt}}
	specs := r.tools.Specs()

	for turn := 0; turn < r.maxTurns; turn++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempts := r.tracker.Attempts(); attempts >= r.maxAttempts {
			logger.Warn().Int("attempts", attempts).Str("question", r.tracker.Current()).Msg("Max attempts reached for question")
			return nil
		}

		res, err := r.stepper.Step(ctx, LLMRequest{
			Messages:     messages,
			Tools:        specs,
			Temperature:  r.temperature,
			MaxTokens:    r.maxTokens,
			SystemPrompt: r.systemPrompt,
		})
		if err != nil {
			return err
		}
		if res.Terminate {
			logger.Error().Err(res.LastErr).Msg("No provider produced a response, ending conversation")
			r.abandon(logger)
			return nil
		}

		resp := res.Response
		if len(resp.ToolCalls) == 0 {
			if IsEnd(resp.Content) {
				logger.Info().Int("turn", turn).Msg("Model ended conversation")
				return nil
			}
			messages = append(messages, AgentMessage{Role: RoleAssistant, Content: resp.Content})
			continue
		}

		calls := make([]ToolCall, len(resp.ToolCalls))
		for i, call := range resp.ToolCalls {
			if call.ID == "" {
				call.ID = fmt.Sprintf("call_%d_%d", turn, i)
			}
			calls[i] = call
		}
		messages = append(messages, AgentMessage{Role: RoleAssistant, Content: resp.Content, ToolCalls: calls})

		done := false
		for _, call := range calls {
			out := r.tools.Execute(ctx, call)
			messages = append(messages, AgentMessage{
				Role:       RoleTool,
				Content:    out.Content,
				ToolCallID: call.ID,
				ToolName:   call.Name,
			})
			if out.Submission != nil && r.recordSubmission(logger, out.Submission) {
				done = true
			}
		}
		if done {
			logger.Info().Msg("Quiz chain complete")
			return nil
		}
	}

	logger.Warn().Int("turns", r.maxTurns).Msg("Turn limit reached")
	r.abandon(logger)
	return nil
}

// abandon records the open question as wrong unless it was already solved,
// so the retry passes pick it up.
func (r *Runner) abandon(logger zerolog.Logger) {
	url := r.tracker.Current()
	if url == "" || r.tracker.IsCorrect(url) {
		return
	}
	r.tracker.Record(url, false)
	logger.Info().Str("question", url).Msg("Question abandoned, marked wrong")
}

// recordSubmission updates the tracker from a submission outcome. It reports
// true when the chain has no further question.
func (r *Runner) recordSubmission(logger zerolog.Logger, sub *Submission) bool {
	url := sub.URL
	if url == "" {
		url = r.tracker.Current()
	}
	r.tracker.Record(url, sub.Correct)
	observability.RecordSubmission(sub.Correct)

	if !sub.Correct {
		attempts := r.tracker.IncAttempt()
		logger.Info().Str("question", url).Int("attempts", attempts).Str("reason", sub.Reason).Msg("Wrong answer")
	}
	if sub.NextURL != "" {
		logger.Info().Str("question", url).Str("next", sub.NextURL).Bool("correct", sub.Correct).Msg("Moving to next question")
		r.tracker.Open(sub.NextURL)
		return false
	}
	return sub.Correct
}
