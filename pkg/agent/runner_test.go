package agent

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/harun/hybridsolver/pkg/session"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedStepper answers each Step from a function of the request.
type scriptedStepper struct {
	mu    sync.Mutex
	steps int
	fn    func(n int, req LLMRequest) (StepResult, error)
}

func (s *scriptedStepper) Step(_ context.Context, req LLMRequest) (StepResult, error) {
	s.mu.Lock()
	s.steps++
	n := s.steps
	s.mu.Unlock()
	return s.fn(n, req)
}

func (s *scriptedStepper) Steps() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.steps
}

// fakeTools answers post_request calls from a map of url to outcome.
type fakeTools struct {
	mu       sync.Mutex
	outcomes map[string][]Submission
	executed []ToolCall
}

func (f *fakeTools) Specs() []ToolSpec {
	return []ToolSpec{{Name: "post_request", Description: "submit", Parameters: map[string]interface{}{"type": "object"}}}
}

func (f *fakeTools) Execute(_ context.Context, call ToolCall) ToolOutcome {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed = append(f.executed, call)

	url, _ := call.Parameters["question"].(string)
	queue := f.outcomes[url]
	if len(queue) == 0 {
		return ToolOutcome{Content: `{"error":"no outcome"}`}
	}
	sub := queue[0]
	if len(queue) > 1 {
		f.outcomes[url] = queue[1:]
	}
	return ToolOutcome{Content: `{"correct":` + boolString(sub.Correct) + `}`, Submission: &sub}
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func submit(question string) StepResult {
	return StepResult{Response: &LLMResponse{ToolCalls: []ToolCall{{
		Name:       "post_request",
		Parameters: map[string]interface{}{"question": question},
	}}}}
}

// currentQuestion is the question the runner has open.
func currentQuestion(tracker *session.Tracker) string {
	return tracker.Current()
}

func newTestRunner(t *testing.T, stepper Stepper, tools ToolExecutor, tracker *session.Tracker) *Runner {
	t.Helper()
	r, err := NewRunner(Config{
		Stepper:                stepper,
		Tools:                  tools,
		Tracker:                tracker,
		SystemPrompt:           "solve",
		MaxAttemptsPerQuestion: 3,
		MaxToolTurns:           20,
		Logger:                 zerolog.Nop(),
	})
	require.NoError(t, err)
	return r
}

func TestNewRunnerValidation(t *testing.T) {
	_, err := NewRunner(Config{Tools: &fakeTools{}})
	assert.Error(t, err)

	_, err = NewRunner(Config{Stepper: &scriptedStepper{}})
	assert.Error(t, err)
}

func TestRunFollowsChainToCompletion(t *testing.T) {
	tracker := session.NewTracker(0)
	tools := &fakeTools{outcomes: map[string][]Submission{
		"q1": {{URL: "q1", Correct: true, NextURL: "q2"}},
		"q2": {{URL: "q2", Correct: true}},
	}}
	stepper := &scriptedStepper{fn: func(n int, req LLMRequest) (StepResult, error) {
		return submit(currentQuestion(tracker)), nil
	}}
	r := newTestRunner(t, stepper, tools, tracker)

	summary, err := r.Run(context.Background(), "q1")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Correct)
	assert.Zero(t, summary.Wrong)
	assert.Equal(t, []string{"q1", "q2"}, summary.CorrectURLs)
	assert.Equal(t, 2, stepper.Steps())
}

func TestSolveEndsOnEndMarker(t *testing.T) {
	stepper := &scriptedStepper{fn: func(n int, req LLMRequest) (StepResult, error) {
		if n == 1 {
			return StepResult{Response: &LLMResponse{Content: "thinking"}}, nil
		}
		return StepResult{Response: &LLMResponse{Content: " END "}}, nil
	}}
	r := newTestRunner(t, stepper, &fakeTools{}, nil)

	require.NoError(t, r.Solve(context.Background(), "q1", "q1"))
	assert.Equal(t, 2, stepper.Steps())
}

func TestSolveKeepsTextRepliesInHistory(t *testing.T) {
	var seen []AgentMessage
	stepper := &scriptedStepper{fn: func(n int, req LLMRequest) (StepResult, error) {
		seen = req.Messages
		if n == 1 {
			return StepResult{Response: &LLMResponse{Content: "let me look"}}, nil
		}
		return StepResult{Response: &LLMResponse{Content: "END"}}, nil
	}}
	r := newTestRunner(t, stepper, &fakeTools{}, nil)

	require.NoError(t, r.Solve(context.Background(), "q1", "start here"))
	require.Len(t, seen, 2)
	assert.Equal(t, RoleUser, seen[0].Role)
	assert.Equal(t, "start here", seen[0].Content)
	assert.Equal(t, RoleAssistant, seen[1].Role)
	assert.Equal(t, "let me look", seen[1].Content)
}

func TestSolveStopsOnTerminate(t *testing.T) {
	stepper := &scriptedStepper{fn: func(n int, req LLMRequest) (StepResult, error) {
		return StepResult{Terminate: true, LastErr: errors.New("all providers down")}, nil
	}}
	r := newTestRunner(t, stepper, &fakeTools{}, nil)

	require.NoError(t, r.Solve(context.Background(), "q1", "q1"))
	assert.Equal(t, 1, stepper.Steps())
	assert.Equal(t, []string{"q1"}, r.Tracker().Wrong(), "an abandoned question is retried later")
}

func TestSolveStopsAfterAttemptBudget(t *testing.T) {
	tracker := session.NewTracker(0)
	tools := &fakeTools{outcomes: map[string][]Submission{
		"q1": {{URL: "q1", Correct: false}},
	}}
	stepper := &scriptedStepper{fn: func(n int, req LLMRequest) (StepResult, error) {
		return submit("q1"), nil
	}}
	r := newTestRunner(t, stepper, tools, tracker)

	require.NoError(t, r.Solve(context.Background(), "q1", "q1"))
	assert.Equal(t, 3, stepper.Steps(), "three wrong submissions exhaust a budget of three")
	assert.Equal(t, []string{"q1"}, tracker.Wrong())
}

func TestSolveAttemptCounterResetsOnNextURL(t *testing.T) {
	tracker := session.NewTracker(0)
	tools := &fakeTools{outcomes: map[string][]Submission{
		"q1": {
			{URL: "q1", Correct: false},
			{URL: "q1", Correct: false},
			{URL: "q1", Correct: false, NextURL: "q2"},
		},
		"q2": {{URL: "q2", Correct: true}},
	}}
	stepper := &scriptedStepper{fn: func(n int, req LLMRequest) (StepResult, error) {
		return submit(currentQuestion(tracker)), nil
	}}
	r := newTestRunner(t, stepper, tools, tracker)

	require.NoError(t, r.Solve(context.Background(), "q1", "q1"))

	summary := tracker.Summary()
	assert.Equal(t, []string{"q2"}, summary.CorrectURLs)
	assert.Equal(t, []string{"q1"}, summary.WrongURLs)
	assert.Zero(t, tracker.Attempts())
}

func TestSolveTurnLimit(t *testing.T) {
	stepper := &scriptedStepper{fn: func(n int, req LLMRequest) (StepResult, error) {
		return StepResult{Response: &LLMResponse{Content: "still working"}}, nil
	}}
	r := newTestRunner(t, stepper, &fakeTools{}, nil)

	require.NoError(t, r.Solve(context.Background(), "q1", "q1"))
	assert.Equal(t, 20, stepper.Steps())
	assert.Equal(t, []string{"q1"}, r.Tracker().Wrong())
}

func TestSolveAssignsMissingToolCallIDs(t *testing.T) {
	tools := &fakeTools{}
	stepper := &scriptedStepper{fn: func(n int, req LLMRequest) (StepResult, error) {
		if n == 1 {
			return StepResult{Response: &LLMResponse{ToolCalls: []ToolCall{{Name: "post_request"}}}}, nil
		}
		last := req.Messages[len(req.Messages)-1]
		if last.Role != RoleTool || last.ToolCallID == "" || last.ToolName != "post_request" {
			return StepResult{}, errors.New("tool result not linked to call")
		}
		return StepResult{Response: &LLMResponse{Content: "END"}}, nil
	}}
	r := newTestRunner(t, stepper, tools, nil)

	require.NoError(t, r.Solve(context.Background(), "q1", "q1"))
	require.Len(t, tools.executed, 1)
	assert.True(t, strings.HasPrefix(tools.executed[0].ID, "call_"))
}

func TestSolveReturnsStepperError(t *testing.T) {
	stepper := &scriptedStepper{fn: func(n int, req LLMRequest) (StepResult, error) {
		return StepResult{}, context.Canceled
	}}
	r := newTestRunner(t, stepper, &fakeTools{}, nil)

	assert.ErrorIs(t, r.Solve(context.Background(), "q1", "q1"), context.Canceled)
}

func TestRunRetriesWrongQuestions(t *testing.T) {
	tracker := session.NewTracker(0)
	tools := &fakeTools{outcomes: map[string][]Submission{
		"q1": {
			{URL: "q1", Correct: false, NextURL: "q2"},
			{URL: "q1", Correct: true},
		},
		"q2": {{URL: "q2", Correct: true}},
	}}
	var prompts []string
	stepper := &scriptedStepper{fn: func(n int, req LLMRequest) (StepResult, error) {
		if len(req.Messages) == 1 {
			prompts = append(prompts, req.Messages[0].Content)
		}
		return submit(currentQuestion(tracker)), nil
	}}
	r := newTestRunner(t, stepper, tools, tracker)

	summary, err := r.Run(context.Background(), "q1")
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Correct)
	assert.Zero(t, summary.Wrong)
	require.Len(t, prompts, 2)
	assert.Equal(t, "q1", prompts[0])
	assert.Equal(t, "Retry this question from scratch:\nq1", prompts[1])
}

func TestRunStopsWhenRetryMakesNoProgress(t *testing.T) {
	tracker := session.NewTracker(0)
	tools := &fakeTools{outcomes: map[string][]Submission{
		"q1": {{URL: "q1", Correct: false, NextURL: "q2"}},
		"q2": {{URL: "q2", Correct: true}},
	}}
	stepper := &scriptedStepper{fn: func(n int, req LLMRequest) (StepResult, error) {
		if tracker.Current() == "q1" && n > 2 {
			// Retries of q1 give up immediately.
			return StepResult{Response: &LLMResponse{Content: "END"}}, nil
		}
		return submit(currentQuestion(tracker)), nil
	}}
	r := newTestRunner(t, stepper, tools, tracker)

	summary, err := r.Run(context.Background(), "q1")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Correct)
	assert.Equal(t, []string{"q1"}, summary.WrongURLs)
	// first pass: 2 steps; one retry pass: 1 step; second retry pass skipped.
	assert.Equal(t, 3, stepper.Steps())
}

func TestRunResetsTracker(t *testing.T) {
	tracker := session.NewTracker(0)
	tracker.Record("stale", false)

	stepper := &scriptedStepper{fn: func(n int, req LLMRequest) (StepResult, error) {
		return StepResult{Response: &LLMResponse{Content: "END"}}, nil
	}}
	r := newTestRunner(t, stepper, &fakeTools{}, tracker)

	summary, err := r.Run(context.Background(), "q1")
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
}

func TestRunRetriesAbandonedQuestionOnce(t *testing.T) {
	stepper := &scriptedStepper{fn: func(n int, req LLMRequest) (StepResult, error) {
		return StepResult{Terminate: true, LastErr: errors.New("quota")}, nil
	}}
	r := newTestRunner(t, stepper, &fakeTools{}, nil)

	summary, err := r.Run(context.Background(), "q1")
	require.NoError(t, err)

	assert.Equal(t, []string{"q1"}, summary.WrongURLs)
	// first pass plus one retry pass; the second retry pass makes no progress.
	assert.Equal(t, 2, stepper.Steps())
}
