package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/harun/hybridsolver/pkg/agent"
	"github.com/harun/hybridsolver/pkg/bridge"
	"github.com/harun/hybridsolver/pkg/httpclient"
)

const maxSubmittedAnswer = 100

// SubmitResult is the post_request result for a parsed server reply.
type SubmitResult struct {
	Success         bool     `json:"success"`
	Correct         bool     `json:"correct"`
	Delay           float64  `json:"delay"`
	Reason          string   `json:"reason"`
	SubmittedAnswer string   `json:"submitted_answer"`
	URL             string   `json:"url,omitempty"`
	CanRetry        *bool    `json:"can_retry,omitempty"`
	TimeRemaining   *float64 `json:"time_remaining,omitempty"`
	Suggestion      string   `json:"suggestion,omitempty"`

	question string
}

// Submission implements Submitter.
func (r *SubmitResult) Submission() *agent.Submission {
	return &agent.Submission{
		URL:     r.question,
		Correct: r.Correct,
		NextURL: r.URL,
		Reason:  r.Reason,
	}
}

type serverReply struct {
	Correct bool     `json:"correct"`
	URL     string   `json:"url"`
	Reason  string   `json:"reason"`
	Delay   *float64 `json:"delay"`
}

func (t *Toolset) postRequest(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	header := http.Header{}
	for k, v := range mapParam(params, "headers") {
		if s, ok := v.(string); ok {
			header.Set(k, s)
		}
	}
	return t.Submit(ctx, stringParam(params, "url"), mapParam(params, "payload"), header)
}

// Submit posts payload to target and interprets the grader's reply. A reply
// that is not JSON yields an ErrorResponse value; transport and status
// failures are returned as errors.
func (t *Toolset) Submit(ctx context.Context, target string, payload map[string]interface{}, header http.Header) (interface{}, error) {
	if target == "" {
		return nil, fmt.Errorf("url is required")
	}

	body := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		body[k] = v
	}
	if body["answer"] == LastBase64Marker {
		if img := t.state.LastBase64(); img != "" {
			body["answer"] = img
			t.logger.Info().Int("chars", len(img)).Msg("Submitting stored base64 image")
		} else {
			t.logger.Warn().Msg("No stored base64 image for " + LastBase64Marker)
		}
	}

	question, _ := body["url"].(string)
	answer := fmt.Sprint(body["answer"])
	if body["answer"] == nil {
		answer = ""
	}
	elapsed := t.elapsed()

	t.logger.Info().
		Str("target", target).
		Str("question", question).
		Str("answer", truncate(answer, 200)).
		Dur("elapsed", elapsed).
		Msg("Submitting answer")

	resp, err := bridge.Run(ctx, t.bridge, func(ctx context.Context) (*httpclient.Response, error) {
		return t.http.PostWithRetry(ctx, target, body, header)
	})
	if err != nil {
		t.logger.Warn().Err(err).Str("target", target).Msg("Submission failed")
		return nil, err
	}

	var reply serverReply
	if err := json.Unmarshal(resp.Body, &reply); err != nil {
		return ErrorResponse{
			Error:      err.Error(),
			ErrorType:  "json_parse_error",
			Suggestion: "Invalid JSON response. Use extract_context to find the correct endpoint.",
			Retryable:  true,
			Context:    truncate(string(resp.Body), 200),
		}, nil
	}

	delay := elapsed.Seconds()
	if reply.Delay != nil {
		delay = *reply.Delay
	}

	result := &SubmitResult{
		Success:         true,
		Correct:         reply.Correct,
		Delay:           delay,
		Reason:          reply.Reason,
		SubmittedAnswer: truncate(answer, maxSubmittedAnswer),
		question:        question,
	}

	if reply.Correct {
		result.URL = reply.URL
		t.logger.Info().Str("question", question).Str("next", reply.URL).Msg("Answer correct")
		return result, nil
	}

	budget := t.budget.Seconds()
	canRetry := delay < budget
	result.CanRetry = &canRetry
	if canRetry {
		remaining := budget - delay
		result.TimeRemaining = &remaining
		result.Suggestion = "Wrong answer. Reason: " + reply.Reason
	} else {
		result.URL = reply.URL
	}

	t.logger.Info().
		Str("question", question).
		Str("reason", reply.Reason).
		Bool("can_retry", canRetry).
		Msg("Answer wrong")
	return result, nil
}

// elapsed is how long the open question has been worked on.
func (t *Toolset) elapsed() time.Duration {
	if t.tracker == nil {
		return 0
	}
	return t.budget - t.tracker.TimeRemaining()
}
