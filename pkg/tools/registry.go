package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harun/hybridsolver/internal/observability"
	"github.com/harun/hybridsolver/internal/tracing"
	"github.com/harun/hybridsolver/pkg/agent"
	"github.com/rs/zerolog"
	"github.com/xeipuuv/gojsonschema"
	"go.opentelemetry.io/otel/attribute"
)

// Registry defaults.
const (
	DefaultTimeout     = 120 * time.Second
	DefaultOutputLimit = 10 * 1024
)

const truncationMarker = "\n... [output truncated]"

// Parameter defines a parameter for a tool
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Required    bool        `json:"required"`
	Default     interface{} `json:"default,omitempty"`
	// Items is the element type for array parameters.
	Items string `json:"items,omitempty"`
}

// Handler is the function signature for tool execution. Returned strings are
// passed to the model as-is; anything else is encoded as JSON.
type Handler func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Definition defines a tool's metadata and handler
type Definition struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Parameters  []Parameter `json:"parameters"`
	Handler     Handler     `json:"-"`
	// Timeout overrides the registry timeout for this tool.
	Timeout time.Duration `json:"-"`
}

// Submitter is implemented by results that carry a quiz submission outcome.
type Submitter interface {
	Submission() *agent.Submission
}

// RegistryOptions configures a Registry.
type RegistryOptions struct {
	Timeout     time.Duration
	OutputLimit int
	Logger      zerolog.Logger
}

// Registry validates and executes tools on behalf of the agent runner.
type Registry struct {
	tools   map[string]*Definition
	schemas map[string]*gojsonschema.Schema
	specs   map[string]agent.ToolSpec

	timeout     time.Duration
	outputLimit int
	logger      zerolog.Logger
	mu          sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.OutputLimit <= 0 {
		opts.OutputLimit = DefaultOutputLimit
	}
	observability.EnsureRegistered()

	return &Registry{
		tools:       make(map[string]*Definition),
		schemas:     make(map[string]*gojsonschema.Schema),
		specs:       make(map[string]agent.ToolSpec),
		timeout:     opts.Timeout,
		outputLimit: opts.OutputLimit,
		logger:      opts.Logger.With().Str("component", "tools").Logger(),
	}
}

// Register adds a tool, replacing any tool with the same name.
func (r *Registry) Register(def Definition) error {
	if err := validateDefinition(def); err != nil {
		return fmt.Errorf("invalid tool definition: %w", err)
	}

	schemaMap := buildSchema(def)
	schema, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schemaMap))
	if err != nil {
		return fmt.Errorf("failed to generate schema for %s: %w", def.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.tools[def.Name] = &def
	r.schemas[def.Name] = schema
	r.specs[def.Name] = agent.ToolSpec{
		Name:        def.Name,
		Description: def.Description,
		Parameters:  schemaMap,
	}

	r.logger.Debug().Str("tool", def.Name).Msg("Tool registered")
	return nil
}

// Names returns registered tool names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs implements agent.ToolExecutor.
func (r *Registry) Specs() []agent.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]agent.ToolSpec, 0, len(r.specs))
	for _, s := range r.specs {
		specs = append(specs, s)
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Execute implements agent.ToolExecutor. Failures are reported to the model
// as an ErrorResponse, never as a Go error.
func (r *Registry) Execute(ctx context.Context, call agent.ToolCall) agent.ToolOutcome {
	start := time.Now()
	ctx, span := tracing.StartSpan(ctx, "tools.execute", attribute.String("tool", call.Name))
	defer span.End()
	logger := tracing.LoggerFromContext(ctx, r.logger).With().Str("tool", call.Name).Logger()

	r.mu.RLock()
	def := r.tools[call.Name]
	schema := r.schemas[call.Name]
	r.mu.RUnlock()

	if def == nil {
		logger.Error().Msg("Tool not found")
		observability.RecordToolExecution(call.Name, time.Since(start), false)
		return r.failure(ErrorResponse{
			Error:      fmt.Sprintf("tool not found: %s", call.Name),
			ErrorType:  "tool_not_found",
			Suggestion: "Use one of: " + strings.Join(r.Names(), ", "),
		})
	}

	params := call.Parameters
	if params == nil {
		params = map[string]interface{}{}
	}
	if err := validateParameters(schema, params); err != nil {
		logger.Warn().Err(err).Msg("Parameter validation failed")
		observability.RecordToolExecution(call.Name, time.Since(start), false)
		return r.failure(ErrorResponse{
			Error:      err.Error(),
			ErrorType:  "invalid_parameters",
			Suggestion: "Call the tool again with parameters matching its schema.",
			Retryable:  true,
		})
	}

	timeout := r.timeout
	if def.Timeout > 0 {
		timeout = def.Timeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type handlerResult struct {
		out interface{}
		err error
	}
	done := make(chan handlerResult, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- handlerResult{err: fmt.Errorf("tool %s panicked: %v", call.Name, p)}
			}
		}()
		out, err := def.Handler(runCtx, params)
		done <- handlerResult{out: out, err: err}
	}()

	var res handlerResult
	select {
	case res = <-done:
	case <-runCtx.Done():
		res.err = fmt.Errorf("tool execution timeout after %v: %w", timeout, runCtx.Err())
	}

	duration := time.Since(start)
	if res.err != nil {
		logger.Error().Err(res.err).Dur("duration", duration).Msg("Tool execution failed")
		tracing.RecordError(span, res.err)
		observability.RecordToolExecution(call.Name, duration, false)
		return r.failure(NewErrorResponse(res.err, call.Name))
	}

	outcome := agent.ToolOutcome{Content: r.render(res.out)}
	if s, ok := res.out.(Submitter); ok {
		outcome.Submission = s.Submission()
	}

	logger.Debug().Dur("duration", duration).Int("bytes", len(outcome.Content)).Msg("Tool execution completed")
	observability.RecordToolExecution(call.Name, duration, true)
	return outcome
}

func (r *Registry) failure(resp ErrorResponse) agent.ToolOutcome {
	resp.Success = false
	return agent.ToolOutcome{Content: r.render(resp)}
}

// render converts a handler result into model-facing text, truncated to the
// output limit.
func (r *Registry) render(out interface{}) string {
	var s string
	switch v := out.(type) {
	case nil:
		s = ""
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			s = fmt.Sprintf("%v", v)
		} else {
			s = string(b)
		}
	}

	if len(s) <= r.outputLimit {
		return s
	}
	r.logger.Warn().Int("original", len(s)).Int("limit", r.outputLimit).Msg("Output truncated")
	return s[:r.outputLimit] + truncationMarker
}

func validateDefinition(def Definition) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if def.Description == "" {
		return fmt.Errorf("tool description cannot be empty")
	}
	if def.Handler == nil {
		return fmt.Errorf("tool handler cannot be nil")
	}

	validTypes := map[string]bool{
		"string": true, "number": true, "boolean": true,
		"object": true, "array": true, "integer": true,
	}
	for _, param := range def.Parameters {
		if param.Name == "" {
			return fmt.Errorf("parameter name cannot be empty")
		}
		if param.Description == "" {
			return fmt.Errorf("parameter description cannot be empty for %s", param.Name)
		}
		if !validTypes[param.Type] {
			return fmt.Errorf("invalid parameter type %q for %s", param.Type, param.Name)
		}
	}
	return nil
}

// buildSchema generates the JSON schema object shared by validation and the
// model-facing tool spec.
func buildSchema(def Definition) map[string]interface{} {
	properties := make(map[string]interface{}, len(def.Parameters))
	required := []interface{}{}

	for _, param := range def.Parameters {
		p := map[string]interface{}{
			"type":        param.Type,
			"description": param.Description,
		}
		if param.Default != nil {
			p["default"] = param.Default
		}
		if param.Type == "array" {
			items := param.Items
			if items == "" {
				items = "string"
			}
			p["items"] = map[string]interface{}{"type": items}
		}
		properties[param.Name] = p
		if param.Required {
			required = append(required, param.Name)
		}
	}

	schema := map[string]interface{}{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func validateParameters(schema *gojsonschema.Schema, params map[string]interface{}) error {
	if schema == nil {
		return nil
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(params))
	if err != nil {
		return err
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("validation errors: %s", strings.Join(msgs, "; "))
	}
	return nil
}
