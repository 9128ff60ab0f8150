package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/harun/hybridsolver/pkg/sandbox"
)

const (
	runnerFile      = "runner.py"
	maxStreamOutput = 800
	maxCodeEcho     = 1000
	truncatedSuffix = "... (truncated)"
)

var riskyPatterns = []*regexp.Regexp{
	regexp.MustCompile(`os\.system`),
	regexp.MustCompile(`subprocess\.(call|popen|run)`),
	regexp.MustCompile(`\beval\s*\(`),
	regexp.MustCompile(`\bexec\s*\(`),
	regexp.MustCompile(`__import__`),
}

// CodeResult is the run_code result.
type CodeResult struct {
	CodeExecuted  string             `json:"code_executed"`
	Stdout        string             `json:"stdout"`
	Stderr        string             `json:"stderr"`
	ReturnCode    int                `json:"return_code"`
	Answer        *string            `json:"answer"`
	ErrorAnalysis *CodeErrorAnalysis `json:"error_analysis,omitempty"`
	Suggestion    string             `json:"suggestion,omitempty"`
	Warnings      []string           `json:"warnings,omitempty"`
}

func (t *Toolset) runCode(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return t.RunCode(ctx, stringParam(params, "code"))
}

// RunCode writes code to runner.py in the work directory and runs it with
// the configured runner. A timeout is reported in the result, not as an
// error.
func (t *Toolset) RunCode(ctx context.Context, code string) (*CodeResult, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("code is required")
	}

	var warnings []string
	lowered := strings.ToLower(code)
	for _, re := range riskyPatterns {
		if re.MatchString(lowered) {
			warnings = append(warnings, "risky pattern: "+re.String())
		}
	}
	if len(warnings) > 0 {
		t.logger.Warn().Strs("patterns", warnings).Msg("Risky code submitted")
	}

	if err := os.WriteFile(filepath.Join(t.workDir, runnerFile), []byte(code), 0o644); err != nil {
		return nil, fmt.Errorf("write %s: %w", runnerFile, err)
	}

	t.logger.Info().Int("chars", len(code)).Dur("timeout", t.execTimeout).Msg("Executing code")
	res, err := t.sandbox.Execute(ctx, sandbox.ExecuteRequest{
		Command:    t.runner,
		Args:       []string{"run", runnerFile},
		WorkingDir: t.workDir,
		Timeout:    t.execTimeout,
	})
	if errors.Is(err, sandbox.ErrExecutionTimeout) {
		t.logger.Warn().Dur("timeout", t.execTimeout).Msg("Code execution timed out")
		return &CodeResult{
			CodeExecuted: clip(code, maxCodeEcho),
			Stderr:       fmt.Sprintf("Execution timed out after %d seconds", int(t.execTimeout.Seconds())),
			ReturnCode:   -1,
			ErrorAnalysis: &CodeErrorAnalysis{
				Type:       "timeout",
				Suggestion: "Optimize logic, reduce data size, or simplify computation",
			},
			Warnings: warnings,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("execute code: %w", err)
	}

	stdout, stderr := string(res.Stdout), string(res.Stderr)
	result := &CodeResult{
		CodeExecuted: clip(code, maxCodeEcho),
		Stdout:       clip(stdout, maxStreamOutput),
		Stderr:       clip(stderr, maxStreamOutput),
		ReturnCode:   res.ExitCode,
		Answer:       lastLine(stdout),
		Warnings:     warnings,
	}

	if res.ExitCode != 0 {
		analysis := AnalyzeCodeError(stderr)
		result.ErrorAnalysis = &analysis
		result.Suggestion = analysis.Suggestion
		t.logger.Warn().Int("exit_code", res.ExitCode).Str("error_type", analysis.Type).Msg("Code execution failed")
		return result, nil
	}

	if result.Answer != nil && looksLikeBase64Image(*result.Answer) {
		t.state.SetLastBase64(*result.Answer)
		t.logger.Info().Int("chars", len(*result.Answer)).Msg("Stored base64 image answer")
		short := truncate(*result.Answer, 100) + truncatedSuffix + " use \"" + LastBase64Marker + "\" as the answer"
		result.Answer = &short
		result.Stdout = clip(stdout, 200)
	}
	return result, nil
}

func (t *Toolset) addDependencies(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	raw, _ := params["dependencies"].([]interface{})
	deps := make([]string, 0, len(raw))
	for _, d := range raw {
		if s, ok := d.(string); ok && strings.TrimSpace(s) != "" {
			deps = append(deps, strings.TrimSpace(s))
		}
	}
	return t.AddDependencies(ctx, deps)
}

// AddDependencies installs packages into the work directory's project.
// Installer failures are reported in the returned message.
func (t *Toolset) AddDependencies(ctx context.Context, deps []string) (string, error) {
	if len(deps) == 0 {
		return "No dependencies provided.", nil
	}

	if err := t.ensureProject(); err != nil {
		return "", err
	}

	t.logger.Info().Strs("packages", deps).Msg("Installing dependencies")
	res, err := t.sandbox.Execute(ctx, sandbox.ExecuteRequest{
		Command:    t.runner,
		Args:       append([]string{"add"}, deps...),
		WorkingDir: t.workDir,
	})
	if err != nil {
		return "", fmt.Errorf("install %s: %w", strings.Join(deps, ", "), err)
	}
	if res.ExitCode != 0 {
		stderr := strings.TrimSpace(string(res.Stderr))
		if stderr == "" {
			stderr = "No error output."
		}
		return fmt.Sprintf("Dependency installation failed.\nExit code: %d\nstderr: %s", res.ExitCode, stderr), nil
	}
	return "Successfully installed: " + strings.Join(deps, ", "), nil
}

// ensureProject creates a minimal pyproject.toml so uv add and uv run share
// one environment in the work directory.
func (t *Toolset) ensureProject() error {
	path := filepath.Join(t.workDir, "pyproject.toml")
	if _, err := os.Stat(path); err == nil {
		return nil
	}
	if err := os.WriteFile(path, []byte(pyproject), 0o644); err != nil {
		return fmt.Errorf("write pyproject.toml: %w", err)
	}
	return nil
}

const pyproject = `[project]
name = "hybrid-llm-files"
version = "0.1.0"
requires-python = ">=3.10"
dependencies = []
`

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + truncatedSuffix
}

func lastLine(s string) *string {
	lines := strings.Split(s, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if l := strings.TrimSpace(lines[i]); l != "" {
			return &l
		}
	}
	return nil
}
