package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/harun/hybridsolver/pkg/bridge"
	"github.com/harun/hybridsolver/pkg/cache"
	"github.com/harun/hybridsolver/pkg/httpclient"
	"github.com/harun/hybridsolver/pkg/sandbox"
	"github.com/harun/hybridsolver/pkg/session"
	"github.com/rs/zerolog"
)

// Tool names.
const (
	ToolGetRenderedHTML = "get_rendered_html"
	ToolExtractContext  = "extract_context"
	ToolDownloadFile    = "download_file"
	ToolPostRequest     = "post_request"
	ToolRunCode         = "run_code"
	ToolAddDependencies = "add_dependencies"
)

const (
	defaultHTMLTTL     = time.Hour
	defaultExecTimeout = 90 * time.Second
	defaultRunner      = "uv"
)

// Deps are the services the tools run on.
type Deps struct {
	HTTP   *httpclient.Client
	Cache  *cache.Cache
	Bridge *bridge.Bridge
	// Sandbox runs run_code and add_dependencies; its working directory
	// must be WorkDir.
	Sandbox sandbox.Sandbox
	// Tracker supplies the time left on the open question. Optional.
	Tracker *session.Tracker
	// Renderer is optional; without it pages are fetched over plain HTTP.
	Renderer Renderer
	State    *State

	WorkDir        string
	Runner         string
	ExecTimeout    time.Duration
	HTMLTTL        time.Duration
	QuestionBudget time.Duration
	Logger         zerolog.Logger
}

// Toolset implements the quiz-solving tools.
type Toolset struct {
	http     *httpclient.Client
	cache    *cache.Cache
	bridge   *bridge.Bridge
	sandbox  sandbox.Sandbox
	tracker  *session.Tracker
	renderer Renderer
	state    *State

	workDir     string
	runner      string
	execTimeout time.Duration
	htmlTTL     time.Duration
	budget      time.Duration
	logger      zerolog.Logger
}

// New validates deps and creates the work directory.
func New(deps Deps) (*Toolset, error) {
	if deps.HTTP == nil {
		return nil, errors.New("tools: http client is required")
	}
	if deps.Bridge == nil {
		return nil, errors.New("tools: bridge is required")
	}
	if deps.Sandbox == nil {
		return nil, errors.New("tools: sandbox is required")
	}
	if deps.WorkDir == "" {
		return nil, errors.New("tools: work dir is required")
	}

	workDir, err := filepath.Abs(deps.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("tools: resolve work dir: %w", err)
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("tools: create work dir: %w", err)
	}

	t := &Toolset{
		http:        deps.HTTP,
		cache:       deps.Cache,
		bridge:      deps.Bridge,
		sandbox:     deps.Sandbox,
		tracker:     deps.Tracker,
		renderer:    deps.Renderer,
		state:       deps.State,
		workDir:     workDir,
		runner:      deps.Runner,
		execTimeout: deps.ExecTimeout,
		htmlTTL:     deps.HTMLTTL,
		budget:      deps.QuestionBudget,
		logger:      deps.Logger.With().Str("component", "tools").Logger(),
	}
	if t.state == nil {
		t.state = &State{}
	}
	if t.runner == "" {
		t.runner = defaultRunner
	}
	if t.execTimeout <= 0 {
		t.execTimeout = defaultExecTimeout
	}
	if t.htmlTTL <= 0 {
		t.htmlTTL = defaultHTMLTTL
	}
	if t.budget <= 0 {
		t.budget = session.DefaultQuestionBudget
	}
	return t, nil
}

// State returns the shared tool state.
func (t *Toolset) State() *State { return t.state }

// Register adds every tool to reg.
func (t *Toolset) Register(reg *Registry) error {
	defs := []Definition{
		{
			Name: ToolGetRenderedHTML,
			Description: "Fetch the fully rendered HTML of a web page after JavaScript runs, " +
				"with a CONTEXT_METADATA comment listing links, forms and API URLs. " +
				"Use only for HTML pages, never for direct file links.",
			Parameters: []Parameter{
				{Name: "url", Type: "string", Description: "Page URL", Required: true},
			},
			Handler: t.getRenderedHTML,
		},
		{
			Name: ToolExtractContext,
			Description: "Extract structured context from HTML: page text, submit URLs, " +
				"API URLs with sampled responses, forms and JavaScript hints.",
			Parameters: []Parameter{
				{Name: "html", Type: "string", Description: "HTML document", Required: true},
				{Name: "base_url", Type: "string", Description: "URL the HTML was loaded from, used to resolve relative links"},
			},
			Handler: t.extractContext,
		},
		{
			Name: ToolDownloadFile,
			Description: "Download a file (PDF, CSV, image, audio, ZIP) into the working directory. " +
				"Returns \"path | content-type=... | size=...\".",
			Parameters: []Parameter{
				{Name: "url", Type: "string", Description: "Direct file URL", Required: true},
				{Name: "filename", Type: "string", Description: "Optional file name to save as"},
			},
			Handler: t.downloadFile,
		},
		{
			Name: ToolPostRequest,
			Description: "Submit an answer as a JSON POST. The payload must include email, secret, " +
				"url and answer. Use answer \"" + LastBase64Marker + "\" to send the last image produced by run_code.",
			Parameters: []Parameter{
				{Name: "url", Type: "string", Description: "Submit endpoint", Required: true},
				{Name: "payload", Type: "object", Description: "JSON body", Required: true},
				{Name: "headers", Type: "object", Description: "Optional HTTP headers"},
			},
			Handler: t.postRequest,
		},
		{
			Name: ToolRunCode,
			Description: "Run Python code in the working directory, where downloaded files live. " +
				"Print the final answer as the last non-empty line. Times out after 90 seconds.",
			Parameters: []Parameter{
				{Name: "code", Type: "string", Description: "Python source", Required: true},
			},
			Handler: t.runCode,
			Timeout: t.execTimeout + 10*time.Second,
		},
		{
			Name:        ToolAddDependencies,
			Description: "Install Python packages with uv. Call only after an ImportError.",
			Parameters: []Parameter{
				{Name: "dependencies", Type: "array", Items: "string", Description: "Package names, e.g. [\"pandas\"]", Required: true},
			},
			Handler: t.addDependencies,
			Timeout: 5 * time.Minute,
		},
	}

	for _, def := range defs {
		if err := reg.Register(def); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the renderer.
func (t *Toolset) Close() error {
	if t.renderer != nil {
		return t.renderer.Close()
	}
	return nil
}

func stringParam(params map[string]interface{}, name string) string {
	s, _ := params[name].(string)
	return s
}

func mapParam(params map[string]interface{}, name string) map[string]interface{} {
	m, _ := params[name].(map[string]interface{})
	return m
}

// fetch GETs url through the bridge.
func (t *Toolset) fetch(ctx context.Context, url string) (*httpclient.Response, error) {
	return bridge.Run(ctx, t.bridge, func(ctx context.Context) (*httpclient.Response, error) {
		return t.http.GetWithRetry(ctx, url)
	})
}
