package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// ErrRendererClosed is returned by Render after Close.
var ErrRendererClosed = errors.New("renderer closed")

// Renderer returns the HTML of a page after its scripts have run.
type Renderer interface {
	Render(ctx context.Context, url string) (string, error)
	Close() error
}

// RodOptions configures a RodRenderer.
type RodOptions struct {
	Headless    bool
	BinPath     string
	PageTimeout time.Duration
	// IdleWait is how long the network must stay quiet after load.
	IdleWait time.Duration
	Logger   zerolog.Logger
}

// RodRenderer renders pages in a headless Chromium launched on first use
// and shared by all renders.
type RodRenderer struct {
	opts RodOptions

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	closed   bool
}

// NewRodRenderer creates a renderer. No browser is started until the first
// Render.
func NewRodRenderer(opts RodOptions) *RodRenderer {
	if opts.PageTimeout <= 0 {
		opts.PageTimeout = 30 * time.Second
	}
	if opts.IdleWait <= 0 {
		opts.IdleWait = 2 * time.Second
	}
	opts.Logger = opts.Logger.With().Str("component", "renderer").Logger()
	return &RodRenderer{opts: opts}
}

func (r *RodRenderer) connect() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRendererClosed
	}
	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New().Headless(r.opts.Headless)
	if r.opts.BinPath != "" {
		l = l.Bin(r.opts.BinPath)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chromium: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to chromium: %w", err)
	}

	r.opts.Logger.Info().Str("control_url", controlURL).Msg("Headless browser started")
	r.launcher = l
	r.browser = browser
	return browser, nil
}

// Render opens url in a new tab, waits for load and network idle, and
// returns the document HTML.
func (r *RodRenderer) Render(ctx context.Context, url string) (string, error) {
	browser, err := r.connect()
	if err != nil {
		return "", err
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return "", fmt.Errorf("open tab: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			r.opts.Logger.Debug().Err(err).Msg("Failed to close tab")
		}
	}()

	p := page.Context(ctx).Timeout(r.opts.PageTimeout)
	if err := p.Navigate(url); err != nil {
		return "", fmt.Errorf("navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		return "", fmt.Errorf("wait for load: %w", err)
	}
	if err := p.WaitIdle(r.opts.IdleWait); err != nil {
		r.opts.Logger.Debug().Err(err).Str("url", url).Msg("Page did not go idle")
	}

	doc, err := p.HTML()
	if err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	return doc, nil
}

// Close shuts the browser down. Later renders fail with ErrRendererClosed.
func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var err error
	if r.browser != nil {
		err = r.browser.Close()
		r.browser = nil
	}
	if r.launcher != nil {
		r.launcher.Kill()
		r.launcher = nil
	}
	return err
}
