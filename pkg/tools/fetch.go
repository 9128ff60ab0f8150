package tools

import (
	"context"
	"fmt"

	"github.com/harun/hybridsolver/pkg/bridge"
	"github.com/harun/hybridsolver/pkg/cache"
)

func (t *Toolset) getRenderedHTML(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	url := stringParam(params, "url")
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	load := func(ctx context.Context) (any, error) {
		return t.renderPage(ctx, url)
	}
	if t.cache == nil {
		return load(ctx)
	}

	v, hit, err := t.cache.GetOrLoad(ctx, cache.For(url, "tool", ToolGetRenderedHTML), t.htmlTTL, load)
	if err != nil {
		return nil, err
	}
	if hit {
		t.logger.Debug().Str("url", url).Msg("Rendered HTML served from cache")
	}
	return v, nil
}

// renderPage renders url in the browser, falling back to a plain GET when the
// browser is unavailable or fails. The result carries a CONTEXT_METADATA
// comment.
func (t *Toolset) renderPage(ctx context.Context, url string) (string, error) {
	var renderErr error
	if t.renderer != nil {
		doc, err := bridge.Run(ctx, t.bridge, func(ctx context.Context) (string, error) {
			return t.renderer.Render(ctx, url)
		})
		if err == nil {
			t.logger.Info().Str("url", url).Int("bytes", len(doc)).Msg("Rendered page in browser")
			return withMetadata(doc, url, false), nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		renderErr = err
		t.logger.Warn().Err(err).Str("url", url).Msg("Browser render failed, falling back to HTTP")
	}

	resp, err := t.fetch(ctx, url)
	if err != nil {
		if renderErr != nil {
			return "", fmt.Errorf("render failed (%v), http fallback failed: %w", renderErr, err)
		}
		return "", err
	}

	t.logger.Info().Str("url", url).Int("bytes", len(resp.Body)).Msg("Loaded page over HTTP")
	return withMetadata(string(resp.Body), url, true), nil
}

func withMetadata(doc, url string, fallback bool) string {
	page, err := ParsePage(doc, url)
	if err != nil {
		return doc
	}
	return doc + page.MetadataComment(fallback)
}
