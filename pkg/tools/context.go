package tools

import (
	"context"
	"encoding/json"
	"net/url"
	"regexp"
	"strings"
)

const (
	maxPageText     = 6000
	maxContextLinks = 25
	maxSampledAPIs  = 3
	maxSampleText   = 300
	maxSampleScript = 500
)

var submitPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:submit|post)\s+(?:to|at)\s+([^\s<]+)`),
	regexp.MustCompile(`(?i)endpoint\s*[:=]\s*([^\s<]+)`),
}

// PageContext is the extract_context result.
type PageContext struct {
	Title            string                 `json:"title,omitempty"`
	SubmitURLs       []string               `json:"submit_urls"`
	SubmitURLGuessed bool                   `json:"submit_url_guessed,omitempty"`
	APIURLs          []string               `json:"api_urls"`
	APISamples       map[string]interface{} `json:"api_samples"`
	Forms            []Form                 `json:"forms"`
	Links            []Link                 `json:"links"`
	JavaScriptCount  int                    `json:"javascript_count"`
	SampleJavaScript string                 `json:"sample_javascript"`
	PageText         string                 `json:"page_text"`
}

func (t *Toolset) extractContext(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return t.ExtractContext(ctx, stringParam(params, "html"), stringParam(params, "base_url"))
}

// ExtractContext parses doc and gathers what the model needs to answer the
// question on it. Up to three API URLs are sampled; sampling failures are
// skipped.
func (t *Toolset) ExtractContext(ctx context.Context, doc, baseURL string) (*PageContext, error) {
	page, err := ParsePage(doc, baseURL)
	if err != nil {
		return nil, err
	}

	pc := &PageContext{
		Title:           page.Title,
		APISamples:      map[string]interface{}{},
		Forms:           page.Forms,
		Links:           head(page.Links, maxContextLinks),
		JavaScriptCount: len(page.Scripts),
		PageText:        truncate(page.Text, maxPageText),
	}
	if len(page.Scripts) > 0 {
		pc.SampleJavaScript = truncate(page.Scripts[0], maxSampleScript)
	}

	base := parseBase(baseURL)
	var submit []string
	for _, f := range page.Forms {
		if f.Action != "" {
			submit = append(submit, f.Action)
		}
	}
	for _, re := range submitPatterns {
		for _, m := range re.FindAllStringSubmatch(page.Text, -1) {
			submit = append(submit, resolve(base, strings.TrimRight(m[1], ".,;)")))
		}
	}
	pc.SubmitURLs = uniqueSorted(submit)
	if len(pc.SubmitURLs) == 0 && base != nil {
		pc.SubmitURLs = []string{base.Scheme + "://" + base.Host + "/submit"}
		pc.SubmitURLGuessed = true
	}

	api := append([]string(nil), page.APIURLs...)
	for _, l := range page.Links {
		if isAPIURL(l.URL) {
			api = append(api, l.URL)
		}
	}
	for _, s := range page.Scripts {
		for _, u := range reBareURL.FindAllString(s, -1) {
			if isAPIURL(u) {
				api = append(api, u)
			}
		}
	}
	pc.APIURLs = uniqueSorted(api)

	for _, u := range head(pc.APIURLs, maxSampledAPIs) {
		if ctx.Err() != nil {
			break
		}
		resp, err := t.fetch(ctx, u)
		if err != nil {
			t.logger.Debug().Err(err).Str("url", u).Msg("API sample failed")
			continue
		}
		var v interface{}
		if err := json.Unmarshal(resp.Body, &v); err == nil {
			pc.APISamples[u] = v
		} else {
			pc.APISamples[u] = truncate(string(resp.Body), maxSampleText)
		}
	}

	t.logger.Info().
		Int("submit_urls", len(pc.SubmitURLs)).
		Int("api_urls", len(pc.APIURLs)).
		Int("api_samples", len(pc.APISamples)).
		Int("forms", len(pc.Forms)).
		Int("page_text", len(page.Text)).
		Msg("Extracted page context")
	return pc, nil
}

func parseBase(raw string) *url.URL {
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil
	}
	return u
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

