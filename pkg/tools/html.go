package tools

import (
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Link is an anchor found on a page.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// FormInput is a named input inside a form.
type FormInput struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Form is a form found on a page. Action is resolved against the page URL.
type Form struct {
	Action string      `json:"action"`
	Method string      `json:"method"`
	Inputs []FormInput `json:"inputs"`
}

// Page is the structure extracted from an HTML document.
type Page struct {
	Title   string
	Text    string
	Links   []Link
	Forms   []Form
	Scripts []string
	APIURLs []string
}

var (
	reQuotedURL = regexp.MustCompile(`["']https?://[^"']+["']`)
	reBareURL   = regexp.MustCompile(`https?://[^\s"']+`)
)

const maxLinkText = 80

// ParsePage parses document and resolves relative links against base, which
// may be empty.
func ParsePage(document, base string) (*Page, error) {
	root, err := html.Parse(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	var baseURL *url.URL
	if base != "" {
		baseURL, _ = url.Parse(base)
	}

	p := &Page{}
	var text []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if p.Title == "" {
					p.Title = strings.TrimSpace(nodeText(n))
				}
			case atom.A:
				if href, ok := attr(n, "href"); ok && href != "" {
					t := collapse(nodeText(n))
					if len(t) > maxLinkText {
						t = t[:maxLinkText]
					}
					p.Links = append(p.Links, Link{URL: resolve(baseURL, href), Text: t})
				}
			case atom.Form:
				p.Forms = append(p.Forms, parseForm(n, baseURL))
			case atom.Script:
				if body := nodeText(n); strings.TrimSpace(body) != "" {
					p.Scripts = append(p.Scripts, body)
				}
				return
			case atom.Style, atom.Noscript:
				return
			}
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				text = append(text, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)

	p.Text = collapse(strings.Join(text, " "))
	p.APIURLs = scriptAPIURLs(p.Scripts)
	return p, nil
}

func parseForm(n *html.Node, base *url.URL) Form {
	f := Form{Method: "GET"}
	if action, ok := attr(n, "action"); ok {
		f.Action = resolve(base, action)
	}
	if method, ok := attr(n, "method"); ok && method != "" {
		f.Method = strings.ToUpper(method)
	}

	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.ElementNode && c.DataAtom == atom.Input {
			in := FormInput{Type: "text"}
			in.Name, _ = attr(c, "name")
			if t, ok := attr(c, "type"); ok && t != "" {
				in.Type = t
			}
			f.Inputs = append(f.Inputs, in)
		}
		for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
			walk(cc)
		}
	}
	walk(n)
	return f
}

// scriptAPIURLs returns quoted absolute URLs in scripts that look like API
// endpoints, deduplicated in order of appearance.
func scriptAPIURLs(scripts []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range scripts {
		for _, m := range reQuotedURL.FindAllString(s, -1) {
			u := strings.Trim(m, `"'`)
			if isAPIURL(u) && !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	return out
}

func isAPIURL(u string) bool {
	lower := strings.ToLower(u)
	return strings.Contains(lower, "api") || strings.HasSuffix(lower, ".json")
}

// MetadataComment renders the CONTEXT_METADATA comment appended to fetched
// HTML. fallback marks pages fetched without a browser.
func (p *Page) MetadataComment(fallback bool) string {
	var b strings.Builder
	b.WriteString("\n\n<!-- CONTEXT_METADATA")
	if fallback {
		b.WriteString(" (HTTP FALLBACK)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Links: %d, Forms: %d, APIs: %d\n", len(p.Links), len(p.actionForms()), len(p.APIURLs))

	if len(p.Links) > 0 {
		b.WriteString("Top links:\n")
		for _, l := range head(p.Links, 5) {
			fmt.Fprintf(&b, "  - %s: %s\n", l.Text, l.URL)
		}
	}
	if forms := p.actionForms(); len(forms) > 0 {
		b.WriteString("Forms:\n")
		for _, f := range head(forms, 5) {
			fmt.Fprintf(&b, "  - %s %s\n", f.Method, f.Action)
		}
	}
	if len(p.APIURLs) > 0 {
		b.WriteString("APIs:\n")
		for _, u := range head(p.APIURLs, 5) {
			fmt.Fprintf(&b, "  - %s\n", u)
		}
	}
	b.WriteString("-->\n")
	return b.String()
}

func (p *Page) actionForms() []Form {
	var out []Form
	for _, f := range p.Forms {
		if f.Action != "" {
			out = append(out, f)
		}
	}
	return out
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(c *html.Node) {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
		for cc := c.FirstChild; cc != nil; cc = cc.NextSibling {
			walk(cc)
		}
	}
	walk(n)
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func resolve(base *url.URL, ref string) string {
	if base == nil {
		return ref
	}
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}

func uniqueSorted(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
