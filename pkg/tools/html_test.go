package tools

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quizPage = `<!doctype html>
<html>
<head><title> Quiz 3 </title><style>body { color: red }</style></head>
<body>
  <h1>Question 3</h1>
  <p>Download <a href="/files/data.csv">the data</a> and sum the <b>price</b> column.</p>
  <p>Post to https://example.com/submit with your answer.</p>
  <a href="https://example.com/api/items">items api</a>
  <form action="/answer" method="post">
    <input name="email" type="email">
    <input name="answer">
  </form>
  <script>
    const endpoint = "https://example.com/api/v1/scores";
    fetch('https://cdn.example.com/config.json');
    const img = "https://example.com/logo.png";
  </script>
</body>
</html>`

func TestParsePage(t *testing.T) {
	page, err := ParsePage(quizPage, "https://example.com/quiz/3")
	require.NoError(t, err)

	assert.Equal(t, "Quiz 3", page.Title)
	assert.Contains(t, page.Text, "Question 3")
	assert.Contains(t, page.Text, "sum the price column.")
	assert.NotContains(t, page.Text, "color: red")
	assert.NotContains(t, page.Text, "fetch(")

	require.Len(t, page.Links, 2)
	assert.Equal(t, Link{URL: "https://example.com/files/data.csv", Text: "the data"}, page.Links[0])
	assert.Equal(t, "https://example.com/api/items", page.Links[1].URL)

	require.Len(t, page.Forms, 1)
	assert.Equal(t, "https://example.com/answer", page.Forms[0].Action)
	assert.Equal(t, "POST", page.Forms[0].Method)
	assert.Equal(t, []FormInput{{Name: "email", Type: "email"}, {Name: "answer", Type: "text"}}, page.Forms[0].Inputs)

	require.Len(t, page.Scripts, 1)
	assert.Equal(t, []string{
		"https://example.com/api/v1/scores",
		"https://cdn.example.com/config.json",
	}, page.APIURLs)
}

func TestParsePageWithoutBase(t *testing.T) {
	page, err := ParsePage(`<a href="/x">x</a><form action="go"></form>`, "")
	require.NoError(t, err)
	assert.Equal(t, "/x", page.Links[0].URL)
	assert.Equal(t, "go", page.Forms[0].Action)
	assert.Equal(t, "GET", page.Forms[0].Method)
}

func TestParsePageTruncatesLinkText(t *testing.T) {
	page, err := ParsePage(`<a href="/x">`+strings.Repeat("y", 200)+`</a>`, "")
	require.NoError(t, err)
	assert.Len(t, page.Links[0].Text, maxLinkText)
}

func TestMetadataComment(t *testing.T) {
	page, err := ParsePage(quizPage, "https://example.com/quiz/3")
	require.NoError(t, err)

	meta := page.MetadataComment(false)
	assert.True(t, strings.HasPrefix(meta, "\n\n<!-- CONTEXT_METADATA\n"))
	assert.Contains(t, meta, "Links: 2, Forms: 1, APIs: 2\n")
	assert.Contains(t, meta, "  - the data: https://example.com/files/data.csv\n")
	assert.Contains(t, meta, "  - POST https://example.com/answer\n")
	assert.Contains(t, meta, "  - https://example.com/api/v1/scores\n")
	assert.True(t, strings.HasSuffix(meta, "-->\n"))

	assert.Contains(t, page.MetadataComment(true), "CONTEXT_METADATA (HTTP FALLBACK)")
}

func TestMetadataCommentListsAtMostFive(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 8; i++ {
		b.WriteString(`<a href="/p">p</a>`)
	}
	page, err := ParsePage(b.String(), "https://example.com/")
	require.NoError(t, err)

	meta := page.MetadataComment(false)
	assert.Contains(t, meta, "Links: 8,")
	assert.Equal(t, 5, strings.Count(meta, "  - p: "))
}
