package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDescriptorKey(t *testing.T) {
	t.Run("parameter order does not matter", func(t *testing.T) {
		a := Descriptor{URL: "https://q.example/1", Params: map[string]string{"render": "js", "lang": "en", "v": "2"}}
		b := For("https://q.example/1", "v", "2", "lang", "en", "render", "js")
		assert.Equal(t, a.Key(), b.Key())
	})

	t.Run("length and stability", func(t *testing.T) {
		d := For("https://q.example/1")
		assert.Len(t, d.Key(), 24)
		assert.Equal(t, d.Key(), For("https://q.example/1").Key())
	})

	t.Run("nil and empty params are equal", func(t *testing.T) {
		assert.Equal(t, Descriptor{URL: "u"}.Key(), Descriptor{URL: "u", Params: map[string]string{}}.Key())
	})

	t.Run("different values differ", func(t *testing.T) {
		assert.NotEqual(t, For("u", "a", "1").Key(), For("u", "a", "2").Key())
		assert.NotEqual(t, For("u").Key(), For("v").Key())
		assert.NotEqual(t, For("u").Key(), For("u", "a", "").Key())
	})

	t.Run("dangling name ignored", func(t *testing.T) {
		assert.Equal(t, For("u", "a", "1").Key(), For("u", "a", "1", "b").Key())
	})
}
