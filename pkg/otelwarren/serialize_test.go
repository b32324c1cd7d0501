package otelwarren

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestSafeSerialize(t *testing.T) {
	t.Run("nil is empty", func(t *testing.T) {
		assert.Equal(t, "", SafeSerialize(nil))
	})

	t.Run("strings pass through", func(t *testing.T) {
		assert.Equal(t, "hello", SafeSerialize("hello"))
	})

	t.Run("bytes pass through", func(t *testing.T) {
		assert.Equal(t, "raw", SafeSerialize([]byte("raw")))
	})

	t.Run("scalars use their natural form", func(t *testing.T) {
		assert.Equal(t, "42", SafeSerialize(42))
		assert.Equal(t, "3.5", SafeSerialize(3.5))
		assert.Equal(t, "true", SafeSerialize(true))
	})

	t.Run("composites are JSON encoded", func(t *testing.T) {
		assert.Equal(t, `{"a":1,"b":"two"}`, SafeSerialize(map[string]any{"b": "two", "a": 1}))
		assert.Equal(t, `[1,2,3]`, SafeSerialize([]int{1, 2, 3}))
	})

	t.Run("unencodable values get a marker", func(t *testing.T) {
		assert.Equal(t, "failed to get string representation", SafeSerialize(func() {}))
	})
}

func TestTruncate(t *testing.T) {
	t.Run("short strings are unchanged", func(t *testing.T) {
		out, truncated := Truncate("short", 10)
		assert.Equal(t, "short", out)
		assert.False(t, truncated)
	})

	t.Run("long strings are cut", func(t *testing.T) {
		out, truncated := Truncate("abcdefgh", 5)
		assert.Equal(t, "abcde", out)
		assert.True(t, truncated)
	})

	t.Run("never splits a rune", func(t *testing.T) {
		out, truncated := Truncate("héllo", 2)
		assert.Equal(t, "h", out)
		assert.True(t, truncated)
		assert.True(t, utf8.ValidString(out))

		out, truncated = Truncate("日本語", 7)
		assert.Equal(t, "日本", out)
		assert.True(t, truncated)
		assert.True(t, utf8.ValidString(out))
	})

	t.Run("non-positive max uses the default", func(t *testing.T) {
		long := strings.Repeat("x", DefaultTruncateMaxLength+50)
		out, truncated := Truncate(long, 0)
		assert.Len(t, out, DefaultTruncateMaxLength)
		assert.True(t, truncated)
	})
}
