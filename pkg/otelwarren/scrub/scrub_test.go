package scrub

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultScrubKeys(t *testing.T) {
	s := NewDefault()

	t.Run("sensitive keys", func(t *testing.T) {
		for _, key := range []string{
			"token", "password", "jwt", "auth", "secret", "passwd",
			"api_key", "apikey", "access_token", "credentials",
			"mysql_pwd", "stripeToken",
		} {
			out := s.Scrub(map[string]any{key: "value"}).(map[string]any)
			assert.Equal(t, Replacement, out[key], key)
		}
	})

	t.Run("prefixed sensitive keys", func(t *testing.T) {
		for _, key := range []string{"warren.auth", "x-api_key", "x-token"} {
			out := s.Scrub(map[string]any{key: "value"}).(map[string]any)
			assert.Equal(t, Replacement, out[key], key)
		}
	})

	t.Run("harmless keys pass through", func(t *testing.T) {
		out := s.Scrub(map[string]any{"username": "alice", "count": 3}).(map[string]any)
		assert.Equal(t, "alice", out["username"])
		assert.Equal(t, 3, out["count"])
	})

	t.Run("nested maps are scrubbed", func(t *testing.T) {
		data := map[string]any{
			"outer": map[string]any{
				"password": "hunter2",
				"safe":     "ok",
			},
		}
		out := s.Scrub(data).(map[string]any)
		inner := out["outer"].(map[string]any)
		assert.Equal(t, Replacement, inner["password"])
		assert.Equal(t, "ok", inner["safe"])
	})
}

func TestDefaultScrubValues(t *testing.T) {
	s := NewDefault()

	t.Run("email strings", func(t *testing.T) {
		assert.Equal(t, Replacement, s.Scrub("alice@example.com"))
		assert.Equal(t, "not an email", s.Scrub("not an email"))
	})

	t.Run("email bytes", func(t *testing.T) {
		assert.Equal(t, []byte(Replacement), s.Scrub([]byte("alice@example.com")))
	})

	t.Run("emails inside slices", func(t *testing.T) {
		out := s.Scrub([]any{"alice@example.com", "plain", 7}).([]any)
		assert.Equal(t, Replacement, out[0])
		assert.Equal(t, "plain", out[1])
		assert.Equal(t, 7, out[2])
	})

	t.Run("emails inside map values", func(t *testing.T) {
		out := s.Scrub(map[string]any{"contact": "alice@example.com"}).(map[string]any)
		assert.Equal(t, Replacement, out["contact"])
	})

	t.Run("email used as a key", func(t *testing.T) {
		out := s.Scrub(map[string]any{"alice@example.com": "here"}).(map[string]any)
		_, hadRaw := out["alice@example.com"]
		assert.False(t, hadRaw)
		assert.Equal(t, "here", out[Replacement])
	})

	t.Run("scalars untouched", func(t *testing.T) {
		assert.Equal(t, 42, s.Scrub(42))
		assert.Equal(t, true, s.Scrub(true))
		assert.Nil(t, s.Scrub(nil))
	})
}

func TestScrubDoesNotMutateInput(t *testing.T) {
	s := NewDefault()
	data := map[string]any{"password": "hunter2", "nested": []any{"bob@example.com"}}

	s.Scrub(data)

	assert.Equal(t, "hunter2", data["password"])
	assert.Equal(t, "bob@example.com", data["nested"].([]any)[0])
}

// markerScrubber records that it ran by setting a key.
type markerScrubber struct{ key string }

func (m *markerScrubber) Scrub(data any) any {
	if out, ok := data.(map[string]any); ok {
		out[m.key] = true
		return out
	}
	return data
}

func TestApply(t *testing.T) {
	t.Run("runs scrubbers in order", func(t *testing.T) {
		out := Apply(map[string]any{}, []Scrubber{
			&markerScrubber{key: "first"},
			&markerScrubber{key: "second"},
		}).(map[string]any)
		assert.Equal(t, true, out["first"])
		assert.Equal(t, true, out["second"])
	})

	t.Run("no scrubbers is identity", func(t *testing.T) {
		assert.Equal(t, "x", Apply("x", nil))
	})
}
