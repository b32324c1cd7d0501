// Package scrub removes sensitive data from values before they are
// recorded as span attributes.
//
// Scrubbers operate on decoded JSON shapes (maps, slices, strings and
// scalars) and always return a scrubbed copy, leaving the input unchanged.
package scrub

import "regexp"

// Replacement is what scrubbed values and keys become.
const Replacement = "scrubbed"

// Scrubber replaces sensitive parts of a value.
type Scrubber interface {
	Scrub(data any) any
}

// Apply runs data through each scrubber in order.
func Apply(data any, scrubbers []Scrubber) any {
	for _, s := range scrubbers {
		data = s.Scrub(data)
	}
	return data
}

// sensitiveKeys are map keys whose values are always scrubbed.
var sensitiveKeys = map[string]bool{
	"token":        true,
	"password":     true,
	"jwt":          true,
	"auth":         true,
	"secret":       true,
	"passwd":       true,
	"api_key":      true,
	"apikey":       true,
	"access_token": true,
	"credentials":  true,
	"mysql_pwd":    true,
	"stripeToken":  true,
}

// commonKeyPrefixes are stripped before a key is matched against
// sensitiveKeys, so "warren.auth" and "x-api_key" are caught too.
var commonKeyPrefixes = []string{"warren.", "x-"}

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,6}`)

// Default is the scrubber used unless configured otherwise: it replaces
// values of well-known sensitive keys, scrubs strings that look like email
// addresses, and recurses through maps and slices.
type Default struct{}

// NewDefault returns the default scrubber.
func NewDefault() *Default {
	return &Default{}
}

func (d *Default) sensitiveKey(key string) bool {
	for _, prefix := range commonKeyPrefixes {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			key = key[len(prefix):]
		}
	}
	return sensitiveKeys[key]
}

func (d *Default) sensitiveValue(value string) bool {
	return emailPattern.MatchString(value)
}

// Scrub returns a scrubbed copy of data.
//
// Values of sensitive keys are replaced wholesale; other values are
// scrubbed recursively. Keys that themselves contain sensitive values
// ("foo@example.com" used as a key) are replaced too.
func (d *Default) Scrub(data any) any {
	switch value := data.(type) {
	case map[string]any:
		out := make(map[string]any, len(value))
		for key, val := range value {
			if d.sensitiveKey(key) {
				val = Replacement
			} else {
				val = d.Scrub(val)
			}
			scrubbedKey := key
			if d.sensitiveValue(key) {
				scrubbedKey = Replacement
			}
			out[scrubbedKey] = val
		}
		return out

	case []any:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = d.Scrub(item)
		}
		return out

	case []byte:
		if d.sensitiveValue(string(value)) {
			return []byte(Replacement)
		}
		return value

	case string:
		if d.sensitiveValue(value) {
			return Replacement
		}
		return value

	default:
		return data
	}
}
