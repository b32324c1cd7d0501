package otelwarren

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// DefaultTruncateMaxLength caps payload attribute values unless configured
// otherwise.
const DefaultTruncateMaxLength = 200

// SafeSerialize renders a value as a string for use in span attributes.
// Strings and byte slices pass through, scalars use their natural form,
// and everything else is JSON-encoded (with map keys sorted, so output is
// deterministic). Serialization never fails; unencodable values become a
// fixed marker.
func SafeSerialize(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case bool, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return fmt.Sprint(v)
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return "failed to get string representation"
	}
	return string(raw)
}

// Truncate caps s at max bytes (DefaultTruncateMaxLength when max is not
// positive) and reports whether anything was cut. The cut backs off to a
// rune boundary so the result stays valid UTF-8.
func Truncate(s string, max int) (string, bool) {
	if max <= 0 {
		max = DefaultTruncateMaxLength
	}
	if len(s) <= max {
		return s, false
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut], true
}
