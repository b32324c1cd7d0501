package broker

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// expiresAtHeader marks the publisher-assigned expiry of a message, as unix
// milliseconds. Consumers drop expired messages without invoking handlers.
const expiresAtHeader = "x-expires-at"

// Envelope is the unit of transfer between publishers and consumers.
// Headers carry caller context data plus anything injected by interceptors
// (trace context in particular). Body is an opaque JSON document owned by
// the layer above.
type Envelope struct {
	Headers map[string]string `json:"headers"`
	Body    json.RawMessage   `json:"body"`
}

// NewEnvelope builds an envelope by JSON-encoding body. A nil headers map is
// replaced with an empty one so interceptors can always inject into it.
func NewEnvelope(headers map[string]string, body any) (*Envelope, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope body: %w", err)
	}
	if headers == nil {
		headers = make(map[string]string)
	}
	return &Envelope{Headers: headers, Body: raw}, nil
}

// DecodeBody unmarshals the envelope body into v.
func (e *Envelope) DecodeBody(v any) error {
	if err := json.Unmarshal(e.Body, v); err != nil {
		return fmt.Errorf("failed to decode envelope body: %w", err)
	}
	return nil
}

// CloneHeaders returns a copy of the header map. The copy is safe to pass to
// worker contexts without aliasing the envelope.
func (e *Envelope) CloneHeaders() map[string]string {
	headers := make(map[string]string, len(e.Headers))
	for k, v := range e.Headers {
		headers[k] = v
	}
	return headers
}

// setExpiry stamps the envelope with an absolute expiry time.
func (e *Envelope) setExpiry(ttl time.Duration, now time.Time) {
	if e.Headers == nil {
		e.Headers = make(map[string]string)
	}
	e.Headers[expiresAtHeader] = strconv.FormatInt(now.Add(ttl).UnixMilli(), 10)
}

// expired reports whether the envelope carries an expiry stamp in the past.
// Envelopes with no stamp, or a malformed one, never expire.
func (e *Envelope) expired(now time.Time) bool {
	raw, ok := e.Headers[expiresAtHeader]
	if !ok {
		return false
	}
	millis, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return now.UnixMilli() > millis
}

func (e *Envelope) encode() ([]byte, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return payload, nil
}

func decodeEnvelope(payload []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to decode envelope: %w", err)
	}
	if env.Headers == nil {
		env.Headers = make(map[string]string)
	}
	return &env, nil
}
