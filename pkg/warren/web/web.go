// Package web exposes service methods as HTTP routes. All routes of a
// service share one HTTP server, listening on the container's configured
// HTTP address. Requests for unmatched routes are answered with 404 and
// surfaced to worker hooks as dispatch failures.
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Request is the inbound HTTP request handed to route handlers. The body is
// fully read before the handler runs.
type Request struct {
	Method string
	Path   string
	URL    *url.URL
	Header http.Header
	Data   []byte
	Remote string
	Host   string
}

// HeaderMap flattens the request headers into worker context data:
// lowercased keys, first value wins.
func (r *Request) HeaderMap() map[string]string {
	headers := make(map[string]string, len(r.Header))
	for key, values := range r.Header {
		if len(values) == 0 {
			continue
		}
		headers[strings.ToLower(key)] = values[0]
	}
	return headers
}

// Response is what route handlers return.
type Response struct {
	StatusCode  int
	ContentType string
	Header      http.Header
	Body        []byte
}

// TextResponse builds a plain-text response.
func TextResponse(status int, body string) *Response {
	return &Response{
		StatusCode:  status,
		ContentType: "text/plain; charset=utf-8",
		Body:        []byte(body),
	}
}

// JSONResponse builds an application/json response, encoding v.
func JSONResponse(status int, v any) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode JSON response: %w", err)
	}
	return &Response{
		StatusCode:  status,
		ContentType: "application/json",
		Body:        body,
	}, nil
}

// HandlerFunc is the signature of HTTP route handlers. A non-nil error
// produces a 500 response carrying the error text.
type HandlerFunc func(ctx context.Context, req *Request) (*Response, error)
