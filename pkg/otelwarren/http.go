package otelwarren

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dyluth/warren/pkg/warren"
	"github.com/dyluth/warren/pkg/warren/web"
)

// HTTP span attribute names, matching the OpenTelemetry semantic
// conventions in use across the exporters this library targets.
const (
	attrHTTPMethod                = attribute.Key("http.method")
	attrHTTPURL                   = attribute.Key("http.url")
	attrHTTPTarget                = attribute.Key("http.target")
	attrHTTPStatusCode            = attribute.Key("http.status_code")
	attrHTTPResponseContentLength = attribute.Key("http.response_content_length")
)

// routeURLProvider is implemented by HTTP route entrypoints.
type routeURLProvider interface {
	URL() string
}

// HTTPAdapter customises spans for HTTP route entrypoints: the span is
// named after the route pattern, carries the request attributes, and takes
// its status from the response code rather than from the worker result
// alone.
type HTTPAdapter struct {
	DefaultAdapter
}

// NewHTTPAdapter is the AdapterFactory for HTTPAdapter.
func NewHTTPAdapter(cfg *Config) EntrypointAdapter {
	return &HTTPAdapter{DefaultAdapter{Config: cfg}}
}

// SpanName returns the route pattern, e.g. "GET /hello".
func (a *HTTPAdapter) SpanName(wc *warren.WorkerContext) string {
	if provider, ok := wc.Entrypoint.(routeURLProvider); ok {
		return provider.URL()
	}
	return a.DefaultAdapter.SpanName(wc)
}

// Attributes describes the request instead of capturing raw call
// arguments.
func (a *HTTPAdapter) Attributes(wc *warren.WorkerContext) []attribute.KeyValue {
	attrs := a.CommonAttributes(wc)

	req := requestArg(wc)
	if req == nil {
		return attrs
	}

	target := req.Path
	fullURL := req.Path
	if req.URL != nil {
		target = req.URL.RequestURI()
		fullURL = req.URL.String()
	}
	attrs = append(attrs,
		attrHTTPMethod.String(req.Method),
		attrHTTPURL.String(fullURL),
		attrHTTPTarget.String(target),
	)
	if a.Config.SendHeaders {
		attrs = append(attrs, attribute.String(
			"request.headers",
			a.Config.serializeScrubbedFull(headersAsAny(req.HeaderMap())),
		))
	}
	if a.Config.SendRequestPayloads {
		data, truncated := a.Config.serializeScrubbed(req.Data)
		attrs = append(attrs,
			attribute.String("request.data", data),
			attribute.Bool("request.data_truncated", truncated),
		)
	}
	return attrs
}

// ResultAttributes describes the response: status, content type and
// length, plus the body when response capture is enabled.
func (a *HTTPAdapter) ResultAttributes(wc *warren.WorkerContext, result any) []attribute.KeyValue {
	resp, ok := result.(*web.Response)
	if !ok || resp == nil {
		return a.DefaultAdapter.ResultAttributes(wc, result)
	}

	status := resp.StatusCode
	if status == 0 {
		status = 200
	}
	attrs := []attribute.KeyValue{
		attrHTTPStatusCode.Int(status),
		attrHTTPResponseContentLength.Int(len(resp.Body)),
		attribute.String("response.content_type", resp.ContentType),
	}
	if a.Config.SendResponsePayloads {
		data, truncated := a.Config.serializeScrubbed(resp.Body)
		attrs = append(attrs,
			attribute.String("response.data", data),
			attribute.Bool("response.data_truncated", truncated),
		)
	}
	return attrs
}

// Status maps the outcome to the HTTP result: worker errors and 4xx/5xx
// responses are errors, anything else leaves the status unset as is
// conventional for server spans.
func (a *HTTPAdapter) Status(wc *warren.WorkerContext, result any, err error) (codes.Code, string) {
	if err != nil {
		if wc.Entrypoint.Options().ErrorExpected(err) {
			return codes.Unset, ""
		}
		return codes.Error, err.Error()
	}
	if resp, ok := result.(*web.Response); ok && resp != nil && resp.StatusCode >= 400 {
		return codes.Error, ""
	}
	return codes.Unset, ""
}

// SpanKind returns SERVER.
func (a *HTTPAdapter) SpanKind(wc *warren.WorkerContext) trace.SpanKind {
	return trace.SpanKindServer
}

func requestArg(wc *warren.WorkerContext) *web.Request {
	req, _ := wc.CallArgs["request"].(*web.Request)
	return req
}
