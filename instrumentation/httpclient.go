package instrumentation

import (
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

const redactedValue = "REDACTED"

// HTTPClient returns a client for outbound calls whose transport creates a
// client span per request. timeout <= 0 leaves the client without a timeout.
//
// Query values and userinfo are redacted from the URL recorded on the span,
// since token exchanges carry secrets in the query string.
func (i *Instrumentation) HTTPClient(timeout time.Duration) *http.Client {
	transport := otelhttp.NewTransport(redactingTransport{next: http.DefaultTransport},
		otelhttp.WithTracerProvider(i.TracerProvider()),
		otelhttp.WithMeterProvider(i.MeterProvider()),
	)
	client := &http.Client{Transport: transport}
	if timeout > 0 {
		client.Timeout = timeout
	}
	return client
}

// redactingTransport runs inside the otelhttp transport and overwrites the
// span's url.full attribute before the request goes out.
type redactingTransport struct {
	next http.RoundTripper
}

func (t redactingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if span := trace.SpanFromContext(req.Context()); span.IsRecording() {
		span.SetAttributes(semconv.URLFull(RedactURL(req.URL)))
	}
	return t.next.RoundTrip(req)
}

// RedactURL returns u as a string with userinfo removed and every query
// value replaced, keeping the parameter names.
func RedactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	redacted := *u
	redacted.User = nil
	if u.RawQuery != "" {
		query := u.Query()
		for key := range query {
			query[key] = []string{redactedValue}
		}
		redacted.RawQuery = query.Encode()
	}
	redacted.Fragment = ""
	redacted.RawFragment = ""
	return redacted.String()
}
