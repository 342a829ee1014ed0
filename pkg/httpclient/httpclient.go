// Package httpclient builds the shared HTTP client used for every upstream
// fetch: retrying transient failures via http-kit and recording a trace
// span per attempt via tracing-kit.
package httpclient

import (
	"net/http"
	"time"

	httpkit "github.com/soulteary/http-kit"
	"github.com/soulteary/tracing-kit"
)

// RetryingTransport wraps an http.RoundTripper with http-kit's retry policy
// and wraps every attempt in a tracing-kit span.
type RetryingTransport struct {
	base       http.RoundTripper
	retryOpts  *httpkit.RetryOptions
	spanName   string
}

// NewRetryingTransport builds a transport that retries transient upstream
// failures according to http-kit's default backoff policy.
func NewRetryingTransport(spanName string) *RetryingTransport {
	opts := httpkit.DefaultRetryOptions()
	opts.MaxRetries = 3
	opts.RetryDelay = 100 * time.Millisecond
	opts.MaxRetryDelay = 2 * time.Second
	opts.BackoffMultiplier = 2.0

	return &RetryingTransport{
		base:      http.DefaultTransport,
		retryOpts: opts,
		spanName:  spanName,
	}
}

// RoundTrip implements http.RoundTripper, retrying according to the
// configured policy and recording span attributes for each attempt.
func (t *RetryingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx, span := tracing.StartSpan(req.Context(), t.spanName)
	defer span.End()

	tracing.SetSpanAttributesFromMap(span, map[string]string{
		"http.method": req.Method,
		"http.url":    req.URL.String(),
		"http.scheme": req.URL.Scheme,
		"http.host":   req.URL.Host,
		"http.target": req.URL.Path,
	})
	req = req.WithContext(ctx)

	var resp *http.Response
	var err error

	for attempt := 0; ; attempt++ {
		resp, err = t.base.RoundTrip(req)
		if err == nil && !httpkit.IsRetryableError(err, resp) {
			break
		}
		if attempt >= t.retryOpts.MaxRetries {
			break
		}

		delay := httpkit.CalculateRetryDelay(t.retryOpts, attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			err = ctx.Err()
			tracing.RecordError(span, err)
			tracing.SetSpanStatus(span, false, err.Error())
			return nil, err
		}
	}

	if err != nil {
		tracing.RecordError(span, err)
		tracing.SetSpanStatus(span, false, err.Error())
		return nil, err
	}

	tracing.SetSpanStatus(span, true, "")
	return resp, nil
}

// New builds a shared *http.Client backed by a RetryingTransport, with the
// per-request timeout left to the caller (callers set http.Client.Timeout
// per use: 5s for liveness HEADs, 20s for package GETs).
func New(spanName string, timeout time.Duration) *http.Client {
	return &http.Client{
		Transport: NewRetryingTransport(spanName),
		Timeout:   timeout,
	}
}
