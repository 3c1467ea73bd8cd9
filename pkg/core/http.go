package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/NERVsystems/poimap/pkg/tracing"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// UserAgent identifies poimap to dataset and tile servers.
var UserAgent = "poimap/1.0 (+https://github.com/NERVsystems/poimap)"

// RetryOptions configures retry behavior for HTTP requests
type RetryOptions struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultRetryOptions is used for tile fetches.
var DefaultRetryOptions = RetryOptions{
	MaxAttempts:  3,
	InitialDelay: 500 * time.Millisecond,
	MaxDelay:     10 * time.Second,
	Multiplier:   2.0,
}

// SingleAttempt performs exactly one request. Dataset loads use it: a failed
// load is surfaced to the user, who decides whether to retry.
var SingleAttempt = RetryOptions{MaxAttempts: 1}

// DefaultClient provides a pre-configured HTTP client
var DefaultClient = &http.Client{
	Timeout: 30 * time.Second,
	Transport: &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	},
}

// RequestFactory creates a fresh request for every attempt.
type RequestFactory func() (*http.Request, error)

// StatusError is returned when the final attempt completes with a non-200 status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d from %s", e.StatusCode, e.URL)
}

// WithRetryFactory performs requests created by factory with exponential
// backoff between attempts. The returned response always has status 200;
// the caller owns its body. When every attempt fails, the last transport
// error or a *StatusError is returned.
func WithRetryFactory(ctx context.Context, factory RequestFactory, client *http.Client, options RetryOptions) (*http.Response, error) {
	ctx, span := tracing.StartSpan(ctx, "http.request_factory",
		trace.WithAttributes(
			attribute.Int("http.retry.max_attempts", options.MaxAttempts),
		),
	)
	defer span.End()

	if client == nil {
		client = DefaultClient
	}
	if options.MaxAttempts < 1 {
		options.MaxAttempts = 1
	}

	logger := slog.Default()
	delay := options.InitialDelay
	var lastErr error

	for attempt := 0; attempt < options.MaxAttempts; attempt++ {
		if attempt > 0 {
			tracing.AddEvent(ctx, "retry_attempt",
				trace.WithAttributes(
					attribute.Int("attempt", attempt+1),
					attribute.Int64("delay_ms", delay.Milliseconds()),
					attribute.String("error", fmt.Sprintf("%v", lastErr)),
				),
			)
			logger.Info("retrying request",
				"attempt", attempt+1,
				"max_attempts", options.MaxAttempts,
				"delay", delay,
				"last_error", lastErr,
			)

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				span.SetStatus(codes.Error, "request cancelled")
				return nil, ctx.Err()
			}

			delay = time.Duration(float64(delay) * options.Multiplier)
			if delay > options.MaxDelay {
				delay = options.MaxDelay
			}
		}

		req, err := factory()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "request creation failed")
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req = req.WithContext(ctx)
		if req.Header.Get("User-Agent") == "" {
			req.Header.Set("User-Agent", UserAgent)
		}

		resp, err := client.Do(req)
		if err == nil && resp.StatusCode == http.StatusOK {
			span.SetAttributes(
				attribute.String(tracing.AttrHTTPMethod, req.Method),
				attribute.String("http.url", req.URL.String()),
				attribute.Int(tracing.AttrHTTPStatusCode, resp.StatusCode),
				attribute.Int("http.retry.attempts", attempt+1),
			)
			span.SetStatus(codes.Ok, "")
			logger.Debug("request successful",
				"status", resp.StatusCode,
				"content_length", resp.ContentLength,
				"url", req.URL.String(),
			)
			return resp, nil
		}

		if err != nil {
			lastErr = err
			logger.Warn("request failed", "error", err, "attempt", attempt+1, "url", req.URL.String())
			continue
		}

		lastErr = &StatusError{StatusCode: resp.StatusCode, URL: req.URL.String()}
		logger.Warn("request returned error status",
			"status", resp.StatusCode,
			"attempt", attempt+1,
			"url", req.URL.String(),
		)
		if err := resp.Body.Close(); err != nil {
			logger.Warn("failed to close response body", "error", err)
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "max attempts exceeded")
	span.SetAttributes(attribute.Int("http.retry.attempts", options.MaxAttempts))
	return nil, lastErr
}
