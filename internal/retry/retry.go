// Package retry wraps calls to remote model providers with a per-attempt
// timeout and bounded exponential backoff. Transient failures (timeouts,
// connection errors, 429, 5xx) are retried; every other 4xx, unclassified
// errors and caller cancellation are not.
package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	openai "github.com/meguminnnnnnnnn/go-openai"
	"google.golang.org/genai"

	"github.com/54b3r/paperqa-go/internal/logging"
)

// Config controls how many times and how fast a call is retried.
type Config struct {
	// MaxRetries is the number of retries after the first attempt.
	// 0 disables retries.
	MaxRetries int
	// InitialDelay is the wait before the first retry.
	InitialDelay time.Duration
	// MaxDelay caps the exponential backoff interval.
	MaxDelay time.Duration
	// Timeout bounds each individual attempt. 0 means no per-attempt timeout.
	Timeout time.Duration
}

// DefaultConfig returns the settings used when none are configured.
func DefaultConfig() Config {
	return Config{
		MaxRetries:   3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Timeout:      60 * time.Second,
	}
}

// StatusError is returned by HTTP-based providers for non-2xx responses so
// the retry policy can classify them without string matching.
type StatusError struct {
	// Code is the HTTP status code.
	Code int
	// Message is the provider's error text, if any.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("HTTP %d %s", e.Code, http.StatusText(e.Code))
	}
	return fmt.Sprintf("HTTP %d: %s", e.Code, e.Message)
}

// Do runs op until it succeeds, fails with a non-retryable error, the retry
// budget is exhausted, or ctx is done. Each attempt receives its own context
// bounded by cfg.Timeout. name labels the retry log lines.
func Do[T any](ctx context.Context, cfg Config, name string, op func(ctx context.Context) (T, error)) (T, error) {
	log := logging.FromContext(ctx)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialDelay
	if cfg.MaxDelay > 0 {
		b.MaxInterval = cfg.MaxDelay
	}
	// Attempts are bounded by MaxRetries, not by wall-clock time.
	b.MaxElapsedTime = 0

	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(max(cfg.MaxRetries, 0))), ctx) //nolint:gosec // clamped non-negative

	attempt := 0
	operation := func() (T, error) {
		attempt++
		attemptCtx, cancel := ctx, context.CancelFunc(func() {})
		if cfg.Timeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		}
		defer cancel()

		v, err := op(attemptCtx)
		if err == nil {
			return v, nil
		}
		// The caller gave up; retrying would only waste the provider's quota.
		if ctx.Err() != nil {
			return v, backoff.Permanent(err)
		}
		if !IsRetryable(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}

	notify := func(err error, wait time.Duration) {
		log.Warn("retrying provider call",
			slog.String("call", name),
			slog.Int("attempt", attempt),
			slog.Duration("backoff", wait),
			slog.Any("error", err),
		)
	}

	v, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err != nil {
		return v, fmt.Errorf("%s: %d attempt(s): %w", name, attempt, err)
	}
	return v, nil
}

// IsRetryable reports whether err is a transient provider failure. Errors
// that carry no status and are neither timeouts nor transport failures are
// treated as permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	if code, ok := StatusCode(err); ok {
		switch {
		case code == http.StatusTooManyRequests:
			// Daily quotas do not reset within a retry window.
			msg := err.Error()
			return !strings.Contains(msg, "tokens per day") && !strings.Contains(msg, "TPD")
		case code >= 500:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED)
}

// sdkStatus matches the status code the OpenAI-compatible and Gemini SDKs
// print when their typed error did not survive wrapping.
var sdkStatus = regexp.MustCompile(`(?:status code: |^Error |HTTP |^)(\d{3})\b`)

// StatusCode extracts the HTTP status carried by err, checking this package's
// StatusError, the go-openai errors returned by the eino OpenAI-compatible
// models and the genai APIError before falling back to the SDK error text.
func StatusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, true
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode != 0 {
		return apiErr.HTTPStatusCode, true
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return reqErr.HTTPStatusCode, true
	}
	var gErr genai.APIError
	if errors.As(err, &gErr) && gErr.Code != 0 {
		return gErr.Code, true
	}

	if m := sdkStatus.FindStringSubmatch(err.Error()); m != nil {
		code, convErr := strconv.Atoi(m[1])
		return code, convErr == nil
	}
	return 0, false
}
