// Package httpx provides the HTTP retry/backoff wrapper around
// the adapter-contract fetch function, plus auth-header decorators mirroring
// the http.RoundTripper signing wrappers in this package.
package httpx

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/opendatacatalog/catalogsync/internal/adapter"
)

// RetryConfig controls attempt budget and backoff shape.
type RetryConfig struct {
	MaxAttempts  int
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	EnableJitter bool
}

// DefaultRetryConfig holds the baseline retry/backoff parameters.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		BaseDelay:    200 * time.Millisecond,
		MaxDelay:     30 * time.Second,
		EnableJitter: true,
	}
}

// Sleeper abstracts time.Sleep so tests can run deterministically without
// real waits.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

type realSleeper struct{}

func (realSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RealSleeper is the production Sleeper.
var RealSleeper Sleeper = realSleeper{}

// Doer is the minimal subset of *http.Client the retrier needs, so tests
// can substitute a scripted fetch in place of a live transport.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Retrier wraps a Doer with classification and backoff rules.
type Retrier struct {
	Doer    Doer
	Config  RetryConfig
	Sleeper Sleeper
	Rand    func() float64 // uniform [0,1); defaults to rand.Float64
}

func NewRetrier(doer Doer, cfg RetryConfig) *Retrier {
	return &Retrier{Doer: doer, Config: cfg, Sleeper: RealSleeper, Rand: rand.Float64}
}

// Do executes req, classifying the response/error and retrying as needed.
// On success the live *http.Response is returned with its Body open. On a
// 4xx other than 429 the live response is also returned, Body still open
// and unread, together with a *adapter.FatalHTTPError whose Body is empty;
// the caller reads and closes it. Every other failure returns a nil
// response.
func (r *Retrier) Do(req *http.Request) (*http.Response, error) {
	cfg := r.Config
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	randFn := r.Rand
	if randFn == nil {
		randFn = rand.Float64
	}

	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := req.Context().Err(); err != nil {
			return nil, &adapter.CancellationError{Cause: err}
		}

		resp, err := r.Doer.Do(req)
		if err != nil {
			if errors.Is(req.Context().Err(), context.Canceled) || errors.Is(req.Context().Err(), context.DeadlineExceeded) {
				return nil, &adapter.CancellationError{Cause: err}
			}
			lastErr = &adapter.TransientHTTPError{URL: req.URL.String(), Cause: err}
			if attempt == cfg.MaxAttempts {
				break
			}
			if sleepErr := r.sleepBackoff(req.Context(), cfg, attempt, randFn, nil); sleepErr != nil {
				return nil, &adapter.CancellationError{Cause: sleepErr}
			}
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil

		case resp.StatusCode == 429:
			retryAfter := resp.Header.Get("Retry-After")
			resp.Body.Close()
			lastErr = &adapter.TransientHTTPError{URL: req.URL.String(), StatusCode: resp.StatusCode}
			if attempt == cfg.MaxAttempts {
				break
			}
			if sleepErr := r.sleepBackoff(req.Context(), cfg, attempt, randFn, parseRetryAfter(retryAfter)); sleepErr != nil {
				return nil, &adapter.CancellationError{Cause: sleepErr}
			}
			continue

		case resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = &adapter.TransientHTTPError{URL: req.URL.String(), StatusCode: resp.StatusCode}
			if attempt == cfg.MaxAttempts {
				break
			}
			if sleepErr := r.sleepBackoff(req.Context(), cfg, attempt, randFn, nil); sleepErr != nil {
				return nil, &adapter.CancellationError{Cause: sleepErr}
			}
			continue

		default:
			// 4xx other than 429: fatal, no retry, exactly one attempt.
			return resp, &adapter.FatalHTTPError{URL: req.URL.String(), StatusCode: resp.StatusCode}
		}
	}

	return nil, &adapter.RetryExhausted{URL: req.URL.String(), Attempts: cfg.MaxAttempts, Cause: lastErr}
}

// sleepBackoff sleeps for the Retry-After delay, capped at 30s, when
// retryAfter is non-nil; otherwise for exponential backoff with optional
// jitter, capped at MaxDelay.
func (r *Retrier) sleepBackoff(ctx context.Context, cfg RetryConfig, attempt int, randFn func() float64, retryAfter *time.Duration) error {
	var delay time.Duration
	if retryAfter != nil {
		delay = *retryAfter
		if delay > 30*time.Second {
			delay = 30 * time.Second
		}
	} else {
		delay = cfg.BaseDelay * (1 << uint(attempt))
		if cfg.EnableJitter {
			delay += time.Duration(randFn() * float64(cfg.BaseDelay))
		}
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
	return r.Sleeper.Sleep(ctx, delay)
}

// parseRetryAfter parses a Retry-After header value as either delay-seconds
// or an HTTP-date, returning nil when unparseable.
func parseRetryAfter(v string) *time.Duration {
	if v == "" {
		return nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		d := time.Duration(secs) * time.Second
		return &d
	}
	if t, err := http.ParseTime(v); err == nil {
		d := time.Until(t)
		if d < 0 {
			d = 0
		}
		return &d
	}
	return nil
}
