package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opendatacatalog/catalogsync/internal/adapter"
)

type fakeSleeper struct{ sleeps []time.Duration }

func (f *fakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	f.sleeps = append(f.sleeps, d)
	return nil
}

func newRequest(t *testing.T, url string) *http.Request {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, url, nil)
	require.NoError(t, err)
	return req
}

func TestRetrier_SuccessFirstAttempt(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := NewRetrier(srv.Client(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond})
	r.Sleeper = &fakeSleeper{}
	resp, err := r.Do(newRequest(t, srv.URL))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRetrier_FatalHTTPNoRetry(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	r := NewRetrier(srv.Client(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond})
	r.Sleeper = &fakeSleeper{}
	_, err := r.Do(newRequest(t, srv.URL))
	require.Error(t, err)
	var fatal *adapter.FatalHTTPError
	require.ErrorAs(t, err, &fatal)
	require.Equal(t, 1, calls, "fatal 4xx must make exactly one attempt")
}

func TestRetrier_5xxRetriesThenExhausts(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	sleeper := &fakeSleeper{}
	r := NewRetrier(srv.Client(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, EnableJitter: false})
	r.Sleeper = sleeper
	_, err := r.Do(newRequest(t, srv.URL))
	require.Error(t, err)
	var exhausted *adapter.RetryExhausted
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, 3, exhausted.Attempts)
	require.Equal(t, 3, calls)
	require.Len(t, sleeper.sleeps, 2, "sleeps between attempts only, not after the last")
}

func TestRetrier_429HonorsRetryAfterSeconds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	sleeper := &fakeSleeper{}
	r := NewRetrier(srv.Client(), RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond})
	r.Sleeper = sleeper
	resp, err := r.Do(newRequest(t, srv.URL))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, sleeper.sleeps, 1)
	require.Equal(t, time.Second, sleeper.sleeps[0])
}

func TestRetrier_RetryAfterCappedAt30s(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "3600")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	sleeper := &fakeSleeper{}
	r := NewRetrier(srv.Client(), RetryConfig{MaxAttempts: 2, BaseDelay: time.Millisecond})
	r.Sleeper = sleeper
	_, err := r.Do(newRequest(t, srv.URL))
	require.Error(t, err)
	require.Len(t, sleeper.sleeps, 1)
	require.Equal(t, 30*time.Second, sleeper.sleeps[0])
}

func TestRetrier_NetworkErrorRetriedLikeTransient(t *testing.T) {
	r := NewRetrier(&failingDoer{failTimes: 2}, RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond})
	r.Sleeper = &fakeSleeper{}
	req := newRequest(t, "http://127.0.0.1:0/unreachable")
	resp, err := r.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

type failingDoer struct {
	failTimes int
	calls     int
}

func (f *failingDoer) Do(req *http.Request) (*http.Response, error) {
	f.calls++
	if f.calls <= f.failTimes {
		return nil, context.DeadlineExceeded
	}
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

func TestRetrier_CancellationAbortsWaits(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://example.invalid", nil)
	require.NoError(t, err)

	r := NewRetrier(&failingDoer{failTimes: 99}, RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond})
	r.Sleeper = &fakeSleeper{}
	_, err = r.Do(req)
	require.Error(t, err)
	var canceled *adapter.CancellationError
	require.ErrorAs(t, err, &canceled)
}

func TestParseRetryAfter(t *testing.T) {
	d := parseRetryAfter("5")
	require.NotNil(t, d)
	require.Equal(t, 5*time.Second, *d)

	require.Nil(t, parseRetryAfter(""))
	require.Nil(t, parseRetryAfter("not-a-date"))

	future := time.Now().Add(10 * time.Second).UTC().Format(http.TimeFormat)
	d = parseRetryAfter(future)
	require.NotNil(t, d)
	require.InDelta(t, 10*float64(time.Second), float64(*d), float64(2*time.Second))
}
