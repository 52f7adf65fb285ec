package httpx

import (
	"bytes"
	"context"
	"io"
	"net/http"

	"github.com/opendatacatalog/catalogsync/internal/adapter"
)

// NewFetch adapts a Retrier into the adapter-contract FetchFunc shape, so
// drivers depend only on adapter.FetchFunc and never on *http.Client
// directly — the same "mockable fetch" framing the core's test doubles use.
func NewFetch(r *Retrier) adapter.FetchFunc {
	return func(ctx context.Context, url string, init adapter.FetchInit) (*adapter.FetchResponse, error) {
		method := init.Method
		if method == "" {
			method = http.MethodGet
		}
		var body io.Reader
		if init.Body != nil {
			body = bytes.NewReader(init.Body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return nil, adapter.WrapConfigError("build request", err)
		}
		for k, v := range init.Headers {
			req.Header.Set(k, v)
		}

		resp, doErr := r.Do(req)
		if resp == nil {
			return nil, doErr
		}
		defer resp.Body.Close()

		data, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, &adapter.TransientHTTPError{URL: url, Cause: readErr}
		}

		headers := make(map[string]string, len(resp.Header))
		for k := range resp.Header {
			headers[k] = resp.Header.Get(k)
		}

		fr := &adapter.FetchResponse{StatusCode: resp.StatusCode, Header: headers, Body: data}

		// Retrier returns a non-nil *adapter.FatalHTTPError alongside the
		// live response for 4xx-non-429 statuses; attach the now-read body
		// so callers get the payload alongside the error.
		if fatal, ok := doErr.(*adapter.FatalHTTPError); ok {
			fatal.Body = string(data)
			return fr, fatal
		}
		return fr, nil
	}
}
