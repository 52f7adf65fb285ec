package httpx

import (
	"encoding/base64"
	"net/http"
)

// BasicAuthTransport sets HTTP Basic auth on every outgoing request,
// following the clone-before-mutate http.RoundTripper decorator pattern: it
// clones the request, never mutates the caller's original, and never logs
// the credential. Composed with an optional AppToken header.
type BasicAuthTransport struct {
	Username string
	Password string
	AppToken string
	Base     http.RoundTripper
}

func (t *BasicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req2 := req.Clone(req.Context())
	req2.SetBasicAuth(t.Username, t.Password)
	if t.AppToken != "" {
		req2.Header.Set("X-App-Token", t.AppToken)
	}
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req2)
}

// AppTokenTransport sends only the app-token header, used when no Basic
// auth credential resolves (anonymous-but-tokened request).
type AppTokenTransport struct {
	AppToken string
	Base     http.RoundTripper
}

func (t *AppTokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.AppToken == "" {
		base := t.Base
		if base == nil {
			base = http.DefaultTransport
		}
		return base.RoundTrip(req)
	}
	req2 := req.Clone(req.Context())
	req2.Header.Set("X-App-Token", t.AppToken)
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(req2)
}

// ScrubAuthHeaders returns a copy of headers with Authorization and its
// base64 payload removed, so error payloads and logs never carry
// credential material.
func ScrubAuthHeaders(h map[string]string) map[string]string {
	out := make(map[string]string, len(h))
	for k, v := range h {
		if isAuthHeader(k) {
			continue
		}
		out[k] = v
	}
	return out
}

func isAuthHeader(key string) bool {
	switch http.CanonicalHeaderKey(key) {
	case "Authorization", "X-App-Token":
		return true
	default:
		return false
	}
}

// basic encodes a Basic auth value the way net/http does, so this
// package's tests can compare against it without constructing a full
// *http.Request.
func basic(username, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))
}
