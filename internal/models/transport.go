package models

import (
	"io"
	"net/http"
	"strings"
	"time"
)

// validatingTransport turns unreachable endpoints, error statuses and
// non-JSON bodies (e.g. a reverse proxy answering "no available server")
// into *ErrModelUnavailable.
type validatingTransport struct {
	inner    http.RoundTripper
	provider string
}

func (t *validatingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.inner.RoundTrip(req)
	if err != nil {
		return nil, &ErrModelUnavailable{Provider: t.provider, Cause: err}
	}

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &ErrModelUnavailable{
			Provider: t.provider,
			Status:   resp.StatusCode,
			Body:     strings.TrimSpace(string(body)),
		}
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "json") && !strings.Contains(ct, "event-stream") {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, &ErrModelUnavailable{
			Provider: t.provider,
			Body:     strings.TrimSpace(string(body)),
		}
	}

	return resp, nil
}

func newHTTPClient(provider string, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &validatingTransport{inner: http.DefaultTransport, provider: provider},
	}
}

// timeoutOr returns the configured timeout or def.
func timeoutOr(d time.Duration, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}

func floatOption(opts map[string]any, key string) (float32, bool) {
	v, ok := opts[key].(float64)
	return float32(v), ok
}
