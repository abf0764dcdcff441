package probe

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/core-tools/hsu-kiosk/pkg/errors"
)

// Getter issues a single GET and returns the status code
type Getter interface {
	Get(ctx context.Context, url string, timeout time.Duration) (int, error)
}

// HTTPGetter is the net/http Getter. Connections are not reused: every probe
// may target a different host and most targets never answer.
type HTTPGetter struct {
	client *http.Client
}

func NewHTTPGetter() *HTTPGetter {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = true
	transport.Proxy = nil
	return &HTTPGetter{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// The dashboard answers 200 on its root; a redirect is reported as-is
				return http.ErrUseLastResponse
			},
		},
	}
}

func (g *HTTPGetter) Get(ctx context.Context, url string, timeout time.Duration) (int, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, errors.NewValidationError("failed to create HTTP request", err).WithContext("url", url)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return 0, errors.NewNetworkError("HTTP request failed", err).WithContext("url", url)
	}
	defer resp.Body.Close()
	// a small drain; the body itself is irrelevant
	_, _ = io.CopyN(io.Discard, resp.Body, 4096)

	return resp.StatusCode, nil
}
