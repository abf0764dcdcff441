package agent

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/core-tools/hsu-kiosk/pkg/errors"
)

const triggerTimeout = 3 * time.Second

// SendTrigger asks the resident agent listening on port to start a launch
func SendTrigger(ctx context.Context, port int, source string) error {
	ctx, cancel := context.WithTimeout(ctx, triggerTimeout)
	defer cancel()

	endpoint := fmt.Sprintf("http://127.0.0.1:%d%s?source=%s", port, LaunchPath, url.QueryEscape(source))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return errors.NewInternalError("failed to build trigger request", err)
	}

	client := &http.Client{Transport: &http.Transport{Proxy: nil}}
	resp, err := client.Do(req)
	if err != nil {
		return errors.NewNetworkError("kiosk agent not reachable", err).WithContext("port", port)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	switch resp.StatusCode {
	case http.StatusAccepted:
		return nil
	case http.StatusConflict:
		return errors.NewUnavailableError("a launch sequence is already running", nil)
	default:
		return errors.NewNetworkError(fmt.Sprintf("unexpected trigger response: %s", resp.Status), nil)
	}
}
