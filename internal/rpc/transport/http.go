package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPPoster sends one payload per POST and returns the response body.
// Request/response only; notifications get an empty body back.
type HTTPPoster struct {
	Endpoint string
	Client   *http.Client
}

// NewHTTPPoster builds a poster for an envelope endpoint.
func NewHTTPPoster(endpoint string) *HTTPPoster {
	return &HTTPPoster{
		Endpoint: endpoint,
		Client:   &http.Client{Timeout: defaultHTTPTimeout},
	}
}

// Post sends payload as application/json and reads the full response.
func (p *HTTPPoster) Post(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return nil, fmt.Errorf("endpoint %s returned %d", p.Endpoint, resp.StatusCode)
	}
	return body, nil
}
