package prostocks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// requestTimeout bounds every broker call; there is no retry beyond the
// single session-expiry recovery in the gateway.
const requestTimeout = 10 * time.Second

// restClient speaks the NorenAPI wire shape: every request is a POST whose
// body is "jData=<compact json>" plus "&jKey=<token>" once authenticated.
type restClient struct {
	hc      *http.Client
	baseURL string
}

func newRESTClient(baseURL string) *restClient {
	return &restClient{
		hc:      &http.Client{Timeout: requestTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// postJData sends one request and returns the raw response body. The login
// request carries no jKey and goes out as text/plain, everything else as a
// form-encoded body; both shapes are fixed by the vendor.
func (c *restClient) postJData(ctx context.Context, path string, payload any, token string) ([]byte, error) {
	jd, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode jData: %w", err)
	}

	body := "jData=" + string(jd)
	contentType := "text/plain"
	if token != "" {
		body += "&jKey=" + token
		contentType = "application/x-www-form-urlencoded"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrTransport, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrTransport, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return b, nil
}

// call runs one authenticated request and normalizes the reply.
func (c *restClient) call(ctx context.Context, path string, payload any, token string) (*envelope, error) {
	b, err := c.postJData(ctx, path, payload, token)
	if err != nil {
		return nil, err
	}
	return normalize(b)
}
