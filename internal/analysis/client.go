package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client calls the analyzer service over HTTP. Connection problems and
// 5xx responses are tagged transient, 4xx responses fatal: a request the
// analyzer rejected once will be rejected again.
type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 5 * time.Minute},
	}
}

func (c *Client) Execute(ctx context.Context, payloadRef string) (json.RawMessage, error) {
	body, err := json.Marshal(map[string]string{"payload_ref": payloadRef})
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: err.Error(), Transient: false}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: KindInternal, Message: err.Error(), Transient: false}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error(), Transient: true}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Message: err.Error(), Transient: true}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if !json.Valid(raw) {
			return nil, &Error{Kind: KindValidation, Message: "analyzer returned non-JSON result", Transient: false}
		}
		return json.RawMessage(raw), nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, &Error{
			Kind:      KindValidation,
			Message:   fmt.Sprintf("analyzer rejected request (%d): %s", resp.StatusCode, snippet(raw)),
			Transient: false,
		}
	default:
		return nil, &Error{
			Kind:      KindUnavailable,
			Message:   fmt.Sprintf("analyzer unavailable (%d)", resp.StatusCode),
			Transient: true,
		}
	}
}

func snippet(b []byte) string {
	const max = 200
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
