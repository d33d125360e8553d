// Package remote implements the client side of the pull/push sync protocol.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/raido/internal/models"
)

// PullRequest asks the endpoint for everything changed strictly after Since.
type PullRequest struct {
	Account     string   `json:"account"`
	Since       int64    `json:"since"`
	Collections []string `json:"collections"`
}

// PullResponse carries the change rows per collection and the server time
// the next cursor should resume from.
type PullResponse struct {
	Diffs      models.DiffBatch `json:"diffs"`
	ServerTime int64            `json:"server_time"`
}

// PushRequest uploads locally originated change rows.
type PushRequest struct {
	Account string           `json:"account"`
	Device  string           `json:"device"`
	Diffs   models.DiffBatch `json:"diffs"`
}

// Client is the wire-protocol client the sync coordinator drives. The HTTP
// machinery around it (auth refresh, retries at the transport level) is a
// collaborator, not part of the sync core.
type Client interface {
	Pull(ctx context.Context, req PullRequest) (*PullResponse, error)
	Push(ctx context.Context, req PushRequest) error
}

// HTTPClient implements Client against a JSON-over-HTTP endpoint.
type HTTPClient struct {
	base  string
	token string
	hc    *http.Client
}

// NewHTTP creates a client for the endpoint at baseURL. token, when
// non-empty, is sent as a Bearer credential.
func NewHTTP(baseURL, token string) (*HTTPClient, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("remote: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("remote: base url must be absolute: %s", baseURL)
	}
	return &HTTPClient{
		base:  strings.TrimRight(baseURL, "/"),
		token: token,
		hc:    &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// Pull requests the change rows for req and decodes the response.
func (c *HTTPClient) Pull(ctx context.Context, req PullRequest) (*PullResponse, error) {
	var resp PullResponse
	if err := c.post(ctx, "/sync/pull", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Push uploads req. The ack body is discarded; a 2xx status is the ack.
func (c *HTTPClient) Push(ctx context.Context, req PushRequest) error {
	return c.post(ctx, "/sync/push", req, nil)
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("remote: encode %s: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("remote: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("remote: %s: %w", path, err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		// Drain a little of the body for a useful message.
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 256))
		return fmt.Errorf("remote: %s: status %d: %s", path, res.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("remote: decode %s: %w", path, err)
	}
	return nil
}
