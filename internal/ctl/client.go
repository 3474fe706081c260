package ctl

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/marmos91/tether/internal/cli/health"
)

// Client talks to a daemon's control server.
type Client struct {
	base string
	http *http.Client
}

// NewClient returns a client for the control server at addr (host:port).
func NewClient(addr string) *Client {
	return &Client{
		base: "http://" + addr,
		http: &http.Client{Timeout: 65 * time.Second},
	}
}

// Reachable reports whether a control server answers at all. Used to decide
// between driving a daemon and acting on the state directory directly.
func (c *Client) Reachable(ctx context.Context) bool {
	_, err := c.Health(ctx)
	return err == nil
}

// Health fetches /healthz.
func (c *Client) Health(ctx context.Context) (*health.Response, error) {
	var resp health.Response
	if err := c.get(ctx, "/healthz", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Status fetches the mount status.
func (c *Client) Status(ctx context.Context) (*health.MountStatus, error) {
	var resp health.MountStatus
	if err := c.get(ctx, "/api/v1/status", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Refresh asks the daemon to rewrite the liveness marker and reload the
// engine cache.
func (c *Client) Refresh(ctx context.Context) error {
	return c.post(ctx, "/api/v1/refresh")
}

// Unmount asks the daemon to tear the mount down and exit. Returns once the
// request is accepted; the caller waits for the daemon process separately.
func (c *Client) Unmount(ctx context.Context) error {
	return c.post(ctx, "/api/v1/unmount")
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("control server unreachable: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Error string `json:"error"`
		}
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("control server: %s", apiErr.Error)
		}
		return fmt.Errorf("control server: unexpected status %d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode control response: %w", err)
	}
	return nil
}
