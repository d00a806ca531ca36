// Package client is a small REST client for the supervisor's status API,
// used by the CLI and by operator tooling.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Client talks to a running supervisor daemon.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// Config holds client configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
	Logger  *slog.Logger
}

// DefaultConfig points at a local daemon with the default base path.
func DefaultConfig() Config {
	return Config{
		BaseURL: "http://127.0.0.1:8080/api",
		Timeout: 10 * time.Second,
	}
}

func New(config Config) *Client {
	if config.BaseURL == "" {
		config.BaseURL = "http://127.0.0.1:8080/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Client{
		baseURL: config.BaseURL,
		logger:  config.Logger,
		client:  &http.Client{Timeout: config.Timeout},
	}
}

// IsReachable reports whether a daemon answers on the base URL.
func (c *Client) IsReachable(ctx context.Context) bool {
	var hz Healthz
	// Any decodable healthz body counts, including 503 while shutting down.
	err := c.get(ctx, "/healthz", &hz, http.StatusOK, http.StatusServiceUnavailable)
	if err != nil {
		c.logger.Debug("daemon unreachable", "error", err)
		return false
	}
	return true
}

// Status fetches the full supervisor snapshot.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.get(ctx, "/status", &st, http.StatusOK); err != nil {
		return nil, err
	}
	return &st, nil
}

// WorkerStatus fetches one worker's entry.
func (c *Client) WorkerStatus(ctx context.Context, id string) (*WorkerStatus, error) {
	var ws WorkerStatus
	if err := c.get(ctx, "/status/"+url.PathEscape(id), &ws, http.StatusOK); err != nil {
		return nil, err
	}
	return &ws, nil
}

// Healthz fetches the liveness document.
func (c *Client) Healthz(ctx context.Context) (*Healthz, error) {
	var hz Healthz
	if err := c.get(ctx, "/healthz", &hz, http.StatusOK, http.StatusServiceUnavailable); err != nil {
		return nil, err
	}
	return &hz, nil
}

// Reload asks the daemon to re-read its configuration file.
func (c *Client) Reload(ctx context.Context) error {
	return c.post(ctx, "/reload")
}

// ResetWorker clears a fail-stopped worker's restart window.
func (c *Client) ResetWorker(ctx context.Context, id string) error {
	return c.post(ctx, "/workers/"+url.PathEscape(id)+"/reset")
}

func (c *Client) get(ctx context.Context, path string, into any, okCodes ...int) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if !codeIn(resp.StatusCode, okCodes) {
		return c.apiError(resp)
	}
	return json.NewDecoder(resp.Body).Decode(into)
}

func (c *Client) post(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return c.apiError(resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (c *Client) apiError(resp *http.Response) error {
	var er errorResp
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64*1024)).Decode(&er); err == nil && er.Error != "" {
		return fmt.Errorf("daemon: %s (status %d)", er.Error, resp.StatusCode)
	}
	return fmt.Errorf("daemon: unexpected status %d", resp.StatusCode)
}

func codeIn(code int, codes []int) bool {
	for _, c := range codes {
		if code == c {
			return true
		}
	}
	return false
}
