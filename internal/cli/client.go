package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/harun/afkd/internal/config"
	"github.com/harun/afkd/pkg/gateway"
	"github.com/harun/afkd/pkg/history"
)

const clientTimeout = 2 * time.Minute

// gatewayClient talks to a running daemon's control API
type gatewayClient struct {
	baseURL string
	secret  string
	http    *http.Client
}

func newGatewayClient(baseURL, secret string) *gatewayClient {
	return &gatewayClient{
		baseURL: baseURL,
		secret:  secret,
		http:    &http.Client{Timeout: clientTimeout},
	}
}

// gatewayURL derives the local control API URL from cfg. Wildcard listen
// addresses are reached over loopback.
func gatewayURL(cfg *config.Config) string {
	host := cfg.Gateway.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(cfg.Gateway.Port))
}

func (c *gatewayClient) start(ctx context.Context, req gateway.StartRequest) (*gateway.StatusView, error) {
	var resp gateway.Response
	if err := c.do(ctx, http.MethodPost, "/api/bots/start", req, &resp); err != nil {
		return nil, err
	}
	return resp.Status, nil
}

func (c *gatewayClient) stop(ctx context.Context, identity string) error {
	var resp gateway.Response
	return c.do(ctx, http.MethodPost, "/api/bots/stop", gateway.StopRequest{Identity: identity}, &resp)
}

func (c *gatewayClient) command(ctx context.Context, identity, text string) error {
	var resp gateway.Response
	return c.do(ctx, http.MethodPost, "/api/bots/command", gateway.CommandRequest{Identity: identity, Command: text}, &resp)
}

func (c *gatewayClient) status(ctx context.Context, identity string) (*gateway.StatusView, error) {
	var view gateway.StatusView
	path := "/api/bots/status?identity=" + url.QueryEscape(identity)
	if err := c.do(ctx, http.MethodGet, path, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

func (c *gatewayClient) list(ctx context.Context) ([]gateway.StatusView, error) {
	var resp struct {
		Sessions []gateway.StatusView `json:"sessions"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/bots", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

func (c *gatewayClient) history(ctx context.Context, identity string, limit int) ([]history.Run, error) {
	q := url.Values{}
	q.Set("identity", identity)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Runs []history.Run `json:"runs"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/bots/history?"+q.Encode(), nil, &resp); err != nil {
		return nil, err
	}
	return resp.Runs, nil
}

// do sends one request and decodes the JSON reply into out. Non-2xx replies
// are turned into errors carrying the server's message.
func (c *gatewayClient) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach daemon at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		var failure gateway.Response
		if json.Unmarshal(data, &failure) == nil && failure.Error != "" {
			return fmt.Errorf("%s (HTTP %d)", failure.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected response: HTTP %d", resp.StatusCode)
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
