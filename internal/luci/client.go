package luci

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/micro-ha/mwan3-status/internal/model"
)

const maxStatusBody = 4 << 20

// Client fetches the MWAN3 interface_status document through an Authenticator.
type Client struct {
	auth   *Authenticator
	logger *slog.Logger
	now    func() time.Time
}

type ClientOption func(*Client)

func WithClientLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClientClock sets the clock used for the cache-busting query parameter.
func WithClientClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

func NewClient(auth *Authenticator, opts ...ClientOption) *Client {
	c := &Client{auth: auth, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewRouterClient builds an Authenticator and Client for cfg.
func NewRouterClient(cfg model.RouterConfig, opts ...Option) *Client {
	auth := NewAuthenticator(cfg, opts...)
	return NewClient(auth, WithClientLogger(auth.logger), WithClientClock(auth.now))
}

func (c *Client) Authenticator() *Authenticator {
	return c.auth
}

// StatusURL returns the interface_status URL with a millisecond cache buster.
func StatusURL(baseURL string, now time.Time) string {
	return strings.TrimSuffix(baseURL, "/") + InterfaceStatusPath + "?" + strconv.FormatInt(now.UnixMilli(), 10)
}

// FetchStatus downloads and parses the current interface status.
func (c *Client) FetchStatus(ctx context.Context) (model.Snapshot, error) {
	body, err := c.FetchStatusBody(ctx)
	if err != nil {
		return nil, err
	}
	return ParseStatus(body)
}

// FetchStatusBody downloads the raw interface_status document. A 401/403
// answer drops the cached token.
func (c *Client) FetchStatusBody(ctx context.Context) ([]byte, error) {
	headers, err := c.auth.Headers(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, StatusURL(c.auth.BaseURL(), c.now()), nil)
	if err != nil {
		return nil, err
	}
	req.Header = headers
	req.Header.Set("Accept", "application/json")

	resp, err := c.auth.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCannotConnect, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		c.auth.Invalidate()
		return nil, &StatusError{Endpoint: InterfaceStatusPath, StatusCode: resp.StatusCode, Err: ErrAuthExpired}
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, &StatusError{
			Endpoint:   InterfaceStatusPath,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(body)),
			Err:        ErrCannotConnect,
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStatusBody))
	if err != nil {
		return nil, fmt.Errorf("%w: read status body: %w", ErrCannotConnect, err)
	}
	return body, nil
}

// Close releases the authenticator session.
func (c *Client) Close() error {
	return c.auth.Close()
}
