package luci

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/micro-ha/mwan3-status/internal/model"
)

// LuCI endpoints used by the MWAN3 status page.
const (
	LoginPath           = "/cgi-bin/luci"
	StatusPagePath      = "/cgi-bin/luci/admin/status/mwan"
	InterfaceStatusPath = "/cgi-bin/luci/admin/status/mwan/interface_status"
	SessionCookie       = "sysauth"
)

const (
	// DefaultTokenTTL is a client-side guess; LuCI does not report the session lifetime.
	DefaultTokenTTL = time.Hour
	DefaultTimeout  = 10 * time.Second
)

var sysauthPattern = regexp.MustCompile(SessionCookie + `=([^;]+)`)

// Authenticator logs into LuCI and keeps the sysauth session token for one router.
type Authenticator struct {
	baseURL  string
	username string
	password string
	ttl      time.Duration
	timeout  time.Duration
	template *http.Client
	logger   *slog.Logger
	now      func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time

	sessMu sync.Mutex
	sess   *session
}

// session is the lazily opened HTTP state owned by an Authenticator.
type session struct {
	// owned is set when the transport was cloned here rather than supplied
	// through WithHTTPClient.
	owned     bool
	transport http.RoundTripper
	client    *http.Client
	login     *http.Client
}

type Option func(*Authenticator)

// WithHTTPClient uses the transport of client for all router requests.
func WithHTTPClient(client *http.Client) Option {
	return func(a *Authenticator) {
		a.template = client
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(a *Authenticator) {
		if now != nil {
			a.now = now
		}
	}
}

func WithTokenTTL(ttl time.Duration) Option {
	return func(a *Authenticator) {
		if ttl > 0 {
			a.ttl = ttl
		}
	}
}

// WithTimeout bounds every request made through the session.
func WithTimeout(timeout time.Duration) Option {
	return func(a *Authenticator) {
		if timeout > 0 {
			a.timeout = timeout
		}
	}
}

// NewAuthenticator creates an authenticator for cfg. No network I/O happens until first use.
func NewAuthenticator(cfg model.RouterConfig, opts ...Option) *Authenticator {
	a := &Authenticator{
		baseURL:  cfg.BaseURL(),
		username: cfg.Username,
		password: cfg.Password,
		ttl:      DefaultTokenTTL,
		timeout:  DefaultTimeout,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// BaseURL is the router origin requests are sent to.
func (a *Authenticator) BaseURL() string {
	return a.baseURL
}

// Headers returns the cookie header for an authenticated request, logging in
// when no unexpired token is cached.
func (a *Authenticator) Headers(ctx context.Context) (http.Header, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token == "" || !a.now().Before(a.expiry) {
		if err := a.login(ctx); err != nil {
			return nil, err
		}
	}
	headers := http.Header{}
	headers.Set("Cookie", SessionCookie+"="+a.token)
	return headers, nil
}

// Invalidate drops the cached token so the next request logs in again.
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
	a.expiry = time.Time{}
}

// Do sends req through the authenticator's session, following redirects.
func (a *Authenticator) Do(req *http.Request) (*http.Response, error) {
	return a.httpSession().client.Do(req)
}

// ValidateConnection logs in and probes the MWAN3 status page. Expected
// failures are reported through the message, never as an error.
func (a *Authenticator) ValidateConnection(ctx context.Context) (bool, string) {
	headers, err := a.Headers(ctx)
	if err != nil {
		a.logger.Error("error validating connection", "host", a.baseURL, "err", err)
		return false, "Connection error: " + err.Error()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+StatusPagePath, nil)
	if err != nil {
		return false, "Connection error: " + err.Error()
	}
	req.Header = headers

	resp, err := a.Do(req)
	if err != nil {
		a.logger.Error("error validating connection", "host", a.baseURL, "err", err)
		return false, "Connection error: " + err.Error()
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	switch resp.StatusCode {
	case http.StatusOK:
		return true, "Connection successful"
	case http.StatusUnauthorized, http.StatusForbidden:
		a.Invalidate()
		return false, "Authentication failed"
	default:
		return false, fmt.Sprintf("Failed to access MWAN3 status page (HTTP %d)", resp.StatusCode)
	}
}

// Close releases the HTTP session. It is safe to call repeatedly; a later
// request opens a new session.
func (a *Authenticator) Close() error {
	a.sessMu.Lock()
	defer a.sessMu.Unlock()
	if a.sess == nil {
		return nil
	}
	if closer, ok := a.sess.transport.(interface{ CloseIdleConnections() }); ok && a.sess.owned {
		closer.CloseIdleConnections()
	}
	a.sess = nil
	return nil
}

// login must be called with a.mu held.
func (a *Authenticator) login(ctx context.Context) error {
	form := url.Values{
		"luci_username": {a.username},
		"luci_password": {a.password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+LoginPath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCannotConnect, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.httpSession().login.Do(req)
	if err != nil {
		a.logger.Error("error connecting to router", "host", a.baseURL, "err", err)
		return fmt.Errorf("%w: %w", ErrCannotConnect, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode != http.StatusFound {
		return &StatusError{Endpoint: LoginPath, StatusCode: resp.StatusCode, Err: ErrInvalidAuth}
	}
	token, ok := extractToken(resp.Header.Values("Set-Cookie"))
	if !ok {
		return fmt.Errorf("%w: login response has no %s cookie", ErrInvalidAuth, SessionCookie)
	}

	a.token = token
	a.expiry = a.now().Add(a.ttl)
	a.logger.Debug("router login succeeded", "host", a.baseURL, "expires_at", a.expiry)
	return nil
}

func (a *Authenticator) httpSession() *session {
	a.sessMu.Lock()
	defer a.sessMu.Unlock()
	if a.sess != nil {
		return a.sess
	}

	var transport http.RoundTripper
	owned := false
	switch {
	case a.template != nil && a.template.Transport != nil:
		transport = a.template.Transport
	default:
		owned = true
		if defaultTransport, ok := http.DefaultTransport.(*http.Transport); ok {
			transport = defaultTransport.Clone()
		} else {
			transport = &http.Transport{}
		}
	}

	a.sess = &session{
		owned:     owned,
		transport: transport,
		client:    &http.Client{Transport: transport, Timeout: a.timeout},
		login: &http.Client{
			Transport: transport,
			Timeout:   a.timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
	return a.sess
}

func extractToken(cookies []string) (string, bool) {
	for _, cookie := range cookies {
		if !strings.Contains(cookie, SessionCookie+"=") {
			continue
		}
		if match := sysauthPattern.FindStringSubmatch(cookie); len(match) == 2 {
			return match[1], true
		}
	}
	return "", false
}
