package mock

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/micro-ha/mwan3-status/internal/model"
)

// DefaultStatusBody is a two-interface interface_status document.
const DefaultStatusBody = `{"interfaces":{
	"wan1":{"status":"online","enabled":true,"score":10,"up":true,"age":1,"turn":0,"online":3600,"uptime":7200,"lost":0,"offline":0,"running":true,"track_ip":["1.1.1.1","8.8.8.8"]},
	"wan2":{"status":"offline","enabled":true,"score":0,"up":false,"age":2,"turn":1,"online":0,"uptime":0,"lost":5,"offline":120,"running":false,"track_ip":["9.9.9.9"]}
}}`

// Request records one call to the fake router.
type Request struct {
	Method   string
	Path     string
	RawQuery string
	Cookie   string
}

// Router is a programmable fake LuCI web UI serving the login form, the
// MWAN3 status page and the interface_status endpoint.
type Router struct {
	Server   *httptest.Server
	Username string
	Password string

	mu          sync.Mutex
	token       string
	valid       string
	loginStatus int
	omitCookie  bool
	pageStatus  int
	statusCode  int
	statusBody  string
	requests    []Request
	logins      int
	statusCalls int
}

// NewRouter starts a fake router accepting root/secret and issuing token abc123.
func NewRouter(t testing.TB) *Router {
	t.Helper()
	r := &Router{
		Username:   "root",
		Password:   "secret",
		token:      "abc123",
		statusBody: DefaultStatusBody,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/cgi-bin/luci", r.handleLogin)
	mux.HandleFunc("/cgi-bin/luci/admin/status/mwan", r.handleStatusPage)
	mux.HandleFunc("/cgi-bin/luci/admin/status/mwan/interface_status", r.handleInterfaceStatus)
	r.Server = httptest.NewServer(mux)
	t.Cleanup(r.Server.Close)
	return r
}

// Config returns router options pointing at the fake server.
func (r *Router) Config() model.RouterConfig {
	return model.RouterConfig{
		Host:            r.Server.URL,
		Username:        r.Username,
		Password:        r.Password,
		Name:            "Test Router",
		ScanIntervalSec: model.DefaultScanInterval,
	}
}

// SetToken changes the token issued by the next login.
func (r *Router) SetToken(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.token = token
}

// SetLoginStatus forces the login endpoint to answer with status. Zero restores 302.
func (r *Router) SetLoginStatus(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loginStatus = status
}

// OmitCookie makes a successful login answer 302 without a sysauth cookie.
func (r *Router) OmitCookie(omit bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.omitCookie = omit
}

func (r *Router) SetPageStatus(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pageStatus = status
}

func (r *Router) SetStatusCode(status int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusCode = status
}

func (r *Router) SetStatusBody(body string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statusBody = body
}

// ExpireSession makes the router reject the currently issued token.
func (r *Router) ExpireSession() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.valid = ""
}

func (r *Router) Logins() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.logins
}

func (r *Router) StatusCalls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusCalls
}

// Requests returns a copy of all recorded requests.
func (r *Router) Requests() []Request {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Request, len(r.requests))
	copy(out, r.requests)
	return out
}

func (r *Router) record(req *http.Request) {
	r.requests = append(r.requests, Request{
		Method:   req.Method,
		Path:     req.URL.Path,
		RawQuery: req.URL.RawQuery,
		Cookie:   req.Header.Get("Cookie"),
	})
}

func (r *Router) authorized(req *http.Request) bool {
	cookie, err := req.Cookie("sysauth")
	return err == nil && r.valid != "" && cookie.Value == r.valid
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(req)
	if req.Method != http.MethodPost {
		w.WriteHeader(http.StatusOK)
		return
	}
	r.logins++
	if r.loginStatus != 0 {
		w.WriteHeader(r.loginStatus)
		return
	}
	if err := req.ParseForm(); err != nil ||
		req.PostForm.Get("luci_username") != r.Username ||
		req.PostForm.Get("luci_password") != r.Password {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if !r.omitCookie {
		w.Header().Add("Set-Cookie", "sysauth="+r.token+"; Path=/cgi-bin/luci/; HttpOnly")
		r.valid = r.token
	}
	w.Header().Set("Location", "/cgi-bin/luci/admin")
	w.WriteHeader(http.StatusFound)
}

func (r *Router) handleStatusPage(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(req)
	if !r.authorized(req) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if r.pageStatus != 0 {
		w.WriteHeader(r.pageStatus)
		return
	}
	w.Header().Set("Content-Type", "text/html")
	_, _ = w.Write([]byte("<html><body>MWAN Interfaces</body></html>"))
}

func (r *Router) handleInterfaceStatus(w http.ResponseWriter, req *http.Request) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.record(req)
	r.statusCalls++
	if !r.authorized(req) {
		w.WriteHeader(http.StatusForbidden)
		return
	}
	if r.statusCode != 0 && r.statusCode != http.StatusOK {
		w.WriteHeader(r.statusCode)
		_, _ = w.Write([]byte("router error"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(r.statusBody))
}
