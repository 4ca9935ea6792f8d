package luci

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/micro-ha/mwan3-status/internal/luci/mock"
)

func newTestClient(router *mock.Router, clock *fakeClock) *Client {
	return NewClient(newTestAuthenticator(router, clock), WithClientLogger(testLogger()), WithClientClock(clock.Now))
}

func TestFetchStatusParsesInterfaces(t *testing.T) {
	router := mock.NewRouter(t)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	client := newTestClient(router, clock)
	defer client.Close()

	snapshot, err := client.FetchStatus(context.Background())
	if err != nil {
		t.Fatalf("FetchStatus() error: %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 interfaces, got %d", len(snapshot))
	}
	wan1 := snapshot["wan1"]
	if wan1.Status != "online" || !wan1.Up || wan1.Score != 10 || wan1.Uptime != 7200 {
		t.Fatalf("unexpected wan1: %+v", wan1)
	}
	if len(wan1.TrackIP) != 2 || wan1.TrackIP[1] != "8.8.8.8" {
		t.Fatalf("unexpected wan1 track_ip: %v", wan1.TrackIP)
	}

	var statusReq *mock.Request
	for _, req := range router.Requests() {
		if req.Path == InterfaceStatusPath {
			req := req
			statusReq = &req
		}
	}
	if statusReq == nil {
		t.Fatalf("expected interface_status request")
	}
	if want := strconv.FormatInt(clock.now.UnixMilli(), 10); statusReq.RawQuery != want {
		t.Fatalf("cache buster = %q, want %q", statusReq.RawQuery, want)
	}
	if statusReq.Cookie != "sysauth=abc123" {
		t.Fatalf("Cookie = %q", statusReq.Cookie)
	}
}

func TestFetchStatusInvalidatesTokenOnForbidden(t *testing.T) {
	router := mock.NewRouter(t)
	client := newTestClient(router, &fakeClock{now: time.Now()})
	defer client.Close()

	if _, err := client.FetchStatus(context.Background()); err != nil {
		t.Fatalf("first FetchStatus() error: %v", err)
	}

	router.ExpireSession()
	_, err := client.FetchStatus(context.Background())
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("FetchStatus() error = %v, want ErrAuthExpired", err)
	}
	if client.auth.token != "" {
		t.Fatalf("expected token to be cleared")
	}

	if _, err := client.FetchStatus(context.Background()); err != nil {
		t.Fatalf("FetchStatus() after re-login error: %v", err)
	}
	if router.Logins() != 2 {
		t.Fatalf("expected 2 logins, got %d", router.Logins())
	}
}

func TestFetchStatusUnexpectedStatus(t *testing.T) {
	router := mock.NewRouter(t)
	router.SetStatusCode(http.StatusInternalServerError)
	client := newTestClient(router, &fakeClock{now: time.Now()})
	defer client.Close()

	_, err := client.FetchStatus(context.Background())
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusInternalServerError {
		t.Fatalf("StatusCode = %d", statusErr.StatusCode)
	}
	if !errors.Is(err, ErrCannotConnect) {
		t.Fatalf("expected ErrCannotConnect in chain")
	}
}

func TestFetchStatusMalformedBody(t *testing.T) {
	router := mock.NewRouter(t)
	router.SetStatusBody(`<html>login</html>`)
	client := newTestClient(router, &fakeClock{now: time.Now()})
	defer client.Close()

	_, err := client.FetchStatus(context.Background())
	if !errors.Is(err, ErrInvalidResponse) {
		t.Fatalf("FetchStatus() error = %v, want ErrInvalidResponse", err)
	}
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{err: nil, want: ""},
		{err: ErrInvalidAuth, want: "invalid_auth"},
		{err: &StatusError{StatusCode: 403, Err: ErrAuthExpired}, want: "auth_expired"},
		{err: &StatusError{StatusCode: 500, Err: ErrCannotConnect}, want: "cannot_connect"},
		{err: ErrInvalidResponse, want: "invalid_response"},
		{err: ErrNoInterfaces, want: "no_interfaces"},
		{err: errors.New("boom"), want: "unknown"},
	}
	for _, tt := range tests {
		if got := ErrorCode(tt.err); got != tt.want {
			t.Fatalf("ErrorCode(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
