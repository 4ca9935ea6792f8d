package configsync

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestIsConfigUpdatedEvent(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{name: "match", body: `{"id":1,"type":"event","event":{"event_type":"mwan3_config_updated"}}`, want: true},
		{name: "other event", body: `{"id":1,"type":"event","event":{"event_type":"state_changed"}}`, want: false},
		{name: "result", body: `{"id":1,"type":"result","success":true}`, want: false},
		{name: "garbage", body: `nope`, want: false},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if got := isConfigUpdatedEvent([]byte(tt.body)); got != tt.want {
				t.Fatalf("isConfigUpdatedEvent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestToWebsocketURL(t *testing.T) {
	got, err := toWebsocketURL("https://ha.local:8123/api/websocket")
	if err != nil {
		t.Fatalf("toWebsocketURL() error: %v", err)
	}
	if got != "wss://ha.local:8123/api/websocket" {
		t.Fatalf("toWebsocketURL() = %q", got)
	}
}

func TestWatcherAuthenticatesAndSubscribes(t *testing.T) {
	upgrader := websocket.Upgrader{}
	subscribed := make(chan map[string]any, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/websocket" {
			http.NotFound(w, r)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_ = conn.WriteJSON(map[string]any{"type": "auth_required"})
		var auth map[string]any
		if err := conn.ReadJSON(&auth); err != nil || auth["access_token"] != "token-1" {
			_ = conn.WriteJSON(map[string]any{"type": "auth_invalid"})
			return
		}
		_ = conn.WriteJSON(map[string]any{"type": "auth_ok"})

		var sub map[string]any
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		subscribed <- sub
		_ = conn.WriteJSON(map[string]any{"id": 1, "type": "result", "success": true})
		_ = conn.WriteJSON(map[string]any{"id": 1, "type": "event", "event": map[string]any{"event_type": ConfigUpdatedEvent}})
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updated := make(chan struct{}, 1)
	go NewWatcher(srv.URL, "token-1", quietLogger()).Run(ctx, func() {
		select {
		case updated <- struct{}{}:
		default:
		}
	})

	select {
	case sub := <-subscribed:
		if sub["type"] != "subscribe_events" || sub["event_type"] != ConfigUpdatedEvent {
			t.Fatalf("unexpected subscribe payload: %v", sub)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("watcher did not subscribe")
	}

	select {
	case <-updated:
	case <-time.After(3 * time.Second):
		t.Fatalf("config updated callback not called")
	}
}

func TestWatcherSessionReportsRejectedAuth(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteJSON(map[string]any{"type": "auth_required"})
		var auth map[string]any
		_ = conn.ReadJSON(&auth)
		_ = conn.WriteJSON(map[string]any{"type": "auth_invalid"})
	}))
	defer srv.Close()

	subscribed, err := NewWatcher(srv.URL, "bad-token", quietLogger()).runSession(context.Background(), func() {
		t.Fatalf("callback must not run without a subscription")
	})
	if subscribed {
		t.Fatalf("expected session without subscription")
	}
	if err == nil {
		t.Fatalf("expected auth rejection error")
	}
}

func TestFileWatcherCallsBackOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "options.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatalf("write options: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan struct{}, 1)
	started := make(chan struct{})
	w := NewFileWatcher(path, 20*time.Millisecond, quietLogger())
	go func() {
		close(started)
		_ = w.Run(ctx, func() {
			select {
			case changed <- struct{}{}:
			default:
			}
		})
	}()
	<-started

	deadline := time.After(3 * time.Second)
	tick := time.NewTicker(100 * time.Millisecond)
	defer tick.Stop()
	for {
		if err := os.WriteFile(path, []byte(`{"host":"192.168.1.1"}`), 0o644); err != nil {
			t.Fatalf("rewrite options: %v", err)
		}
		select {
		case <-changed:
			return
		case <-deadline:
			t.Fatalf("file watcher did not report the change")
		case <-tick.C:
		}
	}
}
