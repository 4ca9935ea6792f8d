package configsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
)

// ConfigUpdatedEvent is fired on the Home Assistant bus when the router
// options are edited.
const ConfigUpdatedEvent = "mwan3_config_updated"

const (
	readTimeout       = 120 * time.Second
	minReconnectDelay = time.Second
	maxReconnectDelay = 20 * time.Second
)

type Watcher struct {
	baseURL string
	token   string
	logger  *slog.Logger
}

func NewWatcher(baseURL, token string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{baseURL: strings.TrimSuffix(baseURL, "/"), token: token, logger: logger}
}

// Run keeps a websocket subscription open and reconnects with backoff until
// ctx is cancelled.
func (w *Watcher) Run(ctx context.Context, onConfigUpdated func()) {
	reconnect := backoff.NewExponentialBackOff()
	reconnect.InitialInterval = minReconnectDelay
	reconnect.MaxInterval = maxReconnectDelay
	reconnect.MaxElapsedTime = 0
	reconnect.Reset()

	for {
		if ctx.Err() != nil {
			return
		}
		subscribed, err := w.runSession(ctx, onConfigUpdated)
		if err != nil && ctx.Err() == nil {
			w.logger.Warn("config event watcher disconnected", "err", err)
		}
		if subscribed {
			reconnect.Reset()
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnect.NextBackOff()):
		}
	}
}

// runSession authenticates, subscribes to router option updates and reads
// events until the connection drops. subscribed reports whether the
// subscription was established.
func (w *Watcher) runSession(ctx context.Context, onConfigUpdated func()) (subscribed bool, err error) {
	wsURL, err := toWebsocketURL(w.baseURL + "/api/websocket")
	if err != nil {
		return false, err
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	_, msg, err := conn.ReadMessage()
	if err != nil {
		return false, err
	}
	if messageType(msg) != "auth_required" {
		return false, fmt.Errorf("unexpected websocket greeting %q", messageType(msg))
	}

	if err := conn.WriteJSON(map[string]any{"type": "auth", "access_token": w.token}); err != nil {
		return false, err
	}
	_, msg, err = conn.ReadMessage()
	if err != nil {
		return false, err
	}
	if messageType(msg) != "auth_ok" {
		return false, errors.New("home assistant rejected websocket auth")
	}

	subscribe := map[string]any{"id": 1, "type": "subscribe_events", "event_type": ConfigUpdatedEvent}
	if err := conn.WriteJSON(subscribe); err != nil {
		return false, err
	}
	w.logger.Info("watching router option updates", "event_type", ConfigUpdatedEvent)

	for {
		if err := conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
			return true, err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return true, err
		}
		if isConfigUpdatedEvent(msg) {
			w.logger.Debug("router options update event received")
			onConfigUpdated()
		}
	}
}

func messageType(body []byte) string {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return ""
	}
	return envelope.Type
}

func isConfigUpdatedEvent(body []byte) bool {
	var envelope struct {
		Type  string `json:"type"`
		Event struct {
			EventType string `json:"event_type"`
		} `json:"event"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false
	}
	return envelope.Type == "event" && envelope.Event.EventType == ConfigUpdatedEvent
}

func toWebsocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	return u.String(), nil
}
