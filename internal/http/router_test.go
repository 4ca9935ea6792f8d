package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/micro-ha/mwan3-status/internal/http/handlers"
	"github.com/micro-ha/mwan3-status/internal/integration"
	"github.com/micro-ha/mwan3-status/internal/luci"
	"github.com/micro-ha/mwan3-status/internal/model"
	"github.com/micro-ha/mwan3-status/internal/sensor"
	"github.com/micro-ha/mwan3-status/internal/setup"
)

type fakeIntegration struct {
	status    integration.Status
	snapshot  model.Snapshot
	registry  *sensor.Registry
	running   bool
	refreshes int
}

func newFakeIntegration() *fakeIntegration {
	f := &fakeIntegration{
		status: integration.Status{Configured: true, Ready: true, Title: "Home", Interfaces: []string{"wan1", "wan2"}},
		snapshot: model.Snapshot{
			"wan1": {Status: "online", Score: 10, Up: true, TrackIP: []string{"1.1.1.1"}},
			"wan2": {Status: "offline", TrackIP: []string{}},
		},
		registry: sensor.NewRegistry(),
		running:  true,
	}
	f.registry.RegisterSensors(sensor.FromSnapshot(f, "Home", f.snapshot))
	return f
}

func (f *fakeIntegration) Data() model.Snapshot                   { return f.snapshot.Clone() }
func (f *fakeIntegration) Status() integration.Status             { return f.status }
func (f *fakeIntegration) Snapshot() model.Snapshot               { return f.snapshot.Clone() }
func (f *fakeIntegration) Sensors() []*sensor.Sensor              { return f.registry.Sensors() }
func (f *fakeIntegration) Sensor(n string) (*sensor.Sensor, bool) { return f.registry.ByInterface(n) }
func (f *fakeIntegration) TriggerRefresh() bool {
	f.refreshes++
	return f.running
}

type fakeHistory struct {
	iface string
	limit int
}

func (h *fakeHistory) ListPolls(_ context.Context, limit int) ([]model.PollRun, error) {
	h.limit = limit
	return []model.PollRun{{ID: "p1", Router: "Home", Success: true, Interfaces: 2}}, nil
}

func (h *fakeHistory) ListEvents(_ context.Context, iface string, limit int) ([]model.InterfaceEvent, error) {
	h.iface = iface
	h.limit = limit
	return []model.InterfaceEvent{{ID: "e1", Interface: "wan2", Previous: "online", Current: "offline"}}, nil
}

func newTestRouter(in handlers.Integration, history handlers.History, validate handlers.SetupValidator) http.Handler {
	api := handlers.New(in, history, validate, slog.New(slog.NewTextHandler(io.Discard, nil)))
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "mwan3_polls_total 1\n")
	})
	return NewRouter(api, metrics)
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return rec, payload
}

func errorCode(payload map[string]any) string {
	errObj, _ := payload["error"].(map[string]any)
	code, _ := errObj["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	h := newTestRouter(newFakeIntegration(), nil, nil)

	rec, payload := doRequest(t, h, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || payload["configured"] != true || payload["ready"] != true {
		t.Fatalf("unexpected health response %d %v", rec.Code, payload)
	}
}

func TestListInterfacesAndIngressPrefix(t *testing.T) {
	h := newTestRouter(newFakeIntegration(), nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/hassio_ingress/abc/api/interfaces", nil)
	req.Header.Set("X-Ingress-Path", "/api/hassio_ingress/abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var payload struct {
		Items []struct {
			Name    string   `json:"name"`
			Status  string   `json:"status"`
			Score   int      `json:"score"`
			TrackIP []string `json:"track_ip"`
		} `json:"items"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Items) != 2 || payload.Items[0].Name != "wan1" || payload.Items[0].Score != 10 {
		t.Fatalf("unexpected items: %+v", payload.Items)
	}
}

func TestGetInterface(t *testing.T) {
	h := newTestRouter(newFakeIntegration(), nil, nil)

	rec, payload := doRequest(t, h, http.MethodGet, "/api/interfaces/wan2", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	sensorView, _ := payload["sensor"].(map[string]any)
	if sensorView["unique_id"] != "mwan3_wan2" || sensorView["state"] != "offline" {
		t.Fatalf("unexpected sensor view: %v", sensorView)
	}

	rec, payload = doRequest(t, h, http.MethodGet, "/api/interfaces/wan9", "")
	if rec.Code != http.StatusNotFound || errorCode(payload) != "not_found" {
		t.Fatalf("expected not_found, got %d %v", rec.Code, payload)
	}
}

func TestListSensors(t *testing.T) {
	h := newTestRouter(newFakeIntegration(), nil, nil)

	rec, payload := doRequest(t, h, http.MethodGet, "/api/sensors", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	items, _ := payload["items"].([]any)
	if len(items) != 2 {
		t.Fatalf("expected 2 sensors, got %v", payload)
	}
	first := items[0].(map[string]any)
	if first["name"] != "Home wan1" || first["state_class"] != "measurement" {
		t.Fatalf("unexpected sensor: %v", first)
	}
}

func TestNotConfigured(t *testing.T) {
	in := newFakeIntegration()
	in.status = integration.Status{Configured: false, Interfaces: []string{}}
	h := newTestRouter(in, nil, nil)

	for _, path := range []string{"/api/sensors", "/api/interfaces"} {
		rec, payload := doRequest(t, h, http.MethodGet, path, "")
		if rec.Code != http.StatusConflict || errorCode(payload) != "integration_not_configured" {
			t.Fatalf("%s: expected 409 integration_not_configured, got %d %v", path, rec.Code, payload)
		}
	}
	rec, _ := doRequest(t, h, http.MethodGet, "/api/status", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status endpoint should always answer, got %d", rec.Code)
	}
}

func TestRefresh(t *testing.T) {
	in := newFakeIntegration()
	h := newTestRouter(in, nil, nil)

	rec, _ := doRequest(t, h, http.MethodPost, "/api/refresh", "")
	if rec.Code != http.StatusAccepted || in.refreshes != 1 {
		t.Fatalf("expected accepted refresh, got %d (refreshes=%d)", rec.Code, in.refreshes)
	}

	in.running = false
	rec, payload := doRequest(t, h, http.MethodPost, "/api/refresh", "")
	if rec.Code != http.StatusConflict || errorCode(payload) != "not_ready" {
		t.Fatalf("expected not_ready, got %d %v", rec.Code, payload)
	}
}

func TestValidateSetup(t *testing.T) {
	var got model.RouterConfig
	validate := func(_ context.Context, cfg model.RouterConfig) (setup.Info, error) {
		got = cfg
		switch cfg.Password {
		case "wrong":
			return setup.Info{}, luci.ErrInvalidAuth
		case "":
			return setup.Info{}, &model.ValidationError{Field: "password", Reason: "is required"}
		}
		return setup.Info{Title: "MWAN3 " + cfg.Host, Interfaces: []string{"wan1", "wan2"}}, nil
	}
	h := newTestRouter(newFakeIntegration(), nil, validate)

	rec, payload := doRequest(t, h, http.MethodPost, "/api/setup/validate",
		`{"host":"192.168.1.1","username":"root","password":"secret","scan_interval":30}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, payload = %v", rec.Code, payload)
	}
	if payload["description"] != "Found interfaces: wan1, wan2" || payload["title"] != "MWAN3 192.168.1.1" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if got.ScanIntervalSec != 30 || got.Username != "root" {
		t.Fatalf("validator received %+v", got)
	}

	rec, payload = doRequest(t, h, http.MethodPost, "/api/setup/validate", `{"host":"192.168.1.1","username":"root","password":"wrong"}`)
	if rec.Code != http.StatusUnprocessableEntity || errorCode(payload) != "invalid_auth" {
		t.Fatalf("expected invalid_auth, got %d %v", rec.Code, payload)
	}

	rec, payload = doRequest(t, h, http.MethodPost, "/api/setup/validate", `{"host":"192.168.1.1","username":"root"}`)
	if rec.Code != http.StatusBadRequest || errorCode(payload) != "invalid_config" {
		t.Fatalf("expected invalid_config, got %d %v", rec.Code, payload)
	}

	rec, payload = doRequest(t, h, http.MethodPost, "/api/setup/validate", `{`)
	if rec.Code != http.StatusBadRequest || errorCode(payload) != "invalid_payload" {
		t.Fatalf("expected invalid_payload, got %d %v", rec.Code, payload)
	}
}

func TestHistory(t *testing.T) {
	history := &fakeHistory{}
	h := newTestRouter(newFakeIntegration(), history, nil)

	rec, payload := doRequest(t, h, http.MethodGet, "/api/history/events?interface=wan2&limit=5", "")
	if rec.Code != http.StatusOK || history.iface != "wan2" || history.limit != 5 {
		t.Fatalf("unexpected events call: %d iface=%q limit=%d", rec.Code, history.iface, history.limit)
	}
	if items, _ := payload["items"].([]any); len(items) != 1 {
		t.Fatalf("unexpected events payload: %v", payload)
	}

	rec, _ = doRequest(t, h, http.MethodGet, "/api/history/polls", "")
	if rec.Code != http.StatusOK || history.limit != 0 {
		t.Fatalf("unexpected polls call: %d limit=%d", rec.Code, history.limit)
	}

	rec, payload = doRequest(t, h, http.MethodGet, "/api/history/polls?limit=abc", "")
	if rec.Code != http.StatusBadRequest || errorCode(payload) != "invalid_limit" {
		t.Fatalf("expected invalid_limit, got %d %v", rec.Code, payload)
	}

	noHistory := newTestRouter(newFakeIntegration(), nil, nil)
	rec, payload = doRequest(t, noHistory, http.MethodGet, "/api/history/polls", "")
	if rec.Code != http.StatusNotFound || errorCode(payload) != "history_disabled" {
		t.Fatalf("expected history_disabled, got %d %v", rec.Code, payload)
	}
}

func TestMetricsRoute(t *testing.T) {
	h := newTestRouter(newFakeIntegration(), nil, nil)

	rec, _ := doRequest(t, h, http.MethodGet, "/metrics", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "mwan3_polls_total") {
		t.Fatalf("unexpected metrics response %d %q", rec.Code, rec.Body.String())
	}
}

func TestRecoverJSON(t *testing.T) {
	h := RecoverJSON(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(errors.New("boom"))
	}))

	rec, payload := doRequest(t, h, http.MethodGet, "/", "")
	if rec.Code != http.StatusInternalServerError || errorCode(payload) != "internal_error" {
		t.Fatalf("expected internal_error, got %d %v", rec.Code, payload)
	}
}
