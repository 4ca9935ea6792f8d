package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/micro-ha/mwan3-status/internal/integration"
	"github.com/micro-ha/mwan3-status/internal/model"
	"github.com/micro-ha/mwan3-status/internal/sensor"
	"github.com/micro-ha/mwan3-status/internal/setup"
)

// Integration exposes the running router integration.
type Integration interface {
	Status() integration.Status
	Snapshot() model.Snapshot
	Sensors() []*sensor.Sensor
	Sensor(iface string) (*sensor.Sensor, bool)
	TriggerRefresh() bool
}

// History serves recorded polls and interface transitions.
type History interface {
	ListPolls(ctx context.Context, limit int) ([]model.PollRun, error)
	ListEvents(ctx context.Context, iface string, limit int) ([]model.InterfaceEvent, error)
}

// SetupValidator checks router options against a live router.
type SetupValidator func(ctx context.Context, cfg model.RouterConfig) (setup.Info, error)

// API groups HTTP handlers and dependencies.
type API struct {
	integration Integration
	history     History
	validate    SetupValidator
	logger      *slog.Logger
}

// New creates HTTP handlers with explicit dependencies. history may be nil.
func New(in Integration, history History, validate SetupValidator, logger *slog.Logger) *API {
	if validate == nil {
		validate = func(ctx context.Context, cfg model.RouterConfig) (setup.Info, error) {
			return setup.ValidateInput(ctx, cfg)
		}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &API{integration: in, history: history, validate: validate, logger: logger}
}

// Logger returns request logger used by HTTP middleware.
func (a *API) Logger() *slog.Logger {
	return a.logger
}

// Health reports service liveness and router config status.
func (a *API) Health(w http.ResponseWriter, _ *http.Request) {
	st := a.integration.Status()
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "configured": st.Configured, "ready": st.Ready})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

func (a *API) requireConfigured(w http.ResponseWriter) bool {
	if !a.integration.Status().Configured {
		writeError(w, http.StatusConflict, "integration_not_configured", "Integration not configured")
		return false
	}
	return true
}
