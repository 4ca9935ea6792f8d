package handlers

import (
	"net/http"

	"github.com/micro-ha/mwan3-status/internal/model"
	"github.com/micro-ha/mwan3-status/internal/sensor"
)

type interfaceView struct {
	Name string `json:"name"`
	model.InterfaceStatus
}

// Status reports the integration state and the last poll outcome.
func (a *API) Status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.integration.Status())
}

// ListSensors returns every registered sensor with its current value.
func (a *API) ListSensors(w http.ResponseWriter, _ *http.Request) {
	if !a.requireConfigured(w) {
		return
	}
	sensors := a.integration.Sensors()
	items := make([]sensor.View, 0, len(sensors))
	for _, s := range sensors {
		items = append(items, s.View())
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ListInterfaces returns the latest snapshot ordered by interface name.
func (a *API) ListInterfaces(w http.ResponseWriter, _ *http.Request) {
	if !a.requireConfigured(w) {
		return
	}
	snapshot := a.integration.Snapshot()
	items := make([]interfaceView, 0, len(snapshot))
	for _, name := range snapshot.Names() {
		items = append(items, interfaceView{Name: name, InterfaceStatus: snapshot[name]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// GetInterface returns one interface of the latest snapshot.
func (a *API) GetInterface(w http.ResponseWriter, _ *http.Request, name string) {
	if !a.requireConfigured(w) {
		return
	}
	item, ok := a.integration.Snapshot()[name]
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "Interface not found")
		return
	}
	body := map[string]any{"interface": interfaceView{Name: name, InterfaceStatus: item}}
	if s, ok := a.integration.Sensor(name); ok {
		body["sensor"] = s.View()
	}
	writeJSON(w, http.StatusOK, body)
}

// Refresh asks the poller for an immediate poll.
func (a *API) Refresh(w http.ResponseWriter, _ *http.Request) {
	if !a.requireConfigured(w) {
		return
	}
	if !a.integration.TriggerRefresh() {
		writeError(w, http.StatusConflict, "not_ready", "Integration is not running")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"ok": true})
}
