package handlers

import (
	"net/http"
	"strconv"
	"strings"
)

// ListPolls returns recent poll runs.
func (a *API) ListPolls(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusNotFound, "history_disabled", "History storage is disabled")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	items, err := a.history.ListPolls(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

// ListEvents returns recent interface transitions, optionally for one interface.
func (a *API) ListEvents(w http.ResponseWriter, r *http.Request) {
	if a.history == nil {
		writeError(w, http.StatusNotFound, "history_disabled", "History storage is disabled")
		return
	}
	limit, ok := parseLimit(w, r)
	if !ok {
		return
	}
	iface := strings.TrimSpace(r.URL.Query().Get("interface"))
	items, err := a.history.ListEvents(r.Context(), iface, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func parseLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a non-negative integer")
		return 0, false
	}
	return limit, true
}
