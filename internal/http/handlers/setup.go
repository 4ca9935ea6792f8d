package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/micro-ha/mwan3-status/internal/luci"
	"github.com/micro-ha/mwan3-status/internal/model"
)

// ValidateSetup checks posted router options against the live router
// without applying them.
func (a *API) ValidateSetup(w http.ResponseWriter, r *http.Request) {
	var payload model.RouterConfig
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_payload", "Invalid JSON payload")
		return
	}

	info, err := a.validate(r.Context(), payload)
	if err != nil {
		code := luci.ErrorCode(err)
		var verr *model.ValidationError
		if errors.As(err, &verr) {
			writeError(w, http.StatusBadRequest, code, verr.Error())
			return
		}
		a.logger.Warn("setup validation failed", "host", payload.Host, "code", code, "err", err)
		writeError(w, http.StatusUnprocessableEntity, code, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"title":       info.Title,
		"interfaces":  info.Interfaces,
		"description": info.Description(),
	})
}
