package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"racehub/pkg/gameerr"
	"racehub/pkg/logger"
)

// respondJSON writes a JSON response with the given status code
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// respondError maps a game error onto the wire. The kind and details travel
// to the client; internal causes stay in the log.
func respondError(w http.ResponseWriter, err error, log *logger.Logger) {
	body := map[string]interface{}{
		"kind":    string(gameerr.KindInternal),
		"message": "internal error",
	}

	var gerr *gameerr.Error
	if errors.As(err, &gerr) && gerr.Kind != gameerr.KindInternal {
		body["kind"] = string(gerr.Kind)
		body["message"] = gerr.Message
		if len(gerr.Details) > 0 {
			body["details"] = gerr.Details
		}
	} else {
		log.WithError(err).Error("Request failed")
	}

	respondJSON(w, gameerr.Status(err), map[string]interface{}{
		"error":     body,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
