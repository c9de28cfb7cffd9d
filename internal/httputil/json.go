package httputil

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// WriteJSON encodes data as a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("failed to encode JSON response")
	}
}

// WriteError writes a JSON error body. Reason is a machine-readable code the
// client can branch on; message is human-readable.
func WriteError(w http.ResponseWriter, status int, reason, message string) {
	WriteJSON(w, status, map[string]string{
		"error":  reason,
		"detail": message,
	})
}
