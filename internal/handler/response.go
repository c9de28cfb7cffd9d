package handler

import (
	"net/http"

	"github.com/bkvaiude/kiro-quickpick-sub001/internal/httputil"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, status int, reason, message string) {
	httputil.WriteError(w, status, reason, message)
}
