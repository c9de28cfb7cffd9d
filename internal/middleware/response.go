package middleware

import (
	"net/http"

	"github.com/bkvaiude/kiro-quickpick-sub001/internal/httputil"
)

func writeError(w http.ResponseWriter, status int, reason, message string) {
	httputil.WriteError(w, status, reason, message)
}
