package middleware

import (
	"net/http"

	"github.com/bkvaiude/kiro-quickpick-sub001/internal/util"
)

// AdminMiddleware gates administrative routes behind a static bearer token.
// With no token configured every request is refused; the comparison runs in
// constant time over hashes so token length is never observable.
type AdminMiddleware struct {
	tokenHash string
}

func NewAdminMiddleware(adminToken string) *AdminMiddleware {
	m := &AdminMiddleware{}
	if adminToken != "" {
		m.tokenHash = util.HashToken(adminToken)
	}
	return m
}

func (m *AdminMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.tokenHash == "" {
			writeError(w, http.StatusForbidden, "admin_disabled", "no admin token configured")
			return
		}

		token, ok := bearerToken(r)
		if !ok || !util.ConstantTimeEqual(util.HashToken(token), m.tokenHash) {
			writeError(w, http.StatusUnauthorized, "invalid_admin_token", "admin authentication failed")
			return
		}

		next.ServeHTTP(w, r)
	})
}
