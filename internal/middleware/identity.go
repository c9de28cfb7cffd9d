package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/bkvaiude/kiro-quickpick-sub001/internal/model"
	"github.com/bkvaiude/kiro-quickpick-sub001/internal/repository"
	"github.com/bkvaiude/kiro-quickpick-sub001/internal/util"
)

type contextKey string

const callerContextKey contextKey = "caller"

// GuestSessionHeader carries an opaque client session identifier used to
// key guest quota when present. Without it the guest is keyed by IP.
const GuestSessionHeader = "X-Client-Session"

// IdentityMiddleware resolves who is calling. A bearer token is hashed and
// looked up among issued credentials; a request without a token becomes a
// guest keyed by session header or network address. A presented token that
// does not resolve is rejected, never downgraded to guest.
type IdentityMiddleware struct {
	credentialRepo repository.CredentialRepository
}

func NewIdentityMiddleware(credentialRepo repository.CredentialRepository) *IdentityMiddleware {
	return &IdentityMiddleware{credentialRepo: credentialRepo}
}

func (m *IdentityMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			caller := model.Caller{IdentityID: guestID(r), IsGuest: true}
			next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), caller)))
			return
		}

		credential, err := m.credentialRepo.FindByTokenHash(r.Context(), util.HashToken(token))
		if err != nil {
			log.Error().Err(err).Msg("credential lookup failed")
			writeError(w, http.StatusInternalServerError, "internal_error", "failed to resolve identity")
			return
		}
		if credential == nil {
			writeError(w, http.StatusUnauthorized, "invalid_token", "unknown API token")
			return
		}

		if err := m.credentialRepo.TouchLastUsed(r.Context(), credential.ID); err != nil {
			log.Warn().Err(err).Str("credentialId", credential.ID).Msg("failed to touch credential")
		}

		caller := model.Caller{IdentityID: credential.IdentityID, IsGuest: false}
		next.ServeHTTP(w, r.WithContext(ContextWithCaller(r.Context(), caller)))
	})
}

// CallerFromContext returns the caller resolved by IdentityMiddleware.
func CallerFromContext(ctx context.Context) (model.Caller, bool) {
	caller, ok := ctx.Value(callerContextKey).(model.Caller)
	return caller, ok
}

// ContextWithCaller is the inverse of CallerFromContext.
func ContextWithCaller(ctx context.Context, caller model.Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, caller)
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", false
	}
	token := strings.TrimPrefix(header, "Bearer ")
	if token == header || token == "" {
		return "", false
	}
	return token, true
}

// guestID derives a stable guest key: the client session header when the
// client sends one, otherwise the network address.
func guestID(r *http.Request) string {
	if session := r.Header.Get(GuestSessionHeader); session != "" {
		return "session:" + session
	}
	return "ip:" + clientIP(r)
}

// clientIP returns the request's remote host. RealIP middleware has already
// rewritten RemoteAddr from forwarding headers where applicable.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
