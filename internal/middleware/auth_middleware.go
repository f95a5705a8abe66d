package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/apptly/apptly/internal/service"
	"github.com/sirupsen/logrus"
)

type contextKey string

// ClaimsKey is the request-context key under which RequireSession stores the
// validated *service.SessionClaims.
const ClaimsKey contextKey = "claims"

type AuthMiddleware struct {
	sessions *service.SessionService
	logger   *logrus.Logger
}

func NewAuthMiddleware(sessions *service.SessionService, logger *logrus.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		sessions: sessions,
		logger:   logger,
	}
}

// RequireSession validates the session token carried in the `token` query
// parameter. Expired tokens get a distinct 401 so the client knows to log in
// again; everything else is a plain 403.
func (m *AuthMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.URL.Query().Get("token")

		claims, err := m.sessions.Validate(token)
		if err != nil {
			if errors.Is(err, service.ErrTokenExpired) {
				m.respondError(w, http.StatusUnauthorized, "TOKEN_EXPIRED", "Token has expired")
				return
			}
			m.logger.WithError(err).Debug("Token validation failed")
			m.respondError(w, http.StatusForbidden, "FORBIDDEN", "Forbidden")
			return
		}

		ctx := context.WithValue(r.Context(), ClaimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionFromContext retrieves the claims RequireSession stored.
func SessionFromContext(ctx context.Context) (*service.SessionClaims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*service.SessionClaims)
	return claims, ok
}

func (m *AuthMiddleware) respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write([]byte(`{"error":{"code":"` + code + `","message":"` + message + `"}}`))
}
