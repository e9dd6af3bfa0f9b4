package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"drivestore/internal/auth"
	"drivestore/internal/domain"
	"drivestore/internal/httputil"
	"drivestore/internal/metrics"
)

// publicPaths skip authentication
var publicPaths = map[string]bool{
	"/health": true,
}

// AuthMiddleware verifies the bearer token and stores the owner id in the
// request context. Requests without a valid token get a 401 problem response.
func AuthMiddleware(verifier auth.JWTVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r)
			if !ok {
				metrics.RecordAuthAttempt(false)
				unauthorized(w, "missing bearer token")
				return
			}

			claims, err := verifier.VerifyToken(token)
			if err != nil {
				metrics.RecordAuthAttempt(false)
				logger.Debug("authentication failed", "path", r.URL.Path, "error", err)
				unauthorized(w, "invalid or expired token")
				return
			}

			metrics.RecordAuthAttempt(true)
			next.ServeHTTP(w, httputil.WithOwnerID(r, claims.GetOwnerID()))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, detail string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="drivestore"`)
	httputil.RespondErrorWithExtras(w, http.StatusUnauthorized, detail, map[string]interface{}{
		"kind": domain.KindUnauthorized,
	})
}
