package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"drivestore/internal/auth"
	"drivestore/internal/httputil"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ownerEcho() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, httputil.GetOwnerID(r))
	})
}

func TestAuthMiddleware(t *testing.T) {
	verifier, err := auth.NewSecretVerifier(testSecret, "", testLogger())
	require.NoError(t, err)
	handler := AuthMiddleware(verifier, testLogger())(ownerEcho())

	token, err := auth.SignToken(testSecret, "", "owner-1", jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		status int
		body   string
	}{
		{"valid token", "/api/entries", "Bearer " + token, http.StatusOK, "owner-1"},
		{"lowercase scheme", "/api/entries", "bearer " + token, http.StatusOK, "owner-1"},
		{"missing header", "/api/entries", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "/api/entries", "Basic abc", http.StatusUnauthorized, ""},
		{"bad token", "/api/entries", "Bearer nope", http.StatusUnauthorized, ""},
		{"public path", "/health", "", http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				assert.Equal(t, tt.body, rec.Body.String())
			} else {
				assert.Contains(t, rec.Body.String(), `"kind":"unauthorized"`)
				assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))
			}
		})
	}
}

func TestRecovery(t *testing.T) {
	handler := Recovery(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/entries", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), `"kind":"internal"`)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestRecovery_AbortHandlerPassesThrough(t *testing.T) {
	handler := Recovery(testLogger())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/entries", nil))
	})
}
