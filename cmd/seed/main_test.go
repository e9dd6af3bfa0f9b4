package main

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"drivestore/internal/auth"
	"drivestore/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevToken_AcceptedBySecretVerifier(t *testing.T) {
	cfg := &config.Config{
		JWTSecret: "0123456789abcdef0123456789abcdef",
		JWTIssuer: "drivestore",
	}
	verifier, err := auth.NewSecretVerifier(cfg.JWTSecret, cfg.JWTIssuer, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	token, err := devToken(cfg, "demo-user", time.Hour, time.Now())
	require.NoError(t, err)

	claims, err := verifier.VerifyToken(token)
	require.NoError(t, err)
	assert.Equal(t, "demo-user", claims.GetOwnerID())
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestDevToken_ExpiredIsRejected(t *testing.T) {
	cfg := &config.Config{JWTSecret: "0123456789abcdef0123456789abcdef"}
	verifier, err := auth.NewSecretVerifier(cfg.JWTSecret, "", slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	token, err := devToken(cfg, "demo-user", time.Minute, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	assert.Error(t, err)
}
