package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"drivestore/internal/domain"
	"drivestore/internal/domain/models"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
)

// roleAnonymous marks tokens issued to signed-out clients
const roleAnonymous = "anon"

// JWKSVerifier implements JWTVerifier using public keys from a JWKS endpoint.
type JWKSVerifier struct {
	jwks   keyfunc.Keyfunc
	parser *jwt.Parser
	cancel context.CancelFunc
	logger *slog.Logger
}

// NewJWKSVerifier creates a verifier that fetches public keys from jwksURL.
// Keys are cached and refreshed in the background until Close is called.
func NewJWKSVerifier(jwksURL, issuer string, logger *slog.Logger) (JWTVerifier, error) {
	if jwksURL == "" {
		return nil, errors.New("JWKS URL cannot be empty")
	}

	ctx, cancel := context.WithCancel(context.Background())
	jwks, err := keyfunc.NewDefaultCtx(ctx, []string{jwksURL})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create JWKS client: %w", err)
	}

	logger.Info("JWT verifier initialized", "jwks_url", jwksURL)

	v := newJWKSVerifier(jwks, issuer, logger)
	v.cancel = cancel
	return v, nil
}

func newJWKSVerifier(jwks keyfunc.Keyfunc, issuer string, logger *slog.Logger) *JWKSVerifier {
	// Prevent algorithm confusion attacks - allow only RS256 or ES256
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"RS256", "ES256"})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	return &JWKSVerifier{
		jwks:   jwks,
		parser: jwt.NewParser(opts...),
		logger: logger,
	}
}

// VerifyToken validates a JWT token and extracts its claims.
func (v *JWKSVerifier) VerifyToken(tokenString string) (*models.AccessClaims, error) {
	return verify(v.parser, tokenString, v.jwks.Keyfunc, v.logger)
}

// Close stops the background JWKS refresh.
func (v *JWKSVerifier) Close() error {
	if v.cancel != nil {
		v.cancel()
	}
	v.logger.Info("JWT verifier closed")
	return nil
}

// verify parses a token and applies the claim checks shared by all verifiers
func verify(parser *jwt.Parser, tokenString string, keyFunc jwt.Keyfunc, logger *slog.Logger) (*models.AccessClaims, error) {
	token, err := parser.ParseWithClaims(tokenString, &models.AccessClaims{}, keyFunc)
	if err != nil {
		logger.Debug("token rejected", "error", err.Error())
		return nil, domain.ErrUnauthorized
	}
	if !token.Valid {
		logger.Debug("token is invalid after parsing")
		return nil, domain.ErrUnauthorized
	}

	claims, ok := token.Claims.(*models.AccessClaims)
	if !ok {
		logger.Error("failed to extract claims from token")
		return nil, domain.ErrUnauthorized
	}

	// The subject is the owner id every namespace operation is scoped to
	if claims.Subject == "" {
		logger.Debug("token missing subject claim")
		return nil, domain.ErrUnauthorized
	}

	if claims.Role == roleAnonymous {
		logger.Debug("anonymous token rejected", "subject", claims.Subject)
		return nil, domain.ErrUnauthorized
	}

	return claims, nil
}
