package auth

import (
	"errors"
	"log/slog"

	"drivestore/internal/domain/models"

	"github.com/golang-jwt/jwt/v5"
)

// minSecretLength is the shortest HS256 secret accepted
const minSecretLength = 32

// SecretVerifier implements JWTVerifier for HS256 tokens signed with a
// shared secret. Used for self-hosted deployments and local development.
type SecretVerifier struct {
	secret []byte
	parser *jwt.Parser
	logger *slog.Logger
}

// NewSecretVerifier creates an HS256 verifier
func NewSecretVerifier(secret, issuer string, logger *slog.Logger) (JWTVerifier, error) {
	if len(secret) < minSecretLength {
		return nil, errors.New("JWT secret must be at least 32 bytes")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256"})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}

	logger.Info("JWT verifier initialized", "method", "HS256")

	return &SecretVerifier{
		secret: []byte(secret),
		parser: jwt.NewParser(opts...),
		logger: logger,
	}, nil
}

// VerifyToken validates an HS256 token and extracts its claims.
func (v *SecretVerifier) VerifyToken(tokenString string) (*models.AccessClaims, error) {
	return verify(v.parser, tokenString, func(*jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, v.logger)
}

// Close is a no-op; the verifier holds no resources.
func (v *SecretVerifier) Close() error {
	return nil
}

// NewVerifier picks the verifier for the configured identity source.
// A JWKS URL wins over a shared secret.
func NewVerifier(jwksURL, secret, issuer string, logger *slog.Logger) (JWTVerifier, error) {
	switch {
	case jwksURL != "":
		return NewJWKSVerifier(jwksURL, issuer, logger)
	case secret != "":
		return NewSecretVerifier(secret, issuer, logger)
	default:
		return nil, errors.New("either JWKS_URL or JWT_SECRET must be set")
	}
}

// SignToken issues an HS256 token for ownerID that a SecretVerifier with
// the same secret and issuer accepts. cmd/seed prints one for the seeded owner.
func SignToken(secret, issuer, ownerID string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = ownerID
	if issuer != "" {
		claims.Issuer = issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &models.AccessClaims{
		RegisteredClaims: claims,
		Role:             "authenticated",
	})
	return token.SignedString([]byte(secret))
}
