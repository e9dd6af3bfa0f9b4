package auth

import "drivestore/internal/domain/models"

// JWTVerifier defines the interface for JWT token verification.
// The middleware only needs the verified owner id; how keys are obtained
// is left to the implementation.
type JWTVerifier interface {
	// VerifyToken validates a JWT token string and returns the parsed claims.
	// Returns domain.ErrUnauthorized if the token is invalid, expired, or has an invalid signature.
	VerifyToken(tokenString string) (*models.AccessClaims, error)

	// Close releases any resources held by the verifier (e.g., the JWKS refresh goroutine).
	Close() error
}
