package models

import "github.com/golang-jwt/jwt/v5"

// AccessClaims represents the JWT claims carried by access tokens.
// The subject claim is the owner id used to scope every namespace operation.
type AccessClaims struct {
	jwt.RegisteredClaims        // Standard JWT claims (sub, iss, aud, exp, iat, etc.)
	Email                string `json:"email"`
	Role                 string `json:"role"` // "authenticated" or "anon"
	SessionID            string `json:"session_id"`
}

// GetOwnerID returns the owner id from the JWT subject claim.
func (c *AccessClaims) GetOwnerID() string {
	return c.Subject
}
