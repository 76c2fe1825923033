package models

import "github.com/golang-jwt/jwt/v5"

// JWTClaims represents the bearer token payload for API callers.
type JWTClaims struct {
	UserID string   `json:"user_id"`
	Role   UserRole `json:"role"`
	jwt.RegisteredClaims
}
