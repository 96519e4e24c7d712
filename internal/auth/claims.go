package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims carry the verified subject supplied by the identity provider.
// Role and Party are claims only; the decision engine re-validates them.
type Claims struct {
	jwt.RegisteredClaims

	Identity  string    `json:"identity"`
	Role      string    `json:"role"`
	Party     string    `json:"party,omitempty"`
	TokenType TokenType `json:"token_type"`
}
