package backend

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoIdentity is returned when a token carries no usable name
var ErrNoIdentity = errors.New("token has no username or subject claim")

type identityClaims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// IdentityFromToken reads the room identity out of a backend token.
// The signature is not checked; the backend does that on every request.
func IdentityFromToken(token string) (string, error) {
	claims := &identityClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if claims.Username != "" {
		return claims.Username, nil
	}
	if claims.Subject != "" {
		return claims.Subject, nil
	}
	return "", ErrNoIdentity
}
