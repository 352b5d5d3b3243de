package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TokenExpired reports whether the exp claim of token lies before now.
// The signature is not verified: the API remains the authority, this only
// avoids restoring a session that is certain to be rejected. Tokens that do
// not parse are treated as expired; tokens without exp are not.
func TokenExpired(token string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return true
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !claims.ExpiresAt.After(now)
}
