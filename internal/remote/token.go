package remote

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Tokens are the bearer credentials for the REST API.
type Tokens struct {
	Access  string
	Refresh string
}

// CheckToken rejects an access token whose exp claim has passed. The
// signature is not verified; the server remains the authority. Opaque
// (non-JWT) tokens pass unchecked.
func CheckToken(token string, now time.Time) error {
	if token == "" {
		return nil
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt != nil && !now.Before(claims.ExpiresAt.Time) {
		return fmt.Errorf("%w: expired at %s", ErrTokenExpired, claims.ExpiresAt.Time.Format(time.RFC3339))
	}
	return nil
}
