package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// TokenDetails are informational claims read from an access token without
// verifying its signature. They are only used for display and logging.
type TokenDetails struct {
	Account string
	Expiry  time.Time
}

var accountClaims = []string{"upn", "preferred_username", "unique_name", "email"}

// InspectAccessToken decodes raw as a JWT. ok is false for opaque tokens.
func InspectAccessToken(raw string) (details TokenDetails, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return TokenDetails{}, false
	}
	for _, name := range accountClaims {
		if value, isString := claims[name].(string); isString && value != "" {
			details.Account = value
			break
		}
	}
	if exp, isNumber := claims["exp"].(float64); isNumber && exp > 0 {
		details.Expiry = time.Unix(int64(exp), 0).UTC()
	}
	return details, true
}
