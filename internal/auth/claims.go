package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// tokenClaims holds the timestamps the guard needs from a JWT. A zero value
// means the claim was absent.
type tokenClaims struct {
	IssuedAt  time.Time
	ExpiresAt time.Time
}

var claimsParser = jwt.NewParser()

// decodeClaims reads the registered claims of a JWT without verifying its
// signature. The server verifies the token; the client only needs the
// timestamps to schedule refreshes.
// Only iat and exp are read; other claims may carry any JSON type.
func decodeClaims(token string) (tokenClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := claimsParser.ParseUnverified(token, claims); err != nil {
		return tokenClaims{}, err
	}

	var c tokenClaims
	iat, err := claims.GetIssuedAt()
	if err != nil {
		return tokenClaims{}, err
	}
	if iat != nil {
		c.IssuedAt = iat.Time
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return tokenClaims{}, err
	}
	if exp != nil {
		c.ExpiresAt = exp.Time
	}
	return c, nil
}

// Claims decodes the issued-at and expiry timestamps of a JWT without
// verifying it. It is exposed for offline inspection tooling.
func Claims(token string) (issuedAt, expiresAt time.Time, err error) {
	c, err := decodeClaims(token)
	if err != nil {
		return time.Time{}, time.Time{}, &TokenFormatError{Token: AccessToken, Err: err}
	}
	return c.IssuedAt, c.ExpiresAt, nil
}
