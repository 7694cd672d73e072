package auth

import (
	"errors"
	"time"

	"github.com/tidwall/gjson"
)

// tokenInfo is the immutable token state of a Guard. A new value is built
// for every login or refresh and published with a single atomic store, so
// readers never see a main token paired with a stale refresh token or skew.
type tokenInfo struct {
	mainToken     string
	refreshToken  string
	mainExpiry    time.Time // zero: no known expiry
	refreshExpiry time.Time // zero: no known expiry
	skew          time.Duration
}

// validAt reports whether the main token can still be used at deadline.
func (t *tokenInfo) validAt(deadline time.Time) bool {
	if t.mainToken == "" {
		return false
	}
	return t.mainExpiry.IsZero() || !deadline.After(t.mainExpiry)
}

// canRefresh reports whether the refresh token is still worth presenting at
// deadline.
func (t *tokenInfo) canRefresh(deadline time.Time) bool {
	if t.refreshToken == "" {
		return false
	}
	return t.refreshExpiry.IsZero() || deadline.Before(t.refreshExpiry)
}

// parseTokenInfo builds the token state from a login or refresh response.
// requestStart is the local time the request was sent; the gap between it
// and the server's issued-at claim becomes the clock skew estimate.
func parseTokenInfo(requestStart time.Time, body []byte) (*tokenInfo, error) {
	if !gjson.ValidBytes(body) {
		return nil, &TokenFormatError{Token: AccessToken, Err: errors.New("response is not valid JSON")}
	}

	token := gjson.GetBytes(body, "token")
	if token.Type != gjson.String || token.String() == "" {
		return nil, &TokenFormatError{Token: AccessToken, Claim: "token", Err: errMissingField}
	}

	main, err := decodeClaims(token.String())
	if err != nil {
		return nil, &TokenFormatError{Token: AccessToken, Err: err}
	}
	if main.IssuedAt.IsZero() {
		return nil, &TokenFormatError{Token: AccessToken, Claim: "iat", Err: errMissingClaim}
	}

	info := &tokenInfo{
		mainToken:  token.String(),
		mainExpiry: main.ExpiresAt,
		skew:       main.IssuedAt.Sub(requestStart),
	}

	// An absent or null refreshToken leaves both refresh fields empty.
	refresh := gjson.GetBytes(body, "refreshToken")
	if refresh.Type == gjson.String && refresh.String() != "" {
		rc, err := decodeClaims(refresh.String())
		if err != nil {
			return nil, &TokenFormatError{Token: RefreshToken, Err: err}
		}
		info.refreshToken = refresh.String()
		info.refreshExpiry = rc.ExpiresAt
	}

	return info, nil
}

// Status is a point-in-time view of a Guard's token state, safe to print.
type Status struct {
	HasToken         bool          `json:"has_token" yaml:"has_token"`
	TokenPrefix      string        `json:"token_prefix,omitempty" yaml:"token_prefix,omitempty"`
	ExpiresAt        time.Time     `json:"expires_at,omitzero" yaml:"expires_at,omitempty"`
	HasRefreshToken  bool          `json:"has_refresh_token" yaml:"has_refresh_token"`
	RefreshExpiresAt time.Time     `json:"refresh_expires_at,omitzero" yaml:"refresh_expires_at,omitempty"`
	ClockSkew        time.Duration `json:"clock_skew" yaml:"clock_skew"`
}

func (t *tokenInfo) status() Status {
	return Status{
		HasToken:         t.mainToken != "",
		TokenPrefix:      tokenPrefix(t.mainToken),
		ExpiresAt:        t.mainExpiry,
		HasRefreshToken:  t.refreshToken != "",
		RefreshExpiresAt: t.refreshExpiry,
		ClockSkew:        t.skew,
	}
}

func tokenPrefix(token string) string {
	if len(token) > 12 {
		return token[:12] + "..."
	}
	return token
}
