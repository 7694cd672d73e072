package output

import (
	"fmt"
	"io"
	"time"

	"github.com/Cruz1122/thingsboard/internal/auth"
)

// PrintStatus writes the guard's token state.
func PrintStatus(w io.Writer, status auth.Status, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, status)
	case FormatYAML:
		return writeYAML(w, status)
	}

	if !status.HasToken {
		_, err := fmt.Fprintln(w, "No token held")
		return err
	}
	fmt.Fprintf(w, "Token:             %s\n", status.TokenPrefix)
	fmt.Fprintf(w, "Expires:           %s\n", formatExpiry(status.ExpiresAt))
	if status.HasRefreshToken {
		fmt.Fprintf(w, "Refresh expires:   %s\n", formatExpiry(status.RefreshExpiresAt))
	} else {
		fmt.Fprintln(w, "Refresh token:     none")
	}
	_, err := fmt.Fprintf(w, "Clock skew:        %s\n", status.ClockSkew)
	return err
}

// TokenOutput is the structured form of the token command's result.
type TokenOutput struct {
	Token     string    `json:"token" yaml:"token"`
	ExpiresAt time.Time `json:"expires_at,omitzero" yaml:"expires_at,omitempty"`
}

// PrintToken writes a token on its own line, or as a document carrying its
// expiry for the structured formats.
func PrintToken(w io.Writer, token string, status auth.Status, format Format) error {
	out := TokenOutput{Token: token, ExpiresAt: status.ExpiresAt}
	switch format {
	case FormatJSON:
		return writeJSON(w, out)
	case FormatYAML:
		return writeYAML(w, out)
	}
	_, err := fmt.Fprintln(w, token)
	return err
}

// TokenClaims is the printable result of decoding a token offline.
type TokenClaims struct {
	IssuedAt  time.Time `json:"issued_at" yaml:"issued_at"`
	ExpiresAt time.Time `json:"expires_at,omitzero" yaml:"expires_at,omitempty"`
	Lifetime  string    `json:"lifetime,omitempty" yaml:"lifetime,omitempty"`
	Expired   bool      `json:"expired" yaml:"expired"`
}

// NewTokenClaims derives lifetime and expiry state relative to now.
func NewTokenClaims(issuedAt, expiresAt, now time.Time) TokenClaims {
	c := TokenClaims{IssuedAt: issuedAt, ExpiresAt: expiresAt}
	if !expiresAt.IsZero() {
		c.Lifetime = expiresAt.Sub(issuedAt).String()
		c.Expired = !now.Before(expiresAt)
	}
	return c
}

// PrintClaims writes decoded token timestamps.
func PrintClaims(w io.Writer, claims TokenClaims, format Format) error {
	switch format {
	case FormatJSON:
		return writeJSON(w, claims)
	case FormatYAML:
		return writeYAML(w, claims)
	}

	fmt.Fprintf(w, "Issued:            %s\n", formatExpiry(claims.IssuedAt))
	fmt.Fprintf(w, "Expires:           %s\n", formatExpiry(claims.ExpiresAt))
	if claims.Lifetime != "" {
		fmt.Fprintf(w, "Lifetime:          %s\n", claims.Lifetime)
	}
	_, err := fmt.Fprintf(w, "Expired:           %t\n", claims.Expired)
	return err
}

func formatExpiry(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
