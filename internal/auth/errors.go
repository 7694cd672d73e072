package auth

import (
	"errors"
	"fmt"
	"net/http"
)

// Operation names reported in errors, spans and metrics.
const (
	OpLogin   = "login"
	OpRefresh = "refresh"
)

// Token kinds reported by TokenFormatError.
const (
	AccessToken  = "access"
	RefreshToken = "refresh"
)

var (
	errMissingField = errors.New("missing or empty")
	errMissingClaim = errors.New("claim not present")
)

// ConfigurationError reports guard state that makes an operation impossible
// before any network call is attempted, such as login without credentials.
type ConfigurationError struct {
	Field string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("auth configuration: %s is not set", e.Field)
}

// AuthenticationError reports a login or refresh call that failed at the
// transport level or was rejected by the server.
type AuthenticationError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *AuthenticationError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed with status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *AuthenticationError) Unwrap() error {
	return e.Err
}

// Rejected reports whether the server refused the presented credentials or
// refresh token, as opposed to a network or server-side failure.
func (e *AuthenticationError) Rejected() bool {
	switch e.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden:
		return true
	default:
		return false
	}
}

// statusCoder is implemented by transport errors that carry an HTTP status.
type statusCoder interface {
	HTTPStatus() int
}

func newAuthenticationError(op string, err error) *AuthenticationError {
	authErr := &AuthenticationError{Op: op, Err: err}
	var sc statusCoder
	if errors.As(err, &sc) {
		authErr.StatusCode = sc.HTTPStatus()
	}
	return authErr
}

// TokenFormatError reports a token response that lacks the token or whose
// claims cannot be decoded.
type TokenFormatError struct {
	Token string
	Claim string
	Err   error
}

func (e *TokenFormatError) Error() string {
	if e.Claim != "" {
		return fmt.Sprintf("malformed %s token: %s: %v", e.Token, e.Claim, e.Err)
	}
	return fmt.Sprintf("malformed %s token: %v", e.Token, e.Err)
}

func (e *TokenFormatError) Unwrap() error {
	return e.Err
}
