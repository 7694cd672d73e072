// Package auth keeps a bearer token valid for an API client.
//
// [Guard] caches the access token returned by the authentication service
// together with its refresh token, both expiries and an estimate of the
// clock skew between client and server. [Guard.EnsureValidToken] serves the
// cached token while it outlives the request margin and otherwise refreshes
// it, or logs in again when no usable refresh token is held. Only one login
// or refresh is in flight per guard; concurrent callers share its result.
//
// The network calls go through a [Transport]; see
// [github.com/Cruz1122/thingsboard/internal/httpclient] for the HTTP one.
package auth
