package auth

import (
	"context"

	"golang.org/x/oauth2"
)

type guardTokenSource struct {
	ctx   context.Context
	guard *Guard
}

// TokenSource adapts the guard to oauth2.TokenSource so it can back an
// oauth2.Transport. Every Token call goes through EnsureValidToken; the
// returned Expiry is converted to local time using the clock skew estimate.
func (g *Guard) TokenSource(ctx context.Context) oauth2.TokenSource {
	if ctx == nil {
		ctx = context.Background()
	}
	return &guardTokenSource{ctx: ctx, guard: g}
}

func (s *guardTokenSource) Token() (*oauth2.Token, error) {
	token, err := s.guard.EnsureValidToken(s.ctx)
	if err != nil {
		return nil, err
	}
	t := &oauth2.Token{AccessToken: token, TokenType: "Bearer"}
	info := s.guard.state.Load()
	if info.mainToken == token && !info.mainExpiry.IsZero() {
		t.Expiry = info.mainExpiry.Add(-info.skew)
	}
	return t, nil
}
