package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"ridemetrics/internal/store"
)

// refreshBuffer is how long before expiry a token is refreshed
const refreshBuffer = 60 * time.Second

// TokenStore persists rotated tokens of a user
type TokenStore interface {
	GetAuth(userID string) (*store.Auth, error)
	UpdateTokens(userID, accessToken, refreshToken string, expiresAt time.Time) error
}

// TokenSource wraps oauth2.TokenSource with persistence
// It automatically refreshes tokens and calls onRefresh when a new token is obtained
type TokenSource struct {
	config    *oauth2.Config
	token     *oauth2.Token
	onRefresh func(*oauth2.Token) error
	mu        sync.Mutex
}

// NewTokenSource creates a new TokenSource that will refresh tokens as needed
// and call onRefresh to persist new tokens
func NewTokenSource(cfg *oauth2.Config, token *oauth2.Token, onRefresh func(*oauth2.Token) error) *TokenSource {
	return &TokenSource{
		config:    cfg,
		token:     token,
		onRefresh: onRefresh,
	}
}

// UserTokenSource loads a user's stored tokens and returns a source that
// writes refreshed tokens back for that user. store.ErrNoAuth means the user
// has not connected Strava yet.
func UserTokenSource(cfg *oauth2.Config, ts TokenStore, user string) (*TokenSource, error) {
	a, err := ts.GetAuth(user)
	if errors.Is(err, store.ErrNoAuth) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("loading tokens of %s: %w", user, err)
	}

	return NewTokenSource(cfg, TokenFromAuth(a), func(t *oauth2.Token) error {
		return ts.UpdateTokens(user, t.AccessToken, t.RefreshToken, t.Expiry)
	}), nil
}

// Token returns a valid token, refreshing if necessary
func (ts *TokenSource) Token() (*oauth2.Token, error) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if time.Until(ts.token.Expiry) > refreshBuffer {
		return ts.token, nil
	}

	// Refresh the token
	ctx := context.Background()
	src := ts.config.TokenSource(ctx, ts.token)
	newToken, err := src.Token()
	if err != nil {
		return nil, err
	}

	// Persist the new token if callback is set
	if ts.onRefresh != nil {
		if err := ts.onRefresh(newToken); err != nil {
			return nil, err
		}
	}

	ts.token = newToken
	return newToken, nil
}

// IsExpired checks if the current token is expired or will expire within the buffer
func (ts *TokenSource) IsExpired() bool {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return time.Until(ts.token.Expiry) <= refreshBuffer
}

// CurrentToken returns the current token without refreshing
func (ts *TokenSource) CurrentToken() *oauth2.Token {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.token
}
