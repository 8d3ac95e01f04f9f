// Package provider holds the pieces shared by every payment gateway
// implementation: token caching and dispatch on InvoiceSource.
package provider

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expirySkew refreshes a token slightly before the upstream rejects it
const expirySkew = 30 * time.Second

// TokenFetcher obtains a fresh bearer token from the upstream
type TokenFetcher func(ctx context.Context) (string, error)

// Authenticator caches an upstream bearer token.
// Refresh is lazy: the first caller after expiry fetches a new token.
// Concurrent refreshes are tolerated and the last one wins.
type Authenticator struct {
	fetch TokenFetcher
	ttl   time.Duration
	now   func() time.Time

	mu        sync.Mutex
	token     string
	expiresAt time.Time
}

// NewAuthenticator creates an Authenticator. ttl applies to tokens that do not
// carry a JWT exp claim; now may be nil to use the wall clock.
func NewAuthenticator(fetch TokenFetcher, ttl time.Duration, now func() time.Time) *Authenticator {
	if now == nil {
		now = time.Now
	}
	return &Authenticator{fetch: fetch, ttl: ttl, now: now}
}

// Token returns the cached token or fetches a new one
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	if a.token != "" && a.now().Before(a.expiresAt) {
		token := a.token
		a.mu.Unlock()
		return token, nil
	}
	a.mu.Unlock()

	token, err := a.fetch(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", errors.New("upstream returned an empty token")
	}

	expiresAt := a.now().Add(a.ttl)
	if exp, ok := jwtExpiry(token); ok {
		expiresAt = exp
	}

	a.mu.Lock()
	a.token = token
	a.expiresAt = expiresAt.Add(-expirySkew)
	a.mu.Unlock()

	return token, nil
}

// Invalidate drops the cached token so the next call re-authenticates
func (a *Authenticator) Invalidate() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.token = ""
	a.expiresAt = time.Time{}
}

// ExpiresAt returns when the cached token will be refreshed, zero when none is cached
func (a *Authenticator) ExpiresAt() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.expiresAt
}

// jwtExpiry reads the exp claim without verifying the signature;
// the token is only inspected for its lifetime, never trusted for identity
func jwtExpiry(token string) (time.Time, bool) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
