package provider

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func countingFetcher(tokens ...string) (TokenFetcher, *int) {
	calls := 0
	return func(ctx context.Context) (string, error) {
		token := tokens[calls%len(tokens)]
		calls++
		return token, nil
	}, &calls
}

func TestAuthenticator_CachesUntilTTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)}
	fetch, calls := countingFetcher("opaque-1", "opaque-2")
	auth := NewAuthenticator(fetch, time.Hour, clock.Now)
	ctx := context.Background()

	token, err := auth.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "opaque-1", token)

	clock.Advance(50 * time.Minute)
	token, err = auth.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "opaque-1", token)
	assert.Equal(t, 1, *calls)

	clock.Advance(10 * time.Minute)
	token, err = auth.Token(ctx)
	require.NoError(t, err)
	assert.Equal(t, "opaque-2", token)
	assert.Equal(t, 2, *calls)
}

func TestAuthenticator_UsesJWTExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Date(2025, 2, 14, 12, 0, 0, 0, time.UTC)}
	claims := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(clock.now.Add(5 * time.Minute))}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("upstream-secret"))
	require.NoError(t, err)

	fetch, calls := countingFetcher(signed)
	auth := NewAuthenticator(fetch, time.Hour, clock.Now)

	_, err = auth.Token(context.Background())
	require.NoError(t, err)
	assert.WithinDuration(t, clock.now.Add(5*time.Minute-expirySkew), auth.ExpiresAt(), 0)

	clock.Advance(5 * time.Minute)
	_, err = auth.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, *calls, "token past its exp claim must be refreshed despite the longer ttl")
}

func TestAuthenticator_Invalidate(t *testing.T) {
	fetch, calls := countingFetcher("a", "b")
	auth := NewAuthenticator(fetch, time.Hour, nil)

	first, err := auth.Token(context.Background())
	require.NoError(t, err)
	auth.Invalidate()
	assert.True(t, auth.ExpiresAt().IsZero())

	second, err := auth.Token(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
	assert.Equal(t, 2, *calls)
}

func TestAuthenticator_FetchErrors(t *testing.T) {
	upstream := errors.New("connection refused")
	auth := NewAuthenticator(func(ctx context.Context) (string, error) { return "", upstream }, time.Hour, nil)

	_, err := auth.Token(context.Background())
	assert.ErrorIs(t, err, upstream)

	empty := NewAuthenticator(func(ctx context.Context) (string, error) { return "", nil }, time.Hour, nil)
	_, err = empty.Token(context.Background())
	assert.EqualError(t, err, "upstream returned an empty token")
}
