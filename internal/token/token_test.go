package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T, at time.Time) *Service {
	t.Helper()
	svc, err := NewService(Config{Secret: "test-secret"})
	require.NoError(t, err)
	svc.now = func() time.Time { return at }
	return svc
}

func TestNewServiceRequiresSecret(t *testing.T) {
	_, err := NewService(Config{})
	require.Error(t, err)
}

func TestIssuePairClaims(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, issued)

	pair, err := svc.IssuePair(42)
	require.NoError(t, err)
	require.NotEqual(t, pair.AccessToken, pair.RefreshToken)

	access, err := svc.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, int64(42), access.UserID)
	require.Equal(t, KindAccess, access.Kind)
	require.Equal(t, issued.Add(DefaultAccessTTL).Unix(), access.ExpiresAt.Unix())

	refresh, err := svc.Verify(pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, int64(42), refresh.UserID)
	require.Equal(t, KindRefresh, refresh.Kind)
	require.Equal(t, issued.Add(RefreshTTL).Unix(), refresh.ExpiresAt.Unix())
}

func TestVerifyExpired(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, issued)

	pair, err := svc.IssuePair(7)
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(DefaultAccessTTL + time.Minute) }
	_, err = svc.Verify(pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenExpired)

	// Refresh token outlives the access token.
	_, err = svc.Verify(pair.RefreshToken)
	require.NoError(t, err)

	svc.now = func() time.Time { return issued.Add(RefreshTTL + time.Minute) }
	_, err = svc.Verify(pair.RefreshToken)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestVerifyTampered(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, issued)

	pair, err := svc.IssuePair(7)
	require.NoError(t, err)

	_, err = svc.Verify(pair.AccessToken + "x")
	require.ErrorIs(t, err, ErrTokenInvalid)

	_, err = svc.Verify("not-a-token")
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifyWrongSecret(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := newTestService(t, issued)

	pair, err := svc.IssuePair(7)
	require.NoError(t, err)

	other, err := NewService(Config{Secret: "another-secret"})
	require.NoError(t, err)
	other.now = svc.now

	_, err = other.Verify(pair.AccessToken)
	require.ErrorIs(t, err, ErrTokenInvalid)
}

func TestCustomAccessTTL(t *testing.T) {
	issued := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, err := NewService(Config{Secret: "test-secret", AccessTTL: time.Hour})
	require.NoError(t, err)
	svc.now = func() time.Time { return issued }

	pair, err := svc.IssuePair(9)
	require.NoError(t, err)

	claims, err := svc.Verify(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, issued.Add(time.Hour).Unix(), claims.ExpiresAt.Unix())
}
