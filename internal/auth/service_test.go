package auth

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunecard/tunecard/internal/usage"
)

func testService(t *testing.T) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	mgr := NewJWTManager("access-secret-32-chars-long!!!!!", "refresh-secret-32-chars-long!!!!", 15*time.Minute, 7*24*time.Hour)
	return NewService(mgr, client)
}

func TestOAuthState_SingleUse(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	state, err := svc.NewOAuthState(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, state)

	ok, err := svc.ConsumeOAuthState(ctx, state)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.ConsumeOAuthState(ctx, state)
	require.NoError(t, err)
	assert.False(t, ok, "state must not be reusable")
}

func TestOAuthState_UnknownState(t *testing.T) {
	svc := testService(t)

	ok, err := svc.ConsumeOAuthState(context.Background(), "never-issued")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRefreshToken_Rotation(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()

	pair, err := svc.GenerateTokens(ctx, "11111111-1111-1111-1111-111111111111", "spotify-abc", usage.TierBase)
	require.NoError(t, err)

	userID, err := svc.ConsumeRefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, "11111111-1111-1111-1111-111111111111", userID)

	// Single use: a second consume of the same token fails.
	_, err = svc.ConsumeRefreshToken(ctx, pair.RefreshToken)
	assert.Error(t, err)
}

func TestRefreshToken_GarbageRejected(t *testing.T) {
	svc := testService(t)

	_, err := svc.ConsumeRefreshToken(context.Background(), "not-a-jwt")
	assert.Error(t, err)
}

func TestLogout_RevokesAllRefreshTokens(t *testing.T) {
	svc := testService(t)
	ctx := context.Background()
	userID := "22222222-2222-2222-2222-222222222222"

	first, err := svc.GenerateTokens(ctx, userID, "spotify-abc", usage.TierBase)
	require.NoError(t, err)
	second, err := svc.GenerateTokens(ctx, userID, "spotify-abc", usage.TierBase)
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, userID))

	_, err = svc.ConsumeRefreshToken(ctx, first.RefreshToken)
	assert.Error(t, err)
	_, err = svc.ConsumeRefreshToken(ctx, second.RefreshToken)
	assert.Error(t, err)
}
