package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/tunecard/tunecard/internal/usage"
)

// How long an OAuth state nonce stays valid between /login and /callback.
const oauthStateTTL = 10 * time.Minute

type Service struct {
	jwt         *JWTManager
	redisClient *redis.Client
}

func NewService(jwt *JWTManager, redisClient *redis.Client) *Service {
	return &Service{
		jwt:         jwt,
		redisClient: redisClient,
	}
}

// GenerateTokens issues a JWT pair for the user and registers the refresh
// token ID in Redis so it can be revoked.
func (s *Service) GenerateTokens(ctx context.Context, userID, spotifyID string, tier usage.Tier) (*TokenPair, error) {
	pair, tokenID, err := s.jwt.GenerateTokenPair(userID, spotifyID, tier)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("refresh:%s:%s", userID, tokenID)
	if err := s.redisClient.Set(ctx, key, "1", s.jwt.RefreshExpiry()).Err(); err != nil {
		return nil, fmt.Errorf("storing refresh token: %w", err)
	}

	return pair, nil
}

// ConsumeRefreshToken validates a refresh token, revokes it (rotation), and
// returns the user ID it belonged to. The caller re-issues a pair with the
// user's current tier.
func (s *Service) ConsumeRefreshToken(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return "", fmt.Errorf("invalid refresh token: %w", err)
	}

	key := fmt.Sprintf("refresh:%s:%s", claims.UserID, claims.TokenID)
	deleted, err := s.redisClient.Del(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("revoking refresh token: %w", err)
	}
	if deleted == 0 {
		return "", fmt.Errorf("refresh token revoked or already used")
	}

	return claims.UserID, nil
}

// Logout revokes all refresh tokens for the user.
func (s *Service) Logout(ctx context.Context, userID string) error {
	pattern := fmt.Sprintf("refresh:%s:*", userID)
	iter := s.redisClient.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		s.redisClient.Del(ctx, iter.Val())
	}
	return iter.Err()
}

// NewOAuthState issues a single-use state nonce for the authorize redirect.
func (s *Service) NewOAuthState(ctx context.Context) (string, error) {
	state := uuid.New().String()
	key := "oauthstate:" + state
	if err := s.redisClient.Set(ctx, key, "1", oauthStateTTL).Err(); err != nil {
		return "", fmt.Errorf("storing oauth state: %w", err)
	}
	return state, nil
}

// ConsumeOAuthState burns a state nonce; false means unknown, expired, or
// already used.
func (s *Service) ConsumeOAuthState(ctx context.Context, state string) (bool, error) {
	deleted, err := s.redisClient.Del(ctx, "oauthstate:"+state).Result()
	if err != nil {
		return false, fmt.Errorf("consuming oauth state: %w", err)
	}
	return deleted > 0, nil
}

func (s *Service) ValidateAccessToken(token string) (*AccessClaims, error) {
	return s.jwt.ValidateAccessToken(token)
}
