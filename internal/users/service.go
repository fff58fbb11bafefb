package users

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tunecard/tunecard/internal/usage"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// UpsertFromSpotify creates or refreshes the account for a Spotify profile
// after a successful OAuth callback. New accounts start on the base tier.
func (s *Service) UpsertFromSpotify(ctx context.Context, spotifyID, displayName, email, encryptedRefreshToken string) (*User, error) {
	existing, err := s.repo.GetBySpotifyID(ctx, spotifyID)
	if err != nil {
		return nil, err
	}

	if existing != nil {
		existing.DisplayName = displayName
		existing.Email = email
		existing.EncryptedRefreshToken = encryptedRefreshToken
		if err := s.repo.UpdateProfile(ctx, existing); err != nil {
			return nil, err
		}
		return existing, nil
	}

	now := time.Now()
	user := &User{
		ID:                    uuid.New(),
		SpotifyID:             spotifyID,
		DisplayName:           displayName,
		Email:                 email,
		Tier:                  usage.TierBase,
		EncryptedRefreshToken: encryptedRefreshToken,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, id)
}

// Tier returns the current tier for a user id, defaulting to base when the
// row is missing (a deleted account mid-session).
func (s *Service) Tier(ctx context.Context, id uuid.UUID) (usage.Tier, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return usage.TierBase, fmt.Errorf("resolving tier: %w", err)
	}
	if user == nil {
		return usage.TierBase, nil
	}
	return user.Tier, nil
}
