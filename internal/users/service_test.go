package users

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunecard/tunecard/internal/usage"
)

type fakeRepo struct {
	bySpotifyID map[string]*User
	byID        map[uuid.UUID]*User
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		bySpotifyID: make(map[string]*User),
		byID:        make(map[uuid.UUID]*User),
	}
}

func (r *fakeRepo) Create(_ context.Context, user *User) error {
	cp := *user
	r.bySpotifyID[user.SpotifyID] = &cp
	r.byID[user.ID] = &cp
	return nil
}

func (r *fakeRepo) GetByID(_ context.Context, id uuid.UUID) (*User, error) {
	user, ok := r.byID[id]
	if !ok {
		return nil, nil
	}
	cp := *user
	return &cp, nil
}

func (r *fakeRepo) GetBySpotifyID(_ context.Context, spotifyID string) (*User, error) {
	user, ok := r.bySpotifyID[spotifyID]
	if !ok {
		return nil, nil
	}
	cp := *user
	return &cp, nil
}

func (r *fakeRepo) UpdateProfile(_ context.Context, user *User) error {
	stored := r.byID[user.ID]
	stored.DisplayName = user.DisplayName
	stored.Email = user.Email
	stored.EncryptedRefreshToken = user.EncryptedRefreshToken
	return nil
}

func TestUpsertFromSpotify_CreatesOnBaseTier(t *testing.T) {
	svc := NewService(newFakeRepo())

	user, err := svc.UpsertFromSpotify(context.Background(), "sp-1", "Alex", "alex@example.com", "enc")
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.Equal(t, "sp-1", user.SpotifyID)
	assert.Equal(t, usage.TierBase, user.Tier)
}

func TestUpsertFromSpotify_UpdatesProfileKeepsTier(t *testing.T) {
	repo := newFakeRepo()
	svc := NewService(repo)

	user, err := svc.UpsertFromSpotify(context.Background(), "sp-2", "Old Name", "old@example.com", "enc-1")
	require.NoError(t, err)

	repo.byID[user.ID].Tier = usage.TierElevated
	repo.bySpotifyID["sp-2"].Tier = usage.TierElevated

	updated, err := svc.UpsertFromSpotify(context.Background(), "sp-2", "New Name", "new@example.com", "enc-2")
	require.NoError(t, err)

	assert.Equal(t, user.ID, updated.ID)
	assert.Equal(t, "New Name", updated.DisplayName)
	assert.Equal(t, "enc-2", updated.EncryptedRefreshToken)
	assert.Equal(t, usage.TierElevated, updated.Tier)
}

func TestTier_MissingUserDefaultsToBase(t *testing.T) {
	svc := NewService(newFakeRepo())

	tier, err := svc.Tier(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, usage.TierBase, tier)
}
