package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetBySpotifyID(ctx context.Context, spotifyID string) (*User, error)
	UpdateProfile(ctx context.Context, user *User) error
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const userColumns = `id, spotify_id, display_name, email, tier, encrypted_refresh_token, created_at, updated_at`

func (r *postgresRepository) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (id, spotify_id, display_name, email, tier, encrypted_refresh_token, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		user.ID, user.SpotifyID, user.DisplayName, user.Email, user.Tier,
		user.EncryptedRefreshToken, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting user: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanOne(ctx, query, id)
}

func (r *postgresRepository) GetBySpotifyID(ctx context.Context, spotifyID string) (*User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE spotify_id = $1`
	return r.scanOne(ctx, query, spotifyID)
}

// UpdateProfile refreshes the mutable profile fields after a login: display
// name, email and the re-encrypted refresh token. Tier is left untouched.
func (r *postgresRepository) UpdateProfile(ctx context.Context, user *User) error {
	query := `
		UPDATE users
		SET display_name = $2, email = $3, encrypted_refresh_token = $4, updated_at = NOW()
		WHERE id = $1`

	_, err := r.pool.Exec(ctx, query,
		user.ID, user.DisplayName, user.Email, user.EncryptedRefreshToken)
	if err != nil {
		return fmt.Errorf("updating user profile: %w", err)
	}
	return nil
}

func (r *postgresRepository) scanOne(ctx context.Context, query string, arg any) (*User, error) {
	user := &User{}
	err := r.pool.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.SpotifyID, &user.DisplayName, &user.Email, &user.Tier,
		&user.EncryptedRefreshToken, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching user: %w", err)
	}
	return user, nil
}
