package users

import (
	"time"

	"github.com/google/uuid"

	"github.com/tunecard/tunecard/internal/usage"
)

// User is an account linked to a Spotify profile. Tier is assigned
// operationally (support/billing), never by the service itself.
type User struct {
	ID          uuid.UUID  `json:"id"`
	SpotifyID   string     `json:"spotify_id"`
	DisplayName string     `json:"display_name"`
	Email       string     `json:"email,omitempty"`
	Tier        usage.Tier `json:"tier"`

	// Spotify refresh token, AES-GCM encrypted at rest. Never serialized.
	EncryptedRefreshToken string `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
