package cards

import (
	"time"

	"github.com/google/uuid"
)

// Status is a card's generation lifecycle state.
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusFailed  Status = "failed"
)

// Card is a generated listening-profile avatar card. ImageKey points at the
// stored image object and is empty until the card is ready.
type Card struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Prompt    string    `json:"prompt"`
	Style     string    `json:"style,omitempty"`
	Status    Status    `json:"status"`
	ImageKey  string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Taste is the slice of a user's Spotify listening profile that seeds the
// image prompt.
type Taste struct {
	Artists []string
	Genres  []string
	Tracks  []string
}
