package usage

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Tier is a subject's service class. It is assigned externally and consumed
// here only to select a rule.
type Tier string

const (
	TierBase      Tier = "base"
	TierElevated  Tier = "elevated"
	TierUnlimited Tier = "unlimited"
)

// Metered operation names.
const (
	OpGenerateAvatar = "generate-avatar"
	OpDownloadAvatar = "download-avatar"
)

// Event is an immutable record of one accounted operation, written exactly
// once at the moment the operation is admitted. Events are append-only and
// are only ever read back in aggregate (counted within a window).
type Event struct {
	ID         uuid.UUID       `json:"id"`
	Subject    string          `json:"subject"`
	Operation  string          `json:"operation"`
	OccurredAt time.Time       `json:"occurred_at"`
	Cost       *float64        `json:"cost,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// Rule bounds one tier of an operation to MaxRequests per rolling Window.
type Rule struct {
	Window      time.Duration
	MaxRequests int
	Tier        Tier
}

// Decision is the outcome of a quota check.
type Decision struct {
	Admitted  bool      `json:"admitted"`
	Remaining int       `json:"remaining"`
	Limit     int       `json:"limit"`
	Unlimited bool      `json:"unlimited"`
	ResetAt   time.Time `json:"reset_at"`
}
