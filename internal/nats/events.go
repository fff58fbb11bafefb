package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamEvents = "TUNECARD_EVENTS"
)

// Subject constants. All audit-relevant activity flows through the events
// stream and is persisted by the audit consumer.
const (
	SubjectCardEvent  = "tunecard.events.card"
	SubjectAuthEvent  = "tunecard.events.auth"
	SubjectUsageEvent = "tunecard.events.usage"
	SubjectEventsAll  = "tunecard.events.>"
)

// Event types carried in AuditEvent.EventType.
const (
	EventCardGenerated     = "card.generated"
	EventCardFailed        = "card.failed"
	EventCardDownloaded    = "card.downloaded"
	EventUserLogin         = "user.login"
	EventUserLogout        = "user.logout"
	EventTokenCreated      = "token.created"
	EventTokenDeleted      = "token.deleted"
	EventRateLimitRejected = "ratelimit.rejected"
)

// AuditEvent is published for every audit-relevant action and persisted to
// the audit log by the consumer.
type AuditEvent struct {
	UserID       uuid.UUID `json:"user_id"`
	EventType    string    `json:"event_type"`
	Severity     string    `json:"severity"` // info, warn, error
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Details      string    `json:"details"`
	Timestamp    time.Time `json:"timestamp"`
}
