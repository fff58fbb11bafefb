package usage

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Store persists usage events. The production implementation is the pgx
// Repository; tests substitute MemStore.
type Store interface {
	// CountSince returns the number of events for (subject, operation) with
	// occurred_at >= since, inclusive.
	CountSince(ctx context.Context, subject, operation string, since time.Time) (int, error)
	// Insert appends a single event.
	Insert(ctx context.Context, event *Event) error
}

// Limiter decides admission for (subject, operation) pairs under per-tier
// rolling-window quotas and keeps an append-only trail of accepted operations.
//
// Admission counts rows in the shared store without any lock or transaction,
// so two concurrent requests from one subject can both observe remaining > 0
// and together overshoot the quota by one. That is the documented baseline
// behavior (best-effort, eventually consistent), not a bug to fix here.
type Limiter struct {
	store Store
	rules Rules
}

// NewLimiter creates a Limiter over the given store and immutable rule table.
func NewLimiter(store Store, rules Rules) *Limiter {
	return &Limiter{store: store, rules: rules}
}

// LimitExceededError is the structured rejection returned by Admit. It is a
// normal negative decision, not an infrastructure failure.
type LimitExceededError struct {
	Operation  string
	Tier       Tier
	ResetAt    time.Time
	RetryAfter time.Duration
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s (tier %s), resets at %s",
		e.Operation, e.Tier, e.ResetAt.UTC().Format(time.RFC3339))
}

// Check computes the admission decision for (subject, operation, tier)
// without writing anything.
//
// An operation entirely unknown to the rule table is admitted with unbounded
// remaining quota; no store round trip is made. ResetAt is always exactly one
// window length out from the moment of the check, not the time the oldest
// counted event ages out.
func (l *Limiter) Check(ctx context.Context, subject, operation string, tier Tier) (Decision, error) {
	rule, ok := l.rules.resolve(operation, tier)
	if !ok {
		return Decision{Admitted: true, Unlimited: true, Remaining: math.MaxInt}, nil
	}

	now := time.Now()
	count, err := l.store.CountSince(ctx, subject, operation, now.Add(-rule.Window))
	if err != nil {
		return Decision{}, fmt.Errorf("counting usage events: %w", err)
	}

	remaining := rule.MaxRequests - count
	if remaining < 0 {
		remaining = 0
	}

	return Decision{
		Admitted:  remaining > 0,
		Remaining: remaining,
		Limit:     rule.MaxRequests,
		ResetAt:   now.Add(rule.Window),
	}, nil
}

// Admit runs Check and converts a negative decision into a
// *LimitExceededError carrying the reset time and a suggested retry delay
// (ResetAt − now, floored at zero). Admit itself has no side effect: the
// caller records the event separately, after the protected work succeeds.
func (l *Limiter) Admit(ctx context.Context, subject, operation string, tier Tier) (Decision, error) {
	dec, err := l.Check(ctx, subject, operation, tier)
	if err != nil {
		return Decision{}, err
	}
	if !dec.Admitted {
		retry := time.Until(dec.ResetAt)
		if retry < 0 {
			retry = 0
		}
		return dec, &LimitExceededError{
			Operation:  operation,
			Tier:       tier,
			ResetAt:    dec.ResetAt,
			RetryAfter: retry,
		}
	}
	return dec, nil
}

// RecordOption customizes the event appended by Record.
type RecordOption func(*Event)

// WithCost attaches an external-currency cost to the event.
func WithCost(cost float64) RecordOption {
	return func(e *Event) { e.Cost = &cost }
}

// WithMetadata attaches an opaque audit payload to the event.
func WithMetadata(metadata any) RecordOption {
	return func(e *Event) {
		if data, err := json.Marshal(metadata); err == nil {
			e.Metadata = data
		}
	}
}

// Record appends a usage event with occurred_at = now. Store failures
// propagate to the caller; they are never swallowed.
func (l *Limiter) Record(ctx context.Context, subject, operation string, opts ...RecordOption) (*Event, error) {
	event := &Event{
		ID:         uuid.New(),
		Subject:    subject,
		Operation:  operation,
		OccurredAt: time.Now(),
	}
	for _, opt := range opts {
		opt(event)
	}
	if err := l.store.Insert(ctx, event); err != nil {
		return nil, fmt.Errorf("recording usage event: %w", err)
	}
	return event, nil
}

// Snapshot returns the current decision for every operation in the rule
// table, keyed by operation name. Used by the quota display endpoint.
func (l *Limiter) Snapshot(ctx context.Context, subject string, tier Tier) (map[string]Decision, error) {
	out := make(map[string]Decision, len(l.rules))
	for op := range l.rules {
		dec, err := l.Check(ctx, subject, op, tier)
		if err != nil {
			return nil, err
		}
		out[op] = dec
	}
	return out, nil
}
