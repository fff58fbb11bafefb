package usage

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemStore is an in-memory Store for unit tests and local development. It
// keeps the same inclusive-window counting semantics as the pgx Repository.
type MemStore struct {
	mu     sync.Mutex
	events []Event
}

// NewMemStore creates an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{}
}

// CountSince counts events for (subject, operation) with OccurredAt >= since.
func (m *MemStore) CountSince(_ context.Context, subject, operation string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, e := range m.events {
		if e.Subject == subject && e.Operation == operation && !e.OccurredAt.Before(since) {
			count++
		}
	}
	return count, nil
}

// Insert appends an event. A zero OccurredAt is filled with the current time;
// tests seed aged events by setting it explicitly.
func (m *MemStore) Insert(_ context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := *event
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now()
	}
	m.events = append(m.events, e)
	return nil
}

// Len returns the number of stored events.
func (m *MemStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}
