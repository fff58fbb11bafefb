package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository is the PostgreSQL usage event store.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new usage Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CountSince counts events for (subject, operation) with occurred_at >= since.
func (r *Repository) CountSince(ctx context.Context, subject, operation string, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM usage_events
		 WHERE subject = $1 AND operation = $2 AND occurred_at >= $3`,
		subject, operation, since,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting usage events: %w", err)
	}
	return count, nil
}

// Insert appends a usage event. usage_events rows are never updated or
// deleted; deletion only happens as a cascade when the owning user row goes.
func (r *Repository) Insert(ctx context.Context, event *Event) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO usage_events (id, subject, operation, occurred_at, cost, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		event.ID, event.Subject, event.Operation, event.OccurredAt, event.Cost, event.Metadata)
	if err != nil {
		return fmt.Errorf("inserting usage event: %w", err)
	}
	return nil
}
