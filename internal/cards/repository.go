package cards

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Repository interface {
	Create(ctx context.Context, card *Card) error
	GetByID(ctx context.Context, id uuid.UUID) (*Card, error)
	// SetResult moves a card to its terminal status. imageKey is empty for
	// failed cards.
	SetResult(ctx context.Context, id uuid.UUID, status Status, imageKey string) error
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Card, int64, error)
}

type postgresRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &postgresRepository{pool: pool}
}

const cardColumns = `id, user_id, prompt, style, status, image_key, created_at, updated_at`

func (r *postgresRepository) Create(ctx context.Context, card *Card) error {
	query := `
		INSERT INTO cards (id, user_id, prompt, style, status, image_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := r.pool.Exec(ctx, query,
		card.ID, card.UserID, card.Prompt, card.Style, card.Status,
		card.ImageKey, card.CreatedAt, card.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting card: %w", err)
	}
	return nil
}

func (r *postgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = $1`

	card := &Card{}
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&card.ID, &card.UserID, &card.Prompt, &card.Style, &card.Status,
		&card.ImageKey, &card.CreatedAt, &card.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching card: %w", err)
	}
	return card, nil
}

func (r *postgresRepository) SetResult(ctx context.Context, id uuid.UUID, status Status, imageKey string) error {
	query := `
		UPDATE cards
		SET status = $2, image_key = $3, updated_at = NOW()
		WHERE id = $1`

	_, err := r.pool.Exec(ctx, query, id, status, imageKey)
	if err != nil {
		return fmt.Errorf("updating card result: %w", err)
	}
	return nil
}

func (r *postgresRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Card, int64, error) {
	var total int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cards WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("counting cards: %w", err)
	}

	query := `
		SELECT ` + cardColumns + `
		FROM cards
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`

	rows, err := r.pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("listing cards: %w", err)
	}
	defer rows.Close()

	var cards []*Card
	for rows.Next() {
		card := &Card{}
		if err := rows.Scan(
			&card.ID, &card.UserID, &card.Prompt, &card.Style, &card.Status,
			&card.ImageKey, &card.CreatedAt, &card.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scanning card: %w", err)
		}
		cards = append(cards, card)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterating cards: %w", err)
	}
	return cards, total, nil
}
