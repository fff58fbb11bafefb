package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

const (
	apiTokenPrefix  = "tcp_"
	tokenSecretSize = 24 // bytes of entropy before hex encoding
	bcryptCost      = 12
)

var ErrTokenInvalid = errors.New("invalid api token")

// APIToken is a long-lived personal token for programmatic access (e.g.
// scripted card downloads). Only the bcrypt hash of the secret is stored;
// the plaintext is shown once at creation.
type APIToken struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	Name       string     `json:"name"`
	SecretHash string     `json:"-"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// TokenRepository handles api_tokens PostgreSQL operations.
type TokenRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

func (r *TokenRepository) Insert(ctx context.Context, t *APIToken) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO api_tokens (id, user_id, name, secret_hash, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.UserID, t.Name, t.SecretHash, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting api token: %w", err)
	}
	return nil
}

func (r *TokenRepository) GetByID(ctx context.Context, id uuid.UUID) (*APIToken, error) {
	t := &APIToken{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, user_id, name, secret_hash, last_used_at, created_at
		 FROM api_tokens WHERE id = $1`, id,
	).Scan(&t.ID, &t.UserID, &t.Name, &t.SecretHash, &t.LastUsedAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetching api token: %w", err)
	}
	return t, nil
}

func (r *TokenRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]APIToken, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, name, secret_hash, last_used_at, created_at
		 FROM api_tokens WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("listing api tokens: %w", err)
	}
	defer rows.Close()

	var tokens []APIToken
	for rows.Next() {
		var t APIToken
		if err := rows.Scan(&t.ID, &t.UserID, &t.Name, &t.SecretHash, &t.LastUsedAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning api token: %w", err)
		}
		tokens = append(tokens, t)
	}
	return tokens, nil
}

// Delete removes a token owned by userID. Returns false when no row matched.
func (r *TokenRepository) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM api_tokens WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return false, fmt.Errorf("deleting api token: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *TokenRepository) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE api_tokens SET last_used_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("touching api token: %w", err)
	}
	return nil
}

// TokenService creates and authenticates personal API tokens.
type TokenService struct {
	repo *TokenRepository
}

func NewTokenService(repo *TokenRepository) *TokenService {
	return &TokenService{repo: repo}
}

// Create mints a token for the user. The returned plaintext has the form
// tcp_<token-id>_<secret> and is not recoverable afterwards.
func (s *TokenService) Create(ctx context.Context, userID uuid.UUID, name string) (*APIToken, string, error) {
	secretBytes := make([]byte, tokenSecretSize)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, "", fmt.Errorf("generating token secret: %w", err)
	}
	secret := hex.EncodeToString(secretBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcryptCost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing token secret: %w", err)
	}

	token := &APIToken{
		ID:         uuid.New(),
		UserID:     userID,
		Name:       name,
		SecretHash: string(hash),
		CreatedAt:  time.Now(),
	}
	if err := s.repo.Insert(ctx, token); err != nil {
		return nil, "", err
	}

	plaintext := fmt.Sprintf("%s%s_%s", apiTokenPrefix, token.ID, secret)
	return token, plaintext, nil
}

// IsAPIToken reports whether a bearer credential looks like a personal API
// token rather than a JWT.
func IsAPIToken(credential string) bool {
	return strings.HasPrefix(credential, apiTokenPrefix)
}

// Authenticate verifies a plaintext token and returns its row. All failure
// modes collapse into ErrTokenInvalid so callers can't distinguish a missing
// token from a bad secret.
func (s *TokenService) Authenticate(ctx context.Context, credential string) (*APIToken, error) {
	rest, ok := strings.CutPrefix(credential, apiTokenPrefix)
	if !ok {
		return nil, ErrTokenInvalid
	}

	idStr, secret, ok := strings.Cut(rest, "_")
	if !ok {
		return nil, ErrTokenInvalid
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, ErrTokenInvalid
	}

	token, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("authenticating api token: %w", err)
	}
	if token == nil {
		return nil, ErrTokenInvalid
	}

	if bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)) != nil {
		return nil, ErrTokenInvalid
	}

	_ = s.repo.TouchLastUsed(ctx, token.ID)
	return token, nil
}

func (s *TokenService) List(ctx context.Context, userID uuid.UUID) ([]APIToken, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *TokenService) Delete(ctx context.Context, id, userID uuid.UUID) (bool, error) {
	return s.repo.Delete(ctx, id, userID)
}
