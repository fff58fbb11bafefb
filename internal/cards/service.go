package cards

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tunecard/tunecard/internal/api"
	"github.com/tunecard/tunecard/internal/metrics"
	"github.com/tunecard/tunecard/internal/nats"
	"github.com/tunecard/tunecard/internal/storage"
)

// ImageGenerator produces an image for a prompt and returns a URL the
// result can be fetched from.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// ImageStore persists and serves card image objects.
type ImageStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (*storage.Object, error)
}

// EventPublisher emits card lifecycle events for the audit trail.
type EventPublisher interface {
	PublishCardEvent(ctx context.Context, event nats.AuditEvent) error
}

// Service orchestrates card generation: listening profile to prompt to
// generated image to stored object.
type Service struct {
	repo      Repository
	taste     TasteSource
	generator ImageGenerator
	images    ImageStore
	publisher EventPublisher
	http      *http.Client
	logger    *slog.Logger
}

func NewService(repo Repository, taste TasteSource, generator ImageGenerator, images ImageStore, publisher EventPublisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		taste:     taste,
		generator: generator,
		images:    images,
		publisher: publisher,
		http:      &http.Client{Timeout: 60 * time.Second},
		logger:    logger,
	}
}

// Generate produces a new card for the user synchronously. The card row is
// written as pending before the slow external calls, then moved to ready or
// failed, so interrupted generations stay visible.
func (s *Service) Generate(ctx context.Context, userID uuid.UUID, style string) (*Card, error) {
	start := time.Now()

	taste, err := s.taste.Taste(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("resolving listening profile: %w", err)
	}

	now := time.Now()
	card := &Card{
		ID:        uuid.New(),
		UserID:    userID,
		Prompt:    BuildPrompt(taste, style),
		Style:     style,
		Status:    StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, card); err != nil {
		return nil, err
	}

	imageURL, err := s.generator.Generate(ctx, card.Prompt)
	if err != nil {
		s.fail(ctx, card, err)
		return nil, fmt.Errorf("generating card image: %w", err)
	}

	data, contentType, err := s.fetchImage(ctx, imageURL)
	if err != nil {
		s.fail(ctx, card, err)
		return nil, fmt.Errorf("fetching generated image: %w", err)
	}

	key := fmt.Sprintf("cards/%s/%s.png", userID, card.ID)
	if err := s.images.Put(ctx, key, data, contentType); err != nil {
		s.fail(ctx, card, err)
		return nil, fmt.Errorf("storing card image: %w", err)
	}

	if err := s.repo.SetResult(ctx, card.ID, StatusReady, key); err != nil {
		return nil, err
	}
	card.Status = StatusReady
	card.ImageKey = key
	card.UpdatedAt = time.Now()

	metrics.CardsGeneratedTotal.WithLabelValues(string(StatusReady)).Inc()
	metrics.CardGenerationDuration.Observe(time.Since(start).Seconds())
	s.publishEvent(ctx, userID, nats.EventCardGenerated, "info", card.ID.String(), card.Style)

	return card, nil
}

func (s *Service) fail(ctx context.Context, card *Card, cause error) {
	s.logger.Error("card generation failed", "card_id", card.ID, "error", cause)
	metrics.CardsGeneratedTotal.WithLabelValues(string(StatusFailed)).Inc()
	if err := s.repo.SetResult(ctx, card.ID, StatusFailed, ""); err != nil {
		s.logger.Error("marking card failed", "card_id", card.ID, "error", err)
	}
	s.publishEvent(ctx, card.UserID, nats.EventCardFailed, "error", card.ID.String(), cause.Error())
}

func (s *Service) fetchImage(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("building image request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("image download returned %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("reading image body: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	return data, contentType, nil
}

// Get returns the user's card or api.ErrNotFound. Other users' cards are
// indistinguishable from missing ones.
func (s *Service) Get(ctx context.Context, userID, cardID uuid.UUID) (*Card, error) {
	card, err := s.repo.GetByID(ctx, cardID)
	if err != nil {
		return nil, err
	}
	if card == nil || card.UserID != userID {
		return nil, api.ErrNotFound
	}
	return card, nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]*Card, int64, error) {
	offset := (page - 1) * pageSize
	return s.repo.ListByUser(ctx, userID, pageSize, offset)
}

// Image returns the stored image object for a ready card. The caller must
// close the object body.
func (s *Service) Image(ctx context.Context, userID, cardID uuid.UUID) (*storage.Object, error) {
	card, err := s.Get(ctx, userID, cardID)
	if err != nil {
		return nil, err
	}
	if card.Status != StatusReady || card.ImageKey == "" {
		return nil, api.ErrCardNotReady
	}

	obj, err := s.images.Get(ctx, card.ImageKey)
	if err != nil {
		return nil, fmt.Errorf("fetching card image: %w", err)
	}

	s.publishEvent(ctx, userID, nats.EventCardDownloaded, "info", card.ID.String(), "")
	return obj, nil
}

func (s *Service) publishEvent(ctx context.Context, userID uuid.UUID, eventType, severity, cardID, details string) {
	if s.publisher == nil {
		return
	}
	event := nats.AuditEvent{
		UserID:       userID,
		EventType:    eventType,
		Severity:     severity,
		ResourceType: "card",
		ResourceID:   cardID,
		Details:      details,
		Timestamp:    time.Now(),
	}
	if err := s.publisher.PublishCardEvent(ctx, event); err != nil {
		s.logger.Warn("publishing card event", "event_type", eventType, "error", err)
	}
}
