package cards

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tunecard/tunecard/internal/api"
	"github.com/tunecard/tunecard/internal/auth"
	"github.com/tunecard/tunecard/internal/metrics"
	"github.com/tunecard/tunecard/internal/nats"
	"github.com/tunecard/tunecard/internal/usage"
)

// UsagePublisher emits quota rejection events for the audit trail.
type UsagePublisher interface {
	PublishUsageEvent(ctx context.Context, event nats.AuditEvent) error
}

type GenerateCardRequest struct {
	Style string `json:"style" validate:"omitempty,max=64"`
}

type Handler struct {
	svc       *Service
	limiter   *usage.Limiter
	publisher UsagePublisher
	validate  *validator.Validate
}

func NewHandler(svc *Service, limiter *usage.Limiter, publisher UsagePublisher) *Handler {
	return &Handler{
		svc:       svc,
		limiter:   limiter,
		publisher: publisher,
		validate:  validator.New(),
	}
}

// Generate handles POST /cards. The quota dance is deliberate: admit before
// the expensive work, record only after it succeeds, then re-check so the
// response headers reflect the subject's quota after this request counted.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())
	if principal == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if _, err := h.admit(w, r, principal, usage.OpGenerateAvatar); err != nil {
		return
	}

	var req GenerateCardRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			api.HandleError(w, api.ErrBadRequest)
			return
		}
		if err := h.validate.Struct(req); err != nil {
			api.HandleError(w, api.NewValidationError(err.Error()))
			return
		}
	}

	card, err := h.svc.Generate(r.Context(), principal.UserID, req.Style)
	if err != nil {
		slog.Error("generating card", "user_id", principal.UserID, "error", err)
		api.HandleError(w, err)
		return
	}

	dec, err := h.recordAndRecheck(r, principal, usage.OpGenerateAvatar,
		usage.WithMetadata(map[string]string{"card_id": card.ID.String()}))
	if err != nil {
		slog.Error("recording card generation", "user_id", principal.UserID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	usage.SetHeaders(w, dec)
	api.JSON(w, http.StatusCreated, card)
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())
	if principal == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	page, pageSize := 1, 20
	if p := r.URL.Query().Get("page"); p != "" {
		if v, err := strconv.Atoi(p); err == nil && v > 0 {
			page = v
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
			pageSize = v
		}
	}

	cards, total, err := h.svc.List(r.Context(), principal.UserID, page, pageSize)
	if err != nil {
		slog.Error("listing cards", "user_id", principal.UserID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, cards, total, page, pageSize)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())
	if principal == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	cardID, err := uuid.Parse(chi.URLParam(r, "cardID"))
	if err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	card, err := h.svc.Get(r.Context(), principal.UserID, cardID)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	api.JSON(w, http.StatusOK, card)
}

// Download handles GET /cards/{cardID}/image and streams the stored image.
// It is metered like Generate, under its own operation and rules.
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())
	if principal == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	cardID, err := uuid.Parse(chi.URLParam(r, "cardID"))
	if err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if _, err := h.admit(w, r, principal, usage.OpDownloadAvatar); err != nil {
		return
	}

	obj, err := h.svc.Image(r.Context(), principal.UserID, cardID)
	if err != nil {
		api.HandleError(w, err)
		return
	}
	defer obj.Body.Close()

	dec, err := h.recordAndRecheck(r, principal, usage.OpDownloadAvatar,
		usage.WithMetadata(map[string]string{"card_id": cardID.String()}))
	if err != nil {
		slog.Error("recording card download", "user_id", principal.UserID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	usage.SetHeaders(w, dec)
	w.Header().Set("Content-Type", obj.ContentType)
	if obj.ContentLength > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.ContentLength, 10))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		slog.Warn("streaming card image", "card_id", cardID, "error", err)
	}
}

// Usage handles GET /usage: the subject's current quota state for every
// metered operation.
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	principal := auth.GetPrincipal(r.Context())
	if principal == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	snapshot, err := h.limiter.Snapshot(r.Context(), principal.Subject(), principal.Tier)
	if err != nil {
		slog.Error("snapshotting usage", "user_id", principal.UserID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	type operationQuota struct {
		Limit     int       `json:"limit"`
		Remaining int       `json:"remaining"`
		ResetAt   time.Time `json:"reset_at"`
	}
	out := make(map[string]operationQuota, len(snapshot))
	for op, dec := range snapshot {
		out[op] = operationQuota{Limit: dec.Limit, Remaining: dec.Remaining, ResetAt: dec.ResetAt}
	}

	api.JSON(w, http.StatusOK, map[string]any{
		"tier":       principal.Tier,
		"operations": out,
	})
}

// admit runs the pre-work quota check. On rejection it writes the 429
// response and returns the rejection error so the caller just returns.
func (h *Handler) admit(w http.ResponseWriter, r *http.Request, principal *auth.Principal, operation string) (usage.Decision, error) {
	dec, err := h.limiter.Admit(r.Context(), principal.Subject(), operation, principal.Tier)
	if err != nil {
		var rej *usage.LimitExceededError
		if errors.As(err, &rej) {
			metrics.UsageAdmissionsTotal.WithLabelValues(operation, "rejected").Inc()
			h.publishRejection(r, principal, rej)
			usage.WriteRejection(w, dec, rej)
			return dec, err
		}
		slog.Error("checking quota", "operation", operation, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return dec, err
	}
	metrics.UsageAdmissionsTotal.WithLabelValues(operation, "admitted").Inc()
	return dec, nil
}

func (h *Handler) recordAndRecheck(r *http.Request, principal *auth.Principal, operation string, opts ...usage.RecordOption) (usage.Decision, error) {
	if _, err := h.limiter.Record(r.Context(), principal.Subject(), operation, opts...); err != nil {
		return usage.Decision{}, err
	}
	return h.limiter.Check(r.Context(), principal.Subject(), operation, principal.Tier)
}

func (h *Handler) publishRejection(r *http.Request, principal *auth.Principal, rej *usage.LimitExceededError) {
	if h.publisher == nil {
		return
	}
	event := nats.AuditEvent{
		UserID:       principal.UserID,
		EventType:    nats.EventRateLimitRejected,
		Severity:     "warn",
		ResourceType: "operation",
		ResourceID:   rej.Operation,
		Details:      "resets at " + rej.ResetAt.UTC().Format(time.RFC3339),
		Timestamp:    time.Now(),
	}
	if err := h.publisher.PublishUsageEvent(r.Context(), event); err != nil {
		slog.Warn("publishing rejection event", "operation", rej.Operation, "error", err)
	}
}
