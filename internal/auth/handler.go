package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/tunecard/tunecard/internal/api"
	"github.com/tunecard/tunecard/internal/nats"
	"github.com/tunecard/tunecard/internal/spotify"
	"github.com/tunecard/tunecard/internal/users"
)

// EventPublisher emits authentication events for the audit trail.
type EventPublisher interface {
	PublishAuthEvent(ctx context.Context, event nats.AuditEvent) error
}

type Handler struct {
	authSvc     *Service
	tokenSvc    *TokenService
	userSvc     *users.Service
	enc         *Encryptor
	spotifyAuth *spotify.Authenticator
	spotifyOpts []spotify.ClientOption
	publisher   EventPublisher
	validate    *validator.Validate
}

type HandlerOption func(*Handler)

// WithSpotifyClientOptions forwards options to the Spotify API client built
// during the OAuth callback. Tests use it to point at a fake server.
func WithSpotifyClientOptions(opts ...spotify.ClientOption) HandlerOption {
	return func(h *Handler) { h.spotifyOpts = opts }
}

func NewHandler(authSvc *Service, tokenSvc *TokenService, userSvc *users.Service, enc *Encryptor, spotifyAuth *spotify.Authenticator, publisher EventPublisher, opts ...HandlerOption) *Handler {
	h := &Handler{
		authSvc:     authSvc,
		tokenSvc:    tokenSvc,
		userSvc:     userSvc,
		enc:         enc,
		spotifyAuth: spotifyAuth,
		publisher:   publisher,
		validate:    validator.New(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Login handles GET /auth/login: issue a state nonce and redirect the
// browser to Spotify's authorize page.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	state, err := h.authSvc.NewOAuthState(r.Context())
	if err != nil {
		slog.Error("issuing oauth state", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	http.Redirect(w, r, h.spotifyAuth.AuthURL(state), http.StatusTemporaryRedirect)
}

// Callback handles GET /auth/callback: burn the state nonce, exchange the
// code, fetch the Spotify profile, upsert the user with the refresh token
// encrypted at rest, and issue a JWT pair.
func (h *Handler) Callback(w http.ResponseWriter, r *http.Request) {
	state := r.URL.Query().Get("state")
	code := r.URL.Query().Get("code")
	if state == "" || code == "" {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	ok, err := h.authSvc.ConsumeOAuthState(r.Context(), state)
	if err != nil {
		slog.Error("consuming oauth state", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if !ok {
		api.HandleError(w, api.ErrInvalidState)
		return
	}

	token, err := h.spotifyAuth.Exchange(r.Context(), code)
	if err != nil {
		slog.Error("exchanging oauth code", "error", err)
		api.HandleError(w, api.ErrUnauthorized)
		return
	}
	if token.RefreshToken == "" {
		slog.Error("oauth exchange returned no refresh token")
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	client := spotify.NewClient(h.spotifyAuth.HTTPClient(r.Context(), token.RefreshToken), h.spotifyOpts...)
	profile, err := client.Profile(r.Context())
	if err != nil {
		slog.Error("fetching spotify profile", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	encrypted, err := h.enc.Encrypt(token.RefreshToken)
	if err != nil {
		slog.Error("encrypting refresh token", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	user, err := h.userSvc.UpsertFromSpotify(r.Context(), profile.ID, profile.DisplayName, profile.Email, encrypted)
	if err != nil {
		slog.Error("upserting user", "spotify_id", profile.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	pair, err := h.authSvc.GenerateTokens(r.Context(), user.ID.String(), user.SpotifyID, user.Tier)
	if err != nil {
		slog.Error("issuing token pair", "user_id", user.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.publishEvent(r.Context(), user.ID, nats.EventUserLogin, "user", user.ID.String())

	api.JSON(w, http.StatusOK, map[string]any{
		"user":   user,
		"tokens": pair,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

// Refresh handles POST /auth/refresh. Refresh tokens are single use; the
// new pair carries the user's current tier, not the one frozen in the old
// access token.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	userIDStr, err := h.authSvc.ConsumeRefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		api.HandleError(w, api.ErrInvalidToken)
		return
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		api.HandleError(w, api.ErrInvalidToken)
		return
	}

	user, err := h.userSvc.GetByID(r.Context(), userID)
	if err != nil {
		slog.Error("loading user for refresh", "user_id", userID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if user == nil {
		api.HandleError(w, api.ErrInvalidToken)
		return
	}

	pair, err := h.authSvc.GenerateTokens(r.Context(), user.ID.String(), user.SpotifyID, user.Tier)
	if err != nil {
		slog.Error("issuing token pair", "user_id", user.ID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, map[string]any{"tokens": pair})
}

// Logout handles POST /auth/logout: revoke every refresh token the user
// holds.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	principal := GetPrincipal(r.Context())
	if principal == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	if err := h.authSvc.Logout(r.Context(), principal.UserID.String()); err != nil {
		slog.Error("revoking refresh tokens", "user_id", principal.UserID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.publishEvent(r.Context(), principal.UserID, nats.EventUserLogout, "user", principal.UserID.String())
	api.JSONMessage(w, http.StatusOK, "logged out")
}

type createTokenRequest struct {
	Name string `json:"name" validate:"required,max=100"`
}

// CreateToken handles POST /tokens. The plaintext token appears exactly
// once, in this response; only its bcrypt hash is stored.
func (h *Handler) CreateToken(w http.ResponseWriter, r *http.Request) {
	principal := GetPrincipal(r.Context())
	if principal == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	var req createTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	token, plaintext, err := h.tokenSvc.Create(r.Context(), principal.UserID, req.Name)
	if err != nil {
		slog.Error("creating api token", "user_id", principal.UserID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.publishEvent(r.Context(), principal.UserID, nats.EventTokenCreated, "api_token", token.ID.String())

	api.JSON(w, http.StatusCreated, map[string]any{
		"token":     token,
		"plaintext": plaintext,
	})
}

func (h *Handler) ListTokens(w http.ResponseWriter, r *http.Request) {
	principal := GetPrincipal(r.Context())
	if principal == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	tokens, err := h.tokenSvc.List(r.Context(), principal.UserID)
	if err != nil {
		slog.Error("listing api tokens", "user_id", principal.UserID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSON(w, http.StatusOK, tokens)
}

func (h *Handler) DeleteToken(w http.ResponseWriter, r *http.Request) {
	principal := GetPrincipal(r.Context())
	if principal == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	tokenID, err := uuid.Parse(chi.URLParam(r, "tokenID"))
	if err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	deleted, err := h.tokenSvc.Delete(r.Context(), tokenID, principal.UserID)
	if err != nil {
		slog.Error("deleting api token", "token_id", tokenID, "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	if !deleted {
		api.HandleError(w, api.ErrNotFound)
		return
	}

	h.publishEvent(r.Context(), principal.UserID, nats.EventTokenDeleted, "api_token", tokenID.String())
	api.JSONMessage(w, http.StatusOK, "token deleted")
}

func (h *Handler) publishEvent(ctx context.Context, userID uuid.UUID, eventType, resourceType, resourceID string) {
	if h.publisher == nil {
		return
	}
	event := nats.AuditEvent{
		UserID:       userID,
		EventType:    eventType,
		Severity:     "info",
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Timestamp:    time.Now(),
	}
	if err := h.publisher.PublishAuthEvent(ctx, event); err != nil {
		slog.Warn("publishing auth event", "event_type", eventType, "error", err)
	}
}
