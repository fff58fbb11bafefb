package cards

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunecard/tunecard/internal/auth"
	"github.com/tunecard/tunecard/internal/nats"
	"github.com/tunecard/tunecard/internal/usage"
)

type handlerFixture struct {
	handler   *Handler
	repo      *memRepo
	images    *fakeImages
	store     *usage.MemStore
	limiter   *usage.Limiter
	publisher *capturingPublisher
	principal *auth.Principal
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	repo := newMemRepo()
	images := newFakeImages()
	publisher := &capturingPublisher{}
	srv := imageServer(t)

	svc := NewService(repo, &fakeTaste{taste: testTaste()}, &fakeGenerator{url: srv.URL},
		images, publisher, slog.Default())

	store := usage.NewMemStore()
	limiter := usage.NewLimiter(store, usage.DefaultRules())

	return &handlerFixture{
		handler:   NewHandler(svc, limiter, publisher),
		repo:      repo,
		images:    images,
		store:     store,
		limiter:   limiter,
		publisher: publisher,
		principal: &auth.Principal{UserID: uuid.New(), SpotifyID: "spotify-user", Tier: usage.TierBase},
	}
}

func (f *handlerFixture) request(t *testing.T, method, target string, params map[string]string) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)

	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	ctx = auth.WithPrincipal(ctx, f.principal)
	return req.WithContext(ctx)
}

func TestHandlerGenerate_SetsQuotaHeaders(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Generate(rec, f.request(t, http.MethodPost, "/api/v1/cards", nil))

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))

	var body struct {
		Data Card `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, StatusReady, body.Data.Status)
	assert.Equal(t, f.principal.UserID, body.Data.UserID)

	// One usage event recorded for the generation.
	assert.Equal(t, 1, f.store.Len())
}

func TestHandlerGenerate_RejectsAtLimit(t *testing.T) {
	f := newHandlerFixture(t)

	for i := 0; i < 5; i++ {
		_, err := f.limiter.Record(context.Background(), f.principal.Subject(), usage.OpGenerateAvatar)
		require.NoError(t, err)
	}

	rec := httptest.NewRecorder()
	f.handler.Generate(rec, f.request(t, http.MethodPost, "/api/v1/cards", nil))

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	var body struct {
		Error   string `json:"error"`
		Details struct {
			Endpoint  string `json:"endpoint"`
			Tier      string `json:"tier"`
			ResetTime string `json:"resetTime"`
		} `json:"details"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Rate limit exceeded", body.Error)
	assert.Equal(t, usage.OpGenerateAvatar, body.Details.Endpoint)
	assert.Equal(t, "base", body.Details.Tier)
	assert.NotEmpty(t, body.Details.ResetTime)

	// No card generated and no event recorded for the rejected request.
	_, total, err := f.repo.ListByUser(context.Background(), f.principal.UserID, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Equal(t, 5, f.store.Len())

	types := f.publisher.types()
	require.Len(t, types, 1)
	assert.Equal(t, nats.EventRateLimitRejected, types[0])
}

func TestHandlerGenerate_RemainingCountsDown(t *testing.T) {
	f := newHandlerFixture(t)

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		f.handler.Generate(rec, f.request(t, http.MethodPost, "/api/v1/cards", nil))
		require.Equal(t, http.StatusCreated, rec.Code)
		assert.Equal(t, fmt.Sprintf("%d", 4-i), rec.Header().Get("X-RateLimit-Remaining"))
	}

	rec := httptest.NewRecorder()
	f.handler.Generate(rec, f.request(t, http.MethodPost, "/api/v1/cards", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestHandlerDownload_StreamsImage(t *testing.T) {
	f := newHandlerFixture(t)

	card := &Card{ID: uuid.New(), UserID: f.principal.UserID, Status: StatusReady, ImageKey: "cards/a/b.png"}
	require.NoError(t, f.repo.Create(context.Background(), card))
	require.NoError(t, f.images.Put(context.Background(), card.ImageKey, []byte("img"), "image/png"))

	rec := httptest.NewRecorder()
	f.handler.Download(rec, f.request(t, http.MethodGet, "/api/v1/cards/"+card.ID.String()+"/image",
		map[string]string{"cardID": card.ID.String()}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, "img", rec.Body.String())
	assert.Equal(t, "10", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "9", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestHandlerDownload_PendingCardConflicts(t *testing.T) {
	f := newHandlerFixture(t)

	card := &Card{ID: uuid.New(), UserID: f.principal.UserID, Status: StatusPending}
	require.NoError(t, f.repo.Create(context.Background(), card))

	rec := httptest.NewRecorder()
	f.handler.Download(rec, f.request(t, http.MethodGet, "/api/v1/cards/"+card.ID.String()+"/image",
		map[string]string{"cardID": card.ID.String()}))

	assert.Equal(t, http.StatusConflict, rec.Code)
	// Failed downloads do not consume quota.
	assert.Equal(t, 0, f.store.Len())
}

func TestHandlerGet_UnknownIDIsNotFound(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Get(rec, f.request(t, http.MethodGet, "/api/v1/cards/"+uuid.NewString(),
		map[string]string{"cardID": uuid.NewString()}))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandlerUsage_ReportsAllOperations(t *testing.T) {
	f := newHandlerFixture(t)

	_, err := f.limiter.Record(context.Background(), f.principal.Subject(), usage.OpGenerateAvatar)
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	f.handler.Usage(rec, f.request(t, http.MethodGet, "/api/v1/usage", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			Tier       string `json:"tier"`
			Operations map[string]struct {
				Limit     int `json:"limit"`
				Remaining int `json:"remaining"`
			} `json:"operations"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "base", body.Data.Tier)

	gen, ok := body.Data.Operations[usage.OpGenerateAvatar]
	require.True(t, ok)
	assert.Equal(t, 5, gen.Limit)
	assert.Equal(t, 4, gen.Remaining)

	dl, ok := body.Data.Operations[usage.OpDownloadAvatar]
	require.True(t, ok)
	assert.Equal(t, 10, dl.Limit)
	assert.Equal(t, 10, dl.Remaining)
}

func TestHandlerGenerate_UnauthenticatedRequest(t *testing.T) {
	f := newHandlerFixture(t)

	rec := httptest.NewRecorder()
	f.handler.Generate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cards", nil))

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
