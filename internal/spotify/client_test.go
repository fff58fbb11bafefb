package spotify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeSpotify(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Profile(t *testing.T) {
	srv := fakeSpotify(t, map[string]string{
		"/me": `{"id":"spotify-123","display_name":"Ana","email":"ana@example.com"}`,
	})
	c := NewClient(srv.Client(), WithBaseURL(srv.URL))

	profile, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "spotify-123", profile.ID)
	assert.Equal(t, "Ana", profile.DisplayName)
	assert.Equal(t, "ana@example.com", profile.Email)
}

func TestClient_TopArtists(t *testing.T) {
	srv := fakeSpotify(t, map[string]string{
		"/me/top/artists": `{"items":[{"name":"Boards of Canada","genres":["idm","downtempo"]},{"name":"Aphex Twin","genres":["idm"]}]}`,
	})
	c := NewClient(srv.Client(), WithBaseURL(srv.URL))

	artists, err := c.TopArtists(context.Background(), RangeMediumTerm, 10)
	require.NoError(t, err)
	require.Len(t, artists, 2)
	assert.Equal(t, "Boards of Canada", artists[0].Name)
	assert.Equal(t, []string{"idm", "downtempo"}, artists[0].Genres)
}

func TestClient_TopTracks(t *testing.T) {
	srv := fakeSpotify(t, map[string]string{
		"/me/top/tracks": `{"items":[{"name":"Roygbiv","artists":[{"name":"Boards of Canada"}]}]}`,
	})
	c := NewClient(srv.Client(), WithBaseURL(srv.URL))

	tracks, err := c.TopTracks(context.Background(), RangeShortTerm, 5)
	require.NoError(t, err)
	require.Len(t, tracks, 1)
	assert.Equal(t, "Roygbiv", tracks[0].Name)
	assert.Equal(t, "Boards of Canada", tracks[0].Artists[0].Name)
}

func TestClient_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"status":429}}`))
	}))
	t.Cleanup(srv.Close)
	c := NewClient(srv.Client(), WithBaseURL(srv.URL))

	_, err := c.Profile(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
