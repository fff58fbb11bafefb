package replicate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunecard/tunecard/internal/config"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(config.ReplicateConfig{
		APIToken:     "test-token",
		ModelVersion: "test-model",
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  500 * time.Millisecond,
	}, WithBaseURL(srv.URL))
}

func TestGenerate_Succeeds(t *testing.T) {
	var polls atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /predictions", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Token test-token", r.Header.Get("Authorization"))

		var body struct {
			Version string            `json:"version"`
			Input   map[string]string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "test-model", body.Version)
		assert.Equal(t, "neon fox portrait", body.Input["prompt"])

		json.NewEncoder(w).Encode(Prediction{ID: "p1", Status: "processing"})
	})
	mux.HandleFunc("GET /predictions/p1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) < 2 {
			json.NewEncoder(w).Encode(Prediction{ID: "p1", Status: "processing"})
			return
		}
		json.NewEncoder(w).Encode(Prediction{
			ID:     "p1",
			Status: StatusSucceeded,
			Output: json.RawMessage(`["https://cdn.example.com/out.png"]`),
		})
	})

	url, err := testClient(t, mux).Generate(context.Background(), "neon fox portrait")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/out.png", url)
	assert.GreaterOrEqual(t, polls.Load(), int32(2))
}

func TestGenerate_FailedPrediction(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /predictions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Prediction{ID: "p2", Status: StatusFailed, Error: "NSFW content detected"})
	})

	_, err := testClient(t, mux).Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
	assert.Contains(t, err.Error(), "NSFW content detected")
}

func TestGenerate_RetriesTransientCreateErrors(t *testing.T) {
	var attempts atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /predictions", func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(Prediction{
			ID:     "p3",
			Status: StatusSucceeded,
			Output: json.RawMessage(`"https://cdn.example.com/single.png"`),
		})
	})

	url, err := testClient(t, mux).Generate(context.Background(), "prompt")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/single.png", url)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestGenerate_DoesNotRetryClientErrors(t *testing.T) {
	var attempts atomic.Int32

	mux := http.NewServeMux()
	mux.HandleFunc("POST /predictions", func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"detail":"invalid version"}`))
	})

	_, err := testClient(t, mux).Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.Equal(t, int32(1), attempts.Load())
}

func TestGenerate_PollTimeout(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /predictions", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Prediction{ID: "p4", Status: "starting"})
	})
	mux.HandleFunc("GET /predictions/p4", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(Prediction{ID: "p4", Status: "processing"})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	client := NewClient(config.ReplicateConfig{
		APIToken:     "t",
		ModelVersion: "m",
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  30 * time.Millisecond,
	}, WithBaseURL(srv.URL))

	_, err := client.Generate(context.Background(), "prompt")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
}

func TestFirstOutputURL(t *testing.T) {
	url, err := firstOutputURL(json.RawMessage(`"https://x/a.png"`))
	require.NoError(t, err)
	assert.Equal(t, "https://x/a.png", url)

	url, err = firstOutputURL(json.RawMessage(`["https://x/b.png","https://x/c.png"]`))
	require.NoError(t, err)
	assert.Equal(t, "https://x/b.png", url)

	_, err = firstOutputURL(nil)
	assert.Error(t, err)

	_, err = firstOutputURL(json.RawMessage(`{"weird":true}`))
	assert.Error(t, err)
}
