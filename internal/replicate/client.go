package replicate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tunecard/tunecard/internal/config"
)

const defaultBaseURL = "https://api.replicate.com/v1"

// Terminal prediction statuses.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
	StatusCanceled  = "canceled"
)

// Prediction is the subset of Replicate's prediction resource we consume.
type Prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  string          `json:"error"`
}

// Client drives the Replicate prediction API: create, then poll until the
// prediction reaches a terminal status.
type Client struct {
	http         *http.Client
	baseURL      string
	token        string
	model        string
	pollInterval time.Duration
	pollTimeout  time.Duration
}

type ClientOption func(*Client)

// WithBaseURL overrides the API base URL (tests point it at a fake server).
func WithBaseURL(base string) ClientOption {
	return func(c *Client) { c.baseURL = base }
}

func NewClient(cfg config.ReplicateConfig, opts ...ClientOption) *Client {
	c := &Client{
		http:         &http.Client{Timeout: 30 * time.Second},
		baseURL:      defaultBaseURL,
		token:        cfg.APIToken,
		model:        cfg.ModelVersion,
		pollInterval: cfg.PollInterval,
		pollTimeout:  cfg.PollTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate submits a prompt and blocks until the prediction finishes,
// returning the first output image URL. Transient API errors on submission
// are retried with exponential backoff; a failed prediction is not.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	var pred *Prediction
	err := withBackoff(ctx, 3, 500*time.Millisecond, func() error {
		var createErr error
		pred, createErr = c.create(ctx, prompt)
		return createErr
	})
	if err != nil {
		return "", fmt.Errorf("creating prediction: %w", err)
	}

	pred, err = c.poll(ctx, pred)
	if err != nil {
		return "", err
	}

	if pred.Status != StatusSucceeded {
		return "", fmt.Errorf("prediction %s ended %s: %s", pred.ID, pred.Status, pred.Error)
	}

	url, err := firstOutputURL(pred.Output)
	if err != nil {
		return "", fmt.Errorf("prediction %s: %w", pred.ID, err)
	}
	return url, nil
}

func (c *Client) create(ctx context.Context, prompt string) (*Prediction, error) {
	payload, err := json.Marshal(map[string]any{
		"version": c.model,
		"input":   map[string]string{"prompt": prompt},
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling prediction request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/predictions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *Client) get(ctx context.Context, id string) (*Prediction, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/predictions/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.token)

	return c.do(req)
}

func (c *Client) do(req *http.Request) (*Prediction, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &retryable{err: fmt.Errorf("calling replicate: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &retryable{err: fmt.Errorf("replicate returned %d: %s", resp.StatusCode, body)}
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("replicate returned %d: %s", resp.StatusCode, body)
	}

	var pred Prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("decoding prediction: %w", err)
	}
	return &pred, nil
}

func (c *Client) poll(ctx context.Context, pred *Prediction) (*Prediction, error) {
	deadline := time.Now().Add(c.pollTimeout)

	for {
		switch pred.Status {
		case StatusSucceeded, StatusFailed, StatusCanceled:
			return pred, nil
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("prediction %s timed out after %s", pred.ID, c.pollTimeout)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.pollInterval):
		}

		next, err := c.get(ctx, pred.ID)
		if err != nil {
			return nil, fmt.Errorf("polling prediction %s: %w", pred.ID, err)
		}
		pred = next
	}
}

// firstOutputURL handles both output shapes Replicate models produce: a
// plain string or an array of URLs.
func firstOutputURL(output json.RawMessage) (string, error) {
	if len(output) == 0 {
		return "", fmt.Errorf("prediction has no output")
	}

	var single string
	if err := json.Unmarshal(output, &single); err == nil && single != "" {
		return single, nil
	}

	var many []string
	if err := json.Unmarshal(output, &many); err == nil && len(many) > 0 {
		return many[0], nil
	}

	return "", fmt.Errorf("unrecognized output shape: %s", output)
}
