package spotify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

const defaultBaseURL = "https://api.spotify.com/v1"

// Client is a thin Spotify Web API client over a token-injecting http.Client.
type Client struct {
	http    *http.Client
	baseURL string
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the API base URL (tests point it at a fake server).
func WithBaseURL(base string) ClientOption {
	return func(c *Client) { c.baseURL = base }
}

func NewClient(httpClient *http.Client, opts ...ClientOption) *Client {
	c := &Client{http: httpClient, baseURL: defaultBaseURL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Profile fetches the authenticated user's profile.
func (c *Client) Profile(ctx context.Context) (*Profile, error) {
	var profile Profile
	if err := c.get(ctx, "/me", nil, &profile); err != nil {
		return nil, fmt.Errorf("fetching profile: %w", err)
	}
	return &profile, nil
}

// TopArtists fetches the user's top artists for the given time range.
func (c *Client) TopArtists(ctx context.Context, timeRange string, limit int) ([]Artist, error) {
	var resp topArtistsResponse
	q := url.Values{"time_range": {timeRange}, "limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/me/top/artists", q, &resp); err != nil {
		return nil, fmt.Errorf("fetching top artists: %w", err)
	}
	return resp.Items, nil
}

// TopTracks fetches the user's top tracks for the given time range.
func (c *Client) TopTracks(ctx context.Context, timeRange string, limit int) ([]Track, error) {
	var resp topTracksResponse
	q := url.Values{"time_range": {timeRange}, "limit": {strconv.Itoa(limit)}}
	if err := c.get(ctx, "/me/top/tracks", q, &resp); err != nil {
		return nil, fmt.Errorf("fetching top tracks: %w", err)
	}
	return resp.Items, nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out any) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("calling spotify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("spotify returned %d: %s", resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
