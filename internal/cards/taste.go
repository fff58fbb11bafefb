package cards

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/tunecard/tunecard/internal/auth"
	"github.com/tunecard/tunecard/internal/spotify"
	"github.com/tunecard/tunecard/internal/users"
)

const tasteItemLimit = 5

// TasteSource resolves a user's current listening profile.
type TasteSource interface {
	Taste(ctx context.Context, userID uuid.UUID) (*Taste, error)
}

// SpotifyTasteSource fetches the listening profile live from the Spotify
// API, authenticating with the user's stored refresh token.
type SpotifyTasteSource struct {
	users *users.Service
	enc   *auth.Encryptor
	sauth *spotify.Authenticator
	opts  []spotify.ClientOption
}

func NewSpotifyTasteSource(userSvc *users.Service, enc *auth.Encryptor, sauth *spotify.Authenticator, opts ...spotify.ClientOption) *SpotifyTasteSource {
	return &SpotifyTasteSource{users: userSvc, enc: enc, sauth: sauth, opts: opts}
}

func (s *SpotifyTasteSource) Taste(ctx context.Context, userID uuid.UUID) (*Taste, error) {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("user %s not found", userID)
	}

	refreshToken, err := s.enc.Decrypt(user.EncryptedRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("decrypting refresh token: %w", err)
	}

	client := spotify.NewClient(s.sauth.HTTPClient(ctx, refreshToken), s.opts...)

	artists, err := client.TopArtists(ctx, spotify.RangeMediumTerm, tasteItemLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching top artists: %w", err)
	}
	tracks, err := client.TopTracks(ctx, spotify.RangeMediumTerm, tasteItemLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching top tracks: %w", err)
	}

	taste := &Taste{}
	seenGenres := make(map[string]bool)
	for _, a := range artists {
		taste.Artists = append(taste.Artists, a.Name)
		for _, g := range a.Genres {
			if !seenGenres[g] && len(taste.Genres) < tasteItemLimit {
				seenGenres[g] = true
				taste.Genres = append(taste.Genres, g)
			}
		}
	}
	for _, t := range tracks {
		taste.Tracks = append(taste.Tracks, t.Name)
	}
	return taste, nil
}

// BuildPrompt turns a listening profile into an image generation prompt.
// The style string, when present, steers the visual treatment.
func BuildPrompt(taste *Taste, style string) string {
	var b strings.Builder
	b.WriteString("A stylized music identity card portrait")
	if style != "" {
		b.WriteString(" in ")
		b.WriteString(style)
		b.WriteString(" style")
	}
	if len(taste.Genres) > 0 {
		b.WriteString(", inspired by ")
		b.WriteString(strings.Join(taste.Genres, ", "))
		b.WriteString(" music")
	}
	if len(taste.Artists) > 0 {
		b.WriteString(", evoking the mood of ")
		b.WriteString(strings.Join(taste.Artists, ", "))
	}
	b.WriteString(". Vivid colors, high detail, no text.")
	return b.String()
}
