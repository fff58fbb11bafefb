package spotify

import (
	"context"
	"net/http"

	"golang.org/x/oauth2"
	spotifyoauth "golang.org/x/oauth2/spotify"

	"github.com/tunecard/tunecard/internal/config"
)

// Scopes requested at authorization time. user-top-read is what card
// generation actually needs; the rest identify the account.
var scopes = []string{"user-read-private", "user-read-email", "user-top-read"}

// Authenticator wraps the Spotify OAuth authorization-code flow.
type Authenticator struct {
	cfg *oauth2.Config
}

func NewAuthenticator(cfg config.SpotifyConfig) *Authenticator {
	return &Authenticator{
		cfg: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     spotifyoauth.Endpoint,
		},
	}
}

// AuthURL returns the authorize redirect URL carrying the state nonce.
func (a *Authenticator) AuthURL(state string) string {
	return a.cfg.AuthCodeURL(state)
}

// Exchange trades the callback code for a token pair.
func (a *Authenticator) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return a.cfg.Exchange(ctx, code)
}

// HTTPClient returns an http.Client that injects and auto-refreshes access
// tokens derived from the stored refresh token.
func (a *Authenticator) HTTPClient(ctx context.Context, refreshToken string) *http.Client {
	token := &oauth2.Token{RefreshToken: refreshToken}
	return a.cfg.Client(ctx, token)
}
