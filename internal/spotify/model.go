package spotify

// Profile is the authenticated user's Spotify profile.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

// Artist is one entry of a top-artists listing.
type Artist struct {
	Name   string   `json:"name"`
	Genres []string `json:"genres"`
}

// Track is one entry of a top-tracks listing.
type Track struct {
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
}

type topArtistsResponse struct {
	Items []Artist `json:"items"`
}

type topTracksResponse struct {
	Items []Track `json:"items"`
}

// Valid Spotify time_range values.
const (
	RangeShortTerm  = "short_term"
	RangeMediumTerm = "medium_term"
	RangeLongTerm   = "long_term"
)
