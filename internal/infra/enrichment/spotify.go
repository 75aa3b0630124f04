package enrichment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	// DefaultSpotifyTokenURL is the client-credentials token endpoint
	DefaultSpotifyTokenURL = "https://accounts.spotify.com/api/token"

	// spotifySearchLimit is the number of tracks requested per search
	spotifySearchLimit = 10

	// spotifyPreferredImage is the smallest image width worth downloading
	spotifyPreferredImage = 300
)

// SpotifyClient searches the Spotify catalog for album covers. The bearer token
// is fetched on first use and reused until shortly before it expires.
type SpotifyClient struct {
	baseURL    string
	tokenURL   string
	httpClient *http.Client
	api        *spotify.Client
}

// SpotifyOption is a functional option for configuring the Spotify client.
type SpotifyOption func(*SpotifyClient)

// WithSpotifyBaseURL sets a custom API base URL (useful for testing).
func WithSpotifyBaseURL(url string) SpotifyOption {
	return func(c *SpotifyClient) {
		c.baseURL = url
	}
}

// WithSpotifyTokenURL sets a custom token endpoint (useful for testing).
func WithSpotifyTokenURL(url string) SpotifyOption {
	return func(c *SpotifyClient) {
		c.tokenURL = url
	}
}

// WithSpotifyHTTPClient sets the HTTP client used for token and API calls.
func WithSpotifyHTTPClient(client *http.Client) SpotifyOption {
	return func(c *SpotifyClient) {
		c.httpClient = client
	}
}

// NewSpotifyClient creates a Spotify catalog client. ctx scopes token refreshes
// and should live as long as the client.
func NewSpotifyClient(ctx context.Context, clientID, clientSecret string, opts ...SpotifyOption) (*SpotifyClient, error) {
	if clientID == "" || clientSecret == "" {
		return nil, ErrNotConfigured
	}

	c := &SpotifyClient{
		tokenURL:   DefaultSpotifyTokenURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}

	creds := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     c.tokenURL,
	}
	authed := creds.Client(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient))
	authed.Timeout = c.httpClient.Timeout

	var apiOpts []spotify.ClientOption
	if c.baseURL != "" {
		apiOpts = append(apiOpts, spotify.WithBaseURL(strings.TrimSuffix(c.baseURL, "/")+"/"))
	}
	c.api = spotify.New(authed, apiOpts...)
	return c, nil
}

// FindCover searches tracks by artist and title. The chosen album is the
// earliest release by a matching artist, ties going to singles, then albums,
// then compilations. The first result's album is returned as LastResortURL.
func (c *SpotifyClient) FindCover(ctx context.Context, artist, title string) (*Cover, error) {
	query := fmt.Sprintf("track:%s artist:%s", title, artist)

	log.Debug().
		Str("artist", artist).
		Str("title", title).
		Msg("Searching Spotify for album art")

	result, err := c.api.Search(ctx, query, spotify.SearchTypeTrack, spotify.Limit(spotifySearchLimit))
	if err != nil {
		return nil, classifySpotifyError(err)
	}
	if result.Tracks == nil || len(result.Tracks.Tracks) == 0 {
		return nil, ErrArtworkNotFound
	}

	albums := make([]spotify.SimpleAlbum, 0, len(result.Tracks.Tracks))
	for _, t := range result.Tracks.Tracks {
		albums = append(albums, t.Album)
	}

	cover := &Cover{Source: SourceSpotify}
	cover.LastResortURL = albumImage(albums[0].Images)
	if best, ok := bestSpotifyAlbum(albums, artist); ok {
		cover.URL = albumImage(best.Images)

		log.Debug().
			Str("album", best.Name).
			Str("type", best.AlbumType).
			Str("released", best.ReleaseDate).
			Msg("Selected Spotify album")
	}

	if cover.URL == "" && cover.LastResortURL == "" {
		return nil, ErrArtworkNotFound
	}
	return cover, nil
}

// bestSpotifyAlbum applies the artist/year/type tie-break. Albums without
// images are ignored.
func bestSpotifyAlbum(albums []spotify.SimpleAlbum, artist string) (spotify.SimpleAlbum, bool) {
	var best spotify.SimpleAlbum
	found := false
	bestYear, bestPrio := 0, 0

	for _, a := range albums {
		if len(a.Images) == 0 || !primaryArtistMatches(a.Artists, artist) {
			continue
		}
		year := releaseYear(a.ReleaseDate)
		prio := albumTypePriority(a.AlbumType)
		if !found || year < bestYear || (year == bestYear && prio < bestPrio) {
			best, bestYear, bestPrio, found = a, year, prio, true
		}
	}
	return best, found
}

// primaryArtistMatches compares want with the first credited artist only, so
// compilations and features led by someone else never match.
func primaryArtistMatches(artists []spotify.SimpleArtist, want string) bool {
	if len(artists) == 0 {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(artists[0].Name), strings.TrimSpace(want))
}

// albumTypePriority ranks single < album < compilation < anything else.
func albumTypePriority(albumType string) int {
	switch strings.ToLower(albumType) {
	case "single":
		return 0
	case "album":
		return 1
	case "compilation":
		return 2
	default:
		return 3
	}
}

// releaseYear parses the leading year of a release date. Unknown dates sort last.
func releaseYear(date string) int {
	if len(date) >= 4 {
		if y, err := strconv.Atoi(date[:4]); err == nil {
			return y
		}
	}
	return 9999
}

// albumImage returns the smallest image at least spotifyPreferredImage wide,
// or the first image when none is.
func albumImage(images []spotify.Image) string {
	if len(images) == 0 {
		return ""
	}
	pick := ""
	pickWidth := 0
	for _, img := range images {
		w := int(img.Width)
		if w >= spotifyPreferredImage && (pick == "" || w < pickWidth) {
			pick, pickWidth = img.URL, w
		}
	}
	if pick == "" {
		return images[0].URL
	}
	return pick
}

func classifySpotifyError(err error) error {
	var apiErr spotify.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Status == http.StatusTooManyRequests:
			return ErrRateLimited
		case apiErr.Status >= 500:
			return fmt.Errorf("%w: %v", ErrTemporaryFailure, err)
		}
	}
	return fmt.Errorf("spotify search: %w", err)
}
