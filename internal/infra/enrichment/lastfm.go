package enrichment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultLastFMBaseURL is the Last.fm API base URL
	DefaultLastFMBaseURL = "https://ws.audioscrobbler.com/2.0/"

	// DefaultLastFMRateLimit - Last.fm allows 5 requests per second
	DefaultLastFMRateLimit = 5
)

// LastFMClient looks up album images through track.getInfo.
type LastFMClient struct {
	baseURL    string
	apiKey     string
	userAgent  string
	httpClient *http.Client
	limiter    *rateLimiter
}

// LastFMOption is a functional option for configuring the Last.fm client.
type LastFMOption func(*LastFMClient)

// WithLastFMBaseURL sets a custom base URL (useful for testing).
func WithLastFMBaseURL(url string) LastFMOption {
	return func(c *LastFMClient) {
		c.baseURL = url
	}
}

// WithLastFMHTTPClient sets a custom HTTP client.
func WithLastFMHTTPClient(client *http.Client) LastFMOption {
	return func(c *LastFMClient) {
		c.httpClient = client
	}
}

// NewLastFMClient creates a Last.fm client.
func NewLastFMClient(apiKey string, opts ...LastFMOption) (*LastFMClient, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	c := &LastFMClient{
		baseURL:    DefaultLastFMBaseURL,
		apiKey:     apiKey,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    newRateLimiter(DefaultLastFMRateLimit),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LastFMTrackInfoResponse is the track.getInfo response.
type LastFMTrackInfoResponse struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
	Track   *struct {
		Name  string `json:"name"`
		Album *struct {
			Title string        `json:"title"`
			Image []LastFMImage `json:"image"`
		} `json:"album"`
	} `json:"track"`
}

// LastFMImage is one entry of an image list, smallest first.
type LastFMImage struct {
	URL  string `json:"#text"`
	Size string `json:"size"`
}

// lastFMTrackNotFound is the API error code for unknown tracks.
const lastFMTrackNotFound = 6

// FindCover returns the largest album image of the exactly matching track.
func (c *LastFMClient) FindCover(ctx context.Context, artist, title string) (*Cover, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("method", "track.getInfo")
	q.Set("api_key", c.apiKey)
	q.Set("artist", artist)
	q.Set("track", title)
	q.Set("autocorrect", "0")
	q.Set("format", "json")
	reqURL := c.baseURL + "?" + q.Encode()

	log.Debug().
		Str("artist", artist).
		Str("title", title).
		Msg("Fetching Last.fm track info")

	header := http.Header{}
	header.Set("User-Agent", c.userAgent)

	var resp LastFMTrackInfoResponse
	if err := getJSON(ctx, c.httpClient, "lastfm", reqURL, header, &resp); err != nil {
		return nil, err
	}

	switch {
	case resp.Error == lastFMTrackNotFound:
		return nil, ErrArtworkNotFound
	case resp.Error != 0:
		return nil, fmt.Errorf("lastfm error %d: %s", resp.Error, resp.Message)
	case resp.Track == nil || resp.Track.Album == nil:
		return nil, ErrArtworkNotFound
	}

	images := resp.Track.Album.Image
	for i := len(images) - 1; i >= 0; i-- {
		if images[i].URL != "" {
			return &Cover{URL: images[i].URL, Source: SourceLastFM}, nil
		}
	}
	return nil, ErrArtworkNotFound
}
