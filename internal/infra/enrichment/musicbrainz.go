package enrichment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultMBBaseURL is the MusicBrainz API base URL
	DefaultMBBaseURL = "https://musicbrainz.org/ws/2"

	// DefaultMBRateLimit is 1 request per second (MusicBrainz guideline)
	DefaultMBRateLimit = 1

	// DefaultMBTimeout for HTTP requests
	DefaultMBTimeout = 10 * time.Second
)

// MusicBrainzClient searches recordings to find their release MBIDs.
type MusicBrainzClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rateLimiter
}

// MBOption is a functional option for configuring the MusicBrainz client.
type MBOption func(*MusicBrainzClient)

// WithMBBaseURL sets a custom base URL (useful for testing).
func WithMBBaseURL(url string) MBOption {
	return func(c *MusicBrainzClient) {
		c.baseURL = url
	}
}

// WithMBUserAgent sets a custom User-Agent header.
func WithMBUserAgent(ua string) MBOption {
	return func(c *MusicBrainzClient) {
		c.userAgent = ua
	}
}

// WithMBHTTPClient sets a custom HTTP client.
func WithMBHTTPClient(client *http.Client) MBOption {
	return func(c *MusicBrainzClient) {
		c.httpClient = client
	}
}

// WithMBRateLimit sets the rate limit in requests per second.
func WithMBRateLimit(rps int) MBOption {
	return func(c *MusicBrainzClient) {
		c.limiter = newRateLimiter(rps)
	}
}

// NewMusicBrainzClient creates a new MusicBrainz API client.
func NewMusicBrainzClient(opts ...MBOption) *MusicBrainzClient {
	c := &MusicBrainzClient{
		baseURL:   DefaultMBBaseURL,
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: DefaultMBTimeout,
		},
		limiter: newRateLimiter(DefaultMBRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// MBRecording is a recording search hit.
type MBRecording struct {
	ID       string      `json:"id"`
	Title    string      `json:"title"`
	Score    int         `json:"score"`
	Releases []MBRelease `json:"releases"`
}

// MBRelease is a release a recording appears on.
type MBRelease struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// MBRecordingSearchResponse is the recording search response.
type MBRecordingSearchResponse struct {
	Recordings []MBRecording `json:"recordings"`
	Count      int           `json:"count"`
}

// SearchRecordingRelease returns the first release MBID of the best recording
// matching artist and title.
func (c *MusicBrainzClient) SearchRecordingRelease(ctx context.Context, artist, title string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	// Lucene syntax: artist:"Artist" AND recording:"Title"
	query := fmt.Sprintf(`artist:"%s" AND recording:"%s"`, escapeQuery(artist), escapeQuery(title))
	reqURL := fmt.Sprintf("%s/recording?query=%s&fmt=json&limit=5", c.baseURL, url.QueryEscape(query))

	log.Debug().
		Str("artist", artist).
		Str("title", title).
		Msg("Searching MusicBrainz for recording")

	header := http.Header{}
	header.Set("User-Agent", c.userAgent)

	var resp MBRecordingSearchResponse
	if err := getJSON(ctx, c.httpClient, "musicbrainz", reqURL, header, &resp); err != nil {
		return "", err
	}

	for _, rec := range resp.Recordings {
		if len(rec.Releases) > 0 && rec.Releases[0].ID != "" {
			log.Debug().
				Str("recording", rec.ID).
				Str("release", rec.Releases[0].ID).
				Int("score", rec.Score).
				Msg("Found MusicBrainz release")
			return rec.Releases[0].ID, nil
		}
	}
	return "", ErrArtworkNotFound
}

// escapeQuery escapes special characters in Lucene query.
func escapeQuery(s string) string {
	replacer := strings.NewReplacer(
		`\`, `\\`,
		`"`, `\"`,
		`+`, `\+`,
		`-`, `\-`,
		`!`, `\!`,
		`(`, `\(`,
		`)`, `\)`,
		`{`, `\{`,
		`}`, `\}`,
		`[`, `\[`,
		`]`, `\]`,
		`^`, `\^`,
		`~`, `\~`,
		`*`, `\*`,
		`?`, `\?`,
		`:`, `\:`,
		`/`, `\/`,
	)
	return replacer.Replace(s)
}
