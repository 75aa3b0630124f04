package enrichment

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultDiscogsBaseURL is the Discogs API base URL
	DefaultDiscogsBaseURL = "https://api.discogs.com"

	// DefaultDiscogsRateLimit stays under the authenticated 60 requests/minute
	DefaultDiscogsRateLimit = 1
)

// DiscogsClient searches the Discogs database for release covers.
type DiscogsClient struct {
	baseURL    string
	token      string
	userAgent  string
	httpClient *http.Client
	limiter    *rateLimiter
}

// DiscogsOption is a functional option for configuring the Discogs client.
type DiscogsOption func(*DiscogsClient)

// WithDiscogsBaseURL sets a custom base URL (useful for testing).
func WithDiscogsBaseURL(url string) DiscogsOption {
	return func(c *DiscogsClient) {
		c.baseURL = url
	}
}

// WithDiscogsHTTPClient sets a custom HTTP client.
func WithDiscogsHTTPClient(client *http.Client) DiscogsOption {
	return func(c *DiscogsClient) {
		c.httpClient = client
	}
}

// NewDiscogsClient creates a Discogs client authenticated with a personal token.
func NewDiscogsClient(token string, opts ...DiscogsOption) (*DiscogsClient, error) {
	if token == "" {
		return nil, ErrNotConfigured
	}
	c := &DiscogsClient{
		baseURL:    DefaultDiscogsBaseURL,
		token:      token,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		limiter:    newRateLimiter(DefaultDiscogsRateLimit),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// DiscogsSearchResponse is the database search response.
type DiscogsSearchResponse struct {
	Results []DiscogsResult `json:"results"`
}

// DiscogsResult is one search hit.
type DiscogsResult struct {
	ID         int    `json:"id"`
	Title      string `json:"title"`
	Year       string `json:"year"`
	MasterID   int    `json:"master_id"`
	CoverImage string `json:"cover_image"`
	Thumb      string `json:"thumb"`
}

// FindCover searches releases by artist and track and picks the earliest one,
// preferring results that belong to a master release when years tie.
func (c *DiscogsClient) FindCover(ctx context.Context, artist, title string) (*Cover, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	q := url.Values{}
	q.Set("artist", artist)
	q.Set("track", title)
	q.Set("type", "release")
	q.Set("per_page", "25")
	reqURL := fmt.Sprintf("%s/database/search?%s", c.baseURL, q.Encode())

	log.Debug().
		Str("artist", artist).
		Str("title", title).
		Msg("Searching Discogs for album art")

	header := http.Header{}
	header.Set("User-Agent", c.userAgent)
	header.Set("Authorization", "Discogs token="+c.token)

	var resp DiscogsSearchResponse
	if err := getJSON(ctx, c.httpClient, "discogs", reqURL, header, &resp); err != nil {
		return nil, err
	}

	best, ok := earliestDiscogsResult(resp.Results)
	if !ok {
		return nil, ErrArtworkNotFound
	}

	log.Debug().
		Int("id", best.ID).
		Str("title", best.Title).
		Str("year", best.Year).
		Msg("Selected Discogs release")

	return &Cover{URL: best.CoverImage, Source: SourceDiscogs}, nil
}

func earliestDiscogsResult(results []DiscogsResult) (DiscogsResult, bool) {
	var best DiscogsResult
	found := false
	bestYear := 0

	for _, r := range results {
		if !hasDiscogsCover(r.CoverImage) {
			continue
		}
		year := discogsYear(r.Year)
		switch {
		case !found, year < bestYear:
		case year == bestYear && best.MasterID == 0 && r.MasterID != 0:
		default:
			continue
		}
		best, bestYear, found = r, year, true
	}
	return best, found
}

// hasDiscogsCover rejects empty covers and the spacer placeholder.
func hasDiscogsCover(u string) bool {
	return u != "" && !strings.HasSuffix(u, "spacer.gif")
}

func discogsYear(s string) int {
	if y, err := strconv.Atoi(strings.TrimSpace(s)); err == nil && y > 0 {
		return y
	}
	return 9999
}
