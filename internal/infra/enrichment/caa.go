package enrichment

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultCAABaseURL is the Cover Art Archive API base URL
	DefaultCAABaseURL = "https://coverartarchive.org"

	// DefaultRateLimit is 1 request per second (MusicBrainz guideline)
	DefaultRateLimit = 1

	// CAAThumbnailSize is the thumbnail key picked from the listing
	CAAThumbnailSize = "250"
)

// CAAClient reads release cover listings from the Cover Art Archive.
type CAAClient struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rateLimiter
}

// CAAOption is a functional option for configuring the CAA client
type CAAOption func(*CAAClient)

// WithBaseURL sets a custom base URL (useful for testing)
func WithBaseURL(url string) CAAOption {
	return func(c *CAAClient) {
		c.baseURL = url
	}
}

// WithUserAgent sets a custom User-Agent header
func WithUserAgent(ua string) CAAOption {
	return func(c *CAAClient) {
		c.userAgent = ua
	}
}

// WithRateLimit sets the rate limit in requests per second
func WithRateLimit(rps int) CAAOption {
	return func(c *CAAClient) {
		c.limiter = newRateLimiter(rps)
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) CAAOption {
	return func(c *CAAClient) {
		c.httpClient = client
	}
}

// NewCAAClient creates a new Cover Art Archive client
func NewCAAClient(opts ...CAAOption) *CAAClient {
	c := &CAAClient{
		baseURL:   DefaultCAABaseURL,
		userAgent: DefaultUserAgent,
		httpClient: &http.Client{
			Timeout: DefaultMBTimeout,
		},
		limiter: newRateLimiter(DefaultRateLimit),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// CAAListing is the release image listing.
type CAAListing struct {
	Images []CAAImage `json:"images"`
}

// CAAImage is one listed image.
type CAAImage struct {
	Front      bool              `json:"front"`
	Types      []string          `json:"types"`
	Image      string            `json:"image"`
	Thumbnails map[string]string `json:"thumbnails"`
}

// FrontThumbnailURL returns the 250px thumbnail of the first front image of a release.
func (c *CAAClient) FrontThumbnailURL(ctx context.Context, mbid string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := fmt.Sprintf("%s/release/%s", c.baseURL, mbid)

	log.Debug().
		Str("mbid", mbid).
		Str("url", reqURL).
		Msg("Fetching CAA listing")

	header := http.Header{}
	header.Set("User-Agent", c.userAgent)

	var listing CAAListing
	if err := getJSON(ctx, c.httpClient, "caa", reqURL, header, &listing); err != nil {
		return "", err
	}

	for _, img := range listing.Images {
		if !img.Front {
			continue
		}
		for _, key := range []string{CAAThumbnailSize, "small", "500", "large"} {
			if u := img.Thumbnails[key]; u != "" {
				return u, nil
			}
		}
		if img.Image != "" {
			return img.Image, nil
		}
	}
	return "", ErrArtworkNotFound
}

// ReleaseCoverFinder chains a MusicBrainz recording search with a CAA listing.
type ReleaseCoverFinder struct {
	mb  *MusicBrainzClient
	caa *CAAClient
}

// NewReleaseCoverFinder creates a finder over the given clients.
func NewReleaseCoverFinder(mb *MusicBrainzClient, caa *CAAClient) *ReleaseCoverFinder {
	return &ReleaseCoverFinder{mb: mb, caa: caa}
}

// FindCover returns the front cover thumbnail of the recording's first release.
func (f *ReleaseCoverFinder) FindCover(ctx context.Context, artist, title string) (*Cover, error) {
	mbid, err := f.mb.SearchRecordingRelease(ctx, artist, title)
	if err != nil {
		return nil, err
	}
	u, err := f.caa.FrontThumbnailURL(ctx, mbid)
	if err != nil {
		return nil, err
	}
	return &Cover{URL: u, Source: SourceCoverArtArchive}, nil
}
