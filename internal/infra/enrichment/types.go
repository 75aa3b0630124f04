// Package enrichment provides HTTP clients for the album art providers.
package enrichment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-pixel/internal/version"
)

// Common errors
var (
	// ErrArtworkNotFound indicates artwork was not found (permanent failure)
	ErrArtworkNotFound = errors.New("artwork not found")

	// ErrTemporaryFailure indicates a temporary failure (should retry)
	ErrTemporaryFailure = errors.New("temporary failure")

	// ErrRateLimited indicates rate limit was exceeded
	ErrRateLimited = errors.New("rate limited")

	// ErrNotConfigured indicates the provider lacks credentials
	ErrNotConfigured = errors.New("provider not configured")
)

const (
	// DefaultTimeout for HTTP requests
	DefaultTimeout = 30 * time.Second

	// MaxImageSize is the maximum image size to download (10MB)
	MaxImageSize = 10 * 1024 * 1024

	// maxJSONSize bounds provider API responses
	maxJSONSize = 4 * 1024 * 1024
)

// DefaultUserAgent identifies the service to provider APIs.
var DefaultUserAgent = version.UserAgent()

// Source indicates where the artwork was fetched from
type Source string

const (
	SourceDirect          Source = "direct"
	SourceSpotify         Source = "spotify"
	SourceDiscogs         Source = "discogs"
	SourceLastFM          Source = "lastfm"
	SourceMusicBrainz     Source = "musicbrainz"
	SourceCoverArtArchive Source = "cover_art_archive"
	SourceAI              Source = "ai"
)

// FetchResult contains downloaded image bytes
type FetchResult struct {
	Data     []byte
	MimeType string
	Source   Source
	URL      string
}

// Cover is a catalog lookup result. URL is the best match; LastResortURL is a
// lower-confidence candidate the caller may try after every other source.
type Cover struct {
	URL           string
	LastResortURL string
	Source        Source
}

// IsPermanentError returns true if the error indicates a permanent failure
func IsPermanentError(err error) bool {
	return errors.Is(err, ErrArtworkNotFound) || errors.Is(err, ErrNotConfigured)
}

// IsTemporaryError returns true if the error indicates a temporary failure
func IsTemporaryError(err error) bool {
	return errors.Is(err, ErrTemporaryFailure) || errors.Is(err, ErrRateLimited)
}

// checkStatus maps provider HTTP status codes onto the sentinel errors.
func checkStatus(provider string, resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return ErrArtworkNotFound
	case http.StatusTooManyRequests:
		log.Warn().Str("provider", provider).Msg("Rate limit exceeded")
		return ErrRateLimited
	case http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusGatewayTimeout:
		log.Warn().Str("provider", provider).Int("status", resp.StatusCode).Msg("Temporary provider error")
		return ErrTemporaryFailure
	default:
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
}

// getJSON performs a GET and decodes the JSON body into out.
func getJSON(ctx context.Context, hc *http.Client, provider, reqURL string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(provider, resp); err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// detectMimeType detects the MIME type from image data
func detectMimeType(data []byte) string {
	if len(data) < 4 {
		return "application/octet-stream"
	}

	switch {
	case data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF:
		return "image/jpeg"
	case data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47:
		return "image/png"
	case data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46:
		return "image/gif"
	case data[0] == 'B' && data[1] == 'M':
		return "image/bmp"
	case data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46:
		if len(data) >= 12 && data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
			return "image/webp"
		}
	}

	return "application/octet-stream"
}

// rateLimiter spaces requests at a fixed interval
type rateLimiter struct {
	mu          sync.Mutex
	interval    time.Duration
	lastRequest time.Time
}

func newRateLimiter(requestsPerSecond int) *rateLimiter {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 1
	}
	return &rateLimiter{
		interval: time.Second / time.Duration(requestsPerSecond),
	}
}

// Wait blocks until a request can be made
func (r *rateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	nextAllowed := r.lastRequest.Add(r.interval)

	if now.Before(nextAllowed) {
		timer := time.NewTimer(nextAllowed.Sub(now))
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	r.lastRequest = time.Now()
	return nil
}
