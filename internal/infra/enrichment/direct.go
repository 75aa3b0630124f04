package enrichment

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// DirectClient downloads images by URL.
type DirectClient struct {
	userAgent  string
	httpClient *http.Client
}

// DirectOption is a functional option for configuring the direct client.
type DirectOption func(*DirectClient)

// WithDirectHTTPClient sets a custom HTTP client.
func WithDirectHTTPClient(client *http.Client) DirectOption {
	return func(c *DirectClient) {
		c.httpClient = client
	}
}

// WithDirectUserAgent sets a custom User-Agent header.
func WithDirectUserAgent(ua string) DirectOption {
	return func(c *DirectClient) {
		c.userAgent = ua
	}
}

// NewDirectClient creates a new image download client.
func NewDirectClient(opts ...DirectOption) *DirectClient {
	c := &DirectClient{
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch downloads the image at imageURL.
func (c *DirectClient) Fetch(ctx context.Context, imageURL string) (*FetchResult, error) {
	if imageURL == "" {
		return nil, ErrArtworkNotFound
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "image/*")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if err := checkStatus("direct", resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrArtworkNotFound
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = detectMimeType(data)
	}

	log.Debug().
		Str("url", imageURL).
		Int("size", len(data)).
		Str("type", contentType).
		Msg("Downloaded image")

	return &FetchResult{
		Data:     data,
		MimeType: contentType,
		Source:   SourceDirect,
		URL:      imageURL,
	}, nil
}
