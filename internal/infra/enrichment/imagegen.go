package enrichment

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	// DefaultImageGenBaseURL is the Pollinations image endpoint
	DefaultImageGenBaseURL = "https://image.pollinations.ai"

	ModelFlux  = "flux"
	ModelTurbo = "turbo"

	// imageGenSize is the requested square size; the engine downsizes anyway
	imageGenSize = 512
)

// DefaultPromptTemplates are the prompt styles picked at random. %[1]s is the
// artist and %[2]s the title.
var DefaultPromptTemplates = []string{
	"album cover art for the song %[2]s by %[1]s, bold colors, minimalist",
	"retro pixel art illustration inspired by %[2]s by %[1]s",
	"abstract painting evoking the mood of %[2]s by %[1]s, vivid palette",
	"surreal dreamlike scene for %[2]s by %[1]s, high contrast",
	"vintage vinyl record sleeve design for %[1]s - %[2]s",
	"neon synthwave poster for %[2]s by %[1]s",
}

// ImageGenClient generates cover images from a text prompt.
type ImageGenClient struct {
	baseURL    string
	model      string
	templates  []string
	userAgent  string
	httpClient *http.Client
}

// ImageGenOption is a functional option for configuring the generator.
type ImageGenOption func(*ImageGenClient)

// WithImageGenBaseURL sets a custom base URL (useful for testing).
func WithImageGenBaseURL(url string) ImageGenOption {
	return func(c *ImageGenClient) {
		c.baseURL = url
	}
}

// WithImageGenHTTPClient sets a custom HTTP client.
func WithImageGenHTTPClient(client *http.Client) ImageGenOption {
	return func(c *ImageGenClient) {
		c.httpClient = client
	}
}

// WithPromptTemplates replaces the prompt templates.
func WithPromptTemplates(templates []string) ImageGenOption {
	return func(c *ImageGenClient) {
		c.templates = templates
	}
}

// NewImageGenClient creates a generator. Unsupported models fall back to flux.
func NewImageGenClient(model string, opts ...ImageGenOption) *ImageGenClient {
	if model != ModelFlux && model != ModelTurbo {
		model = ModelFlux
	}
	c := &ImageGenClient{
		baseURL:    DefaultImageGenBaseURL,
		model:      model,
		templates:  DefaultPromptTemplates,
		userAgent:  DefaultUserAgent,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Model returns the configured model name.
func (c *ImageGenClient) Model() string { return c.model }

// Prompt renders a random template for artist and title.
func (c *ImageGenClient) Prompt(artist, title string) string {
	if len(c.templates) == 0 {
		return fmt.Sprintf("%s - %s", artist, title)
	}
	tmpl := c.templates[rand.IntN(len(c.templates))]
	return fmt.Sprintf(tmpl, artist, title)
}

// Generate requests an image for artist and title.
func (c *ImageGenClient) Generate(ctx context.Context, artist, title string) (*FetchResult, error) {
	if strings.TrimSpace(artist) == "" && strings.TrimSpace(title) == "" {
		return nil, ErrArtworkNotFound
	}

	prompt := c.Prompt(artist, title)
	q := url.Values{}
	q.Set("model", c.model)
	q.Set("width", fmt.Sprint(imageGenSize))
	q.Set("height", fmt.Sprint(imageGenSize))
	q.Set("nologo", "true")
	reqURL := fmt.Sprintf("%s/prompt/%s?%s", strings.TrimSuffix(c.baseURL, "/"), url.PathEscape(prompt), q.Encode())

	log.Debug().
		Str("model", c.model).
		Str("prompt", prompt).
		Msg("Generating AI artwork")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
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

	if err := checkStatus("ai", resp); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxImageSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrArtworkNotFound
	}

	return &FetchResult{
		Data:     data,
		MimeType: detectMimeType(data),
		Source:   SourceAI,
		URL:      reqURL,
	}, nil
}
