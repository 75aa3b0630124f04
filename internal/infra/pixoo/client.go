// Package pixoo sends artwork to 64x64 pixel displays over their HTTP JSON API.
package pixoo

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-pixel/internal/domain/artwork"
)

const (
	// DefaultTimeout for device requests
	DefaultTimeout = 5 * time.Second

	// DefaultFrameSpeed is the per-frame delay of animations
	DefaultFrameSpeed = 1000 * time.Millisecond

	commandSendGif  = "Draw/SendHttpGif"
	commandResetGif = "Draw/ResetHttpGifId"

	maxResponseSize = 64 * 1024
)

var (
	// ErrDevice is returned when the device answers with a non-zero error code.
	ErrDevice = errors.New("device error")

	// ErrUnknownDevice is returned when rendering to an unregistered device.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrNoFrames is returned when an animation has no frames.
	ErrNoFrames = errors.New("no frames")
)

// GifCommand uploads one frame of an animation.
type GifCommand struct {
	Command   string `json:"Command"`
	PicNum    int    `json:"PicNum"`
	PicWidth  int    `json:"PicWidth"`
	PicOffset int    `json:"PicOffset"`
	PicID     int    `json:"PicID"`
	PicSpeed  int    `json:"PicSpeed"`
	PicData   string `json:"PicData"`
}

type resetCommand struct {
	Command string `json:"Command"`
}

type deviceResponse struct {
	ErrorCode int `json:"error_code"`
}

// Client talks to one display. Picture IDs restart after every reset.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu         sync.Mutex
	picID      int
	needsReset bool
}

// Option is a functional option for configuring the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// NewClient creates a client for the device at address (host[:port] or URL).
func NewClient(address string, opts ...Option) *Client {
	base := strings.TrimSuffix(address, "/")
	if !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		base = "http://" + base
	}
	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		needsReset: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SendImage shows a single still image.
func (c *Client) SendImage(ctx context.Context, art *artwork.Artifact) error {
	data, err := encodedPixels(art)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.needsReset {
		if err := c.resetLocked(ctx); err != nil {
			return err
		}
	}

	c.picID++
	return c.post(ctx, GifCommand{
		Command:  commandSendGif,
		PicNum:   1,
		PicWidth: artwork.OutputSize,
		PicID:    c.picID,
		PicSpeed: int(DefaultFrameSpeed / time.Millisecond),
		PicData:  data,
	})
}

// SendFrames shows an animation. The next still image is preceded by a reset.
func (c *Client) SendFrames(ctx context.Context, frames []*artwork.Artifact, speed time.Duration) error {
	if len(frames) == 0 {
		return ErrNoFrames
	}
	if speed <= 0 {
		speed = DefaultFrameSpeed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.resetLocked(ctx); err != nil {
		return err
	}
	c.needsReset = true

	c.picID++
	for i, frame := range frames {
		data, err := encodedPixels(frame)
		if err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
		if err := c.post(ctx, GifCommand{
			Command:   commandSendGif,
			PicNum:    len(frames),
			PicWidth:  artwork.OutputSize,
			PicOffset: i,
			PicID:     c.picID,
			PicSpeed:  int(speed / time.Millisecond),
			PicData:   data,
		}); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}

func (c *Client) resetLocked(ctx context.Context) error {
	if err := c.post(ctx, resetCommand{Command: commandResetGif}); err != nil {
		return fmt.Errorf("reset gif id: %w", err)
	}
	c.picID = 0
	c.needsReset = false
	return nil
}

func (c *Client) post(ctx context.Context, cmd any) error {
	body, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/post", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	var out deviceResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	if out.ErrorCode != 0 {
		return fmt.Errorf("%w: error_code %d", ErrDevice, out.ErrorCode)
	}

	log.Debug().Str("device", c.baseURL).RawJSON("response", raw).Msg("Device command sent")
	return nil
}

// encodedPixels returns the base64 RGB payload of an artifact.
func encodedPixels(art *artwork.Artifact) (string, error) {
	if art == nil {
		return "", fmt.Errorf("nil artifact")
	}
	if art.Encoded != "" {
		return art.Encoded, nil
	}
	if len(art.Pixels) != artwork.PixelBytes {
		return "", fmt.Errorf("artifact has %d pixel bytes, want %d", len(art.Pixels), artwork.PixelBytes)
	}
	return base64.StdEncoding.EncodeToString(art.Pixels), nil
}

// Registry routes renders to the client of each configured device.
type Registry struct {
	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]*Client)}
}

// Add registers the client for deviceID, replacing any previous one.
func (r *Registry) Add(deviceID string, client *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[deviceID] = client
}

// Client returns the client registered for deviceID.
func (r *Registry) Client(deviceID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[deviceID]
	return c, ok
}

// Render sends art to the device as a still image.
func (r *Registry) Render(ctx context.Context, deviceID string, art *artwork.Artifact) error {
	c, ok := r.Client(deviceID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownDevice, deviceID)
	}
	return c.SendImage(ctx, art)
}
