// Package artwork turns now-playing metadata into 64x64 display artifacts.
package artwork

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// OutputSize is the side of every artifact in pixels.
const OutputSize = 64

// PixelBytes is the length of an artifact's RGB buffer.
const PixelBytes = OutputSize * OutputSize * 3

// MaxSourcePixels bounds the declared canvas of a source image. Decoding
// allocates 4 bytes per pixel before any resizing happens.
const MaxSourcePixels = 25_000_000

var (
	// ErrNoArtwork is returned when a source has no usable image.
	ErrNoArtwork = errors.New("no artwork found")
	// ErrDecode is returned when image bytes cannot be decoded.
	ErrDecode = errors.New("image decode failed")
	// ErrDegenerate is returned for images with no pixels or no colors.
	ErrDegenerate = errors.New("degenerate image")
	// ErrTooLarge is returned for images whose declared size exceeds MaxSourcePixels.
	ErrTooLarge = errors.New("image too large")
)

// TrackKey is the cache identity of a resolution result. Empty keys bypass the cache.
type TrackKey string

// KeyFor derives the cache key from the album name.
func KeyFor(desc MediaDescriptor) TrackKey {
	return TrackKey(strings.TrimSpace(desc.Album))
}

// Flags carries per-event playback modes.
type Flags struct {
	IsRadio      bool `json:"radio"`
	IsTV         bool `json:"tv"`
	RadioHasLogo bool `json:"radioLogo"`
	ForceAIOnly  bool `json:"forceAi"`
	Slideshow    bool `json:"slideshow"`
}

// MediaDescriptor is an immutable snapshot of the currently playing media.
type MediaDescriptor struct {
	Artist  string `json:"artist"`
	Title   string `json:"title"`
	Album   string `json:"album"`
	ArtRef  string `json:"art"`
	Station string `json:"station,omitempty"`
	Source  string `json:"source,omitempty"`
	State   string `json:"state,omitempty"`

	Position        time.Duration `json:"position,omitempty"`
	PositionUpdated time.Time     `json:"positionUpdated,omitempty"`
	Duration        time.Duration `json:"duration,omitempty"`
	QueuePosition   int           `json:"queuePosition,omitempty"`

	Flags Flags `json:"flags"`
}

// SameTrack reports whether two descriptors describe the same media for display purposes.
func (d MediaDescriptor) SameTrack(o MediaDescriptor) bool {
	return d.Artist == o.Artist &&
		d.Title == o.Title &&
		d.Album == o.Album &&
		d.ArtRef == o.ArtRef &&
		d.Flags == o.Flags
}

// Color is an 8-bit RGB color.
type Color struct {
	R, G, B uint8
}

// Hex returns the color as #rrggbb.
func (c Color) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
}

// ParseColor parses "#rrggbb" or "rrggbb".
func ParseColor(s string) (Color, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return Color{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

// RGB returns the channels as ints.
func (c Color) RGB() [3]int {
	return [3]int{int(c.R), int(c.G), int(c.B)}
}

func (c Color) String() string { return c.Hex() }

// MarshalText encodes the color as hex so JSON payloads carry "#rrggbb".
func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.Hex()), nil
}

// Band describes the bottom text band of an artifact.
type Band struct {
	Brightness int   `json:"brightness"`
	Color      Color `json:"color"`
}

// Artifact is the processed 64x64 image with its derived color metadata.
// Artifacts are shared between the cache and renderers and must not be modified.
type Artifact struct {
	Pixels     []byte `json:"-"`
	Encoded    string `json:"pixels"`
	FontColor  Color  `json:"fontColor"`
	Brightness int    `json:"brightness"`
	LowerBand  Band   `json:"lowerBand"`
	Background Color  `json:"background"`
	Alternate  Color  `json:"alternate"`
	Source     string `json:"source"`
	Fallback   bool   `json:"fallback"`
}

// ProcessOptions controls the transform pipeline.
type ProcessOptions struct {
	CropBorders  bool
	CropExtra    bool
	Contrast     bool
	PaletteLimit int // 0 = off
	RadioLogo    bool
	ShowClock    bool
	ClockAlign   string // "left" or "right"
	ShowText     bool
	Lyrics       bool
	TVIcon       bool
}

// Transformer turns raw image bytes into an artifact.
type Transformer interface {
	Process(ctx context.Context, data []byte, opts ProcessOptions) (*Artifact, error)
}

// MPDArtworkProvider fetches artwork through MPD.
type MPDArtworkProvider interface {
	// AlbumArt retrieves folder-based album art (cover.jpg, folder.jpg, etc.)
	AlbumArt(uri string) ([]byte, error)
	// ReadPicture retrieves embedded artwork from audio file tags
	ReadPicture(uri string) ([]byte, error)
}
