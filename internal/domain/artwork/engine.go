package artwork

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"  // GIF decoder
	_ "image/jpeg" // JPEG decoder
	_ "image/png"  // PNG decoder
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/bmp"  // BMP decoder
	_ "golang.org/x/image/webp" // WebP decoder
)

// Engine runs the image transform pipeline. It is safe for concurrent use.
type Engine struct {
	mu      sync.Mutex
	rng     *rand.Rand
	palette []Color
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSeed makes the engine's random choices reproducible.
func WithSeed(seed uint64) EngineOption {
	return func(e *Engine) {
		e.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	}
}

// WithFontPalette replaces the candidate font colors.
func WithFontPalette(colors []Color) EngineOption {
	return func(e *Engine) {
		e.palette = append([]Color(nil), colors...)
	}
}

// NewEngine creates a transform engine.
func NewEngine(opts ...EngineOption) *Engine {
	now := uint64(time.Now().UnixNano())
	e := &Engine{
		rng:     rand.New(rand.NewPCG(now, now>>1)),
		palette: defaultFontPalette,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Process decodes data and produces a 64x64 artifact.
func (e *Engine) Process(ctx context.Context, data []byte, opts ProcessOptions) (*Artifact, error) {
	img, format, err := decode(data)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("format", format).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Msg("Transforming artwork")

	img = squareNormalize(img)

	if opts.CropBorders && !opts.RadioLogo {
		img = cropBorders(img, opts.CropExtra)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts.Contrast {
		img = adjustContrast(img, contrastFactor)
	}
	if opts.PaletteLimit >= minPaletteColors && opts.PaletteLimit <= maxPaletteColors {
		if img, err = medianCut(ctx, img, opts.PaletteLimit); err != nil {
			return nil, err
		}
	}

	thumb := thumbnail(img, OutputSize)

	art := &Artifact{
		Brightness: meanLuminance(thumb, thumb.Bounds()),
		LowerBand:  lowerBand(thumb),
		Alternate:  mostFrequent(thumb),
	}

	e.mu.Lock()
	art.Background = vibrantColor(thumb, e.rng)
	art.FontColor, err = fontColor(thumb, e.palette, e.rng)
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}

	composite(thumb, opts, art.Brightness, art.LowerBand.Brightness)

	art.Pixels = flatten(thumb)
	art.Encoded = base64.StdEncoding.EncodeToString(art.Pixels)
	return art, nil
}

// decode converts supported formats to an opaque RGBA image anchored at the origin.
func decode(data []byte) (*image.RGBA, string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, format, ErrDegenerate
	}
	if int64(cfg.Width)*int64(cfg.Height) > MaxSourcePixels {
		return nil, format, fmt.Errorf("%w: %dx%d %s", ErrTooLarge, cfg.Width, cfg.Height, format)
	}

	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrDecode, err)
	}
	b := src.Bounds()
	if b.Empty() {
		return nil, format, ErrDegenerate
	}

	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst, format, nil
}

// squareNormalize pads landscape images to a square and center-crops portrait ones.
func squareNormalize(img *image.RGBA) *image.RGBA {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	switch {
	case h < w:
		fill := img.RGBAAt(min(1, w-1), min(1, h-1))
		dst := image.NewRGBA(image.Rect(0, 0, w, w))
		draw.Draw(dst, dst.Bounds(), image.NewUniform(fill), image.Point{}, draw.Src)
		top := (w - h) / 2
		draw.Draw(dst, image.Rect(0, top, w, top+h), img, image.Point{}, draw.Src)
		return dst
	case w < h:
		top := (h - w) / 2
		return crop(img, image.Rect(0, top, w, top+w))
	default:
		return img
	}
}

// crop copies r out of img into a new image anchored at the origin.
func crop(img *image.RGBA, r image.Rectangle) *image.RGBA {
	r = r.Intersect(img.Bounds())
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return dst
}

// flatten returns row-major R,G,B triples.
func flatten(img *image.RGBA) []byte {
	b := img.Bounds()
	out := make([]byte, 0, b.Dx()*b.Dy()*3)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := img.RGBAAt(x, y)
			out = append(out, c.R, c.G, c.B)
		}
	}
	return out
}

func rgbAt(img *image.RGBA, x, y int) Color {
	c := img.RGBAAt(x, y)
	return Color{R: c.R, G: c.G, B: c.B}
}
