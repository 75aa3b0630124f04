package artwork

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand/v2"
	"testing"
)

// solid returns a w x h image filled with c.
func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

func encodePNG(t *testing.T, img image.Image) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestEngine_ProcessProduces64x64(t *testing.T) {
	src := solid(500, 500, color.RGBA{200, 30, 30, 255})
	for y := 100; y < 400; y++ {
		for x := 100; x < 400; x++ {
			src.SetRGBA(x, y, color.RGBA{20, 40, 220, 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, src, nil); err != nil {
		t.Fatal(err)
	}

	e := NewEngine(WithSeed(1))
	art, err := e.Process(context.Background(), buf.Bytes(), ProcessOptions{CropBorders: true, Contrast: true, PaletteLimit: 16})
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}

	if len(art.Pixels) != PixelBytes {
		t.Fatalf("expected %d pixel bytes, got %d", PixelBytes, len(art.Pixels))
	}
	decoded, err := base64.StdEncoding.DecodeString(art.Encoded)
	if err != nil {
		t.Fatalf("Encoded is not base64: %v", err)
	}
	if !bytes.Equal(decoded, art.Pixels) {
		t.Error("Encoded does not match Pixels")
	}
	if art.Brightness < 0 || art.Brightness > 255 {
		t.Errorf("brightness out of range: %d", art.Brightness)
	}
	if art.Fallback {
		t.Error("processed artifact must not be flagged as fallback")
	}
}

func TestEngine_ProcessDecodeError(t *testing.T) {
	e := NewEngine()
	_, err := e.Process(context.Background(), []byte("not an image"), ProcessOptions{})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestEngine_ProcessCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewEngine()
	data := encodePNG(t, solid(80, 80, color.RGBA{10, 10, 10, 255}))
	if _, err := e.Process(ctx, data, ProcessOptions{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestEngine_SameSeedSameResult(t *testing.T) {
	data := encodePNG(t, solid(64, 64, color.RGBA{128, 128, 128, 255}))

	a, err := NewEngine(WithSeed(42)).Process(context.Background(), data, ProcessOptions{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := NewEngine(WithSeed(42)).Process(context.Background(), data, ProcessOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if a.Background != b.Background || a.FontColor != b.FontColor {
		t.Errorf("seeded engines disagree: %v/%v vs %v/%v", a.Background, a.FontColor, b.Background, b.FontColor)
	}
}

func TestSquareNormalize_Landscape(t *testing.T) {
	img := solid(100, 50, color.RGBA{0, 0, 0, 255})
	img.SetRGBA(1, 1, color.RGBA{9, 8, 7, 255})

	out := squareNormalize(img)
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 100 {
		t.Fatalf("expected 100x100, got %v", out.Bounds())
	}
	// padding uses the pixel at (1,1)
	if c := out.RGBAAt(50, 5); c != (color.RGBA{9, 8, 7, 255}) {
		t.Errorf("padding color = %v", c)
	}
	// original pasted at rows 25..74
	if c := out.RGBAAt(50, 50); c != (color.RGBA{0, 0, 0, 255}) {
		t.Errorf("center color = %v", c)
	}
}

func TestSquareNormalize_Portrait(t *testing.T) {
	img := solid(40, 100, color.RGBA{0, 0, 0, 255})
	for x := 0; x < 40; x++ {
		img.SetRGBA(x, 30, color.RGBA{255, 0, 0, 255})
	}

	out := squareNormalize(img)
	if out.Bounds().Dx() != 40 || out.Bounds().Dy() != 40 {
		t.Fatalf("expected 40x40, got %v", out.Bounds())
	}
	// center crop starts at row 30
	if c := out.RGBAAt(0, 0); c.R != 255 {
		t.Errorf("expected red first row after center crop, got %v", c)
	}
}

func TestCropBorders_UniformImage(t *testing.T) {
	img := solid(200, 200, color.RGBA{255, 255, 255, 255})

	out := cropBorders(img, false)
	if out.Bounds().Dx() != OutputSize || out.Bounds().Dy() != OutputSize {
		t.Errorf("expected %dx%d, got %v", OutputSize, OutputSize, out.Bounds())
	}

	out = cropBorders(img, true)
	if out.Bounds().Dx() != OutputSize || out.Bounds().Dy() != OutputSize {
		t.Errorf("extra mode: expected %dx%d, got %v", OutputSize, OutputSize, out.Bounds())
	}
}

func TestCropBorders_FramedContent(t *testing.T) {
	img := solid(300, 300, color.RGBA{255, 255, 255, 255})
	for y := 50; y < 250; y++ {
		for x := 100; x < 200; x++ {
			img.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
		}
	}

	out := cropBorders(img, false)
	// box is 100x200, side = max(64, min(100, 200)) = 100
	if out.Bounds().Dx() != 100 || out.Bounds().Dy() != 100 {
		t.Fatalf("expected 100x100 crop, got %v", out.Bounds())
	}
	if c := out.RGBAAt(50, 50); c.R != 0 {
		t.Errorf("crop should be centered on content, got %v", c)
	}
}

func TestCropBorders_ShiftsIntoBounds(t *testing.T) {
	img := solid(100, 100, color.RGBA{255, 255, 255, 255})
	for y := 0; y < 10; y++ {
		for x := 90; x < 100; x++ {
			img.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
		}
	}

	out := cropBorders(img, false)
	if out.Bounds().Dx() != OutputSize {
		t.Fatalf("expected %d side, got %v", OutputSize, out.Bounds())
	}
	// shifted to the top-right corner rather than shrunk
	if c := out.RGBAAt(OutputSize-1, 0); c.R != 0 {
		t.Errorf("expected content in top-right corner, got %v", c)
	}
}

func TestVibrantColor_SingleColorUsesRandomMidTone(t *testing.T) {
	img := solid(64, 64, color.RGBA{128, 128, 128, 255})

	for seed := uint64(0); seed < 20; seed++ {
		c := vibrantColor(img, rand.New(rand.NewPCG(seed, seed)))
		for _, ch := range c.RGB() {
			if ch < 100 || ch > 200 {
				t.Fatalf("seed %d: channel %d outside [100,200]: %v", seed, ch, c)
			}
		}
	}

	a := vibrantColor(img, rand.New(rand.NewPCG(7, 7)))
	b := vibrantColor(img, rand.New(rand.NewPCG(7, 7)))
	if a != b {
		t.Errorf("same seed gave %v and %v", a, b)
	}
}

func TestVibrantColor_PicksMostFrequentSaturated(t *testing.T) {
	img := solid(64, 64, color.RGBA{128, 128, 128, 255}) // gray, rejected
	for y := 0; y < 20; y++ {
		for x := 0; x < 64; x++ {
			img.SetRGBA(x, y, color.RGBA{200, 20, 20, 255})
		}
	}
	for x := 0; x < 10; x++ {
		img.SetRGBA(x, 40, color.RGBA{20, 200, 20, 255})
	}

	got := vibrantColor(img, rand.New(rand.NewPCG(1, 1)))
	if got != (Color{200, 20, 20}) {
		t.Errorf("expected red, got %v", got)
	}
}

func TestFontColor_BrightImageFallsBackToBlack(t *testing.T) {
	img := solid(64, 64, color.RGBA{255, 255, 255, 255})
	palette := []Color{{250, 250, 250}, {240, 240, 200}}

	got, err := fontColor(img, palette, rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		t.Fatal(err)
	}
	if got != black {
		t.Errorf("expected black, got %v", got)
	}
}

func TestFontColor_DarkImageFallsBackToWhite(t *testing.T) {
	img := solid(64, 64, color.RGBA{0, 0, 0, 255})
	palette := []Color{{5, 5, 5}, {30, 10, 10}}

	got, err := fontColor(img, palette, rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		t.Fatal(err)
	}
	if got != white {
		t.Errorf("expected white, got %v", got)
	}
}

func TestFontColor_PrefersMostSaturatedCandidate(t *testing.T) {
	img := solid(64, 64, color.RGBA{255, 255, 255, 255})
	// both pass distance and contrast against black; red is fully saturated
	palette := []Color{{200, 100, 100}, {255, 0, 0}}

	got, err := fontColor(img, palette, rand.New(rand.NewPCG(3, 3)))
	if err != nil {
		t.Fatal(err)
	}
	if got != (Color{255, 0, 0}) {
		t.Errorf("expected pure red, got %v", got)
	}
}

func TestMedianCut_LimitsColors(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x * 8), uint8(y * 8), uint8((x + y) * 4), 255})
		}
	}

	out, err := medianCut(context.Background(), img, 8)
	if err != nil {
		t.Fatalf("medianCut failed: %v", err)
	}
	if n := len(colorsByFrequency(out)); n > 8 {
		t.Errorf("expected at most 8 colors, got %d", n)
	}
}

func TestMedianCut_StopsWhenCanceled(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.SetRGBA(x, y, color.RGBA{uint8(x * 8), uint8(y * 8), 0, 255})
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := medianCut(ctx, img, 16); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// gifHeader returns a GIF header and logical screen descriptor declaring a
// w x h canvas with no image data behind it.
func gifHeader(w, h uint16) []byte {
	return []byte{
		'G', 'I', 'F', '8', '9', 'a',
		byte(w), byte(w >> 8),
		byte(h), byte(h >> 8),
		0, 0, 0,
	}
}

func TestEngine_RejectsHugeCanvas(t *testing.T) {
	e := NewEngine(WithSeed(1))
	_, err := e.Process(context.Background(), gifHeader(60000, 60000), ProcessOptions{})
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("expected ErrTooLarge, got %v", err)
	}
}

func TestAdjustContrast_KeepsUniformImage(t *testing.T) {
	img := solid(10, 10, color.RGBA{100, 100, 100, 255})
	out := adjustContrast(img, contrastFactor)
	if c := out.RGBAAt(5, 5); c.R != 100 || c.G != 100 || c.B != 100 {
		t.Errorf("uniform image changed under contrast: %v", c)
	}
}

func TestComposite(t *testing.T) {
	bright := func() *image.RGBA { return solid(OutputSize, OutputSize, color.RGBA{240, 240, 240, 255}) }

	img := bright()
	composite(img, ProcessOptions{ShowClock: true, ClockAlign: "right"}, 240, 240)
	if c := img.RGBAAt(OutputSize-1, 0); c.R >= 240 {
		t.Errorf("right clock area not darkened: %v", c)
	}
	if c := img.RGBAAt(0, 0); c.R != 240 {
		t.Errorf("left corner should be untouched: %v", c)
	}

	img = bright()
	composite(img, ProcessOptions{ShowText: true}, 240, 240)
	if c := img.RGBAAt(10, OutputSize-1); c.R >= 240 {
		t.Errorf("text band not darkened: %v", c)
	}

	img = bright()
	composite(img, ProcessOptions{ShowClock: true, ShowText: true, TVIcon: true}, 240, 240)
	if c := img.RGBAAt(0, 0); c.R != 240 {
		t.Errorf("TV mode must skip overlays: %v", c)
	}

	img = bright()
	composite(img, ProcessOptions{Lyrics: true, ShowClock: true}, 240, 240)
	if a, b := img.RGBAAt(0, 0), img.RGBAAt(32, 32); a != b || a.R >= 240 {
		t.Errorf("lyrics mode should dim uniformly: %v vs %v", a, b)
	}
}

func TestFallback(t *testing.T) {
	f := Fallback()
	if !f.Fallback || f.Source != SourceFallback {
		t.Errorf("unexpected fallback flags: %+v", f)
	}
	if len(f.Pixels) != PixelBytes {
		t.Fatalf("expected %d bytes", PixelBytes)
	}
	for _, b := range f.Pixels {
		if b != 0 {
			t.Fatal("fallback must be solid black")
		}
	}
	if f.FontColor != white || f.Background != black || f.Alternate != black || f.Brightness != 0 {
		t.Errorf("unexpected fallback colors: %+v", f)
	}
}

func TestColorHex(t *testing.T) {
	if got := (Color{255, 8, 0}).Hex(); got != "#ff0800" {
		t.Errorf("Hex() = %q", got)
	}
}

func TestParseColor(t *testing.T) {
	c, err := ParseColor("#1a2B3c")
	if err != nil {
		t.Fatalf("ParseColor() error = %v", err)
	}
	if c != (Color{R: 0x1a, G: 0x2b, B: 0x3c}) || c.Hex() != "#1a2b3c" {
		t.Errorf("ParseColor() = %+v", c)
	}
	for _, bad := range []string{"", "#fff", "#12345g", "#1234567"} {
		if _, err := ParseColor(bad); err == nil {
			t.Errorf("ParseColor(%q) should fail", bad)
		}
	}
}

func TestEngine_WithFontPalette(t *testing.T) {
	custom := []Color{{R: 1}, {G: 2}}
	e := NewEngine(WithFontPalette(custom))
	custom[0] = Color{}
	if len(e.palette) != 2 || e.palette[0] != (Color{R: 1}) {
		t.Errorf("palette = %+v, want a copy of the custom colors", e.palette)
	}
	if d := NewEngine(); len(d.palette) != len(defaultFontPalette) {
		t.Errorf("default palette has %d colors, want %d", len(d.palette), len(defaultFontPalette))
	}
}
