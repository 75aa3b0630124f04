package artwork

import (
	"cmp"
	"image"
	"math"
	"math/rand/v2"
	"slices"
)

const (
	// fontSampleSize is the side of the downsampled image used for font color selection.
	fontSampleSize = 16
	// fontMinDistance is the minimum RGB distance from every sampled color.
	fontMinDistance = 100
	// fontMinContrast is the minimum WCAG contrast ratio against the reference color.
	fontMinContrast = 2.5
	// darkImageLuminance separates dark images from bright ones.
	darkImageLuminance = 127

	// TextBandHeight is the number of rows reserved for text at the bottom.
	TextBandHeight = 12
	// ClockWidth and ClockHeight size the clock readout in the top strip.
	ClockWidth  = 22
	ClockHeight = 8
)

var (
	white = Color{255, 255, 255}
	black = Color{0, 0, 0}
)

var defaultFontPalette = []Color{
	{255, 0, 0}, {255, 64, 0}, {255, 128, 0}, {255, 191, 0}, {255, 255, 0},
	{191, 255, 0}, {128, 255, 0}, {64, 255, 0}, {0, 255, 0}, {0, 255, 64},
	{0, 255, 128}, {0, 255, 191}, {0, 255, 255}, {0, 191, 255}, {0, 128, 255},
	{0, 64, 255}, {0, 0, 255}, {64, 0, 255}, {128, 0, 255}, {191, 0, 255},
	{255, 0, 255}, {255, 0, 191}, {255, 0, 128}, {255, 0, 64}, {204, 0, 0},
	{204, 102, 0}, {204, 204, 0}, {102, 204, 0}, {0, 204, 0}, {0, 204, 102},
	{0, 204, 204}, {0, 102, 204}, {0, 0, 204}, {102, 0, 204}, {204, 0, 204},
	{204, 0, 102}, {153, 0, 0}, {153, 76, 0}, {153, 153, 0}, {0, 153, 0},
	{0, 153, 153}, {0, 0, 153}, {76, 0, 153}, {153, 0, 153}, {255, 102, 102},
	{255, 178, 102}, {255, 255, 102}, {102, 255, 102}, {102, 255, 255}, {102, 102, 255},
}

// luma is the Rec. 709 luminance on the 0-255 scale.
func luma(c Color) float64 {
	return 0.2126*float64(c.R) + 0.7152*float64(c.G) + 0.0722*float64(c.B)
}

// meanLuminance averages luma over r.
func meanLuminance(img *image.RGBA, r image.Rectangle) int {
	r = r.Intersect(img.Bounds())
	if r.Empty() {
		return 0
	}
	var sum float64
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			sum += luma(rgbAt(img, x, y))
		}
	}
	return int(math.Round(sum / float64(r.Dx()*r.Dy())))
}

func textBandRect(img *image.RGBA) image.Rectangle {
	b := img.Bounds()
	return image.Rect(b.Min.X, b.Max.Y-TextBandHeight, b.Max.X, b.Max.Y)
}

func clockRect(img *image.RGBA, align string) image.Rectangle {
	b := img.Bounds()
	if align == "right" {
		return image.Rect(b.Max.X-ClockWidth, b.Min.Y, b.Max.X, b.Min.Y+ClockHeight)
	}
	return image.Rect(b.Min.X, b.Min.Y, b.Min.X+ClockWidth, b.Min.Y+ClockHeight)
}

// lowerBand summarizes the bottom text band.
func lowerBand(img *image.RGBA) Band {
	r := textBandRect(img).Intersect(img.Bounds())
	if r.Empty() {
		return Band{}
	}
	var sr, sg, sb int
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			c := rgbAt(img, x, y)
			sr, sg, sb = sr+int(c.R), sg+int(c.G), sb+int(c.B)
		}
	}
	n := r.Dx() * r.Dy()
	return Band{
		Brightness: meanLuminance(img, r),
		Color:      Color{uint8(sr / n), uint8(sg / n), uint8(sb / n)},
	}
}

type colorCount struct {
	c Color
	n int
}

// colorsByFrequency returns the distinct colors, most frequent first.
func colorsByFrequency(img *image.RGBA) []colorCount {
	counts := make(map[Color]int)
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			counts[rgbAt(img, x, y)]++
		}
	}
	out := make([]colorCount, 0, len(counts))
	for c, n := range counts {
		out = append(out, colorCount{c, n})
	}
	slices.SortFunc(out, func(a, b colorCount) int {
		if a.n != b.n {
			return cmp.Compare(b.n, a.n)
		}
		if colorLess(a.c, b.c) {
			return -1
		}
		if colorLess(b.c, a.c) {
			return 1
		}
		return 0
	})
	return out
}

// mostFrequent returns the dominant color, black for empty images.
func mostFrequent(img *image.RGBA) Color {
	ranked := colorsByFrequency(img)
	if len(ranked) == 0 {
		return black
	}
	return ranked[0].c
}

// vibrantColor picks the most frequent saturated mid-tone color. Images without
// one get a random mid-tone with each channel in [100,200].
func vibrantColor(img *image.RGBA, rng *rand.Rand) Color {
	for _, cc := range colorsByFrequency(img) {
		hi := max(cc.c.R, cc.c.G, cc.c.B)
		lo := min(cc.c.R, cc.c.G, cc.c.B)
		sum, spread := int(hi)+int(lo), int(hi)-int(lo)
		if sum > 400 || spread < 50 || spread < 100 {
			continue
		}
		return cc.c
	}
	return Color{
		R: uint8(100 + rng.IntN(101)),
		G: uint8(100 + rng.IntN(101)),
		B: uint8(100 + rng.IntN(101)),
	}
}

// fontColor chooses a readable saturated color that stands apart from the image.
func fontColor(img *image.RGBA, palette []Color, rng *rand.Rand) (Color, error) {
	small := downsample(img, fontSampleSize)

	distinct := make(map[Color]struct{})
	var sum float64
	b := small.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := rgbAt(small, x, y)
			distinct[c] = struct{}{}
			sum += luma(c)
		}
	}
	if len(distinct) == 0 {
		return black, ErrDegenerate
	}

	dark := sum/float64(b.Dx()*b.Dy()) < darkImageLuminance
	reference := black
	if dark {
		reference = white
	}

	order := rng.Perm(len(palette))
	var best Color
	bestSat := -1.0
	for _, i := range order {
		cand := palette[i]
		if contrastRatio(cand, reference) < fontMinContrast {
			continue
		}
		if !farFromAll(cand, distinct) {
			continue
		}
		if s := saturation(cand); s > bestSat {
			best, bestSat = cand, s
		}
	}

	if bestSat < 0 {
		if dark {
			return white, nil
		}
		return black, nil
	}
	return best, nil
}

func farFromAll(c Color, set map[Color]struct{}) bool {
	for o := range set {
		if distance(c, o) <= fontMinDistance {
			return false
		}
	}
	return true
}

func distance(a, b Color) float64 {
	dr := float64(a.R) - float64(b.R)
	dg := float64(a.G) - float64(b.G)
	db := float64(a.B) - float64(b.B)
	return math.Sqrt(dr*dr + dg*dg + db*db)
}

func saturation(c Color) float64 {
	hi := max(c.R, c.G, c.B)
	if hi == 0 {
		return 0
	}
	lo := min(c.R, c.G, c.B)
	return float64(hi-lo) / float64(hi)
}

// relativeLuminance follows the WCAG 2 definition.
func relativeLuminance(c Color) float64 {
	lin := func(v uint8) float64 {
		s := float64(v) / 255
		if s <= 0.03928 {
			return s / 12.92
		}
		return math.Pow((s+0.055)/1.055, 2.4)
	}
	return 0.2126*lin(c.R) + 0.7152*lin(c.G) + 0.0722*lin(c.B)
}

func contrastRatio(a, b Color) float64 {
	la, lb := relativeLuminance(a), relativeLuminance(b)
	if la < lb {
		la, lb = lb, la
	}
	return (la + 0.05) / (lb + 0.05)
}
