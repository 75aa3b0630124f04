package artwork

import (
	"image"
)

// borderThreshold is the per-channel difference that marks a pixel as content.
const borderThreshold = 100

// cropBorders removes a uniform frame around the artwork. When extra is set the
// border color and mask are computed on a blurred, brightened copy so that noisy
// scans still produce a clean bounding box.
func cropBorders(img *image.RGBA, extra bool) *image.RGBA {
	work := img
	if extra {
		work = brighten(boxBlur(img, 2), 1.5)
	}

	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	box, ok := contentBounds(work, dominantBorderColor(work))
	if !ok {
		return crop(img, image.Rect(0, 0, min(OutputSize, w), min(OutputSize, h)))
	}

	side := max(OutputSize, min(box.Dx(), box.Dy()))
	side = min(side, w, h)

	cx := box.Min.X + box.Dx()/2
	cy := box.Min.Y + box.Dy()/2
	x0 := clampInt(cx-side/2, 0, w-side)
	y0 := clampInt(cy-side/2, 0, h-side)
	return crop(img, image.Rect(x0, y0, x0+side, y0+side))
}

// dominantBorderColor returns the most frequent color on the four edge lines.
func dominantBorderColor(img *image.RGBA) Color {
	b := img.Bounds()
	counts := make(map[Color]int)
	for x := b.Min.X; x < b.Max.X; x++ {
		counts[rgbAt(img, x, b.Min.Y)]++
		counts[rgbAt(img, x, b.Max.Y-1)]++
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		counts[rgbAt(img, b.Min.X, y)]++
		counts[rgbAt(img, b.Max.X-1, y)]++
	}

	var best Color
	bestCount := -1
	for c, n := range counts {
		if n > bestCount || (n == bestCount && colorLess(c, best)) {
			best, bestCount = c, n
		}
	}
	return best
}

// contentBounds returns the bounding box of pixels differing from border.
func contentBounds(img *image.RGBA, border Color) (image.Rectangle, bool) {
	b := img.Bounds()
	minX, minY := b.Max.X, b.Max.Y
	maxX, maxY := b.Min.X-1, b.Min.Y-1

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if !differs(rgbAt(img, x, y), border) {
				continue
			}
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)
		}
	}

	if maxX < minX {
		return image.Rectangle{}, false
	}
	return image.Rect(minX, minY, maxX+1, maxY+1), true
}

func differs(c, border Color) bool {
	return absDiff(c.R, border.R) > borderThreshold ||
		absDiff(c.G, border.G) > borderThreshold ||
		absDiff(c.B, border.B) > borderThreshold
}

func absDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// colorLess orders colors so map iteration ties resolve deterministically.
func colorLess(a, b Color) bool {
	if a.R != b.R {
		return a.R < b.R
	}
	if a.G != b.G {
		return a.G < b.G
	}
	return a.B < b.B
}
