package artwork

import (
	"context"
	"image"
	"image/color"
	"slices"
)

const (
	contrastFactor = 1.5

	minPaletteColors = 5
	maxPaletteColors = 256
)

// adjustContrast scales every channel away from the mean gray level.
func adjustContrast(img *image.RGBA, factor float64) *image.RGBA {
	mean := float64(meanGray(img))
	dst := image.NewRGBA(img.Bounds())
	for i := 0; i+3 < len(img.Pix); i += 4 {
		dst.Pix[i] = clampByte(mean + (float64(img.Pix[i])-mean)*factor)
		dst.Pix[i+1] = clampByte(mean + (float64(img.Pix[i+1])-mean)*factor)
		dst.Pix[i+2] = clampByte(mean + (float64(img.Pix[i+2])-mean)*factor)
		dst.Pix[i+3] = 0xff
	}
	return dst
}

// meanGray is the rounded average of the ITU-R 601 gray level.
func meanGray(img *image.RGBA) int {
	var sum, n int
	for i := 0; i+3 < len(img.Pix); i += 4 {
		sum += (299*int(img.Pix[i]) + 587*int(img.Pix[i+1]) + 114*int(img.Pix[i+2])) / 1000
		n++
	}
	if n == 0 {
		return 0
	}
	return (sum + n/2) / n
}

// brighten multiplies every channel by factor.
func brighten(img *image.RGBA, factor float64) *image.RGBA {
	dst := image.NewRGBA(img.Bounds())
	for i := 0; i+3 < len(img.Pix); i += 4 {
		dst.Pix[i] = clampByte(float64(img.Pix[i]) * factor)
		dst.Pix[i+1] = clampByte(float64(img.Pix[i+1]) * factor)
		dst.Pix[i+2] = clampByte(float64(img.Pix[i+2]) * factor)
		dst.Pix[i+3] = 0xff
	}
	return dst
}

// boxBlur averages each pixel with its neighbours within radius, edges clamped.
func boxBlur(img *image.RGBA, radius int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	tmp := image.NewRGBA(b)
	dst := image.NewRGBA(b)

	// horizontal then vertical pass
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var r, g, bl, n int
			for k := -radius; k <= radius; k++ {
				c := img.RGBAAt(clampInt(x+k, 0, w-1), y)
				r, g, bl, n = r+int(c.R), g+int(c.G), bl+int(c.B), n+1
			}
			tmp.SetRGBA(x, y, color.RGBA{uint8(r / n), uint8(g / n), uint8(bl / n), 0xff})
		}
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var r, g, bl, n int
			for k := -radius; k <= radius; k++ {
				c := tmp.RGBAAt(x, clampInt(y+k, 0, h-1))
				r, g, bl, n = r+int(c.R), g+int(c.G), bl+int(c.B), n+1
			}
			dst.SetRGBA(x, y, color.RGBA{uint8(r / n), uint8(g / n), uint8(bl / n), 0xff})
		}
	}
	return dst
}

// medianCut reduces the image to at most n colors. Each box of the color cube is
// split at the median of its widest channel; pixels take the mean of their box.
// ctx is checked before every split.
func medianCut(ctx context.Context, img *image.RGBA, n int) (*image.RGBA, error) {
	type px struct {
		c   [3]uint8
		off int
	}

	pixels := make([]px, 0, len(img.Pix)/4)
	for i := 0; i+3 < len(img.Pix); i += 4 {
		pixels = append(pixels, px{c: [3]uint8{img.Pix[i], img.Pix[i+1], img.Pix[i+2]}, off: i})
	}
	if len(pixels) == 0 {
		return img, nil
	}

	type box struct{ lo, hi int }
	widest := func(bx box) (channel, spread int) {
		for ch := 0; ch < 3; ch++ {
			lo, hi := uint8(255), uint8(0)
			for _, p := range pixels[bx.lo:bx.hi] {
				lo, hi = min(lo, p.c[ch]), max(hi, p.c[ch])
			}
			if s := int(hi) - int(lo); s > spread {
				channel, spread = ch, s
			}
		}
		return channel, spread
	}

	boxes := []box{{0, len(pixels)}}
	for len(boxes) < n {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		// split the box with the widest channel range
		pick, pickCh, pickSpread := -1, 0, 0
		for i, bx := range boxes {
			if bx.hi-bx.lo < 2 {
				continue
			}
			if ch, s := widest(bx); s > pickSpread {
				pick, pickCh, pickSpread = i, ch, s
			}
		}
		if pick < 0 {
			break
		}

		bx := boxes[pick]
		part := pixels[bx.lo:bx.hi]
		slices.SortFunc(part, func(a, b px) int { return int(a.c[pickCh]) - int(b.c[pickCh]) })
		mid := bx.lo + len(part)/2
		boxes[pick] = box{bx.lo, mid}
		boxes = append(boxes, box{mid, bx.hi})
	}

	dst := image.NewRGBA(img.Bounds())
	for _, bx := range boxes {
		var sum [3]int
		for _, p := range pixels[bx.lo:bx.hi] {
			sum[0], sum[1], sum[2] = sum[0]+int(p.c[0]), sum[1]+int(p.c[1]), sum[2]+int(p.c[2])
		}
		cnt := bx.hi - bx.lo
		mean := [3]uint8{uint8(sum[0] / cnt), uint8(sum[1] / cnt), uint8(sum[2] / cnt)}
		for _, p := range pixels[bx.lo:bx.hi] {
			dst.Pix[p.off], dst.Pix[p.off+1], dst.Pix[p.off+2], dst.Pix[p.off+3] = mean[0], mean[1], mean[2], 0xff
		}
	}
	return dst, nil
}

func clampByte(v float64) uint8 {
	if v <= 0 {
		return 0
	}
	if v >= 255 {
		return 255
	}
	return uint8(v + 0.5)
}
