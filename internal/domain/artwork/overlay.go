package artwork

import (
	"image"
)

const (
	// readableBrightness is the region brightness above which overlays get darkened.
	readableBrightness = 110
	// lyricsDim scales the whole frame while lyrics are shown.
	lyricsDim = 0.4
)

// composite darkens the regions where the device draws text.
func composite(img *image.RGBA, opts ProcessOptions, brightness, bandBrightness int) {
	if opts.TVIcon {
		return
	}
	if opts.Lyrics {
		dim(img, img.Bounds(), lyricsDim)
		return
	}
	if opts.ShowClock && brightness > readableBrightness {
		dim(img, clockRect(img, opts.ClockAlign), readableFactor(brightness))
	}
	if opts.ShowText && bandBrightness > readableBrightness {
		dim(img, textBandRect(img), readableFactor(bandBrightness))
	}
}

// readableFactor brings a region of the given brightness down to roughly half
// the readability threshold.
func readableFactor(brightness int) float64 {
	return float64(readableBrightness) / 2 / float64(brightness)
}

func dim(img *image.RGBA, r image.Rectangle, factor float64) {
	r = r.Intersect(img.Bounds())
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := img.PixOffset(x, y)
			img.Pix[i] = clampByte(float64(img.Pix[i]) * factor)
			img.Pix[i+1] = clampByte(float64(img.Pix[i+1]) * factor)
			img.Pix[i+2] = clampByte(float64(img.Pix[i+2]) * factor)
		}
	}
}
