package artwork

import (
	"encoding/base64"
)

// SourceFallback marks the ultimate fallback artifact.
const SourceFallback = "fallback"

var fallbackEncoded = base64.StdEncoding.EncodeToString(make([]byte, PixelBytes))

// Fallback returns the solid black artifact used when every source fails.
func Fallback() *Artifact {
	return &Artifact{
		Pixels:     make([]byte, PixelBytes),
		Encoded:    fallbackEncoded,
		FontColor:  white,
		Brightness: 0,
		LowerBand:  Band{Brightness: 0, Color: black},
		Background: black,
		Alternate:  black,
		Source:     SourceFallback,
		Fallback:   true,
	}
}
