package nowplaying

import (
	"strings"
	"time"

	"github.com/edumarques81/stellar-pixel/internal/domain/artwork"
	"github.com/edumarques81/stellar-pixel/internal/infra/mpd"
)

// SourceMPD identifies descriptors built from the local MPD player.
const SourceMPD = "mpd"

// FromSong converts an MPD song into a descriptor. Streams are treated as radio
// without a logo, and a "Artist - Title" stream title is split.
func FromSong(song mpd.Song, now time.Time) artwork.MediaDescriptor {
	desc := artwork.MediaDescriptor{
		Artist:          strings.TrimSpace(song.Artist),
		Title:           strings.TrimSpace(song.Title),
		Album:           strings.TrimSpace(song.Album),
		Station:         song.Name,
		Source:          SourceMPD,
		State:           song.State,
		Position:        song.Elapsed,
		PositionUpdated: now,
		Duration:        song.Duration,
		QueuePosition:   song.Pos,
	}

	if song.IsStream() {
		desc.Flags.IsRadio = true
		if desc.Artist == "" {
			if artist, title, ok := strings.Cut(desc.Title, " - "); ok {
				desc.Artist = strings.TrimSpace(artist)
				desc.Title = strings.TrimSpace(title)
			}
		}
		return desc
	}

	if song.File != "" {
		desc.ArtRef = artwork.MPDRefPrefix + song.File
	}
	return desc
}

// Event is a track change pushed by a host integration.
type Event struct {
	DeviceID  string  `json:"deviceId"`
	Artist    string  `json:"artist"`
	Title     string  `json:"title"`
	Album     string  `json:"album"`
	Art       string  `json:"art"`
	Station   string  `json:"station"`
	Source    string  `json:"source"`
	State     string  `json:"state"`
	Position  float64 `json:"position"`
	Duration  float64 `json:"duration"`
	Radio     bool    `json:"radio"`
	RadioLogo bool    `json:"radioLogo"`
	TV        bool    `json:"tv"`
	ForceAI   bool    `json:"forceAi"`
	Slideshow bool    `json:"slideshow"`
}

// Descriptor converts the event into a descriptor. Position and Duration are seconds.
func (e Event) Descriptor(now time.Time) artwork.MediaDescriptor {
	return artwork.MediaDescriptor{
		Artist:          strings.TrimSpace(e.Artist),
		Title:           strings.TrimSpace(e.Title),
		Album:           strings.TrimSpace(e.Album),
		ArtRef:          strings.TrimSpace(e.Art),
		Station:         e.Station,
		Source:          e.Source,
		State:           e.State,
		Position:        secondsToDuration(e.Position),
		PositionUpdated: now,
		Duration:        secondsToDuration(e.Duration),
		Flags: artwork.Flags{
			IsRadio:      e.Radio,
			IsTV:         e.TV,
			RadioHasLogo: e.RadioLogo,
			ForceAIOnly:  e.ForceAI,
			Slideshow:    e.Slideshow,
		},
	}
}

func secondsToDuration(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}
