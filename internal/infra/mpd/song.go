package mpd

import (
	"strconv"
	"strings"
	"time"

	"github.com/fhs/gompd/v2/mpd"
)

// Playback states reported by MPD.
const (
	StatePlay  = "play"
	StatePause = "pause"
	StateStop  = "stop"
)

// Song is the current song together with the player state.
type Song struct {
	File     string
	Artist   string
	Title    string
	Album    string
	Name     string // stream or station name
	State    string
	Elapsed  time.Duration
	Duration time.Duration
	Pos      int
}

// ParseSong builds a Song from currentsong and status attributes.
func ParseSong(song, status mpd.Attrs) Song {
	s := Song{
		File:   song["file"],
		Artist: song["Artist"],
		Title:  song["Title"],
		Album:  song["Album"],
		Name:   song["Name"],
		State:  status["state"],
		Pos:    -1,
	}
	if s.Artist == "" {
		s.Artist = song["AlbumArtist"]
	}

	if pos, err := strconv.Atoi(song["Pos"]); err == nil {
		s.Pos = pos
	} else if pos, err := strconv.Atoi(status["song"]); err == nil {
		s.Pos = pos
	}

	s.Elapsed = seconds(status["elapsed"])
	s.Duration = seconds(status["duration"])
	if s.Duration == 0 {
		s.Duration = seconds(song["duration"])
	}
	if s.Duration == 0 {
		s.Duration = seconds(song["Time"])
	}
	return s
}

// IsStream reports whether the song is an HTTP stream (web radio).
func (s Song) IsStream() bool {
	return strings.HasPrefix(s.File, "http://") || strings.HasPrefix(s.File, "https://")
}

func seconds(v string) time.Duration {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f < 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
