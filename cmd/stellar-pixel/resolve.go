package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-pixel/internal/domain/artwork"
	"github.com/edumarques81/stellar-pixel/internal/domain/nowplaying"
	"github.com/edumarques81/stellar-pixel/internal/infra/mpd"
	"github.com/edumarques81/stellar-pixel/internal/infra/pixoo"
)

var resolveFlags struct {
	artist  string
	title   string
	album   string
	art     string
	radio   bool
	forceAI bool
	pixels  bool
	send    string
	useMPD  bool
}

var resolveCmd = &cobra.Command{
	Use:   "resolve",
	Short: "Resolve artwork for one track and print the result",
	Long: `Runs the source chain once for the given track metadata and prints the
artifact colors and the attempt log as JSON.

Example:
  stellar-pixel resolve --artist "Miles Davis" --title "So What" --album "Kind of Blue"`,
	RunE: runResolve,
}

func init() {
	f := resolveCmd.Flags()
	f.StringVar(&resolveFlags.artist, "artist", "", "track artist")
	f.StringVar(&resolveFlags.title, "title", "", "track title")
	f.StringVar(&resolveFlags.album, "album", "", "album name (cache key)")
	f.StringVar(&resolveFlags.art, "art", "", "art reference (URL, host path or local file)")
	f.BoolVar(&resolveFlags.radio, "radio", false, "treat the track as a radio stream")
	f.BoolVar(&resolveFlags.forceAI, "ai", false, "force AI generation")
	f.BoolVar(&resolveFlags.pixels, "pixels", false, "include base64 pixels in the output")
	f.StringVar(&resolveFlags.send, "send", "", "also render to this configured device ID")
	f.BoolVar(&resolveFlags.useMPD, "mpd", false, "use the track MPD is currently playing")
}

type attemptOutput struct {
	Provider  string `json:"provider"`
	Candidate string `json:"candidate,omitempty"`
	Outcome   string `json:"outcome"`
	Millis    int64  `json:"ms"`
	Error     string `json:"error,omitempty"`
}

type resolveOutput struct {
	Descriptor artwork.MediaDescriptor `json:"descriptor"`
	Artifact   *artwork.Artifact       `json:"artifact"`
	Attempts   []attemptOutput         `json:"attempts"`
}

func runResolve(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeouts.Job)
	defer cancel()

	var mpdClient *mpd.Client
	if cfg.MPD.Enabled || resolveFlags.useMPD {
		mpdClient = mpd.NewClient(cfg.MPD.Host, cfg.MPD.Port, cfg.MPD.Password)
		defer mpdClient.Close()
	}

	desc := artwork.MediaDescriptor{
		Artist: resolveFlags.artist,
		Title:  resolveFlags.title,
		Album:  resolveFlags.album,
		ArtRef: resolveFlags.art,
		Flags: artwork.Flags{
			IsRadio:     resolveFlags.radio,
			ForceAIOnly: resolveFlags.forceAI,
		},
	}
	if resolveFlags.useMPD {
		song, err := mpdClient.NowPlaying()
		if err != nil {
			return fmt.Errorf("mpd: %w", err)
		}
		desc = nowplaying.FromSong(*song, time.Now())
	}

	var attempts []attemptOutput
	pipe, err := newPipeline(ctx, cfg, mpdClient, artwork.WithAttemptObserver(func(a artwork.Attempt) {
		out := attemptOutput{
			Provider:  a.Provider,
			Candidate: a.Candidate,
			Outcome:   string(a.Outcome),
			Millis:    a.Duration.Milliseconds(),
		}
		if a.Err != nil {
			out.Error = a.Err.Error()
		}
		attempts = append(attempts, out)
	}))
	if err != nil {
		return err
	}
	defer pipe.Close()

	art, err := pipe.resolver.Resolve(ctx, desc)
	if err != nil {
		return fmt.Errorf("resolve: %w", err)
	}

	if resolveFlags.send != "" {
		if err := sendToDevice(ctx, resolveFlags.send, art); err != nil {
			return err
		}
	}

	shown := *art
	if !resolveFlags.pixels {
		shown.Encoded = ""
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(resolveOutput{Descriptor: desc, Artifact: &shown, Attempts: attempts})
}

func sendToDevice(ctx context.Context, deviceID string, art *artwork.Artifact) error {
	for _, d := range cfg.Devices {
		if d.ID == deviceID {
			sendCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return pixoo.NewClient(d.Address).SendImage(sendCtx, art)
		}
	}
	return fmt.Errorf("device %q is not configured", deviceID)
}
