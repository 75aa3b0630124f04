package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-pixel/internal/domain/artwork"
	"github.com/edumarques81/stellar-pixel/internal/infra/pixoo"
)

var showFlags struct {
	device string
	speed  time.Duration
}

var showCmd = &cobra.Command{
	Use:   "show FILE...",
	Short: "Transform local images and show them on a display",
	Long: `Runs each image through the transform pipeline and sends the result to a
configured display. One file is shown as a still image; several files are
sent as an animation, one frame per file.

Example:
  stellar-pixel show --device living-room cover.jpg
  stellar-pixel show --device living-room --speed 500ms a.png b.png c.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runShow,
}

func init() {
	f := showCmd.Flags()
	f.StringVar(&showFlags.device, "device", "", "configured device ID (default: first device)")
	f.DurationVar(&showFlags.speed, "speed", pixoo.DefaultFrameSpeed, "per-frame delay of animations")
}

// displaySender is the part of the display client show needs.
type displaySender interface {
	SendImage(ctx context.Context, art *artwork.Artifact) error
	SendFrames(ctx context.Context, frames []*artwork.Artifact, speed time.Duration) error
}

func runShow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeouts.Job)
	defer cancel()

	address, err := deviceAddress(showFlags.device)
	if err != nil {
		return err
	}

	engine := artwork.NewEngine(engineOptions(cfg.Image)...)
	frames, err := loadFrames(ctx, engine, args, processOptions(cfg.Image))
	if err != nil {
		return err
	}
	return showFrames(ctx, pixoo.NewClient(address), frames, showFlags.speed)
}

// deviceAddress looks up a configured device; an empty id picks the first one.
func deviceAddress(id string) (string, error) {
	if len(cfg.Devices) == 0 {
		return "", fmt.Errorf("no devices configured")
	}
	if id == "" {
		return cfg.Devices[0].Address, nil
	}
	for _, d := range cfg.Devices {
		if d.ID == id {
			return d.Address, nil
		}
	}
	return "", fmt.Errorf("device %q is not configured", id)
}

// loadFrames reads and transforms each file in order.
func loadFrames(ctx context.Context, engine *artwork.Engine, paths []string, opts artwork.ProcessOptions) ([]*artwork.Artifact, error) {
	frames := make([]*artwork.Artifact, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		art, err := engine.Process(ctx, data, opts)
		if err != nil {
			return nil, fmt.Errorf("transform %s: %w", path, err)
		}
		frames = append(frames, art)
	}
	return frames, nil
}

func showFrames(ctx context.Context, dev displaySender, frames []*artwork.Artifact, speed time.Duration) error {
	switch len(frames) {
	case 0:
		return pixoo.ErrNoFrames
	case 1:
		return dev.SendImage(ctx, frames[0])
	}
	log.Info().
		Int("frames", len(frames)).
		Dur("speed", speed).
		Msg("Sending animation")
	return dev.SendFrames(ctx, frames, speed)
}
