package nowplaying

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-pixel/internal/infra/mpd"
)

// MPDClient is the part of the MPD client the follower uses.
type MPDClient interface {
	NowPlaying() (*mpd.Song, error)
	Watch(ctx context.Context, subsystems ...string) (<-chan string, error)
}

// Follower turns MPD player events into track changes for one device.
type Follower struct {
	client   MPDClient
	sup      *Supervisor
	deviceID string
	window   time.Duration
	now      func() time.Time
}

// NewFollower creates a follower that reports to sup under deviceID.
func NewFollower(client MPDClient, sup *Supervisor, deviceID string) *Follower {
	return &Follower{
		client:   client,
		sup:      sup,
		deviceID: deviceID,
		window:   mpd.DefaultDebounceWindow,
		now:      time.Now,
	}
}

// Run syncs the current song once, then follows player events until ctx ends.
func (f *Follower) Run(ctx context.Context) error {
	events, err := f.client.Watch(ctx, "player", "playlist")
	if err != nil {
		return fmt.Errorf("watch mpd: %w", err)
	}

	debouncer := mpd.NewDebouncer(f.window, f.Sync)
	defer debouncer.Stop()

	log.Info().Str("device", f.deviceID).Msg("Following MPD player")
	f.Sync()

	for {
		select {
		case <-ctx.Done():
			return nil
		case subsystem, ok := <-events:
			if !ok {
				log.Warn().Msg("MPD watcher channel closed")
				return nil
			}
			log.Debug().Str("subsystem", subsystem).Msg("MPD subsystem changed")
			debouncer.Trigger(subsystem)
		}
	}
}

// Sync reads the current song and reports it. Stopped players are ignored.
func (f *Follower) Sync() {
	song, err := f.client.NowPlaying()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to read MPD song")
		return
	}
	if song.State == mpd.StateStop || song.File == "" {
		log.Debug().Str("state", song.State).Msg("MPD not playing")
		return
	}
	desc := FromSong(*song, f.now())
	// pause, seek and volume events leave the shown track as it is
	if cur := f.sup.Current(f.deviceID); cur != nil && cur.Descriptor.SameTrack(desc) {
		if st := cur.State(); st == StateRunning || st == StateCompleted {
			return
		}
	}
	f.sup.TrackChanged(f.deviceID, desc)
}
