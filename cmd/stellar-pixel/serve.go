package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-pixel/internal/domain/artwork"
	"github.com/edumarques81/stellar-pixel/internal/domain/nowplaying"
	"github.com/edumarques81/stellar-pixel/internal/infra/mpd"
	"github.com/edumarques81/stellar-pixel/internal/infra/pixoo"
	"github.com/edumarques81/stellar-pixel/internal/transport/socketio"
	"github.com/edumarques81/stellar-pixel/internal/version"
)

// followerRetryDelay is the pause before following MPD again after it went away.
const followerRetryDelay = 5 * time.Second

var maxRemoteClients int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the artwork service",
	Long: `Starts the HTTP / Socket.IO server, follows MPD when enabled and renders
artwork to every configured display on each track change.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&maxRemoteClients, "max-remote-clients", socketio.DefaultMaxRemoteClients,
		"maximum concurrent non-local Socket.IO clients (0 = unlimited)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().Msgf("  %s", version.GetInfo().String())
	log.Info().Msg("  Pixel Display Artwork Service")
	log.Info().Msg("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	log.Info().
		Str("listen", cfg.Server.Listen).
		Int("cache_size", cfg.Cache.Size).
		Strs("devices", cfg.DeviceIDs()).
		Bool("mpd", cfg.MPD.Enabled).
		Dur("job_timeout", cfg.Timeouts.Job).
		Msg("Configuration")

	var mpdClient *mpd.Client
	if cfg.MPD.Enabled {
		mpdClient = mpd.NewClient(cfg.MPD.Host, cfg.MPD.Port, cfg.MPD.Password)
		if err := mpdClient.Connect(); err != nil {
			// the watcher and art lookups reconnect on demand
			log.Warn().Err(err).Msg("MPD not reachable yet")
		}
		defer mpdClient.Close()
	}

	pipe, err := newPipeline(ctx, cfg, mpdClient)
	if err != nil {
		return err
	}
	defer pipe.Close()

	registry := pixoo.NewRegistry()
	for _, d := range cfg.Devices {
		registry.Add(d.ID, pixoo.NewClient(d.Address))
		log.Info().Str("device", d.ID).Str("address", d.Address).Msg("Display registered")
	}

	var defaultDevice string
	if ids := cfg.DeviceIDs(); len(ids) > 0 {
		defaultDevice = ids[0]
	}

	// the Socket.IO server needs the supervisor and the supervisor renders to it
	var sup *nowplaying.Supervisor
	tracks := trackHandlerFunc(func(deviceID string, desc artwork.MediaDescriptor) *nowplaying.Job {
		return sup.TrackChanged(deviceID, desc)
	})
	sio := socketio.NewServer(tracks, pipe.cache,
		socketio.WithDefaultDevice(defaultDevice),
		socketio.WithMaxRemoteClients(maxRemoteClients),
		socketio.WithFont(cfg.Image.Font),
	)
	defer sio.Close()

	sup = nowplaying.NewSupervisor(pipe.resolver,
		nowplaying.WithJobTimeout(cfg.Timeouts.Job),
		nowplaying.WithRenderers(registry, sio),
	)
	defer sup.Close()

	if mpdClient != nil {
		device := cfg.MPD.Device
		if device == "" {
			device = defaultDevice
		}
		follower := nowplaying.NewFollower(mpdClient, sup, device)
		go func() {
			for {
				err := follower.Run(ctx)
				if ctx.Err() != nil {
					return
				}
				log.Warn().Err(err).Dur("retry_in", followerRetryDelay).Msg("MPD follower stopped")
				select {
				case <-time.After(followerRetryDelay):
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	var pinger mpdPinger
	if mpdClient != nil {
		pinger = mpdClient
	}

	server := &http.Server{
		Addr: cfg.Server.Listen,
		Handler: newRouter(routerDeps{
			tracks:        sup,
			jobs:          sup,
			stats:         pipe.cache,
			socket:        sio,
			mpd:           pinger,
			defaultDevice: defaultDevice,
		}),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.Server.Listen).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutting down...")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Server stopped")
	return nil
}
