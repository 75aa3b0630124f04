package main

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-pixel/internal/config"
	"github.com/edumarques81/stellar-pixel/internal/domain/artwork"
	"github.com/edumarques81/stellar-pixel/internal/infra/enrichment"
	"github.com/edumarques81/stellar-pixel/internal/infra/mpd"
	"github.com/edumarques81/stellar-pixel/internal/version"
)

// pipeline is the resolve side of the service: cache, transform pool and resolver.
type pipeline struct {
	cache    *artwork.Cache
	pool     *artwork.Pool
	resolver *artwork.Resolver
}

func (p *pipeline) Close() error {
	err := p.pool.Close()
	p.cache.Clear()
	return err
}

// processOptions maps the image config onto transform options.
func processOptions(img config.ImageConfig) artwork.ProcessOptions {
	return artwork.ProcessOptions{
		CropBorders:  img.CropBorders,
		CropExtra:    img.CropExtra,
		Contrast:     img.Contrast,
		PaletteLimit: int(img.LimitColors),
		ShowClock:    img.Clock,
		ClockAlign:   img.ClockAlign,
		ShowText:     img.ShowText,
		Lyrics:       img.Lyrics,
	}
}

// fontPalette parses the configured text colors. Entries were checked by
// Validate; anything unparsable is skipped.
func fontPalette(hexes []string) []artwork.Color {
	colors := make([]artwork.Color, 0, len(hexes))
	for _, h := range hexes {
		c, err := artwork.ParseColor(h)
		if err != nil {
			log.Warn().Err(err).Msg("Skipping font palette entry")
			continue
		}
		colors = append(colors, c)
	}
	return colors
}

// engineOptions maps the image config onto engine options.
func engineOptions(img config.ImageConfig) []artwork.EngineOption {
	var opts []artwork.EngineOption
	if palette := fontPalette(img.FontPalette); len(palette) > 0 {
		opts = append(opts, artwork.WithFontPalette(palette))
	}
	return opts
}

// newPipeline wires every configured provider into a resolver. mpdClient may be nil.
func newPipeline(ctx context.Context, cfg *config.Config, mpdClient *mpd.Client, extra ...artwork.ResolverOption) (*pipeline, error) {
	cache := artwork.NewCache(cfg.Cache.Size)
	pool := artwork.NewPool(artwork.NewEngine(engineOptions(cfg.Image)...), runtime.NumCPU())

	opts := []artwork.ResolverOption{
		artwork.WithFetcher(enrichment.NewDirectClient(enrichment.WithDirectUserAgent(version.UserAgent()))),
		artwork.WithProcessOptions(processOptions(cfg.Image)),
		artwork.WithHostBaseURL(cfg.Host.BaseURL),
		artwork.WithProviderTimeout(cfg.Timeouts.Provider),
		artwork.WithForceAI(cfg.Providers.AI.Force),
	}

	var provider artwork.MPDArtworkProvider
	if mpdClient != nil {
		provider = mpdClient
	}
	if provider != nil || cfg.MPD.MusicDir != "" {
		opts = append(opts, artwork.WithLocalArt(artwork.NewLocalFinder(provider, cfg.MPD.MusicDir)))
	}

	p := cfg.Providers
	if p.Spotify.Enabled() {
		spotify, err := enrichment.NewSpotifyClient(ctx, p.Spotify.ClientID, p.Spotify.ClientSecret)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("spotify: %w", err)
		}
		opts = append(opts, artwork.WithSpotify(spotify))
	}
	if p.Discogs.Enabled() {
		discogs, err := enrichment.NewDiscogsClient(p.Discogs.Token)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("discogs: %w", err)
		}
		opts = append(opts, artwork.WithDiscogs(discogs))
	}
	if p.LastFM.Enabled() {
		lastfm, err := enrichment.NewLastFMClient(p.LastFM.APIKey)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("lastfm: %w", err)
		}
		opts = append(opts, artwork.WithLastFM(lastfm))
	}
	if p.MusicBrainz.Enabled {
		opts = append(opts, artwork.WithMusicBrainz(enrichment.NewReleaseCoverFinder(
			enrichment.NewMusicBrainzClient(),
			enrichment.NewCAAClient(),
		)))
	}
	if p.AI.Enabled {
		var genOpts []enrichment.ImageGenOption
		if p.AI.BaseURL != "" {
			genOpts = append(genOpts, enrichment.WithImageGenBaseURL(p.AI.BaseURL))
		}
		opts = append(opts, artwork.WithGenerator(enrichment.NewImageGenClient(p.AI.Model, genOpts...)))
	}

	log.Info().
		Bool("spotify", p.Spotify.Enabled()).
		Bool("discogs", p.Discogs.Enabled()).
		Bool("lastfm", p.LastFM.Enabled()).
		Bool("musicbrainz", p.MusicBrainz.Enabled).
		Bool("ai", p.AI.Enabled).
		Bool("local", mpdClient != nil || cfg.MPD.MusicDir != "").
		Msg("Artwork providers")

	return &pipeline{
		cache:    cache,
		pool:     pool,
		resolver: artwork.NewResolver(cache, pool, append(opts, extra...)...),
	}, nil
}
