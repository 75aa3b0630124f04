package artwork

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-pixel/internal/infra/enrichment"
)

const (
	// ForcedAITimeout bounds AI generation when it is the requested source.
	ForcedAITimeout = 25 * time.Second
	// FallbackAITimeout bounds AI generation after the catalogs failed.
	FallbackAITimeout = 20 * time.Second
	// ReleaseDBTimeout bounds the MusicBrainz + Cover Art Archive lookup.
	ReleaseDBTimeout = 10 * time.Second
	// DefaultProviderTimeout bounds every other catalog lookup.
	DefaultProviderTimeout = 10 * time.Second
)

// Provider names reported in Artifact.Source and attempt logs.
const (
	ProviderAI          = "ai"
	ProviderDirect      = "direct"
	ProviderLocal       = "local"
	ProviderSpotify     = "spotify"
	ProviderDiscogs     = "discogs"
	ProviderLastFM      = "lastfm"
	ProviderMusicBrainz = "musicbrainz"
	ProviderLastResort  = "last_resort"
)

// ImageFetcher downloads an image by URL.
type ImageFetcher interface {
	Fetch(ctx context.Context, url string) (*enrichment.FetchResult, error)
}

// CoverFinder looks up a cover URL in a catalog.
type CoverFinder interface {
	FindCover(ctx context.Context, artist, title string) (*enrichment.Cover, error)
}

// ImageGenerator produces an image from track metadata.
type ImageGenerator interface {
	Generate(ctx context.Context, artist, title string) (*enrichment.FetchResult, error)
}

// LocalArtFinder resolves non-HTTP art references.
type LocalArtFinder interface {
	Find(ctx context.Context, ref string) ([]byte, string, error)
}

// Outcome is the result class of one provider attempt.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeTimeout  Outcome = "timeout"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeCanceled Outcome = "canceled"
)

// Attempt records one step of the chain.
type Attempt struct {
	Provider  string
	Candidate string
	Outcome   Outcome
	Duration  time.Duration
	Err       error
}

// level maps an attempt onto a log level: expected misses stay at debug,
// transient provider trouble and timeouts warn.
func (a Attempt) level() zerolog.Level {
	switch a.Outcome {
	case OutcomeSuccess:
		return zerolog.InfoLevel
	case OutcomeTimeout:
		return zerolog.WarnLevel
	case OutcomeFailure:
		switch {
		case enrichment.IsPermanentError(a.Err), errors.Is(a.Err, ErrNoArtwork):
			return zerolog.DebugLevel
		case enrichment.IsTemporaryError(a.Err):
			return zerolog.WarnLevel
		default:
			return zerolog.InfoLevel
		}
	default:
		return zerolog.DebugLevel
	}
}

func (a Attempt) log(album string) {
	log.WithLevel(a.level()).
		Str("provider", a.Provider).
		Str("album", album).
		Str("candidate", a.Candidate).
		Str("outcome", string(a.Outcome)).
		Bool("temporary", enrichment.IsTemporaryError(a.Err)).
		Dur("duration", a.Duration).
		Err(a.Err).
		Msg("Artwork attempt")
}

// Resolver walks the source chain until one source yields an artifact.
type Resolver struct {
	cache     *Cache
	transform Transformer
	fetcher   ImageFetcher
	local     LocalArtFinder

	spotify     CoverFinder
	discogs     CoverFinder
	lastfm      CoverFinder
	musicbrainz CoverFinder
	ai          ImageGenerator

	forceAI         bool
	opts            ProcessOptions
	hostBaseURL     string
	providerTimeout time.Duration
	observe         func(Attempt)
}

// ResolverOption configures a Resolver. Sources that are never set are skipped.
type ResolverOption func(*Resolver)

// WithFetcher sets the HTTP image downloader.
func WithFetcher(f ImageFetcher) ResolverOption {
	return func(r *Resolver) { r.fetcher = f }
}

// WithLocalArt enables MPD and filesystem art references.
func WithLocalArt(f LocalArtFinder) ResolverOption {
	return func(r *Resolver) { r.local = f }
}

// WithSpotify enables the Spotify catalog.
func WithSpotify(f CoverFinder) ResolverOption {
	return func(r *Resolver) { r.spotify = f }
}

// WithDiscogs enables the Discogs catalog.
func WithDiscogs(f CoverFinder) ResolverOption {
	return func(r *Resolver) { r.discogs = f }
}

// WithLastFM enables the Last.fm catalog.
func WithLastFM(f CoverFinder) ResolverOption {
	return func(r *Resolver) { r.lastfm = f }
}

// WithMusicBrainz enables the MusicBrainz / Cover Art Archive lookup.
func WithMusicBrainz(f CoverFinder) ResolverOption {
	return func(r *Resolver) { r.musicbrainz = f }
}

// WithGenerator enables AI generation as a fallback.
func WithGenerator(g ImageGenerator) ResolverOption {
	return func(r *Resolver) { r.ai = g }
}

// WithForceAI tries AI generation before every other source for every track.
// Descriptors can request the same per event with Flags.ForceAIOnly.
func WithForceAI(force bool) ResolverOption {
	return func(r *Resolver) { r.forceAI = force }
}

// WithProcessOptions sets the transform options applied to every image.
func WithProcessOptions(opts ProcessOptions) ResolverOption {
	return func(r *Resolver) { r.opts = opts }
}

// WithHostBaseURL sets the prefix for host-relative art references.
func WithHostBaseURL(base string) ResolverOption {
	return func(r *Resolver) { r.hostBaseURL = strings.TrimSuffix(base, "/") }
}

// WithProviderTimeout bounds each catalog lookup.
func WithProviderTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.providerTimeout = d
		}
	}
}

// WithAttemptObserver receives every attempt after it is logged.
func WithAttemptObserver(fn func(Attempt)) ResolverOption {
	return func(r *Resolver) { r.observe = fn }
}

// NewResolver creates a resolver over cache and transform.
func NewResolver(cache *Cache, transform Transformer, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		cache:           cache,
		transform:       transform,
		providerTimeout: DefaultProviderTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fetcher == nil {
		r.fetcher = enrichment.NewDirectClient()
	}
	return r
}

// step is one source in the chain. fetch returns raw image bytes and a
// description of where they came from.
type step struct {
	name    string
	timeout time.Duration
	fetch   func(ctx context.Context) ([]byte, string, error)
}

// Resolve returns exactly one artifact for desc. The only errors are ctx errors,
// in which case the caller must discard the job.
func (r *Resolver) Resolve(ctx context.Context, desc MediaDescriptor) (*Artifact, error) {
	key := KeyFor(desc)
	cacheable := key != "" && !desc.Flags.Slideshow

	if cacheable {
		if art, ok := r.cache.Get(key); ok {
			log.Debug().Str("album", string(key)).Str("source", art.Source).Msg("Artwork cache hit")
			return art, nil
		}
	}

	opts := r.opts
	opts.RadioLogo = desc.Flags.IsRadio && desc.Flags.RadioHasLogo
	opts.TVIcon = desc.Flags.IsTV

	var lastResort string
	forcedAI := r.ai != nil && (r.forceAI || desc.Flags.ForceAIOnly) && !desc.Flags.IsRadio
	hasQuery := strings.TrimSpace(desc.Artist) != "" || strings.TrimSpace(desc.Title) != ""

	var steps []step
	if forcedAI {
		steps = append(steps, r.aiStep(desc, ForcedAITimeout))
	}
	if s, ok := r.directStep(desc); ok {
		steps = append(steps, s)
	}
	if hasQuery {
		if r.spotify != nil {
			steps = append(steps, r.catalogStep(ProviderSpotify, r.spotify, r.providerTimeout, desc, &lastResort))
		}
		if r.discogs != nil {
			steps = append(steps, r.catalogStep(ProviderDiscogs, r.discogs, r.providerTimeout, desc, nil))
		}
		if r.lastfm != nil {
			steps = append(steps, r.catalogStep(ProviderLastFM, r.lastfm, r.providerTimeout, desc, nil))
		}
		if r.musicbrainz != nil {
			steps = append(steps, r.catalogStep(ProviderMusicBrainz, r.musicbrainz, ReleaseDBTimeout, desc, nil))
		}
		if r.ai != nil && !forcedAI {
			steps = append(steps, r.aiStep(desc, FallbackAITimeout))
		}
	}
	steps = append(steps, step{
		name:    ProviderLastResort,
		timeout: r.providerTimeout,
		fetch: func(ctx context.Context) ([]byte, string, error) {
			if lastResort == "" {
				return nil, "", errSkip
			}
			return r.download(ctx, lastResort)
		},
	})

	for _, s := range steps {
		art, err := r.attempt(ctx, s, opts, string(key))
		if err != nil {
			return nil, err
		}
		if art == nil {
			continue
		}

		if cacheable && !r.cache.PutIf(key, art, func() bool { return ctx.Err() == nil }) {
			return nil, ctx.Err()
		}
		return art, nil
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log.Info().Str("album", string(key)).Msg("All artwork sources failed, using fallback")
	return Fallback(), nil
}

// errSkip marks a step with nothing to try.
var errSkip = errors.New("skipped")

// attempt runs one step under its own deadline. A nil artifact with a nil error
// means the chain should move on.
func (r *Resolver) attempt(ctx context.Context, s step, opts ProcessOptions, album string) (*Artifact, error) {
	a := Attempt{Provider: s.name}
	defer func() {
		a.log(album)
		if r.observe != nil {
			r.observe(a)
		}
	}()

	if err := ctx.Err(); err != nil {
		a.Outcome = OutcomeCanceled
		return nil, err
	}

	stepCtx, cancel := ctx, context.CancelFunc(func() {})
	if s.timeout > 0 {
		stepCtx, cancel = context.WithTimeout(ctx, s.timeout)
	}
	defer cancel()

	start := time.Now()
	data, candidate, err := safeFetch(stepCtx, s.fetch)
	a.Candidate = candidate
	a.Duration = time.Since(start)

	switch {
	case ctx.Err() != nil:
		a.Outcome = OutcomeCanceled
		return nil, ctx.Err()
	case errors.Is(err, errSkip):
		a.Outcome = OutcomeSkipped
		return nil, nil
	case err != nil && (errors.Is(err, context.DeadlineExceeded) || stepCtx.Err() != nil):
		a.Outcome, a.Err = OutcomeTimeout, err
		return nil, nil
	case err != nil:
		a.Outcome, a.Err = OutcomeFailure, err
		return nil, nil
	}

	art, err := safeProcess(ctx, r.transform, data, opts)
	a.Duration = time.Since(start)
	if ctx.Err() != nil {
		a.Outcome = OutcomeCanceled
		return nil, ctx.Err()
	}
	if err != nil || art == nil {
		if err == nil {
			err = ErrNoArtwork
		}
		a.Outcome, a.Err = OutcomeFailure, fmt.Errorf("transform: %w", err)
		return nil, nil
	}

	art.Source = s.name
	a.Outcome = OutcomeSuccess
	return art, nil
}

func (r *Resolver) directStep(desc MediaDescriptor) (step, bool) {
	ref := strings.TrimSpace(desc.ArtRef)
	if ref == "" || (desc.Flags.IsRadio && !desc.Flags.RadioHasLogo) {
		return step{}, false
	}

	switch {
	case strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://"):
		return step{name: ProviderDirect, fetch: func(ctx context.Context) ([]byte, string, error) {
			return r.download(ctx, ref)
		}}, true
	case strings.HasPrefix(ref, "/") && r.hostBaseURL != "":
		u := r.hostBaseURL + ref
		return step{name: ProviderDirect, fetch: func(ctx context.Context) ([]byte, string, error) {
			return r.download(ctx, u)
		}}, true
	case IsLocalRef(ref) && r.local != nil:
		return step{name: ProviderLocal, fetch: func(ctx context.Context) ([]byte, string, error) {
			data, origin, err := r.local.Find(ctx, ref)
			if origin == "" {
				origin = ref
			}
			return data, origin, err
		}}, true
	default:
		return step{}, false
	}
}

// catalogStep looks up a cover URL and downloads it. When lastResort is set the
// finder's LastResortURL is remembered there.
func (r *Resolver) catalogStep(name string, f CoverFinder, timeout time.Duration, desc MediaDescriptor, lastResort *string) step {
	return step{name: name, timeout: timeout, fetch: func(ctx context.Context) ([]byte, string, error) {
		cover, err := f.FindCover(ctx, desc.Artist, desc.Title)
		if err != nil {
			return nil, "", err
		}
		if lastResort != nil && cover.LastResortURL != "" {
			*lastResort = cover.LastResortURL
		}
		if cover.URL == "" {
			return nil, "", ErrNoArtwork
		}
		if err := ctx.Err(); err != nil {
			return nil, cover.URL, err
		}
		return r.download(ctx, cover.URL)
	}}
}

func (r *Resolver) aiStep(desc MediaDescriptor, timeout time.Duration) step {
	return step{name: ProviderAI, timeout: timeout, fetch: func(ctx context.Context) ([]byte, string, error) {
		res, err := r.ai.Generate(ctx, desc.Artist, desc.Title)
		if err != nil {
			return nil, "", err
		}
		return res.Data, res.URL, nil
	}}
}

func (r *Resolver) download(ctx context.Context, url string) ([]byte, string, error) {
	res, err := r.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, url, err
	}
	return res.Data, url, nil
}

// safeFetch turns a panicking source into a failed attempt.
func safeFetch(ctx context.Context, fetch func(context.Context) ([]byte, string, error)) (data []byte, candidate string, err error) {
	defer func() {
		if p := recover(); p != nil {
			data, err = nil, fmt.Errorf("source panic: %v", p)
		}
	}()
	return fetch(ctx)
}

func safeProcess(ctx context.Context, t Transformer, data []byte, opts ProcessOptions) (art *Artifact, err error) {
	defer func() {
		if p := recover(); p != nil {
			art, err = nil, fmt.Errorf("transform panic: %v", p)
		}
	}()
	return t.Process(ctx, data, opts)
}
