// Package nowplaying supervises artwork resolution per display device.
package nowplaying

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/edumarques81/stellar-pixel/internal/domain/artwork"
)

// DefaultJobTimeout bounds a whole resolve-transform-render job.
const DefaultJobTimeout = 45 * time.Second

// ErrClosed is the error of jobs submitted after Close.
var ErrClosed = errors.New("supervisor closed")

// Resolver produces the artifact for a descriptor.
type Resolver interface {
	Resolve(ctx context.Context, desc artwork.MediaDescriptor) (*artwork.Artifact, error)
}

// Renderer delivers an artifact to a device or client.
type Renderer interface {
	Render(ctx context.Context, deviceID string, art *artwork.Artifact) error
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(ctx context.Context, deviceID string, art *artwork.Artifact) error

// Render calls f.
func (f RendererFunc) Render(ctx context.Context, deviceID string, art *artwork.Artifact) error {
	return f(ctx, deviceID, art)
}

type device struct {
	render  sync.Mutex
	current *Job
}

// Supervisor keeps at most one running job per device. A new track change
// cancels the device's previous job before starting the next one.
type Supervisor struct {
	resolver  Resolver
	renderers []Renderer
	timeout   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	devices map[string]*device
	closed  bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithJobTimeout sets the overall deadline of each job.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRenderers adds renderers that receive every completed artifact.
func WithRenderers(r ...Renderer) Option {
	return func(s *Supervisor) {
		s.renderers = append(s.renderers, r...)
	}
}

// NewSupervisor creates a supervisor over resolver.
func NewSupervisor(resolver Resolver, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Supervisor{
		resolver: resolver,
		timeout:  DefaultJobTimeout,
		ctx:      ctx,
		cancel:   cancel,
		devices:  make(map[string]*device),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TrackChanged starts a job for the device's new track. Repeated events for the
// track of the current running or completed job return that job unchanged.
func (s *Supervisor) TrackChanged(deviceID string, desc artwork.MediaDescriptor) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		job := newJob(deviceID, desc, func() {})
		job.finish(StateCanceled, nil, ErrClosed)
		return job
	}

	d, ok := s.devices[deviceID]
	if !ok {
		d = &device{}
		s.devices[deviceID] = d
	}

	if cur := d.current; cur != nil {
		if st := cur.State(); cur.Descriptor.SameTrack(desc) && st == StateRunning {
			log.Debug().
				Str("device", deviceID).
				Str("job", cur.ID).
				Msg("Duplicate track change ignored")
			return cur
		}
		cur.Cancel()
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.timeout)
	job := newJob(deviceID, desc, cancel)
	d.current = job

	log.Info().
		Str("device", deviceID).
		Str("job", job.ID).
		Str("artist", desc.Artist).
		Str("title", desc.Title).
		Str("album", desc.Album).
		Msg("Track changed")

	s.wg.Add(1)
	go s.run(ctx, d, job)
	return job
}

// Current returns the device's most recent job, or nil when the device is idle.
func (s *Supervisor) Current(deviceID string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.devices[deviceID]; ok {
		return d.current
	}
	return nil
}

// Close cancels every job and waits for them to finish.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	return nil
}

func (s *Supervisor) run(ctx context.Context, d *device, job *Job) {
	defer s.wg.Done()
	defer job.cancel()

	art, err := s.resolve(ctx, job)
	if err != nil {
		s.abandon(ctx, job, err)
		return
	}

	d.render.Lock()
	defer d.render.Unlock()

	// a newer job may have started while this one was resolving
	if err := ctx.Err(); err != nil {
		s.abandon(ctx, job, err)
		return
	}

	var renderErr error
	for _, r := range s.renderers {
		if err := r.Render(ctx, job.DeviceID, art); err != nil {
			if ctx.Err() != nil {
				s.abandon(ctx, job, ctx.Err())
				return
			}
			log.Error().Err(err).Str("device", job.DeviceID).Str("job", job.ID).Msg("Render failed")
			renderErr = errors.Join(renderErr, err)
		}
	}

	if renderErr != nil {
		job.finish(StateFailed, art, renderErr)
		return
	}

	log.Info().
		Str("device", job.DeviceID).
		Str("job", job.ID).
		Str("source", art.Source).
		Bool("fallback", art.Fallback).
		Dur("elapsed", job.Elapsed()).
		Msg("Artwork rendered")
	job.finish(StateCompleted, art, nil)
}

// resolve recovers a panicking resolver so the supervisor keeps accepting events.
func (s *Supervisor) resolve(ctx context.Context, job *Job) (art *artwork.Artifact, err error) {
	defer func() {
		if p := recover(); p != nil {
			art, err = nil, fmt.Errorf("resolver panic: %v", p)
		}
	}()
	art, err = s.resolver.Resolve(ctx, job.Descriptor)
	if err == nil && art == nil {
		err = artwork.ErrNoArtwork
	}
	return art, err
}

func (s *Supervisor) abandon(ctx context.Context, job *Job, err error) {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		log.Warn().
			Str("device", job.DeviceID).
			Str("job", job.ID).
			Dur("timeout", s.timeout).
			Msg("Artwork job timed out")
		job.finish(StateTimedOut, nil, ctx.Err())
	case ctx.Err() != nil:
		log.Debug().Str("device", job.DeviceID).Str("job", job.ID).Msg("Artwork job canceled")
		job.finish(StateCanceled, nil, ctx.Err())
	default:
		log.Error().Err(err).Str("device", job.DeviceID).Str("job", job.ID).Msg("Artwork job failed")
		job.finish(StateFailed, nil, err)
	}
}
