package nowplaying

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/edumarques81/stellar-pixel/internal/domain/artwork"
)

// State is the lifecycle state of a Job.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateCanceled  State = "canceled"
	StateTimedOut  State = "timed_out"
	StateFailed    State = "failed"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s != StateRunning
}

// Job is one cancellable resolve-and-render unit tied to a track-change event.
type Job struct {
	ID         string
	DeviceID   string
	Descriptor artwork.MediaDescriptor
	Started    time.Time

	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	state    State
	artifact *artwork.Artifact
	err      error
	finished time.Time
}

func newJob(deviceID string, desc artwork.MediaDescriptor, cancel context.CancelFunc) *Job {
	return &Job{
		ID:         uuid.NewString(),
		DeviceID:   deviceID,
		Descriptor: desc,
		Started:    time.Now(),
		cancel:     cancel,
		done:       make(chan struct{}),
		state:      StateRunning,
	}
}

// Cancel asks the job to stop at its next checkpoint.
func (j *Job) Cancel() {
	j.cancel()
}

// Done is closed when the job reaches a terminal state.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Wait blocks until the job finishes or ctx ends and returns the job state.
func (j *Job) Wait(ctx context.Context) (State, error) {
	select {
	case <-j.done:
		return j.State(), nil
	case <-ctx.Done():
		return j.State(), ctx.Err()
	}
}

// State returns the current state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Artifact returns the rendered artifact, or nil if the job did not render.
func (j *Job) Artifact() *artwork.Artifact {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.artifact
}

// Err returns the error that ended the job, if any.
func (j *Job) Err() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.err
}

// Elapsed returns the job's run time so far.
func (j *Job) Elapsed() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.finished.IsZero() {
		return time.Since(j.Started)
	}
	return j.finished.Sub(j.Started)
}

func (j *Job) finish(state State, art *artwork.Artifact, err error) {
	j.mu.Lock()
	j.state = state
	j.artifact = art
	j.err = err
	j.finished = time.Now()
	j.mu.Unlock()
	close(j.done)
}
