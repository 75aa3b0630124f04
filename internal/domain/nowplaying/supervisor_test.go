package nowplaying_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/edumarques81/stellar-pixel/internal/domain/artwork"
	"github.com/edumarques81/stellar-pixel/internal/domain/nowplaying"
)

// fakeResolver counts calls and delegates to fn.
type fakeResolver struct {
	mu    sync.Mutex
	calls []artwork.MediaDescriptor
	fn    func(ctx context.Context, desc artwork.MediaDescriptor) (*artwork.Artifact, error)
}

func (r *fakeResolver) Resolve(ctx context.Context, desc artwork.MediaDescriptor) (*artwork.Artifact, error) {
	r.mu.Lock()
	r.calls = append(r.calls, desc)
	r.mu.Unlock()
	return r.fn(ctx, desc)
}

func (r *fakeResolver) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

// instant resolves every descriptor to an artifact named after its album.
func instant() *fakeResolver {
	return &fakeResolver{fn: func(ctx context.Context, desc artwork.MediaDescriptor) (*artwork.Artifact, error) {
		return &artwork.Artifact{Source: desc.Album}, nil
	}}
}

// blockUntil blocks descriptors for album until ctx ends.
func blockUntil(album string) *fakeResolver {
	return &fakeResolver{fn: func(ctx context.Context, desc artwork.MediaDescriptor) (*artwork.Artifact, error) {
		if desc.Album == album {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &artwork.Artifact{Source: desc.Album}, nil
	}}
}

type renderCall struct {
	device string
	source string
}

type recordingRenderer struct {
	mu    sync.Mutex
	calls []renderCall
	err   error
}

func (r *recordingRenderer) Render(ctx context.Context, deviceID string, art *artwork.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, renderCall{device: deviceID, source: art.Source})
	return r.err
}

func (r *recordingRenderer) Calls() []renderCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]renderCall(nil), r.calls...)
}

func track(album string) artwork.MediaDescriptor {
	return artwork.MediaDescriptor{Artist: "Artist", Title: "Title " + album, Album: album}
}

func wait(t *testing.T, job *nowplaying.Job) nowplaying.State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	state, err := job.Wait(ctx)
	if err != nil {
		t.Fatalf("job %s did not finish: %v", job.ID, err)
	}
	return state
}

func TestSupervisor_CompletesAndRenders(t *testing.T) {
	renderer := &recordingRenderer{}
	sup := nowplaying.NewSupervisor(instant(), nowplaying.WithRenderers(renderer))
	defer sup.Close()

	job := sup.TrackChanged("pixoo", track("Abbey Road"))
	if job.ID == "" {
		t.Error("job should have an ID")
	}
	if state := wait(t, job); state != nowplaying.StateCompleted {
		t.Fatalf("expected completed, got %s (err %v)", state, job.Err())
	}
	if art := job.Artifact(); art == nil || art.Source != "Abbey Road" {
		t.Errorf("unexpected artifact %+v", art)
	}
	calls := renderer.Calls()
	if len(calls) != 1 || calls[0] != (renderCall{"pixoo", "Abbey Road"}) {
		t.Errorf("unexpected renders %v", calls)
	}
	if sup.Current("pixoo") != job {
		t.Error("Current should return the last job")
	}
	if sup.Current("other") != nil {
		t.Error("idle device should have no job")
	}
}

func TestSupervisor_NewTrackCancelsPrevious(t *testing.T) {
	renderer := &recordingRenderer{}
	sup := nowplaying.NewSupervisor(blockUntil("Slow"), nowplaying.WithRenderers(renderer))
	defer sup.Close()

	first := sup.TrackChanged("pixoo", track("Slow"))
	second := sup.TrackChanged("pixoo", track("Fast"))

	if state := wait(t, first); state != nowplaying.StateCanceled {
		t.Errorf("first job: expected canceled, got %s", state)
	}
	if !errors.Is(first.Err(), context.Canceled) {
		t.Errorf("first job error = %v, want context.Canceled", first.Err())
	}
	if first.Artifact() != nil {
		t.Error("canceled job must not keep an artifact")
	}
	if state := wait(t, second); state != nowplaying.StateCompleted {
		t.Errorf("second job: expected completed, got %s", state)
	}

	calls := renderer.Calls()
	if len(calls) != 1 || calls[0].source != "Fast" {
		t.Errorf("only the latest job may render, got %v", calls)
	}
}

func TestSupervisor_DuplicateEventsIgnoredWhileRunning(t *testing.T) {
	release := make(chan struct{})
	resolver := &fakeResolver{fn: func(ctx context.Context, desc artwork.MediaDescriptor) (*artwork.Artifact, error) {
		<-release
		return &artwork.Artifact{Source: desc.Album}, nil
	}}
	renderer := &recordingRenderer{}
	sup := nowplaying.NewSupervisor(resolver, nowplaying.WithRenderers(renderer))
	defer sup.Close()

	first := sup.TrackChanged("pixoo", track("Blue"))
	again := sup.TrackChanged("pixoo", track("Blue"))
	if again != first {
		t.Error("duplicate event while running should return the running job")
	}
	close(release)
	if state := wait(t, first); state != nowplaying.StateCompleted {
		t.Fatalf("expected completed, got %s", state)
	}
	if n := resolver.Calls(); n != 1 {
		t.Errorf("expected 1 resolve while running, got %d", n)
	}

	// a resend after completion (e.g. the display was power cycled) renders again
	after := sup.TrackChanged("pixoo", track("Blue"))
	if after == first {
		t.Fatal("event after completion should start a new job")
	}
	if state := wait(t, after); state != nowplaying.StateCompleted {
		t.Errorf("expected completed, got %s", state)
	}
	if n := resolver.Calls(); n != 2 {
		t.Errorf("expected 2 resolves, got %d", n)
	}
	if n := len(renderer.Calls()); n != 2 {
		t.Errorf("expected 2 renders, got %d", n)
	}
}

func TestSupervisor_Timeout(t *testing.T) {
	renderer := &recordingRenderer{}
	sup := nowplaying.NewSupervisor(blockUntil("Slow"),
		nowplaying.WithRenderers(renderer),
		nowplaying.WithJobTimeout(30*time.Millisecond),
	)
	defer sup.Close()

	job := sup.TrackChanged("pixoo", track("Slow"))
	if state := wait(t, job); state != nowplaying.StateTimedOut {
		t.Errorf("expected timed out, got %s", state)
	}
	if len(renderer.Calls()) != 0 {
		t.Error("timed out job must not render")
	}

	// a timed out job does not suppress a retry of the same track
	if retry := sup.TrackChanged("pixoo", track("Slow")); retry == job {
		t.Error("expected a new job after timeout")
	} else {
		wait(t, retry)
	}
}

func TestSupervisor_RenderErrorDoesNotStopSupervisor(t *testing.T) {
	failing := &recordingRenderer{err: errors.New("device offline")}
	working := &recordingRenderer{}
	sup := nowplaying.NewSupervisor(instant(), nowplaying.WithRenderers(failing, working))
	defer sup.Close()

	job := sup.TrackChanged("pixoo", track("One"))
	if state := wait(t, job); state != nowplaying.StateFailed {
		t.Errorf("expected failed, got %s", state)
	}
	if len(working.Calls()) != 1 {
		t.Error("other renderers should still receive the artifact")
	}

	failing.mu.Lock()
	failing.err = nil
	failing.mu.Unlock()

	next := sup.TrackChanged("pixoo", track("Two"))
	if state := wait(t, next); state != nowplaying.StateCompleted {
		t.Errorf("expected completed, got %s", state)
	}
}

func TestSupervisor_ResolverPanic(t *testing.T) {
	resolver := &fakeResolver{fn: func(ctx context.Context, desc artwork.MediaDescriptor) (*artwork.Artifact, error) {
		if desc.Album == "Bad" {
			panic("boom")
		}
		return &artwork.Artifact{Source: desc.Album}, nil
	}}
	sup := nowplaying.NewSupervisor(resolver)
	defer sup.Close()

	if state := wait(t, sup.TrackChanged("pixoo", track("Bad"))); state != nowplaying.StateFailed {
		t.Errorf("expected failed, got %s", state)
	}
	if state := wait(t, sup.TrackChanged("pixoo", track("Good"))); state != nowplaying.StateCompleted {
		t.Errorf("expected completed, got %s", state)
	}
}

func TestSupervisor_DevicesAreIndependent(t *testing.T) {
	renderer := &recordingRenderer{}
	sup := nowplaying.NewSupervisor(blockUntil("Slow"), nowplaying.WithRenderers(renderer))
	defer sup.Close()

	slow := sup.TrackChanged("kitchen", track("Slow"))
	fast := sup.TrackChanged("office", track("Fast"))

	if state := wait(t, fast); state != nowplaying.StateCompleted {
		t.Errorf("expected completed, got %s", state)
	}
	if slow.State() != nowplaying.StateRunning {
		t.Errorf("other device's job should still run, got %s", slow.State())
	}
}

func TestSupervisor_Close(t *testing.T) {
	sup := nowplaying.NewSupervisor(blockUntil("Slow"))

	running := sup.TrackChanged("pixoo", track("Slow"))
	if err := sup.Close(); err != nil {
		t.Fatal(err)
	}
	if state := running.State(); state != nowplaying.StateCanceled {
		t.Errorf("Close should cancel running jobs, got %s", state)
	}

	late := sup.TrackChanged("pixoo", track("Late"))
	if state := late.State(); state != nowplaying.StateCanceled {
		t.Errorf("job after Close should be canceled, got %s", state)
	}
	if !errors.Is(late.Err(), nowplaying.ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", late.Err())
	}
}

func TestSupervisor_RendersArtifactFromResolver(t *testing.T) {
	cache := artwork.NewCache(5)
	cache.Put("Cached", &artwork.Artifact{Source: artwork.ProviderSpotify, Pixels: make([]byte, artwork.PixelBytes)})
	resolver := artwork.NewResolver(cache, artwork.NewEngine())

	var got *artwork.Artifact
	sup := nowplaying.NewSupervisor(resolver, nowplaying.WithRenderers(nowplaying.RendererFunc(
		func(ctx context.Context, deviceID string, art *artwork.Artifact) error {
			got = art
			return nil
		})))
	defer sup.Close()

	wait(t, sup.TrackChanged("pixoo", track("Cached")))
	if got == nil || got.Source != artwork.ProviderSpotify {
		t.Errorf("expected cached artifact to be rendered, got %+v", got)
	}
}
