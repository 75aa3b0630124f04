package mpd

import (
	"sync"
	"time"
)

// DefaultDebounceWindow collapses the burst of events MPD emits on a track change.
const DefaultDebounceWindow = 250 * time.Millisecond

// Debouncer collapses rapid subsystem events into a single callback.
// Only player and playlist changes can change the current song.
type Debouncer struct {
	window   time.Duration
	callback func()

	mu      sync.Mutex
	pending bool
	timer   *time.Timer
	stopped bool
}

// NewDebouncer creates a debouncer with the given window duration.
func NewDebouncer(window time.Duration, callback func()) *Debouncer {
	if window <= 0 {
		window = DefaultDebounceWindow
	}
	return &Debouncer{
		window:   window,
		callback: callback,
	}
}

// Trigger records that the given MPD subsystem has changed.
func (d *Debouncer) Trigger(subsystem string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped {
		return
	}

	switch subsystem {
	case "player", "playlist":
		d.pending = true
	default:
		return
	}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.flush)
}

func (d *Debouncer) flush() {
	d.mu.Lock()
	fire := d.pending && !d.stopped
	d.pending = false
	d.mu.Unlock()

	if fire && d.callback != nil {
		d.callback()
	}
}

// Stop prevents any further callbacks from firing.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.pending = false
}
