package artwork

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrPoolClosed is returned when submitting work to a closed Pool.
var ErrPoolClosed = errors.New("transform pool closed")

type request struct {
	ctx    context.Context
	data   []byte
	opts   ProcessOptions
	result chan result
}

type result struct {
	art *Artifact
	err error
}

// Pool runs transforms on a fixed set of worker goroutines so CPU-bound work
// never runs on the caller's goroutine.
type Pool struct {
	engine Transformer
	work   chan request
	done   chan struct{}
	group  *errgroup.Group
	once   sync.Once
}

// NewPool starts workers goroutines (runtime.NumCPU() when workers <= 0).
func NewPool(engine Transformer, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	p := &Pool{
		engine: engine,
		work:   make(chan request),
		done:   make(chan struct{}),
		group:  &errgroup.Group{},
	}
	for i := 0; i < workers; i++ {
		p.group.Go(p.worker)
	}
	return p
}

// Process hands the transform to a worker and waits for its result.
func (p *Pool) Process(ctx context.Context, data []byte, opts ProcessOptions) (*Artifact, error) {
	req := request{ctx: ctx, data: data, opts: opts, result: make(chan result, 1)}

	select {
	case p.work <- req:
	case <-p.done:
		return nil, ErrPoolClosed
	case <-ctx.Done():
		return nil, fmt.Errorf("ctx done while waiting for a transform worker: %w", ctx.Err())
	}

	select {
	case res := <-req.result:
		return res.art, res.err
	case <-ctx.Done():
		// the worker finishes on its own; the buffered channel absorbs the result
		return nil, ctx.Err()
	}
}

func (p *Pool) worker() error {
	for {
		select {
		case <-p.done:
			return nil
		case req := <-p.work:
			art, err := p.run(req)
			req.result <- result{art: art, err: err}
		}
	}
}

// run recovers panics so a bad image never takes a worker down.
func (p *Pool) run(req request) (art *Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			art, err = nil, fmt.Errorf("transform panic: %v", r)
		}
	}()
	if err := req.ctx.Err(); err != nil {
		return nil, err
	}
	return p.engine.Process(req.ctx, req.data, req.opts)
}

// Close stops the workers and waits for running transforms to finish.
func (p *Pool) Close() error {
	p.once.Do(func() { close(p.done) })
	return p.group.Wait()
}
