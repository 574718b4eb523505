package asset

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds the number of decodes a Loader runs at once.
const DefaultConcurrency = 8

// Request asks for the asset at Path inside Bundle. Slot is echoed back in
// the Result so callers can match completions to what they were for.
type Request struct {
	Bundle string
	Path   string
	Slot   int
}

// Result is the completion of one Request.
type Result struct {
	Request
	Texture *Texture
	Err     error
}

// Loader decodes assets concurrently and hands completions back over a
// channel, so a single goroutine can apply them to the scene and cache.
type Loader struct {
	m     *Manager
	limit int
}

// NewLoader returns a Loader running at most limit loads at once.
func NewLoader(m *Manager, limit int) *Loader {
	if limit < 1 {
		limit = DefaultConcurrency
	}
	return &Loader{m: m, limit: limit}
}

// Start launches reqs and returns a channel of results in completion order.
// The channel is closed once every load has finished. When ctx is cancelled
// the remaining loads are skipped, but loads already running still deliver
// their result. The receiver must drain the channel and owns every texture
// it receives, so a cancelled receiver hands them back with Manager.Release.
func (l *Loader) Start(ctx context.Context, reqs []Request) <-chan Result {
	ch := make(chan Result)

	go func() {
		defer close(ch)

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(l.limit)
		for _, req := range reqs {
			if gctx.Err() != nil {
				break
			}
			g.Go(func() error {
				tex, err := l.m.Load(gctx, req.Bundle, req.Path)
				ch <- Result{Request: req, Texture: tex, Err: err}
				// A failed load must not cancel its siblings.
				return nil
			})
		}
		_ = g.Wait()
	}()

	return ch
}
