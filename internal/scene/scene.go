package scene

import (
	"context"
	"fmt"
	"io"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/fuabioo/atlascache/internal/asset"
	"github.com/fuabioo/atlascache/internal/cache"
	"github.com/sirupsen/logrus"
)

// Sprite is a drawn texture. It holds one reference on its texture for as
// long as it is on screen.
type Sprite struct {
	Layer   string
	Texture *asset.Texture
	X, Y    int
	Cached  bool
}

// FrameStats counts what one Draw did.
type FrameStats struct {
	Requests   int `json:"requests"`
	Hits       int `json:"hits"`
	Misses     int `json:"misses"`
	Puts       int `json:"puts"`
	Rejected   int `json:"rejected"`
	LoadErrors int `json:"load_errors"`
}

// Scene draws sprites from random bundle frames, going through the cache
// before every load. All cache access happens on the goroutine calling Draw,
// Clear and Refresh.
type Scene struct {
	layout Layout
	cache  *cache.LRU
	assets *asset.Manager
	loader *asset.Loader
	rng    *gofakeit.Faker
	log    logrus.FieldLogger

	frames  map[string][]string
	sprites []Sprite
}

// Options tune a Scene.
type Options struct {
	// Seed makes frame picks and placement reproducible. Zero picks a
	// random seed.
	Seed uint64
	// Concurrency bounds parallel loads.
	Concurrency int
	Logger      logrus.FieldLogger
}

// New creates an empty scene drawing layout through c and m.
func New(layout Layout, c *cache.LRU, m *asset.Manager, opts Options) *Scene {
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Scene{
		layout: layout,
		cache:  c,
		assets: m,
		loader: asset.NewLoader(m, opts.Concurrency),
		rng:    gofakeit.New(opts.Seed),
		log:    log,
		frames: make(map[string][]string),
	}
}

// Sprites returns the sprites currently on screen.
func (s *Scene) Sprites() []Sprite {
	return s.sprites
}

// Draw adds one sprite per layer slot. Frames already in the cache are
// reused; the rest are loaded concurrently and put into the cache as they
// complete. A sprite whose texture the cache rejects is still drawn. Once
// ctx is cancelled the textures still arriving are released undrawn.
func (s *Scene) Draw(ctx context.Context) (FrameStats, error) {
	var st FrameStats
	var reqs []asset.Request
	var names []string

	for _, layer := range s.layout.Layers {
		frames, err := s.bundleFrames(ctx, layer.Bundle)
		if err != nil {
			return st, err
		}
		for j := 0; j < layer.Sprites; j++ {
			path := frames[s.rng.Number(0, len(frames)-1)]
			st.Requests++

			if a, ok := s.cache.Get(asset.Key(layer.Bundle, path)); ok {
				st.Hits++
				s.attach(layer.Name, a.(*asset.Texture), true)
				continue
			}
			st.Misses++
			reqs = append(reqs, asset.Request{Bundle: layer.Bundle, Path: path, Slot: len(reqs)})
			names = append(names, layer.Name)
		}
	}

	for r := range s.loader.Start(ctx, reqs) {
		if ctx.Err() != nil {
			// duplicates of a dropped texture arrive here too, so only
			// this goroutine decides whether it is freed
			if r.Texture != nil {
				s.assets.Release(r.Texture)
			}
			continue
		}
		if r.Err != nil {
			st.LoadErrors++
			s.log.WithError(r.Err).WithField("asset", r.Bundle+"/"+r.Path).Warn("load failed")
			continue
		}
		// the sprite takes its reference before the cache sees the texture
		sp := s.attach(names[r.Slot], r.Texture, false)
		st.Puts++
		if err := s.cache.Put(r.Texture.ID(), r.Texture); err != nil {
			s.log.WithError(err).Debug("drawing uncached sprite")
			st.Rejected++
			continue
		}
		sp.Cached = true
	}
	return st, ctx.Err()
}

// Clear removes every sprite, giving back its texture reference.
func (s *Scene) Clear() {
	for _, sp := range s.sprites {
		sp.Texture.DecRef()
		s.assets.Release(sp.Texture)
	}
	s.sprites = s.sprites[:0]
}

// Refresh clears the scene and draws it again with new random frames.
func (s *Scene) Refresh(ctx context.Context) (FrameStats, error) {
	s.Clear()
	return s.Draw(ctx)
}

func (s *Scene) attach(layer string, tex *asset.Texture, cached bool) *Sprite {
	tex.AddRef()
	s.sprites = append(s.sprites, Sprite{
		Layer:   layer,
		Texture: tex,
		X:       s.rng.Number(-s.layout.Width/2, s.layout.Width/2),
		Y:       s.rng.Number(-s.layout.Height/2, s.layout.Height/2),
		Cached:  cached,
	})
	return &s.sprites[len(s.sprites)-1]
}

// bundleFrames lists a bundle once and remembers the result.
func (s *Scene) bundleFrames(ctx context.Context, bundle string) ([]string, error) {
	if frames, ok := s.frames[bundle]; ok {
		return frames, nil
	}
	frames, err := s.assets.Source().List(ctx, bundle)
	if err != nil {
		return nil, fmt.Errorf("failed to list bundle %s: %w", bundle, err)
	}
	if len(frames) == 0 {
		return nil, fmt.Errorf("%w: bundle %s has no frames", asset.ErrAssetNotFound, bundle)
	}
	s.frames[bundle] = frames
	return frames, nil
}
