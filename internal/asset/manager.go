package asset

import (
	"context"
	"io"
	"sort"
	"sync"

	"github.com/fuabioo/atlascache/internal/cache"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Stats describes the textures a Manager has loaded and freed.
type Stats struct {
	Loads         int64 `json:"loads"`
	Reuses        int64 `json:"reuses"`
	Frees         int64 `json:"frees"`
	Resident      int   `json:"resident"`
	ResidentBytes int64 `json:"resident_bytes"`
}

// Manager owns resident textures. Loading a texture that is already
// resident returns the same handle; Release frees a texture once nothing
// references it.
//
// Manager is safe for concurrent use.
type Manager struct {
	src   Source
	log   logrus.FieldLogger
	group singleflight.Group

	mu       sync.Mutex
	resident map[string]*Texture
	stats    Stats
}

var _ cache.Releaser = (*Manager)(nil)

// NewManager creates a Manager loading from src. A nil logger discards
// output.
func NewManager(src Source, log logrus.FieldLogger) *Manager {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	return &Manager{
		src:      src,
		log:      log,
		resident: make(map[string]*Texture),
	}
}

// Source returns the Source the Manager loads from.
func (m *Manager) Source() Source { return m.src }

// Load returns the texture at path inside bundle, decoding it if it is not
// resident. Concurrent loads of the same texture share one decode.
func (m *Manager) Load(ctx context.Context, bundle, path string) (*Texture, error) {
	id := Key(bundle, path)

	m.mu.Lock()
	if t, ok := m.resident[id]; ok {
		m.stats.Reuses++
		m.mu.Unlock()
		return t, nil
	}
	m.mu.Unlock()

	v, err, _ := m.group.Do(id, func() (any, error) {
		info, err := m.src.Open(ctx, bundle, path)
		if err != nil {
			return nil, err
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		if t, ok := m.resident[id]; ok {
			m.stats.Reuses++
			return t, nil
		}
		t := newTexture(bundle, path, info)
		m.resident[id] = t
		m.stats.Loads++
		m.stats.ResidentBytes += info.Bytes
		m.log.WithFields(logrus.Fields{
			"asset": t.Name(),
			"bytes": info.Bytes,
		}).Debug("loaded texture")
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Texture), nil
}

// Release implements cache.Releaser. The texture is freed once its
// reference count has reached zero; otherwise Release does nothing.
func (m *Manager) Release(a cache.Asset) {
	t, ok := a.(*Texture)
	if !ok {
		return
	}
	refs := t.RefCount()
	if refs < 0 {
		m.log.WithFields(logrus.Fields{
			"asset": t.Name(),
			"refs":  refs,
		}).Warn("texture released more often than referenced")
	}
	if refs > 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.resident[t.id]; !ok || cur != t {
		return
	}
	delete(m.resident, t.id)
	m.stats.Frees++
	m.stats.ResidentBytes -= t.info.Bytes
	m.log.WithField("asset", t.Name()).Debug("freed texture")
}

// Resident returns the resident textures sorted by name.
func (m *Manager) Resident() []*Texture {
	m.mu.Lock()
	out := make([]*Texture, 0, len(m.resident))
	for _, t := range m.resident {
		out = append(out, t)
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Lookup returns the resident texture with the given cache key.
func (m *Manager) Lookup(id string) (*Texture, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.resident[id]
	return t, ok
}

// Stats returns a snapshot of the Manager counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.stats
	s.Resident = len(m.resident)
	return s
}
