package asset

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// namespace seeds the name-based UUIDs used as cache keys, so a texture
// reloaded after being freed gets the same key again.
var namespace = uuid.MustParse("7d3c1f4e-2b6a-4c1d-9e8f-0a5b6c7d8e9f")

// Key returns the stable cache key of the asset at path inside bundle.
func Key(bundle, path string) string {
	return uuid.NewSHA1(namespace, []byte(bundle+"/"+path)).String()
}

// Texture is a decoded image resident in memory. Freshly loaded textures
// carry no references; the cache and every sprite using a texture each hold
// one.
type Texture struct {
	id     string
	bundle string
	path   string
	info   Info
	refs   atomic.Int32
}

func newTexture(bundle, path string, info Info) *Texture {
	return &Texture{
		id:     Key(bundle, path),
		bundle: bundle,
		path:   path,
		info:   info,
	}
}

// ID returns the texture's cache key.
func (t *Texture) ID() string { return t.id }

// Bundle returns the bundle the texture was loaded from.
func (t *Texture) Bundle() string { return t.bundle }

// Path returns the texture's path inside its bundle.
func (t *Texture) Path() string { return t.path }

// Info returns the texture's dimensions and format.
func (t *Texture) Info() Info { return t.info }

// Name implements cache.Asset.
func (t *Texture) Name() string { return t.bundle + "/" + t.path }

// RefCount implements cache.Asset.
func (t *Texture) RefCount() int { return int(t.refs.Load()) }

// AddRef implements cache.Asset.
func (t *Texture) AddRef() { t.refs.Add(1) }

// DecRef implements cache.Asset.
func (t *Texture) DecRef() { t.refs.Add(-1) }

func (t *Texture) String() string {
	return fmt.Sprintf("%s (%dx%d %s, refs=%d)", t.Name(), t.info.Width, t.info.Height, t.info.Format, t.RefCount())
}
