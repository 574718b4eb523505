package cache

// Asset is a reference-counted resource owned by an external asset system.
// The cache holds at most one reference per resident entry.
type Asset interface {
	// Name identifies the asset in logs.
	Name() string
	// RefCount returns the number of outstanding claims on the asset.
	RefCount() int
	AddRef()
	DecRef()
}

// Releaser reclaims an asset once its reference count has dropped to zero.
// The cache calls DecRef and then Release; whether the resource is freed is
// up to the Releaser.
type Releaser interface {
	Release(a Asset)
}

// ReleaserFunc adapts a plain function to the Releaser interface.
type ReleaserFunc func(a Asset)

// Release calls f(a).
func (f ReleaserFunc) Release(a Asset) {
	f(a)
}
