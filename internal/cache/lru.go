package cache

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
)

// ErrCapacityExceeded is returned by Put when the cache is full and every
// resident asset is still referenced outside the cache.
var ErrCapacityExceeded = errors.New("cache capacity exceeded")

// Policy selects which entries eviction may consider.
type Policy int

const (
	// PolicyScan walks from the least recently used entry toward the most
	// recently used one and evicts the first asset held only by the cache.
	PolicyScan Policy = iota
	// PolicyStrict only considers the least recently used entry.
	PolicyStrict
)

func (p Policy) String() string {
	switch p {
	case PolicyScan:
		return "scan"
	case PolicyStrict:
		return "strict"
	default:
		return fmt.Sprintf("Policy(%d)", int(p))
	}
}

// ParsePolicy converts a flag value into a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(s) {
	case "scan", "":
		return PolicyScan, nil
	case "strict":
		return PolicyStrict, nil
	default:
		return 0, fmt.Errorf("unknown eviction policy: %s (valid: scan, strict)", s)
	}
}

// Overflow decides what Put does when no entry can be evicted.
type Overflow int

const (
	// OverflowReject fails the Put with ErrCapacityExceeded.
	OverflowReject Overflow = iota
	// OverflowGrow admits one entry beyond capacity. Later Puts shrink the
	// cache back as soon as a victim becomes evictable.
	OverflowGrow
)

func (o Overflow) String() string {
	switch o {
	case OverflowReject:
		return "reject"
	case OverflowGrow:
		return "grow"
	default:
		return fmt.Sprintf("Overflow(%d)", int(o))
	}
}

// ParseOverflow converts a flag value into an Overflow.
func ParseOverflow(s string) (Overflow, error) {
	switch strings.ToLower(s) {
	case "reject", "":
		return OverflowReject, nil
	case "grow":
		return OverflowGrow, nil
	default:
		return 0, fmt.Errorf("unknown overflow policy: %s (valid: reject, grow)", s)
	}
}

// Stats are counters accumulated since the cache was created.
type Stats struct {
	Capacity   int    `json:"capacity"`
	Len        int    `json:"len"`
	Policy     string `json:"policy"`
	Overflow   string `json:"overflow"`
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
	Puts       int64  `json:"puts"`
	Overwrites int64  `json:"overwrites"`
	Evictions  int64  `json:"evictions"`
	Skipped    int64  `json:"skipped_pinned"`
	Rejected   int64  `json:"rejected"`
}

// Option configures an LRU.
type Option func(*LRU)

// WithPolicy sets the eviction policy. The default is PolicyScan.
func WithPolicy(p Policy) Option {
	return func(c *LRU) { c.policy = p }
}

// WithOverflow sets the behavior when no victim exists. The default is
// OverflowReject.
func WithOverflow(o Overflow) Option {
	return func(c *LRU) { c.overflow = o }
}

// WithLogger sets the logger used to report evictions and rejections.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *LRU) {
		if l != nil {
			c.log = l
		}
	}
}

// LRU is a least-recently-used cache of reference-counted assets.
//
// The cache holds exactly one reference on every resident asset. An entry is
// only evicted when that reference is the last one, so assets still used by
// the scene stay tracked. LRU is not safe for concurrent use.
type LRU struct {
	capacity int
	policy   Policy
	overflow Overflow
	releaser Releaser
	log      logrus.FieldLogger

	index map[string]int32
	list  *arena
	stats Stats
}

// New creates a cache that holds at most capacity entries.
// It panics if capacity is less than 1 or releaser is nil.
func New(capacity int, releaser Releaser, opts ...Option) *LRU {
	if capacity < 1 {
		panic(fmt.Sprintf("cache: capacity must be positive, got %d", capacity))
	}
	if releaser == nil {
		panic("cache: nil Releaser")
	}

	discard := logrus.New()
	discard.SetOutput(io.Discard)

	c := &LRU{
		capacity: capacity,
		releaser: releaser,
		log:      discard,
		index:    make(map[string]int32, capacity+1),
		list:     newArena(capacity),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the asset stored under key and marks it as most recently used.
// Reference counts are not touched.
func (c *LRU) Get(key string) (Asset, bool) {
	i, ok := c.index[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.stats.Hits++
	c.list.moveToFront(i)
	return c.list.slots[i].asset, true
}

// Contains reports whether key is resident without changing recency.
func (c *LRU) Contains(key string) bool {
	_, ok := c.index[key]
	return ok
}

// Put stores asset under key, takes one cache reference on it and marks it as
// most recently used. When key already maps to a different asset, the cache
// reference on the old asset is released first.
//
// If key is new and the cache is full, an evictable entry is removed first.
// When none exists, Put returns ErrCapacityExceeded under OverflowReject and
// does not retain asset.
func (c *LRU) Put(key string, asset Asset) error {
	if asset == nil {
		panic("cache: Put with nil asset")
	}
	c.stats.Puts++

	if i, ok := c.index[key]; ok {
		c.stats.Overwrites++
		if old := c.list.slots[i].asset; old != asset {
			asset.AddRef()
			c.list.slots[i].asset = asset
			c.drop(old)
		}
		c.list.moveToFront(i)
		c.shrink(i)
		return nil
	}

	for len(c.index) >= c.capacity {
		if !c.evict(nilSlot, asset) {
			break
		}
	}
	if len(c.index) >= c.capacity && (c.overflow == OverflowReject || len(c.index) > c.capacity) {
		c.stats.Rejected++
		c.log.WithFields(logrus.Fields{
			"key":   key,
			"asset": asset.Name(),
			"len":   len(c.index),
		}).Warn("cache full, every resident asset is pinned")
		return fmt.Errorf("%w: %s", ErrCapacityExceeded, key)
	}

	i := c.list.alloc(key, asset)
	c.index[key] = i
	asset.AddRef()
	c.list.moveToFront(i)
	return nil
}

// Len returns the number of resident entries.
func (c *LRU) Len() int {
	return len(c.index)
}

// Cap returns the configured capacity.
func (c *LRU) Cap() int {
	return c.capacity
}

// Keys returns the resident keys from most to least recently used.
func (c *LRU) Keys() []string {
	out := make([]string, 0, len(c.index))
	for i := c.list.front(); i != tailSlot; i = c.list.slots[i].next {
		out = append(out, c.list.slots[i].key)
	}
	return out
}

// Stats returns a snapshot of the cache counters.
func (c *LRU) Stats() Stats {
	s := c.stats
	s.Capacity = c.capacity
	s.Len = len(c.index)
	s.Policy = c.policy.String()
	s.Overflow = c.overflow.String()
	return s
}

// Close releases the cache reference on every resident asset, least
// recently used first, and empties the cache. The cache stays usable.
func (c *LRU) Close() {
	for i := c.list.back(); i != headSlot; i = c.list.back() {
		e := c.list.slots[i]
		delete(c.index, e.key)
		c.list.release(i)
		c.drop(e.asset)
	}
	c.list.reset()
}

// shrink evicts entries while the cache is above capacity, which can only
// happen under OverflowGrow. The entry at slot protect is never chosen.
func (c *LRU) shrink(protect int32) {
	for len(c.index) > c.capacity {
		if !c.evict(protect, c.list.slots[protect].asset) {
			return
		}
	}
}

// evict removes one entry whose asset is referenced only by the cache.
// The walk starts at the least recently used entry and stops at the head
// sentinel. Entries holding keep, the asset being put, count as pinned. It
// reports whether an entry was removed.
func (c *LRU) evict(protect int32, keep Asset) bool {
	for i := c.list.back(); i != headSlot; i = c.list.slots[i].prev {
		if i == protect {
			continue
		}
		e := c.list.slots[i]
		if e.asset != keep && e.asset.RefCount() == 1 {
			c.stats.Evictions++
			delete(c.index, e.key)
			c.list.release(i)
			c.drop(e.asset)
			c.log.WithFields(logrus.Fields{
				"key":   e.key,
				"asset": e.asset.Name(),
			}).Debug("evicted asset")
			return true
		}
		c.stats.Skipped++
		if c.policy == PolicyStrict {
			return false
		}
	}
	return false
}

// drop gives up the cache reference on a.
func (c *LRU) drop(a Asset) {
	a.DecRef()
	c.releaser.Release(a)
}
