// Package cache bounds how many image assets stay resident at once.
//
// The cache is an LRU keyed by asset UUID. Unlike a plain LRU it shares
// ownership of its values with an external reference-counting asset system:
//   - Put takes one reference on the asset; eviction and Close give it back
//   - eviction only removes assets whose sole remaining reference is the
//     cache's own, so sprites still on screen keep their entries
//   - recency is tracked in an arena of slots linked by index, bounded by
//     two sentinel slots that never hold an asset
//
// LRU performs no locking. Callers apply completed loads from a single
// goroutine or guard the cache with their own mutex.
package cache
