package cache

const (
	headSlot int32 = 0 // sentinel before the most recently used entry
	tailSlot int32 = 1 // sentinel after the least recently used entry
	nilSlot  int32 = -1
)

// entry is one arena slot. Links are slot indices, not pointers.
type entry struct {
	key   string
	asset Asset
	prev  int32
	next  int32
}

// arena stores entries in a slice and threads the recency list through them.
// Slots 0 and 1 are the sentinels and are never handed out by alloc.
type arena struct {
	slots []entry
	free  []int32
}

func newArena(capacity int) *arena {
	a := &arena{slots: make([]entry, 2, capacity+3)}
	a.slots[headSlot] = entry{prev: nilSlot, next: tailSlot}
	a.slots[tailSlot] = entry{prev: headSlot, next: nilSlot}
	return a
}

// alloc returns an unlinked slot holding key and asset.
func (a *arena) alloc(key string, asset Asset) int32 {
	e := entry{key: key, asset: asset, prev: nilSlot, next: nilSlot}
	if n := len(a.free); n > 0 {
		i := a.free[n-1]
		a.free = a.free[:n-1]
		a.slots[i] = e
		return i
	}
	a.slots = append(a.slots, e)
	return int32(len(a.slots) - 1)
}

// release unlinks slot i and puts it on the free list.
func (a *arena) release(i int32) {
	a.unlink(i)
	a.slots[i] = entry{prev: nilSlot, next: nilSlot}
	a.free = append(a.free, i)
}

// unlink removes slot i from the recency list. Unlinked slots are ignored.
func (a *arena) unlink(i int32) {
	e := &a.slots[i]
	if e.prev == nilSlot || e.next == nilSlot {
		return
	}
	a.slots[e.prev].next = e.next
	a.slots[e.next].prev = e.prev
	e.prev, e.next = nilSlot, nilSlot
}

// moveToFront links slot i right after the head sentinel.
func (a *arena) moveToFront(i int32) {
	if a.slots[headSlot].next == i {
		return
	}
	a.unlink(i)
	first := a.slots[headSlot].next
	a.slots[i].prev = headSlot
	a.slots[i].next = first
	a.slots[first].prev = i
	a.slots[headSlot].next = i
}

// front returns the most recently used slot, or tailSlot when empty.
func (a *arena) front() int32 {
	return a.slots[headSlot].next
}

// back returns the least recently used slot, or headSlot when empty.
func (a *arena) back() int32 {
	return a.slots[tailSlot].prev
}

func (a *arena) reset() {
	a.slots = a.slots[:2]
	a.free = a.free[:0]
	a.slots[headSlot] = entry{prev: nilSlot, next: tailSlot}
	a.slots[tailSlot] = entry{prev: headSlot, next: nilSlot}
}
