package storage

// Replacer tracks which frames of a buffer pool instance are eligible for
// eviction and picks a victim on demand. The instance calls into the
// replacer only while holding its own latch; the replacer never calls back
// into the instance, so the lock order instance latch -> replacer latch
// cannot cycle.
type Replacer interface {
	// Victim selects a frame to evict.
	// Returns the frame ID and true if a victim was found, false otherwise.
	Victim() (uint32, bool)

	// Pin marks a frame as in-use (not evictable).
	Pin(frameID uint32)

	// Unpin marks a frame as available for eviction.
	Unpin(frameID uint32)

	// Size returns the number of evictable frames.
	Size() uint32
}
