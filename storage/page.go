package storage

import (
	"sync/atomic"
)

// PageSize is the size of a page in bytes: the unit of disk I/O and of
// cache residency.
const PageSize = 4096

// InvalidPageID marks a frame that currently holds no page.
const InvalidPageID int32 = -1

// Page is a single frame of the buffer pool: a fixed-size byte buffer plus
// the residency metadata the pool tracks for it. The metadata is owned by
// the owning instance and mutated only under the instance latch. Callers
// may touch nothing but the byte buffer, bracketed by RLatch/WLatch.
type Page struct {
	data     [PageSize]byte
	pageID   int32
	pinCount atomic.Int32
	dirty    atomic.Bool
	latch    *RWLatch
}

// newFrame creates an empty frame. Frames are born free.
func newFrame() *Page {
	return &Page{
		pageID: InvalidPageID,
		latch:  NewRWLatch(),
	}
}

// GetPageId returns the logical page resident in this frame, or
// InvalidPageID if the frame is free.
func (p *Page) GetPageId() int32 {
	return p.pageID
}

// GetPinCount returns the number of outstanding references to this frame.
func (p *Page) GetPinCount() int32 {
	return p.pinCount.Load()
}

// IsDirty returns whether the buffer has been modified since it was last
// read from or written to disk.
func (p *Page) IsDirty() bool {
	return p.dirty.Load()
}

// Data returns the page buffer. The slice aliases the frame storage and
// remains valid until the caller's next UnpinPage on this page id.
func (p *Page) Data() []byte {
	return p.data[:]
}

// RLatch acquires the content latch in shared mode.
func (p *Page) RLatch() {
	p.latch.RLock()
}

// RUnlatch releases the content latch from shared mode.
func (p *Page) RUnlatch() {
	p.latch.RUnlock()
}

// WLatch acquires the content latch in exclusive mode.
func (p *Page) WLatch() {
	p.latch.Lock()
}

// WUnlatch releases the content latch from exclusive mode.
func (p *Page) WUnlatch() {
	p.latch.Unlock()
}

func (p *Page) setDirty(dirty bool) {
	p.dirty.Store(dirty)
}

func (p *Page) pin() {
	p.pinCount.Add(1)
}

func (p *Page) unpin() int32 {
	return p.pinCount.Add(-1)
}

// resetMemory zeroes the frame buffer.
func (p *Page) resetMemory() {
	clear(p.data[:])
}
