package storage

import (
	"sync"
	"time"
)

// BufferPoolInstance is one shard of the buffer pool. It owns a fixed
// array of frames, a free list, a page table, a replacer and a monotonic
// page id allocator, all guarded by a single latch. Page ids allocated by
// this instance are congruent to instanceIndex modulo numInstances, which
// makes the pool-level sharding function invertible.
type BufferPoolInstance struct {
	poolSize      uint32
	numInstances  uint32
	instanceIndex uint32
	nextPageID    int32

	pages     []*Page
	pageTable map[int32]uint32
	freeList  []uint32
	replacer  Replacer

	diskManager DiskManager
	logManager  *LogManager
	metrics     *Metrics

	// Single latch covering all instance state. The replacer has its own
	// mutex but is only ever entered while this latch is held; lock order
	// is latch -> replacer, never the reverse.
	latch sync.Mutex
}

// NewBufferPoolInstance creates a standalone instance (a pool of one).
func NewBufferPoolInstance(poolSize uint32, diskManager DiskManager, logManager *LogManager) (*BufferPoolInstance, error) {
	return NewBufferPoolInstanceWithIndex(poolSize, 1, 0, diskManager, logManager)
}

// NewBufferPoolInstanceWithIndex creates an instance that is shard
// instanceIndex of a pool of numInstances.
func NewBufferPoolInstanceWithIndex(poolSize, numInstances, instanceIndex uint32, diskManager DiskManager, logManager *LogManager) (*BufferPoolInstance, error) {
	if poolSize == 0 {
		return nil, NewStorageError(ErrCodeInternal, "NewBufferPoolInstance", "pool size must be greater than 0", nil)
	}
	if numInstances == 0 {
		return nil, NewStorageError(ErrCodeInternal, "NewBufferPoolInstance", "instance count must be greater than 0", nil)
	}
	if instanceIndex >= numInstances {
		return nil, NewStorageError(ErrCodeInternal, "NewBufferPoolInstance", "instance index must be less than the instance count", nil)
	}

	bpi := &BufferPoolInstance{
		poolSize:      poolSize,
		numInstances:  numInstances,
		instanceIndex: instanceIndex,
		nextPageID:    int32(instanceIndex),
		pages:         make([]*Page, poolSize),
		pageTable:     make(map[int32]uint32),
		freeList:      make([]uint32, 0, poolSize),
		replacer:      NewLRUReplacer(poolSize),
		diskManager:   diskManager,
		logManager:    logManager,
		metrics:       NewMetrics(),
	}

	// Every frame starts on the free list.
	for i := uint32(0); i < poolSize; i++ {
		bpi.pages[i] = newFrame()
		bpi.freeList = append(bpi.freeList, i)
	}

	return bpi, nil
}

// GetPoolSize returns the number of frames in this instance.
func (bpi *BufferPoolInstance) GetPoolSize() uint32 {
	return bpi.poolSize
}

// GetInstanceIndex returns this instance's shard index.
func (bpi *BufferPoolInstance) GetInstanceIndex() uint32 {
	return bpi.instanceIndex
}

// GetMetrics returns the instance metrics.
func (bpi *BufferPoolInstance) GetMetrics() *Metrics {
	return bpi.metrics
}

// NewPage allocates a fresh page id, binds it to a frame and returns the
// pinned frame. The zeroed page is written to disk immediately so the new
// id has an on-disk image. Returns ErrNoFreeFrames when every frame is
// pinned.
func (bpi *BufferPoolInstance) NewPage() (*Page, error) {
	start := time.Now()
	defer func() {
		bpi.metrics.RecordNewPageLatency(time.Since(start))
	}()

	bpi.latch.Lock()
	defer bpi.latch.Unlock()

	// Take the frame before burning a page id: a saturated pool must not
	// advance the allocator.
	frameID, err := bpi.findFrameLocked()
	if err != nil {
		return nil, err
	}

	pageID := bpi.allocatePageLocked()
	page := bpi.pages[frameID]
	page.resetMemory()
	page.pageID = pageID
	page.pinCount.Store(1)
	page.setDirty(false)

	bpi.pageTable[pageID] = frameID
	bpi.replacer.Pin(frameID)
	bpi.metrics.RecordPageAllocation()

	if bpi.logManager != nil {
		if _, err := bpi.logManager.AppendRecord(&LogRecord{Type: LogAllocate, PageID: pageID}); err != nil {
			return nil, err
		}
	}

	if err := bpi.diskManager.WritePage(pageID, page.Data()); err != nil {
		return nil, err
	}

	return page, nil
}

// FetchPage returns the pinned frame holding pageID, reading it from disk
// if it is not resident. Returns ErrNoFreeFrames when the page is not
// resident and every frame is pinned.
func (bpi *BufferPoolInstance) FetchPage(pageID int32) (*Page, error) {
	start := time.Now()
	defer func() {
		bpi.metrics.RecordPageFetchLatency(time.Since(start))
	}()

	bpi.latch.Lock()
	defer bpi.latch.Unlock()

	if frameID, exists := bpi.pageTable[pageID]; exists {
		bpi.metrics.RecordCacheHit()
		page := bpi.pages[frameID]
		page.pin()
		bpi.replacer.Pin(frameID)
		return page, nil
	}

	bpi.metrics.RecordCacheMiss()

	frameID, err := bpi.findFrameLocked()
	if err != nil {
		return nil, err
	}

	page := bpi.pages[frameID]
	if err := bpi.diskManager.ReadPage(pageID, page.Data()); err != nil {
		// The frame was detached from its old page in findFrameLocked;
		// return it to the free list rather than leaving it orphaned.
		page.pageID = InvalidPageID
		bpi.freeList = append(bpi.freeList, frameID)
		return nil, err
	}

	page.pageID = pageID
	page.pinCount.Store(1)
	page.setDirty(false)

	bpi.pageTable[pageID] = frameID
	bpi.replacer.Pin(frameID)

	return page, nil
}

// UnpinPage releases one reference to a resident page, ORing the dirty
// flag into the frame. Returns false if the page is not resident or its
// pin count is already zero.
func (bpi *BufferPoolInstance) UnpinPage(pageID int32, isDirty bool) bool {
	bpi.latch.Lock()
	defer bpi.latch.Unlock()

	frameID, exists := bpi.pageTable[pageID]
	if !exists {
		return false
	}

	page := bpi.pages[frameID]
	if page.GetPinCount() == 0 {
		return false
	}

	if isDirty {
		page.setDirty(true)
	}

	if page.unpin() == 0 {
		bpi.replacer.Unpin(frameID)
	}

	return true
}

// FlushPage writes a resident page to disk and clears its dirty flag.
// Residency and pin count are unchanged. Returns false for an invalid or
// non-resident page id.
func (bpi *BufferPoolInstance) FlushPage(pageID int32) bool {
	bpi.latch.Lock()
	defer bpi.latch.Unlock()

	if pageID == InvalidPageID {
		return false
	}

	frameID, exists := bpi.pageTable[pageID]
	if !exists {
		return false
	}

	bpi.flushFrameLocked(bpi.pages[frameID])
	return true
}

// FlushAllPages writes every resident page to disk in one batch and
// clears the dirty flags.
func (bpi *BufferPoolInstance) FlushAllPages() {
	bpi.latch.Lock()
	defer bpi.latch.Unlock()

	if len(bpi.pageTable) == 0 {
		return
	}

	if bpi.logManager != nil {
		bpi.logManager.Flush()
	}

	writes := make([]PageWrite, 0, len(bpi.pageTable))
	for pageID, frameID := range bpi.pageTable {
		writes = append(writes, PageWrite{
			PageID: pageID,
			Data:   bpi.pages[frameID].Data(),
		})
	}

	if err := bpi.diskManager.WritePagesV(writes); err != nil {
		return
	}

	for _, frameID := range bpi.pageTable {
		page := bpi.pages[frameID]
		if page.IsDirty() {
			bpi.metrics.RecordDirtyPageFlush()
			page.setDirty(false)
		}
	}
}

// DeletePage drops a page from the pool and returns its frame to the free
// list. A non-resident page is trivially deleted (returns true); a pinned
// page cannot be deleted (returns false). A dirty page is written back
// first.
func (bpi *BufferPoolInstance) DeletePage(pageID int32) bool {
	bpi.latch.Lock()
	defer bpi.latch.Unlock()

	frameID, exists := bpi.pageTable[pageID]
	if !exists {
		return true
	}

	page := bpi.pages[frameID]
	if page.GetPinCount() > 0 {
		return false
	}

	if page.IsDirty() {
		bpi.flushFrameLocked(page)
	}

	if bpi.logManager != nil {
		bpi.logManager.AppendRecord(&LogRecord{Type: LogDeallocate, PageID: pageID})
	}
	bpi.diskManager.DeallocatePage(pageID)

	delete(bpi.pageTable, pageID)

	// The frame is resident and unpinned, so it sits in the replacer;
	// remove it before freeing or the replacer would later hand out a
	// free-list frame as a victim.
	bpi.replacer.Pin(frameID)

	page.pageID = InvalidPageID
	page.pinCount.Store(0)
	page.setDirty(false)
	page.resetMemory()

	bpi.freeList = append(bpi.freeList, frameID)
	bpi.metrics.RecordPageDeletion()

	return true
}

// allocatePageLocked hands out the next page id of this shard's arithmetic
// progression. Deallocated ids are never reclaimed.
func (bpi *BufferPoolInstance) allocatePageLocked() int32 {
	pageID := bpi.nextPageID
	bpi.nextPageID += int32(bpi.numInstances)
	return pageID
}

// findFrameLocked returns a frame the caller may overwrite: the front of
// the free list if one is free, otherwise the replacer's victim with its
// old page written back (if dirty) and unmapped.
func (bpi *BufferPoolInstance) findFrameLocked() (uint32, error) {
	if len(bpi.freeList) > 0 {
		frameID := bpi.freeList[0]
		bpi.freeList = bpi.freeList[1:]
		return frameID, nil
	}

	frameID, ok := bpi.replacer.Victim()
	if !ok {
		return 0, ErrNoFreeFrames("findFrame")
	}

	page := bpi.pages[frameID]
	if page.IsDirty() {
		bpi.flushFrameLocked(page)
	}

	delete(bpi.pageTable, page.GetPageId())
	bpi.metrics.RecordPageEviction()

	return frameID, nil
}

// flushFrameLocked writes one frame back to disk and clears its dirty
// flag. The write-ahead log, when attached, is forced first so no page
// image reaches disk ahead of its log records.
func (bpi *BufferPoolInstance) flushFrameLocked(page *Page) {
	start := time.Now()

	if bpi.logManager != nil {
		bpi.logManager.Flush()
	}

	if page.IsDirty() {
		bpi.metrics.RecordDirtyPageFlush()
	}

	bpi.diskManager.WritePage(page.GetPageId(), page.Data())
	page.setDirty(false)

	bpi.metrics.RecordPageFlushLatency(time.Since(start))
}
