package storage

import (
	"sync/atomic"
)

// ParallelBufferPool shards pages across independent buffer pool
// instances so that concurrent access contends on disjoint latches. Page
// ids map to instances by pageID mod numInstances; the instances'
// allocators only produce ids in their own residue class, so the mapping
// is invertible. The pool itself holds no lock.
type ParallelBufferPool struct {
	instances []*BufferPoolInstance

	// Round-robin cursor for NewPage. Only the starting probe position
	// depends on it, so torn updates under concurrency are harmless; the
	// atomic keeps the race well-defined without a lock.
	nextInstance atomic.Uint32
}

// NewParallelBufferPool creates a pool of numInstances instances with
// poolSize frames each, all backed by the same disk and log managers.
func NewParallelBufferPool(numInstances, poolSize uint32, diskManager DiskManager, logManager *LogManager) (*ParallelBufferPool, error) {
	if numInstances == 0 {
		return nil, NewStorageError(ErrCodeInternal, "NewParallelBufferPool", "instance count must be greater than 0", nil)
	}

	instances := make([]*BufferPoolInstance, numInstances)
	for i := uint32(0); i < numInstances; i++ {
		instance, err := NewBufferPoolInstanceWithIndex(poolSize, numInstances, i, diskManager, logManager)
		if err != nil {
			return nil, err
		}
		instances[i] = instance
	}

	return &ParallelBufferPool{instances: instances}, nil
}

// GetPoolSize returns the total frame count across all instances.
func (pbp *ParallelBufferPool) GetPoolSize() uint32 {
	return uint32(len(pbp.instances)) * pbp.instances[0].GetPoolSize()
}

// GetNumInstances returns the number of instances.
func (pbp *ParallelBufferPool) GetNumInstances() uint32 {
	return uint32(len(pbp.instances))
}

// instanceFor returns the instance owning pageID.
func (pbp *ParallelBufferPool) instanceFor(pageID int32) *BufferPoolInstance {
	return pbp.instances[uint32(pageID)%uint32(len(pbp.instances))]
}

// NewPage probes the instances in round-robin order starting at the
// cursor and returns the first successful allocation. The cursor advances
// by exactly one per call regardless of which instance succeeded, so a
// congested instance cannot trap it. Returns ErrNoFreeFrames when a full
// sweep finds no frame.
func (pbp *ParallelBufferPool) NewPage() (*Page, error) {
	numInstances := uint32(len(pbp.instances))
	start := pbp.nextInstance.Load()
	pbp.nextInstance.Store((start + 1) % numInstances)

	for i := uint32(0); i < numInstances; i++ {
		instance := pbp.instances[(start+i)%numInstances]
		page, err := instance.NewPage()
		if err == nil {
			return page, nil
		}
		if !IsErrorCode(err, ErrCodeNoFreeFrames) {
			return nil, err
		}
	}

	return nil, ErrNoFreeFrames("NewPage")
}

// FetchPage dispatches to the instance owning pageID.
func (pbp *ParallelBufferPool) FetchPage(pageID int32) (*Page, error) {
	return pbp.instanceFor(pageID).FetchPage(pageID)
}

// UnpinPage dispatches to the instance owning pageID.
func (pbp *ParallelBufferPool) UnpinPage(pageID int32, isDirty bool) bool {
	return pbp.instanceFor(pageID).UnpinPage(pageID, isDirty)
}

// FlushPage dispatches to the instance owning pageID.
func (pbp *ParallelBufferPool) FlushPage(pageID int32) bool {
	if pageID == InvalidPageID {
		return false
	}
	return pbp.instanceFor(pageID).FlushPage(pageID)
}

// DeletePage dispatches to the instance owning pageID.
func (pbp *ParallelBufferPool) DeletePage(pageID int32) bool {
	return pbp.instanceFor(pageID).DeletePage(pageID)
}

// FlushAllPages flushes every instance.
func (pbp *ParallelBufferPool) FlushAllPages() {
	for _, instance := range pbp.instances {
		instance.FlushAllPages()
	}
}
