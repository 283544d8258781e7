//go:build unix

package storage

import (
	"fmt"
	"os"
	"sync"

	"golang.org/x/sys/unix"
)

// MmapDiskManager stores pages in a memory-mapped file. Reads and writes
// are plain memory copies against the mapping; Msync pushes dirty mapping
// ranges to the backing file. The mapping grows in fixed increments when a
// write lands past the current file size.
type MmapDiskManager struct {
	file     *os.File
	mmapData []byte
	fileSize int64
	mutex    sync.RWMutex
}

const (
	// Initial file size: 64MB (16K pages * 4KB)
	mmapInitialFileSize = 64 * 1024 * 1024
	// Grow by 64MB when a write lands past the end
	mmapFileGrowSize = 64 * 1024 * 1024
)

// NewMmapDiskManager creates a memory-mapped disk manager.
func NewMmapDiskManager(fileName string) (*MmapDiskManager, error) {
	file, err := os.OpenFile(fileName, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, ErrDiskOperation("NewMmapDiskManager", fmt.Errorf("failed to open/create file %s: %w", fileName, err))
	}

	fileInfo, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, ErrDiskOperation("NewMmapDiskManager", fmt.Errorf("failed to stat file: %w", err))
	}

	fileSize := fileInfo.Size()
	if fileSize < mmapInitialFileSize {
		if err := file.Truncate(mmapInitialFileSize); err != nil {
			file.Close()
			return nil, ErrDiskOperation("NewMmapDiskManager", fmt.Errorf("failed to grow file: %w", err))
		}
		fileSize = mmapInitialFileSize
	}

	dm := &MmapDiskManager{
		file:     file,
		fileSize: fileSize,
	}

	if err := dm.createMapping(); err != nil {
		file.Close()
		return nil, err
	}

	return dm, nil
}

// createMapping maps the whole backing file read-write, shared.
func (dm *MmapDiskManager) createMapping() error {
	data, err := unix.Mmap(int(dm.file.Fd()), 0, int(dm.fileSize),
		unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return ErrDiskOperation("createMapping", fmt.Errorf("failed to map file: %w", err))
	}

	dm.mmapData = data
	return nil
}

// growFile expands the backing file and recreates the mapping. Caller must
// hold the write lock.
func (dm *MmapDiskManager) growFile(requiredSize int64) error {
	if dm.mmapData != nil {
		if err := unix.Munmap(dm.mmapData); err != nil {
			return ErrDiskOperation("growFile", fmt.Errorf("failed to unmap: %w", err))
		}
		dm.mmapData = nil
	}

	newSize := dm.fileSize
	for newSize < requiredSize {
		newSize += mmapFileGrowSize
	}

	if err := dm.file.Truncate(newSize); err != nil {
		dm.createMapping()
		return ErrDiskOperation("growFile", fmt.Errorf("failed to grow file: %w", err))
	}

	dm.fileSize = newSize
	return dm.createMapping()
}

// ReadPage copies a page out of the mapping. Pages past the mapped region
// were never written and read back as zeroes.
func (dm *MmapDiskManager) ReadPage(pageID int32, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("page buffer must be exactly %d bytes, got %d", PageSize, len(data))
	}

	dm.mutex.RLock()
	defer dm.mutex.RUnlock()

	offset := int64(pageID) * PageSize
	if offset+PageSize > dm.fileSize {
		clear(data)
		return nil
	}

	copy(data, dm.mmapData[offset:offset+PageSize])
	return nil
}

// WritePage copies a page into the mapping, growing the file if needed,
// and syncs the written range.
func (dm *MmapDiskManager) WritePage(pageID int32, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("page data must be exactly %d bytes, got %d", PageSize, len(data))
	}

	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	offset := int64(pageID) * PageSize
	if offset+PageSize > dm.fileSize {
		if err := dm.growFile(offset + PageSize); err != nil {
			return err
		}
	}

	copy(dm.mmapData[offset:offset+PageSize], data)
	return dm.syncRange(offset)
}

// WritePagesV writes multiple pages with a single full-mapping sync.
func (dm *MmapDiskManager) WritePagesV(writes []PageWrite) error {
	if len(writes) == 0 {
		return nil
	}

	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	for _, pw := range writes {
		if len(pw.Data) != PageSize {
			return fmt.Errorf("page data must be exactly %d bytes, got %d", PageSize, len(pw.Data))
		}

		offset := int64(pw.PageID) * PageSize
		if offset+PageSize > dm.fileSize {
			if err := dm.growFile(offset + PageSize); err != nil {
				return err
			}
		}

		copy(dm.mmapData[offset:offset+PageSize], pw.Data)
	}

	return unix.Msync(dm.mmapData, unix.MS_SYNC)
}

// syncRange flushes the page-sized range at offset. Msync requires a
// page-aligned slice; PageSize offsets are always aligned.
func (dm *MmapDiskManager) syncRange(offset int64) error {
	if err := unix.Msync(dm.mmapData[offset:offset+PageSize], unix.MS_SYNC); err != nil {
		return ErrDiskOperation("syncRange", fmt.Errorf("failed to msync page at offset %d: %w", offset, err))
	}
	return nil
}

// DeallocatePage is a no-op at the mmap layer. The pool owns page id
// allocation; freed ids are not reclaimed.
func (dm *MmapDiskManager) DeallocatePage(pageID int32) {
}

// GetFileSize returns the current backing file size.
func (dm *MmapDiskManager) GetFileSize() int64 {
	dm.mutex.RLock()
	defer dm.mutex.RUnlock()
	return dm.fileSize
}

// Close syncs the mapping, unmaps it and closes the file.
func (dm *MmapDiskManager) Close() error {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if dm.mmapData != nil {
		if err := unix.Msync(dm.mmapData, unix.MS_SYNC); err != nil {
			return ErrDiskOperation("Close", fmt.Errorf("failed to msync: %w", err))
		}
		if err := unix.Munmap(dm.mmapData); err != nil {
			return ErrDiskOperation("Close", fmt.Errorf("failed to unmap: %w", err))
		}
		dm.mmapData = nil
	}

	if dm.file != nil {
		return dm.file.Close()
	}
	return nil
}
