package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
)

// DiskManager is the contract the buffer pool consumes for page-granular
// I/O. Implementations must be internally synchronized; the pool calls
// them from several instances without serializing across instances.
//
// Page id allocation is performed by the buffer pool instance, not the
// disk layer, so DeallocatePage may be a no-op.
type DiskManager interface {
	// ReadPage fills data (exactly PageSize bytes) with the on-disk
	// contents of the page. A page that was never written reads back as
	// zeroes.
	ReadPage(pageID int32, data []byte) error

	// WritePage persists data (exactly PageSize bytes) as the new contents
	// of the page.
	WritePage(pageID int32, data []byte) error

	// WritePagesV writes multiple pages in a single batch operation.
	WritePagesV(writes []PageWrite) error

	// DeallocatePage releases a page at the disk layer. The pool makes no
	// further claims about the page's contents afterwards.
	DeallocatePage(pageID int32)

	// Close releases the underlying resources.
	Close() error
}

// PageWrite represents a single page write operation.
type PageWrite struct {
	PageID int32
	Data   []byte
}

// FileDiskManager stores pages in a single file at offset pageID*PageSize.
type FileDiskManager struct {
	file  *os.File
	mutex sync.Mutex
}

// NewFileDiskManager creates a disk manager that manages pages in a file.
func NewFileDiskManager(fileName string) (*FileDiskManager, error) {
	file, err := os.OpenFile(fileName, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, ErrDiskOperation("NewFileDiskManager", fmt.Errorf("failed to open/create file %s: %w", fileName, err))
	}

	return &FileDiskManager{file: file}, nil
}

// ReadPage reads a page from disk given its page ID. Reading past the end
// of the file yields a zero-filled page: a page that has never been
// written has no on-disk image.
func (dm *FileDiskManager) ReadPage(pageID int32, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("page buffer must be exactly %d bytes, got %d", PageSize, len(data))
	}

	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	offset := int64(pageID) * PageSize
	n, err := dm.file.ReadAt(data, offset)
	if err != nil {
		if errors.Is(err, io.EOF) {
			clear(data[n:])
			return nil
		}
		return ErrDiskOperation("ReadPage", fmt.Errorf("failed to read page %d: %w", pageID, err))
	}

	return nil
}

// WritePage writes a page to disk at the specified page ID.
func (dm *FileDiskManager) WritePage(pageID int32, data []byte) error {
	if len(data) != PageSize {
		return fmt.Errorf("page data must be exactly %d bytes, got %d", PageSize, len(data))
	}

	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	offset := int64(pageID) * PageSize
	if _, err := dm.file.WriteAt(data, offset); err != nil {
		return ErrDiskOperation("WritePage", fmt.Errorf("failed to write page %d: %w", pageID, err))
	}

	return dm.file.Sync()
}

// WritePagesV writes multiple pages with a single fsync to amortize the
// sync cost.
func (dm *FileDiskManager) WritePagesV(writes []PageWrite) error {
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
		if _, err := dm.file.WriteAt(pw.Data, offset); err != nil {
			return ErrDiskOperation("WritePagesV", fmt.Errorf("failed to write page %d: %w", pw.PageID, err))
		}
	}

	return dm.file.Sync()
}

// DeallocatePage is a no-op at the file layer. The pool owns page id
// allocation; freed ids are not reclaimed.
func (dm *FileDiskManager) DeallocatePage(pageID int32) {
}

// Close closes the disk manager and its underlying file.
func (dm *FileDiskManager) Close() error {
	if dm.file != nil {
		return dm.file.Close()
	}
	return nil
}
