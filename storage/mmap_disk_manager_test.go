//go:build unix

package storage

import (
	"bytes"
	"os"
	"testing"
)

func TestMmapDiskManager(t *testing.T) {
	testFileName := "test_mmap_disk_manager.db"
	defer os.Remove(testFileName)

	dm, err := NewMmapDiskManager(testFileName)
	if err != nil {
		t.Fatalf("Failed to create MmapDiskManager: %v", err)
	}
	defer dm.Close()

	if dm.GetFileSize() < mmapInitialFileSize {
		t.Errorf("Expected backing file of at least %d bytes, got %d", mmapInitialFileSize, dm.GetFileSize())
	}

	// A page that was never written reads back as zeroes
	data := make([]byte, PageSize)
	data[0] = 0xAA
	if err := dm.ReadPage(5, data); err != nil {
		t.Fatalf("Failed to read unwritten page: %v", err)
	}
	for i, b := range data {
		if b != 0 {
			t.Errorf("Expected zero-filled page, got %d at byte %d", b, i)
			break
		}
	}
}

func TestMmapReadWritePage(t *testing.T) {
	testFileName := "test_mmap_read_write.db"
	defer os.Remove(testFileName)

	dm, err := NewMmapDiskManager(testFileName)
	if err != nil {
		t.Fatalf("Failed to create MmapDiskManager: %v", err)
	}
	defer dm.Close()

	testData := make([]byte, PageSize)
	for i := 0; i < PageSize; i++ {
		testData[i] = byte(i % 256)
	}

	if err := dm.WritePage(2, testData); err != nil {
		t.Fatalf("Failed to write page: %v", err)
	}

	readData := make([]byte, PageSize)
	if err := dm.ReadPage(2, readData); err != nil {
		t.Fatalf("Failed to read page: %v", err)
	}

	if !bytes.Equal(readData, testData) {
		t.Error("Page data mismatch after mmap round trip")
	}
}

func TestMmapWritePagesV(t *testing.T) {
	testFileName := "test_mmap_batch.db"
	defer os.Remove(testFileName)

	dm, err := NewMmapDiskManager(testFileName)
	if err != nil {
		t.Fatalf("Failed to create MmapDiskManager: %v", err)
	}
	defer dm.Close()

	writes := make([]PageWrite, 0, 3)
	for i := int32(0); i < 3; i++ {
		writes = append(writes, PageWrite{
			PageID: i,
			Data:   bytes.Repeat([]byte{byte(i + 1)}, PageSize),
		})
	}

	if err := dm.WritePagesV(writes); err != nil {
		t.Fatalf("Failed to batch write pages: %v", err)
	}

	for i := int32(0); i < 3; i++ {
		data := make([]byte, PageSize)
		if err := dm.ReadPage(i, data); err != nil {
			t.Fatalf("Failed to read page %d: %v", i, err)
		}
		if data[0] != byte(i+1) {
			t.Errorf("Page %d contents mismatch after batch write", i)
		}
	}
}

func TestMmapPersistence(t *testing.T) {
	testFileName := "test_mmap_persistence.db"
	defer os.Remove(testFileName)

	dm, err := NewMmapDiskManager(testFileName)
	if err != nil {
		t.Fatalf("Failed to create MmapDiskManager: %v", err)
	}

	payload := bytes.Repeat([]byte{0x77}, PageSize)
	if err := dm.WritePage(0, payload); err != nil {
		t.Fatalf("Failed to write page: %v", err)
	}

	if err := dm.Close(); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}

	// Reopen and verify the page survived
	dm2, err := NewMmapDiskManager(testFileName)
	if err != nil {
		t.Fatalf("Failed to reopen MmapDiskManager: %v", err)
	}
	defer dm2.Close()

	data := make([]byte, PageSize)
	if err := dm2.ReadPage(0, data); err != nil {
		t.Fatalf("Failed to read page: %v", err)
	}
	if !bytes.Equal(data, payload) {
		t.Error("Page contents lost across close and reopen")
	}
}

// TestMmapBackedInstance runs the buffer pool on the mmap disk manager.
func TestMmapBackedInstance(t *testing.T) {
	testFileName := "test_mmap_instance.db"
	defer os.Remove(testFileName)

	dm, err := NewMmapDiskManager(testFileName)
	if err != nil {
		t.Fatalf("Failed to create MmapDiskManager: %v", err)
	}
	defer dm.Close()

	bpi, err := NewBufferPoolInstance(2, dm, nil)
	if err != nil {
		t.Fatalf("Failed to create BufferPoolInstance: %v", err)
	}

	page, err := bpi.NewPage()
	if err != nil {
		t.Fatalf("Failed to create page: %v", err)
	}
	pageID := page.GetPageId()

	copy(page.Data(), bytes.Repeat([]byte{0x3B}, PageSize))
	bpi.UnpinPage(pageID, true)

	// Evict the page through allocation pressure, then bring it back
	p1, err := bpi.NewPage()
	if err != nil {
		t.Fatalf("Failed to create page: %v", err)
	}
	if _, err := bpi.NewPage(); err != nil {
		t.Fatalf("Failed to create page: %v", err)
	}
	bpi.UnpinPage(p1.GetPageId(), false)

	fetched, err := bpi.FetchPage(pageID)
	if err != nil {
		t.Fatalf("Failed to fetch page: %v", err)
	}
	if fetched.Data()[0] != 0x3B || fetched.Data()[PageSize-1] != 0x3B {
		t.Error("Page contents lost across mmap eviction")
	}
}
