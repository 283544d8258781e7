package storage

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

// LogType represents the type of log record
type LogType byte

const (
	LogPageImage LogType = iota
	LogAllocate
	LogDeallocate
	LogCheckpoint
)

// String returns string representation of LogType
func (lt LogType) String() string {
	switch lt {
	case LogPageImage:
		return "PAGE_IMAGE"
	case LogAllocate:
		return "ALLOCATE"
	case LogDeallocate:
		return "DEALLOCATE"
	case LogCheckpoint:
		return "CHECKPOINT"
	default:
		return "UNKNOWN"
	}
}

// LogRecord is a single WAL entry. The buffer pool appends allocate and
// deallocate records; it does not log page images or checkpoints itself.
// The surrounding recovery subsystem consumes the records.
type LogRecord struct {
	LSN     uint64 // Log sequence number (unique, monotonic)
	PrevLSN uint64 // Previous LSN for the same page
	Type    LogType
	PageID  int32
	Payload []byte // Page image or empty, depending on Type
}

// logRecordHeaderSize is the fixed part of the serialized record:
// LSN(8) | PrevLSN(8) | Type(1) | PageID(4) | Codec(1) | RawLen(4) | PayloadLen(4)
const logRecordHeaderSize = 30

// serialize converts the record to bytes, compressing the payload with the
// given codec.
func (lr *LogRecord) serialize(codec CompressionCodec) ([]byte, error) {
	payload, err := CompressPayload(codec, lr.Payload)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, logRecordHeaderSize+len(payload))
	offset := 0

	binary.LittleEndian.PutUint64(buf[offset:], lr.LSN)
	offset += 8
	binary.LittleEndian.PutUint64(buf[offset:], lr.PrevLSN)
	offset += 8
	buf[offset] = byte(lr.Type)
	offset += 1
	binary.LittleEndian.PutUint32(buf[offset:], uint32(lr.PageID))
	offset += 4
	buf[offset] = byte(codec)
	offset += 1
	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(lr.Payload)))
	offset += 4
	binary.LittleEndian.PutUint32(buf[offset:], uint32(len(payload)))
	offset += 4
	copy(buf[offset:], payload)

	return buf, nil
}

// deserializeLogRecord creates a LogRecord from bytes
func deserializeLogRecord(data []byte) (*LogRecord, error) {
	if len(data) < logRecordHeaderSize {
		return nil, fmt.Errorf("data too short for log record: %d bytes (need at least %d)", len(data), logRecordHeaderSize)
	}

	lr := &LogRecord{}
	offset := 0

	lr.LSN = binary.LittleEndian.Uint64(data[offset:])
	offset += 8
	lr.PrevLSN = binary.LittleEndian.Uint64(data[offset:])
	offset += 8
	lr.Type = LogType(data[offset])
	offset += 1
	lr.PageID = int32(binary.LittleEndian.Uint32(data[offset:]))
	offset += 4
	codec := CompressionCodec(data[offset])
	offset += 1
	rawLen := binary.LittleEndian.Uint32(data[offset:])
	offset += 4
	payloadLen := binary.LittleEndian.Uint32(data[offset:])
	offset += 4

	if offset+int(payloadLen) > len(data) {
		return nil, fmt.Errorf("invalid payload length: need %d bytes, have %d", payloadLen, len(data)-offset)
	}

	if payloadLen > 0 {
		payload, err := DecompressPayload(codec, data[offset:offset+int(payloadLen)], int(rawLen))
		if err != nil {
			return nil, err
		}
		lr.Payload = payload
	}

	return lr, nil
}

// LogManager manages the write-ahead log consumed by the buffer pool.
// Records are buffered in memory and forced to disk by Flush; the pool
// flushes the log before writing back any dirty page.
type LogManager struct {
	logFile       *os.File
	currentLSN    uint64
	flushedLSN    uint64
	buffer        []byte
	bufferSize    int
	maxBufferSize int
	codec         CompressionCodec
	mutex         sync.Mutex
}

const DefaultLogBufferSize = 4096 // 4KB buffer

// NewLogManager creates a log manager with no payload compression.
func NewLogManager(logFileName string) (*LogManager, error) {
	return NewLogManagerWithCodec(logFileName, CompressionNone)
}

// NewLogManagerWithCodec creates a log manager that compresses record
// payloads with the given codec.
func NewLogManagerWithCodec(logFileName string, codec CompressionCodec) (*LogManager, error) {
	file, err := os.OpenFile(logFileName, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	lm := &LogManager{
		logFile:       file,
		buffer:        make([]byte, 0, DefaultLogBufferSize),
		maxBufferSize: DefaultLogBufferSize,
		codec:         codec,
	}

	// If the file already has records, resume LSNs after the last one.
	fileInfo, err := file.Stat()
	if err == nil && fileInfo.Size() > 0 {
		records, err := lm.readRecordsFromFile()
		if err == nil && len(records) > 0 {
			lastRecord := records[len(records)-1]
			lm.currentLSN = lastRecord.LSN
			lm.flushedLSN = lastRecord.LSN
		}
	}

	return lm, nil
}

// AppendRecord adds a log record and returns its LSN
func (lm *LogManager) AppendRecord(record *LogRecord) (uint64, error) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	lm.currentLSN++
	record.LSN = lm.currentLSN

	data, err := record.serialize(lm.codec)
	if err != nil {
		return 0, err
	}

	// Size prefix for reading back
	sizeBytes := make([]byte, 4)
	binary.LittleEndian.PutUint32(sizeBytes, uint32(len(data)))
	lm.buffer = append(lm.buffer, sizeBytes...)
	lm.buffer = append(lm.buffer, data...)
	lm.bufferSize += len(sizeBytes) + len(data)

	if lm.bufferSize >= lm.maxBufferSize {
		return record.LSN, lm.flushInternal()
	}

	return record.LSN, nil
}

// Flush writes buffered log records to disk
func (lm *LogManager) Flush() error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	return lm.flushInternal()
}

// FlushToLSN flushes all log records up to and including the specified LSN
func (lm *LogManager) FlushToLSN(lsn uint64) error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if lsn <= lm.flushedLSN {
		return nil
	}

	if lsn > lm.currentLSN {
		return fmt.Errorf("cannot flush to LSN %d: current LSN is %d", lsn, lm.currentLSN)
	}

	return lm.flushInternal()
}

// flushInternal performs actual flush (caller must hold lock)
func (lm *LogManager) flushInternal() error {
	if lm.bufferSize == 0 {
		return nil
	}

	if _, err := lm.logFile.Write(lm.buffer); err != nil {
		return fmt.Errorf("failed to write to log file: %w", err)
	}

	if err := lm.logFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}

	lm.flushedLSN = lm.currentLSN
	lm.buffer = lm.buffer[:0]
	lm.bufferSize = 0

	return nil
}

// GetCurrentLSN returns the current LSN
func (lm *LogManager) GetCurrentLSN() uint64 {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	return lm.currentLSN
}

// GetFlushedLSN returns the last flushed LSN
func (lm *LogManager) GetFlushedLSN() uint64 {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()
	return lm.flushedLSN
}

// ReadAllRecords reads all log records from the file
func (lm *LogManager) ReadAllRecords() ([]*LogRecord, error) {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if err := lm.flushInternal(); err != nil {
		return nil, err
	}

	return lm.readRecordsFromFile()
}

// readRecordsFromFile reads records from file (caller must hold lock)
func (lm *LogManager) readRecordsFromFile() ([]*LogRecord, error) {
	if _, err := lm.logFile.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to seek to start: %w", err)
	}

	records := make([]*LogRecord, 0)

	for {
		sizeBytes := make([]byte, 4)
		n, err := lm.logFile.Read(sizeBytes)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read record size: %w", err)
		}
		if n != 4 {
			break // Incomplete read
		}

		recordSize := binary.LittleEndian.Uint32(sizeBytes)
		if recordSize == 0 || recordSize > 1024*1024 { // Sanity check: max 1MB per record
			break
		}

		recordData := make([]byte, recordSize)
		n, err = lm.logFile.Read(recordData)
		if err != nil {
			return nil, fmt.Errorf("failed to read record data: %w", err)
		}
		if n != int(recordSize) {
			break // Incomplete read
		}

		record, err := deserializeLogRecord(recordData)
		if err != nil {
			return nil, fmt.Errorf("failed to deserialize record: %w", err)
		}

		records = append(records, record)
	}

	// Seek back to end for appending
	if _, err := lm.logFile.Seek(0, io.SeekEnd); err != nil {
		return nil, fmt.Errorf("failed to seek to end: %w", err)
	}

	return records, nil
}

// Close flushes remaining records and closes the log manager
func (lm *LogManager) Close() error {
	lm.mutex.Lock()
	defer lm.mutex.Unlock()

	if err := lm.flushInternal(); err != nil {
		return err
	}

	if lm.logFile != nil {
		return lm.logFile.Close()
	}
	return nil
}
