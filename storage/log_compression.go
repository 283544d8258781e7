package storage

import (
	"fmt"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// CompressionCodec selects the compression applied to WAL record payloads.
// Page images are highly compressible (zero runs, repeated headers), so
// compressing them before they hit the log file trades a little CPU for
// substantially less log I/O.
type CompressionCodec byte

const (
	CompressionNone   CompressionCodec = 0
	CompressionSnappy CompressionCodec = 1
	CompressionLZ4    CompressionCodec = 2
)

// ParseCompressionCodec maps a config string to a codec.
func ParseCompressionCodec(name string) (CompressionCodec, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "snappy":
		return CompressionSnappy, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return CompressionNone, fmt.Errorf("unknown compression codec: %s", name)
	}
}

// String returns the config-file name of the codec.
func (c CompressionCodec) String() string {
	switch c {
	case CompressionSnappy:
		return "snappy"
	case CompressionLZ4:
		return "lz4"
	default:
		return "none"
	}
}

// CompressPayload compresses data with the given codec. An empty payload
// passes through untouched.
func CompressPayload(codec CompressionCodec, data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	switch codec {
	case CompressionNone:
		return data, nil

	case CompressionSnappy:
		return snappy.Encode(nil, data), nil

	case CompressionLZ4:
		compressed := make([]byte, lz4.CompressBlockBound(len(data)))
		var c lz4.Compressor
		n, err := c.CompressBlock(data, compressed)
		if err != nil {
			return nil, fmt.Errorf("lz4 compression failed: %w", err)
		}
		if n == 0 || n >= len(data) {
			// Incompressible block: lz4 would expand it, store raw.
			// The raw length in the record header disambiguates on read.
			return data, nil
		}
		return compressed[:n], nil

	default:
		return nil, fmt.Errorf("unknown compression codec: %d", codec)
	}
}

// DecompressPayload reverses CompressPayload. rawLen is the uncompressed
// payload length recorded in the log record header.
func DecompressPayload(codec CompressionCodec, data []byte, rawLen int) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}

	switch codec {
	case CompressionNone:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil

	case CompressionSnappy:
		out, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("snappy decompression failed: %w", err)
		}
		return out, nil

	case CompressionLZ4:
		if len(data) == rawLen {
			// Stored raw: the block was incompressible.
			out := make([]byte, len(data))
			copy(out, data)
			return out, nil
		}
		out := make([]byte, rawLen)
		n, err := lz4.UncompressBlock(data, out)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompression failed: %w", err)
		}
		return out[:n], nil

	default:
		return nil, fmt.Errorf("unknown compression codec: %d", codec)
	}
}
