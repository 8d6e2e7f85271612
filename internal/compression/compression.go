package compression

import (
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
)

// CompressionType identifies the codec used for a stored blob
type CompressionType int8

const (
	None CompressionType = iota
	Gzip
	Snappy
	Zstd
)

const headerSize = 5

func (c CompressionType) String() string {
	switch c {
	case None:
		return "none"
	case Gzip:
		return "gzip"
	case Snappy:
		return "snappy"
	case Zstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ParseType maps a config value to a CompressionType. Empty means none.
func ParseType(name string) (CompressionType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return None, nil
	case "gzip":
		return Gzip, nil
	case "snappy":
		return Snappy, nil
	case "zstd":
		return Zstd, nil
	default:
		return None, fmt.Errorf("unsupported compression type: %q", name)
	}
}

// Compressor compresses and decompresses whole buffers
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
	Type() CompressionType
}

type noCompression struct{}

func (noCompression) Compress(data []byte) ([]byte, error)   { return data, nil }
func (noCompression) Decompress(data []byte) ([]byte, error) { return data, nil }
func (noCompression) Type() CompressionType                  { return None }

type gzipCompression struct{}

func (gzipCompression) Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := gzip.NewWriter(&buf)
	if _, err := writer.Write(data); err != nil {
		return nil, fmt.Errorf("gzip compress failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("gzip writer close failed: %v", err)
	}
	return buf.Bytes(), nil
}

func (gzipCompression) Decompress(data []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader create failed: %v", err)
	}
	defer reader.Close()

	result, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("gzip decompress failed: %v", err)
	}
	return result, nil
}

func (gzipCompression) Type() CompressionType { return Gzip }

type snappyCompression struct{}

func (snappyCompression) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (snappyCompression) Decompress(data []byte) ([]byte, error) {
	result, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress failed: %v", err)
	}
	return result, nil
}

func (snappyCompression) Type() CompressionType { return Snappy }

// zstdCompression is safe for concurrent use; EncodeAll and DecodeAll
// do not share state between calls.
type zstdCompression struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

func newZstdCompression() (*zstdCompression, error) {
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder failed: %v", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		encoder.Close()
		return nil, fmt.Errorf("create zstd decoder failed: %v", err)
	}
	return &zstdCompression{encoder: encoder, decoder: decoder}, nil
}

func (z *zstdCompression) Compress(data []byte) ([]byte, error) {
	return z.encoder.EncodeAll(data, nil), nil
}

func (z *zstdCompression) Decompress(data []byte) ([]byte, error) {
	result, err := z.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress failed: %v", err)
	}
	return result, nil
}

func (z *zstdCompression) Type() CompressionType { return Zstd }

var (
	zstdOnce  sync.Once
	zstdCodec *zstdCompression
	zstdErr   error
)

// GetCompressor returns the codec for a type
func GetCompressor(compressionType CompressionType) (Compressor, error) {
	switch compressionType {
	case None:
		return noCompression{}, nil
	case Gzip:
		return gzipCompression{}, nil
	case Snappy:
		return snappyCompression{}, nil
	case Zstd:
		zstdOnce.Do(func() {
			zstdCodec, zstdErr = newZstdCompression()
		})
		if zstdErr != nil {
			return nil, zstdErr
		}
		return zstdCodec, nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %d", compressionType)
	}
}

// CompressMessage compresses data and prefixes it with the codec byte
// and the big-endian original length.
func CompressMessage(data []byte, compressionType CompressionType) ([]byte, error) {
	compressor, err := GetCompressor(compressionType)
	if err != nil {
		return nil, err
	}

	compressed, err := compressor.Compress(data)
	if err != nil {
		return nil, err
	}

	result := make([]byte, headerSize+len(compressed))
	result[0] = byte(compressionType)
	binary.BigEndian.PutUint32(result[1:headerSize], uint32(len(data)))
	copy(result[headerSize:], compressed)

	return result, nil
}

// DecompressMessage reverses CompressMessage
func DecompressMessage(data []byte) ([]byte, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("invalid compressed data: too short")
	}

	compressor, err := GetCompressor(CompressionType(data[0]))
	if err != nil {
		return nil, err
	}

	originalLen := binary.BigEndian.Uint32(data[1:headerSize])
	decompressed, err := compressor.Decompress(data[headerSize:])
	if err != nil {
		return nil, err
	}

	if uint32(len(decompressed)) != originalLen {
		return nil, fmt.Errorf("decompressed data length mismatch: expected %d, got %d",
			originalLen, len(decompressed))
	}

	return decompressed, nil
}
