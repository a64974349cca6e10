package segment

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	perrors "github.com/Adithya-Monish-Kumar-K/postings-conformance/pkg/errors"
)

// Compression selects the codec applied to each term's postings block.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZSTD
	CompressionS2
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	case CompressionS2:
		return "s2"
	default:
		return fmt.Sprintf("compression(%d)", uint8(c))
	}
}

// ParseCompression maps a config name to a Compression.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	case "s2":
		return CompressionS2, nil
	default:
		return 0, perrors.Newf(perrors.ErrInvalidInput, "unknown compression %q", name)
	}
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() (*zstd.Encoder, error) {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder), nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
}

func getZstdDecoder() (*zstd.Decoder, error) {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder), nil
	}
	return zstd.NewReader(nil)
}

// Block format: [UncompressedSize uint32][CompressedSize uint32][Data...].
// CompressedSize == 0 means Data is stored raw.
const blockHeaderSize = 8

func compressBlock(data []byte, c Compression) ([]byte, error) {
	var compressed []byte
	switch c {
	case CompressionNone:
	case CompressionLZ4:
		buf := make([]byte, lz4.CompressBlockBound(len(data)))
		n, err := lz4.CompressBlock(data, buf, nil)
		if err != nil {
			return nil, fmt.Errorf("lz4 compress: %w", err)
		}
		compressed = buf[:n]
	case CompressionZSTD:
		enc, err := getZstdEncoder()
		if err != nil {
			return nil, fmt.Errorf("creating zstd encoder: %w", err)
		}
		compressed = enc.EncodeAll(data, nil)
		zstdEncoderPool.Put(enc)
	case CompressionS2:
		compressed = s2.Encode(nil, data)
	default:
		return nil, perrors.Newf(perrors.ErrInvalidInput, "unknown compression %d", c)
	}

	// Keep the raw bytes when the codec does not pay for itself.
	if len(compressed) == 0 || len(compressed) >= len(data) {
		out := make([]byte, blockHeaderSize+len(data))
		binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
		binary.LittleEndian.PutUint32(out[4:], 0)
		copy(out[blockHeaderSize:], data)
		return out, nil
	}
	out := make([]byte, blockHeaderSize+len(compressed))
	binary.LittleEndian.PutUint32(out[0:], uint32(len(data)))
	binary.LittleEndian.PutUint32(out[4:], uint32(len(compressed)))
	copy(out[blockHeaderSize:], compressed)
	return out, nil
}

// decompressBlock decodes block into dst's backing array when it is large
// enough. Raw blocks are returned as a sub-slice of block.
func decompressBlock(block []byte, c Compression, dst []byte) ([]byte, error) {
	if len(block) < blockHeaderSize {
		return nil, perrors.New(perrors.ErrCorrupt, "block too small for header")
	}
	uncompressedSize := binary.LittleEndian.Uint32(block[0:])
	compressedSize := binary.LittleEndian.Uint32(block[4:])

	if compressedSize == 0 {
		if uint32(len(block)) < blockHeaderSize+uncompressedSize {
			return nil, perrors.New(perrors.ErrCorrupt, "raw block truncated")
		}
		return block[blockHeaderSize : blockHeaderSize+uncompressedSize], nil
	}
	if uint32(len(block)) < blockHeaderSize+compressedSize {
		return nil, perrors.New(perrors.ErrCorrupt, "compressed block truncated")
	}
	src := block[blockHeaderSize : blockHeaderSize+compressedSize]
	if cap(dst) < int(uncompressedSize) {
		dst = make([]byte, uncompressedSize)
	}
	dst = dst[:uncompressedSize]

	var n int
	switch c {
	case CompressionLZ4:
		m, err := lz4.UncompressBlock(src, dst)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		n = m
	case CompressionZSTD:
		dec, err := getZstdDecoder()
		if err != nil {
			return nil, fmt.Errorf("creating zstd decoder: %w", err)
		}
		decoded, err := dec.DecodeAll(src, dst[:0])
		zstdDecoderPool.Put(dec)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		dst, n = decoded, len(decoded)
	case CompressionS2:
		decoded, err := s2.Decode(dst, src)
		if err != nil {
			return nil, fmt.Errorf("s2 decompress: %w", err)
		}
		dst, n = decoded, len(decoded)
	default:
		return nil, perrors.Newf(perrors.ErrCorrupt, "block compressed with unknown codec %d", c)
	}
	if uint32(n) != uncompressedSize {
		return nil, perrors.Newf(perrors.ErrCorrupt, "decompressed size mismatch: want %d, got %d", uncompressedSize, n)
	}
	return dst[:n], nil
}
