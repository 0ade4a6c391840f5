// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression selects the algorithm Compress uses. The value is
// written as the first byte of every blob; changing it breaks stored
// data.
type Compression uint8

const (
	CompressionNone Compression = 0
	// CompressionLZ4 is LZ4 block compression: fast, modest ratio.
	CompressionLZ4 Compression = 1
	// CompressionZstd is zstd at the default level. Event JSON
	// compresses well with it.
	CompressionZstd Compression = 2
)

// String returns the configuration name of c.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a configuration name. The empty string
// means zstd.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd", "":
		return CompressionZstd, nil
	default:
		return 0, fmt.Errorf("codec: unknown compression %q (want none, lz4 or zstd)", name)
	}
}

// maxBlobSize bounds the decompressed size a blob header may claim.
const maxBlobSize = 256 << 20

var errIncompressible = errors.New("incompressible")

// Shared zstd state; both are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("codec: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxBlobSize))
	if err != nil {
		panic("codec: zstd decoder initialization failed: " + err.Error())
	}
}

// Compress returns a blob holding data: one algorithm byte, the
// uvarint length of data, then the payload. Data that does not shrink
// is stored uncompressed, so the blob may name a different algorithm
// than requested.
func Compress(data []byte, compression Compression) ([]byte, error) {
	var payload []byte
	var err error
	switch compression {
	case CompressionNone:
	case CompressionLZ4:
		payload, err = compressLZ4(data)
	case CompressionZstd:
		payload = zstdEncoder.EncodeAll(data, nil)
		if len(payload) >= len(data) {
			err = errIncompressible
		}
	default:
		return nil, fmt.Errorf("codec: unsupported compression %s", compression)
	}
	if errors.Is(err, errIncompressible) || compression == CompressionNone {
		compression, payload, err = CompressionNone, data, nil
	}
	if err != nil {
		return nil, err
	}

	blob := make([]byte, 0, 1+binary.MaxVarintLen64+len(payload))
	blob = append(blob, byte(compression))
	blob = binary.AppendUvarint(blob, uint64(len(data)))
	return append(blob, payload...), nil
}

// Decompress reverses Compress.
func Decompress(blob []byte) ([]byte, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("codec: empty blob")
	}
	compression := Compression(blob[0])
	size, n := binary.Uvarint(blob[1:])
	if n <= 0 {
		return nil, fmt.Errorf("codec: corrupt blob length")
	}
	if size > maxBlobSize {
		return nil, fmt.Errorf("codec: blob claims %d bytes, limit is %d", size, maxBlobSize)
	}
	payload := blob[1+n:]

	switch compression {
	case CompressionNone:
		if uint64(len(payload)) != size {
			return nil, fmt.Errorf("codec: stored blob is %d bytes, header says %d", len(payload), size)
		}
		return payload, nil
	case CompressionLZ4:
		data := make([]byte, size)
		read, err := lz4.UncompressBlock(payload, data)
		if err != nil {
			return nil, fmt.Errorf("codec: lz4: %w", err)
		}
		if uint64(read) != size {
			return nil, fmt.Errorf("codec: lz4 produced %d bytes, header says %d", read, size)
		}
		return data, nil
	case CompressionZstd:
		data, err := zstdDecoder.DecodeAll(payload, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("codec: zstd: %w", err)
		}
		if uint64(len(data)) != size {
			return nil, fmt.Errorf("codec: zstd produced %d bytes, header says %d", len(data), size)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("codec: blob uses unknown compression %s", compression)
	}
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("codec: lz4: %w", err)
	}
	// Zero means LZ4 found nothing to compress.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}
