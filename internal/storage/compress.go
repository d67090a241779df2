package storage

import (
	"github.com/klauspost/compress/zstd"
)

var compressEncoder, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))

// CompressBytes returns src as a single zstd frame.
func CompressBytes(src []byte) []byte {
	return compressEncoder.EncodeAll(src, make([]byte, 0, len(src)/4))
}

// Create a reader that caches decompressors.
// For this operation type we supply a nil Reader.
var compressDecoder, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(1<<30))

// DecompressBytes decodes a buffer produced by CompressBytes. The destination
// is allocated by the decoder.
func DecompressBytes(src []byte) ([]byte, error) {
	return compressDecoder.DecodeAll(src, nil)
}
