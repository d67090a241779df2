package storage

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"primetime/internal/logger"

	"github.com/zeebo/blake3"
	"google.golang.org/protobuf/encoding/protowire"
)

var (
	// ErrSnapshotMismatch means the snapshot is intact but was built for a
	// different bound.
	ErrSnapshotMismatch = errors.New("index snapshot bound mismatch")
	// ErrSnapshotCorrupt means the snapshot could not be decoded or failed its
	// checksum.
	ErrSnapshotCorrupt = errors.New("index snapshot corrupt")
)

// Snapshot envelope field numbers.
const (
	fieldBound    protowire.Number = 1
	fieldChecksum protowire.Number = 2
	fieldBits     protowire.Number = 3
)

// SaveIndex writes idx to path as
// [1: bound varint][2: BLAKE3-256 of raw bits][3: zstd(raw bits)].
// The file is written to a temporary sibling and renamed into place so a
// crash never leaves a half-written snapshot under path.
func SaveIndex(path string, idx *Index) error {
	raw, err := idx.marshal()
	if err != nil {
		return fmt.Errorf("encode index bits: %w", err)
	}
	sum := checksum(raw)

	var buf []byte
	buf = protowire.AppendTag(buf, fieldBound, protowire.VarintType)
	buf = protowire.AppendVarint(buf, idx.bound)
	buf = protowire.AppendTag(buf, fieldChecksum, protowire.BytesType)
	buf = protowire.AppendBytes(buf, sum)
	buf = protowire.AppendTag(buf, fieldBits, protowire.BytesType)
	buf = protowire.AppendBytes(buf, CompressBytes(raw))

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(buf); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close snapshot: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("install snapshot: %w", err)
	}
	return nil
}

// LoadIndex reads a snapshot written by SaveIndex and checks that it covers
// exactly bound values.
func LoadIndex(path string, bound uint64) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var (
		gotBound   uint64
		haveBound  bool
		sum        []byte
		compressed []byte
	)
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, protowire.ParseError(n))
		}
		data = data[n:]

		switch {
		case num == fieldBound && typ == protowire.VarintType:
			gotBound, n = protowire.ConsumeVarint(data)
			haveBound = true
		case num == fieldChecksum && typ == protowire.BytesType:
			sum, n = protowire.ConsumeBytes(data)
		case num == fieldBits && typ == protowire.BytesType:
			compressed, n = protowire.ConsumeBytes(data)
		default:
			n = protowire.ConsumeFieldValue(num, typ, data)
		}
		if n < 0 {
			return nil, fmt.Errorf("%w: field %d: %v", ErrSnapshotCorrupt, num, protowire.ParseError(n))
		}
		data = data[n:]
	}

	if !haveBound || sum == nil || compressed == nil {
		return nil, fmt.Errorf("%w: missing fields", ErrSnapshotCorrupt)
	}
	if gotBound != bound {
		return nil, fmt.Errorf("%w: snapshot covers %d, want %d", ErrSnapshotMismatch, gotBound, bound)
	}

	raw, err := DecompressBytes(compressed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if !bytes.Equal(checksum(raw), sum) {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrSnapshotCorrupt)
	}

	idx, err := unmarshalIndex(bound, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	return idx, nil
}

// LoadOrBuildIndex returns the index for bound, taking it from the snapshot at
// path when one is usable and otherwise sieving it and refreshing the
// snapshot. An empty path disables the snapshot. The second result reports
// whether the index came from the snapshot. Failing to write the snapshot is
// not fatal; the error is returned alongside the built index.
func LoadOrBuildIndex(path string, bound uint64) (*Index, bool, error) {
	if path != "" {
		idx, err := LoadIndex(path, bound)
		switch {
		case err == nil:
			return idx, true, nil
		case errors.Is(err, os.ErrNotExist):
			logger.Info("No index snapshot at %s", path)
		default:
			logger.Error("Index snapshot %s unusable, rebuilding: %v", path, err)
		}
	}

	idx, err := BuildIndex(bound)
	if err != nil {
		return nil, false, err
	}
	if path == "" {
		return idx, false, nil
	}
	if err := SaveIndex(path, idx); err != nil {
		return idx, false, err
	}
	return idx, false, nil
}

func checksum(raw []byte) []byte {
	h := blake3.New()
	h.Write(raw)
	return h.Sum(nil)
}
