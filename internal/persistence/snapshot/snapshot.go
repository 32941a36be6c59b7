package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

// ErrCorrupt marks a snapshot file that exists but cannot be decoded.
var ErrCorrupt = errors.New("corrupt snapshot")

type Header struct {
	Version   int    `json:"version"`
	WorldID   string `json:"world_id"`
	CreatedAt string `json:"created_at"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed           int64  `json:"seed"`
	ChunkWidth     int    `json:"chunk_width"`
	ChunkHeight    int    `json:"chunk_height"`
	MinIndex       int    `json:"min_index"`
	ChunkCount     int    `json:"chunk_count"`
	SolidThreshold uint16 `json:"solid_threshold"`
	Digest         uint64 `json:"digest"`

	Chunks []ChunkV1 `json:"chunks"`
}

type ChunkV1 struct {
	Index      int       `json:"index"`
	Blocks     []BlockV1 `json:"blocks"`
	Solid      int       `json:"solid"`
	Decorative int       `json:"decorative"`
	Digest     uint64    `json:"digest"`
}

type BlockV1 struct {
	Code uint16 `json:"code"`
	X    int32  `json:"x"`
	Y    int32  `json:"y"`
}

// WriteSnapshot writes to a sibling temp file and renames it into place, so readers never see a
// partially written snapshot.
func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(hb); err != nil {
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// ReadSnapshot returns the open error unchanged (so callers can test fs.ErrNotExist) and wraps
// every decode failure with ErrCorrupt.
func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, fmt.Errorf("%w: zstd: %v", ErrCorrupt, err)
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	var hdr Header
	if err := json.Unmarshal(line, &hdr); err != nil {
		return snap, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if hdr.Version != Version {
		return snap, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, hdr.Version)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("%w: gob decode: %v", ErrCorrupt, err)
	}
	return snap, nil
}
