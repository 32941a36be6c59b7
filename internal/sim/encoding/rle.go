package encoding

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"fmt"

	"sidecraft.ai/internal/sim/world/terrain/store"
)

// EncodeRLE encodes a code sequence as base64 of (code, run_len) uvarint pairs.
func EncodeRLE(codes []uint16) string {
	var buf bytes.Buffer
	var tmp [binary.MaxVarintLen64]byte

	for i := 0; i < len(codes); {
		c := codes[i]
		run := 1
		for i+run < len(codes) && codes[i+run] == c {
			run++
		}
		n := binary.PutUvarint(tmp[:], uint64(c))
		buf.Write(tmp[:n])
		n = binary.PutUvarint(tmp[:], uint64(run))
		buf.Write(tmp[:n])
		i += run
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

// DecodeRLE reverses EncodeRLE. limit bounds the decoded length; zero means no bound.
func DecodeRLE(b64 string, limit int) ([]uint16, error) {
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, err
	}
	var out []uint16
	for i := 0; i < len(raw); {
		c, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		run, n := binary.Uvarint(raw[i:])
		if n <= 0 {
			return nil, fmt.Errorf("bad varint at %d", i)
		}
		i += n
		if c > 0xFFFF {
			return nil, fmt.Errorf("block code too large: %d", c)
		}
		if limit > 0 && uint64(len(out))+run > uint64(limit) {
			return nil, fmt.Errorf("run overflows %d cells", limit)
		}
		for k := uint64(0); k < run; k++ {
			out = append(out, uint16(c))
		}
	}
	return out, nil
}

// ChunkGrid lays a chunk out as width*height codes, row by row from y=0, air (0) where nothing
// is placed.
func ChunkGrid(ch *store.Chunk, width, height int) []uint16 {
	grid := make([]uint16, width*height)
	x0 := ch.Index() * width
	for _, b := range ch.Blocks() {
		lx := b.X - x0
		if lx < 0 || lx >= width || b.Y < 0 || b.Y >= height {
			continue
		}
		grid[b.Y*width+lx] = b.Code
	}
	return grid
}

func EncodeChunk(ch *store.Chunk, width, height int) string {
	return EncodeRLE(ChunkGrid(ch, width, height))
}

// DecodeChunk returns the non-air cells of an encoded chunk in grid order.
func DecodeChunk(b64 string, index, width, height int) ([]store.Block, error) {
	grid, err := DecodeRLE(b64, width*height)
	if err != nil {
		return nil, err
	}
	if len(grid) != width*height {
		return nil, fmt.Errorf("chunk %d: decoded %d cells, want %d", index, len(grid), width*height)
	}
	var out []store.Block
	for i, c := range grid {
		if c == 0 {
			continue
		}
		out = append(out, store.Block{Code: c, X: index*width + i%width, Y: i / width})
	}
	return out, nil
}
