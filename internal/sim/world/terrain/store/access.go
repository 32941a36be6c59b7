package store

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/zeebo/xxh3"

	"sidecraft.ai/internal/sim/world/logic/mathx"
)

func (s *WorldStore) InRange(index int) bool {
	return index >= s.shape.MinIndex && index <= s.shape.MaxIndex()
}

// Chunk returns the chunk at index, or false at and beyond the world edge.
func (s *WorldStore) Chunk(index int) (*Chunk, bool) {
	if !s.InRange(index) {
		return nil, false
	}
	return s.chunks[index-s.shape.MinIndex], true
}

// Chunks returns the chunks in ascending index order.
func (s *WorldStore) Chunks() []*Chunk {
	out := make([]*Chunk, len(s.chunks))
	copy(out, s.chunks)
	return out
}

// ChunkIndexOf maps a world block x to its chunk index.
func (s *WorldStore) ChunkIndexOf(x int) int {
	return mathx.FloorDiv(x, s.shape.ChunkWidth)
}

func (s *WorldStore) Sealed() bool {
	for _, c := range s.chunks {
		if !c.sealed {
			return false
		}
	}
	return true
}

// Seal seals every remaining placeholder with the store's threshold.
func (s *WorldStore) Seal() {
	for _, c := range s.chunks {
		c.Seal(s.threshold)
	}
}

// Digest folds the chunk digests in index order.
func (s *WorldStore) Digest() uint64 {
	h := xxh3.New()
	var tmp [8]byte
	for _, c := range s.chunks {
		binary.LittleEndian.PutUint64(tmp[:], c.digest)
		_, _ = h.Write(tmp[:])
	}
	return h.Sum64()
}

// SectionKey addresses a generated section: CX is the chunk index, CY the vertical section.
type SectionKey struct {
	CX int
	CY int
}

// MergeSections copies generated section content into the placeholder chunks. Sections of the
// same chunk are appended bottom-up (ascending CY).
func (s *WorldStore) MergeSections(sections map[SectionKey][]Block) error {
	keys := make([]SectionKey, 0, len(sections))
	for k := range sections {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CY < keys[j].CY
	})

	for _, k := range keys {
		ch, ok := s.Chunk(k.CX)
		if !ok {
			return fmt.Errorf("section %d,%d outside world chunks [%d,%d]", k.CX, k.CY, s.shape.MinIndex, s.shape.MaxIndex())
		}
		blocks := sections[k]
		for _, b := range blocks {
			if err := s.checkBlock(k.CX, b); err != nil {
				return err
			}
		}
		if err := ch.Append(blocks...); err != nil {
			return err
		}
	}
	return nil
}

func (s *WorldStore) checkBlock(index int, b Block) error {
	if got := s.ChunkIndexOf(b.X); got != index {
		return fmt.Errorf("block at x=%d belongs to chunk %d, not %d", b.X, got, index)
	}
	if b.Y < 0 || b.Y >= s.shape.ChunkHeight {
		return fmt.Errorf("block at y=%d outside chunk height %d", b.Y, s.shape.ChunkHeight)
	}
	return nil
}
