package store

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/zeebo/xxh3"
)

// DefaultSolidThreshold separates decorative codes (<= threshold) from solid ones.
const DefaultSolidThreshold uint16 = 129

var (
	ErrShapeMismatch = errors.New("world shape mismatch")
	ErrSealed        = errors.New("chunk is sealed")
)

// Block is a single placed world cell in world block coordinates.
type Block struct {
	Code uint16
	X, Y int
}

func (b Block) Solid(threshold uint16) bool {
	return b.Code > threshold
}

// Chunk is a vertical slice of the world, ChunkWidth blocks wide.
//
// A chunk is filled once and then sealed. Sealing fixes the solid/decorative counts and memoizes
// both partitions; nothing about a sealed chunk changes afterwards.
type Chunk struct {
	index  int
	blocks []Block

	sealed     bool
	solid      []Block
	decorative []Block
	digest     uint64
}

func NewChunk(index int) *Chunk {
	return &Chunk{index: index}
}

func (c *Chunk) Index() int { return c.index }

func (c *Chunk) Len() int { return len(c.blocks) }

func (c *Chunk) Sealed() bool { return c.sealed }

func (c *Chunk) Append(blocks ...Block) error {
	if c.sealed {
		return fmt.Errorf("chunk %d: %w", c.index, ErrSealed)
	}
	c.blocks = append(c.blocks, blocks...)
	return nil
}

// Seal classifies every block once. Both partitions keep the relative order of Blocks().
func (c *Chunk) Seal(threshold uint16) {
	if c.sealed {
		return
	}
	ns := 0
	for _, b := range c.blocks {
		if b.Solid(threshold) {
			ns++
		}
	}
	parts := make([]Block, len(c.blocks))
	si, di := 0, ns
	for _, b := range c.blocks {
		if b.Solid(threshold) {
			parts[si] = b
			si++
		} else {
			parts[di] = b
			di++
		}
	}
	c.solid = parts[:ns:ns]
	c.decorative = parts[ns:]
	c.digest = digestBlocks(c.index, c.blocks)
	c.sealed = true
}

// Blocks returns the chunk's blocks in build order. Callers must not modify the result.
func (c *Chunk) Blocks() []Block { return c.blocks[:len(c.blocks):len(c.blocks)] }

// Solid returns the memoized solid partition of a sealed chunk.
func (c *Chunk) Solid() []Block { return c.solid }

// Decorative returns the memoized decorative partition of a sealed chunk.
func (c *Chunk) Decorative() []Block { return c.decorative }

func (c *Chunk) SolidCount() int { return len(c.solid) }

func (c *Chunk) DecorativeCount() int { return len(c.decorative) }

// Digest is the xxh3 content hash computed at seal time (0 before sealing).
func (c *Chunk) Digest() uint64 { return c.digest }

func digestBlocks(index int, blocks []Block) uint64 {
	h := xxh3.New()
	var tmp [10]byte
	binary.LittleEndian.PutUint64(tmp[:8], uint64(int64(index)))
	_, _ = h.Write(tmp[:8])
	for _, b := range blocks {
		binary.LittleEndian.PutUint16(tmp[0:2], b.Code)
		binary.LittleEndian.PutUint32(tmp[2:6], uint32(int32(b.X)))
		binary.LittleEndian.PutUint32(tmp[6:10], uint32(int32(b.Y)))
		_, _ = h.Write(tmp[:])
	}
	return h.Sum64()
}

// Shape is the fixed geometry of a world, decided at generation time.
type Shape struct {
	MinIndex    int
	Count       int
	ChunkWidth  int
	ChunkHeight int
}

func (s Shape) MaxIndex() int { return s.MinIndex + s.Count - 1 }

func (s Shape) Validate() error {
	if s.Count <= 0 {
		return fmt.Errorf("chunk count must be positive, got %d", s.Count)
	}
	if s.ChunkWidth <= 0 || s.ChunkHeight <= 0 {
		return fmt.Errorf("chunk size must be positive, got %dx%d", s.ChunkWidth, s.ChunkHeight)
	}
	return nil
}

// WorldStore holds every chunk of the map in ascending index order.
type WorldStore struct {
	shape     Shape
	threshold uint16
	seed      int64
	chunks    []*Chunk
}

// NewWorldStore allocates one empty placeholder chunk per index in the shape.
func NewWorldStore(shape Shape, threshold uint16, seed int64) (*WorldStore, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	s := &WorldStore{
		shape:     shape,
		threshold: threshold,
		seed:      seed,
		chunks:    make([]*Chunk, shape.Count),
	}
	for i := range s.chunks {
		s.chunks[i] = NewChunk(shape.MinIndex + i)
	}
	return s, nil
}

func (s *WorldStore) Shape() Shape      { return s.shape }
func (s *WorldStore) Threshold() uint16 { return s.threshold }
func (s *WorldStore) Seed() int64       { return s.seed }
func (s *WorldStore) Len() int          { return len(s.chunks) }
