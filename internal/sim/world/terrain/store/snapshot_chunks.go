package store

import (
	"fmt"

	snapv1 "sidecraft.ai/internal/persistence/snapshot"
)

// ExportSnapshot converts a sealed store into snapshot form.
func ExportSnapshot(s *WorldStore, hdr snapv1.Header) (snapv1.SnapshotV1, error) {
	if !s.Sealed() {
		return snapv1.SnapshotV1{}, fmt.Errorf("export: store has unsealed chunks")
	}
	out := snapv1.SnapshotV1{
		Header:         hdr,
		Seed:           s.seed,
		ChunkWidth:     s.shape.ChunkWidth,
		ChunkHeight:    s.shape.ChunkHeight,
		MinIndex:       s.shape.MinIndex,
		ChunkCount:     s.shape.Count,
		SolidThreshold: s.threshold,
		Digest:         s.Digest(),
		Chunks:         make([]snapv1.ChunkV1, 0, len(s.chunks)),
	}
	for _, ch := range s.chunks {
		blocks := make([]snapv1.BlockV1, len(ch.blocks))
		for i, b := range ch.blocks {
			blocks[i] = snapv1.BlockV1{Code: b.Code, X: int32(b.X), Y: int32(b.Y)}
		}
		out.Chunks = append(out.Chunks, snapv1.ChunkV1{
			Index:      ch.index,
			Blocks:     blocks,
			Solid:      ch.SolidCount(),
			Decorative: ch.DecorativeCount(),
			Digest:     ch.digest,
		})
	}
	return out, nil
}

// ImportSnapshot rebuilds a sealed store from a snapshot. Any disagreement with the configured
// shape or threshold, or between recorded and recomputed counts, is reported as ErrShapeMismatch;
// the snapshot is never reinterpreted.
func ImportSnapshot(want Shape, threshold uint16, snap snapv1.SnapshotV1) (*WorldStore, error) {
	got := Shape{
		MinIndex:    snap.MinIndex,
		Count:       snap.ChunkCount,
		ChunkWidth:  snap.ChunkWidth,
		ChunkHeight: snap.ChunkHeight,
	}
	if got != want {
		return nil, fmt.Errorf("%w: snapshot %+v, configured %+v", ErrShapeMismatch, got, want)
	}
	if snap.SolidThreshold != threshold {
		return nil, fmt.Errorf("%w: snapshot solid threshold %d, configured %d", ErrShapeMismatch, snap.SolidThreshold, threshold)
	}
	if len(snap.Chunks) != want.Count {
		return nil, fmt.Errorf("%w: snapshot holds %d chunks, header says %d", ErrShapeMismatch, len(snap.Chunks), want.Count)
	}

	s, err := NewWorldStore(want, threshold, snap.Seed)
	if err != nil {
		return nil, err
	}
	for i, sc := range snap.Chunks {
		ch := s.chunks[i]
		if sc.Index != ch.index {
			return nil, fmt.Errorf("%w: chunk %d has index %d", ErrShapeMismatch, i, sc.Index)
		}
		blocks := make([]Block, len(sc.Blocks))
		for j, b := range sc.Blocks {
			blocks[j] = Block{Code: b.Code, X: int(b.X), Y: int(b.Y)}
			if err := s.checkBlock(ch.index, blocks[j]); err != nil {
				return nil, fmt.Errorf("%w: %v", ErrShapeMismatch, err)
			}
		}
		ch.blocks = blocks
		ch.Seal(threshold)
		if ch.SolidCount() != sc.Solid || ch.DecorativeCount() != sc.Decorative {
			return nil, fmt.Errorf("%w: chunk %d counts solid=%d decorative=%d, recorded %d/%d",
				ErrShapeMismatch, ch.index, ch.SolidCount(), ch.DecorativeCount(), sc.Solid, sc.Decorative)
		}
		if ch.digest != sc.Digest {
			return nil, fmt.Errorf("%w: chunk %d digest %x, recorded %x", ErrShapeMismatch, ch.index, ch.digest, sc.Digest)
		}
	}
	if d := s.Digest(); d != snap.Digest {
		return nil, fmt.Errorf("%w: world digest %x, recorded %x", ErrShapeMismatch, d, snap.Digest)
	}
	return s, nil
}
