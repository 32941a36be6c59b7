package stream

import "sidecraft.ai/internal/sim/world/terrain/store"

// Check audits the whole window: contiguity, count sums, and that both collections are the
// ordered concatenation of the resident chunks' partitions. It is O(window) and meant for tests
// and replay.
func (s *Streamer) Check() error {
	if s.empty() {
		if s.solid.Len() != 0 || s.decorative.Len() != 0 {
			return invariantf("empty window holds %d solid, %d decorative", s.solid.Len(), s.decorative.Len())
		}
		return nil
	}
	if len(s.loaded) != s.hi-s.lo+1 {
		return invariantf("window [%d,%d] holds %d chunks", s.lo, s.hi, len(s.loaded))
	}
	solid, deco := s.solid.View(), s.decorative.View()
	var so, do int
	for i := s.lo; i <= s.hi; i++ {
		c, ok := s.loaded[i]
		if !ok {
			return invariantf("window [%d,%d] missing %d", s.lo, s.hi, i)
		}
		ch, ok := s.world.Chunk(i)
		if !ok {
			return invariantf("resident %d outside world", i)
		}
		if c.Solid != ch.SolidCount() || c.Decorative != ch.DecorativeCount() {
			return invariantf("chunk %d counts %+v drifted from store (%d, %d)", i, c, ch.SolidCount(), ch.DecorativeCount())
		}
		if so+c.Solid > len(solid) || do+c.Decorative > len(deco) {
			return invariantf("chunk %d overruns collections", i)
		}
		if !sameBlocks(solid[so:so+c.Solid], ch.Solid()) || !sameBlocks(deco[do:do+c.Decorative], ch.Decorative()) {
			return invariantf("chunk %d content out of place", i)
		}
		so += c.Solid
		do += c.Decorative
	}
	if so != len(solid) || do != len(deco) {
		return invariantf("count sums (%d, %d) differ from collections (%d, %d)", so, do, len(solid), len(deco))
	}
	return nil
}

func sameBlocks(a, b []store.Block) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
