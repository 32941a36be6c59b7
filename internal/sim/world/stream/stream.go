// Package stream keeps a contiguous window of chunks loaded around the player and mirrors it into
// two flat block collections: solid blocks for collision and decorative blocks for rendering.
//
// Step, Fill and the audit accessors belong to the streaming goroutine. Current may be called
// from anywhere; it returns the last published Frame.
package stream

import (
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"sidecraft.ai/internal/sim/world/terrain/store"
)

type Options struct {
	// Lead is how far ahead of the player chunk the window must reach. Zero means 1.
	Lead   int
	Logger logrus.FieldLogger
}

type Streamer struct {
	world *store.WorldStore
	set   CollisionSet
	lead  int
	log   logrus.FieldLogger

	loaded     map[int]Counts
	lo, hi     int
	solid      blockDeque
	decorative blockDeque

	seq   uint64
	frame atomic.Pointer[Frame]
}

// New returns an empty streamer over a sealed world. set may be nil when the consumer follows
// frames on its own (see Follower).
func New(world *store.WorldStore, set CollisionSet, opts Options) (*Streamer, error) {
	if world == nil || !world.Sealed() {
		return nil, fmt.Errorf("stream: world store must be sealed")
	}
	if opts.Lead < 0 {
		return nil, fmt.Errorf("stream: negative lead %d", opts.Lead)
	}
	lead := opts.Lead
	if lead == 0 {
		lead = 1
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.WarnLevel)
		log = l
	}
	s := &Streamer{
		world:  world,
		set:    set,
		lead:   lead,
		log:    log.WithField("component", "stream"),
		loaded: map[int]Counts{},
		lo:     0,
		hi:     -1,
	}
	s.frame.Store(&Frame{Lo: 0, Hi: -1})
	return s, nil
}

func (s *Streamer) Lead() int { return s.lead }

// Current returns the last published frame. Safe for concurrent use.
func (s *Streamer) Current() *Frame { return s.frame.Load() }

func (s *Streamer) empty() bool { return len(s.loaded) == 0 }

// Loaded returns the resident chunk indices in ascending order.
func (s *Streamer) Loaded() []int {
	if s.empty() {
		return nil
	}
	out := make([]int, 0, len(s.loaded))
	for i := s.lo; i <= s.hi; i++ {
		out = append(out, i)
	}
	return out
}

func (s *Streamer) Counts(index int) (Counts, bool) {
	c, ok := s.loaded[index]
	return c, ok
}

// Fill admits every in-range chunk of [lo, hi] in ascending order with no eviction. Indices
// outside the world are skipped and already resident ones are left alone.
func (s *Streamer) Fill(lo, hi int) error {
	admitted := 0
	for i := lo; i <= hi; i++ {
		if !s.world.InRange(i) {
			continue
		}
		if _, ok := s.loaded[i]; ok {
			continue
		}
		if !s.empty() && i != s.hi+1 {
			return invariantf("fill %d would leave a gap after window [%d,%d]", i, s.lo, s.hi)
		}
		ch, err := s.admissible(i)
		if err != nil {
			return err
		}
		if s.empty() {
			s.lo, s.hi = i, i-1
		}
		s.admitBack(ch)
		admitted++
	}
	if admitted > 0 {
		s.publish(0)
		s.log.WithFields(logrus.Fields{"lo": s.lo, "hi": s.hi, "solid": s.solid.Len(), "decorative": s.decorative.Len()}).
			Debug("window filled")
	}
	return nil
}

// Step applies the window rule for one tick. It reports false when nothing changed, which
// includes an admission target outside the world.
func (s *Streamer) Step(sig Signal) (Transition, bool, error) {
	if s.empty() {
		return Transition{}, false, nil
	}
	if len(s.loaded) != s.hi-s.lo+1 {
		return Transition{}, false, invariantf("window [%d,%d] holds %d chunks", s.lo, s.hi, len(s.loaded))
	}

	var admit, evict int
	switch sig.Facing {
	case Right:
		if sig.Chunk+s.lead <= s.hi {
			return Transition{}, false, nil
		}
		admit, evict = s.hi+1, s.lo
	case Left:
		if sig.Chunk-s.lead >= s.lo {
			return Transition{}, false, nil
		}
		admit, evict = s.lo-1, s.hi
	default:
		return Transition{}, false, fmt.Errorf("stream: unknown facing %d", sig.Facing)
	}
	if !s.world.InRange(admit) {
		return Transition{}, false, nil
	}

	ch, err := s.admissible(admit)
	if err != nil {
		return Transition{}, false, err
	}
	ev, ok := s.loaded[evict]
	if !ok {
		return Transition{}, false, invariantf("evict %d: not resident", evict)
	}
	if ev.Solid > s.solid.Len() || ev.Decorative > s.decorative.Len() {
		return Transition{}, false, invariantf("evict %d: counts %+v exceed collections (%d solid, %d decorative)",
			evict, ev, s.solid.Len(), s.decorative.Len())
	}

	delete(s.loaded, evict)
	if sig.Facing == Right {
		s.solid.DropFront(ev.Solid)
		s.decorative.DropFront(ev.Decorative)
		s.lo++
		s.admitBack(ch)
	} else {
		s.solid.DropBack(ev.Solid)
		s.decorative.DropBack(ev.Decorative)
		s.hi--
		s.admitFront(ch)
	}
	s.publish(sig.Tick)

	evicted := evict
	tr := Transition{
		Seq:            s.seq,
		Tick:           sig.Tick,
		Direction:      sig.Facing,
		Evicted:        &evicted,
		Admitted:       admit,
		EvictedCounts:  ev,
		AdmittedCounts: s.loaded[admit],
	}
	s.log.WithFields(logrus.Fields{
		"tick":     sig.Tick,
		"facing":   sig.Facing.String(),
		"evicted":  evict,
		"admitted": admit,
		"lo":       s.lo,
		"hi":       s.hi,
	}).Debug("window moved")
	return tr, true, nil
}

func (s *Streamer) admissible(index int) (*store.Chunk, error) {
	ch, ok := s.world.Chunk(index)
	if !ok {
		return nil, invariantf("admit %d: outside world", index)
	}
	if !ch.Sealed() {
		return nil, invariantf("admit %d: chunk not sealed", index)
	}
	if _, ok := s.loaded[index]; ok {
		return nil, invariantf("admit %d: already resident", index)
	}
	return ch, nil
}

func (s *Streamer) admitBack(ch *store.Chunk) {
	s.solid.PushBack(ch.Solid())
	s.decorative.PushBack(ch.Decorative())
	s.loaded[ch.Index()] = Counts{Solid: ch.SolidCount(), Decorative: ch.DecorativeCount()}
	s.hi = ch.Index()
}

func (s *Streamer) admitFront(ch *store.Chunk) {
	s.solid.PushFront(ch.Solid())
	s.decorative.PushFront(ch.Decorative())
	s.loaded[ch.Index()] = Counts{Solid: ch.SolidCount(), Decorative: ch.DecorativeCount()}
	s.lo = ch.Index()
}

func (s *Streamer) publish(tick uint64) {
	s.seq++
	f := &Frame{
		Seq:        s.seq,
		Tick:       tick,
		Lo:         s.lo,
		Hi:         s.hi,
		Solid:      s.solid.View(),
		Decorative: s.decorative.View(),
	}
	s.frame.Store(f)
	if s.set != nil {
		s.set.Rebuild(f.Solid)
	}
}
