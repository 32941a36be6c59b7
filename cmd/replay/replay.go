package main

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"sidecraft.ai/internal/sim/session"
	"sidecraft.ai/internal/sim/world/stream"
	"sidecraft.ai/internal/sim/world/terrain/store"
)

// replayer drives a fresh streamer with the signal that must have produced each journal entry
// and compares the result. A sequence number that does not increase marks a server restart.
type replayer struct {
	world  *store.WorldStore
	lo, hi int
	lead   int
	log    logrus.FieldLogger

	st      *stream.Streamer
	lastSeq uint64
	runs    int
	checked int
}

func newReplayer(w *store.WorldStore, lo, hi, lead int, logger logrus.FieldLogger) *replayer {
	return &replayer{world: w, lo: lo, hi: hi, lead: lead, log: logger}
}

func (r *replayer) restart() error {
	st, err := stream.New(r.world, nil, stream.Options{Lead: r.lead, Logger: r.log})
	if err != nil {
		return err
	}
	if err := st.Fill(r.lo, r.hi); err != nil {
		return err
	}
	r.st = st
	r.runs++
	return nil
}

func (r *replayer) Apply(e session.JournalEntry) error {
	if r.st == nil || e.Seq <= r.lastSeq {
		if err := r.restart(); err != nil {
			return fmt.Errorf("seq %d: restart: %w", e.Seq, err)
		}
	}
	r.lastSeq = e.Seq

	var chunk int
	switch e.Direction {
	case stream.Right:
		chunk = e.Admitted - r.lead
	case stream.Left:
		chunk = e.Admitted + r.lead
	default:
		return fmt.Errorf("seq %d: unknown direction %d", e.Seq, e.Direction)
	}

	tr, moved, err := r.st.Step(stream.Signal{Tick: e.Tick, Chunk: chunk, Facing: e.Direction})
	if err != nil {
		return fmt.Errorf("seq %d: %w", e.Seq, err)
	}
	if !moved {
		fr := r.st.Current()
		return fmt.Errorf("seq %d: window [%d,%d] did not move %s", e.Seq, fr.Lo, fr.Hi, e.Direction)
	}
	if err := compareTransition(tr, e); err != nil {
		return fmt.Errorf("seq %d: %w", e.Seq, err)
	}
	if fr := r.st.Current(); fr.Lo != e.Lo || fr.Hi != e.Hi {
		return fmt.Errorf("seq %d: window got=[%d,%d] want=[%d,%d]", e.Seq, fr.Lo, fr.Hi, e.Lo, e.Hi)
	}
	if err := r.st.Check(); err != nil {
		return fmt.Errorf("seq %d: %w", e.Seq, err)
	}
	r.checked++
	return nil
}

func compareTransition(got stream.Transition, want session.JournalEntry) error {
	if got.Seq != want.Seq {
		return fmt.Errorf("seq mismatch: got=%d", got.Seq)
	}
	if got.Admitted != want.Admitted {
		return fmt.Errorf("admitted got=%d want=%d", got.Admitted, want.Admitted)
	}
	if (got.Evicted == nil) != (want.Evicted == nil) || (got.Evicted != nil && *got.Evicted != *want.Evicted) {
		return fmt.Errorf("evicted got=%v want=%v", fmtIndex(got.Evicted), fmtIndex(want.Evicted))
	}
	if got.AdmittedCounts != want.AdmittedCounts {
		return fmt.Errorf("admitted counts got=%+v want=%+v", got.AdmittedCounts, want.AdmittedCounts)
	}
	if got.EvictedCounts != want.EvictedCounts {
		return fmt.Errorf("evicted counts got=%+v want=%+v", got.EvictedCounts, want.EvictedCounts)
	}
	return nil
}

func fmtIndex(p *int) string {
	if p == nil {
		return "none"
	}
	return fmt.Sprint(*p)
}
