package log

import (
	"path/filepath"
	"testing"
	"time"

	"sidecraft.ai/internal/sim/session"
	"sidecraft.ai/internal/sim/world/stream"
)

func entry(seq uint64, evicted, admitted int) session.JournalEntry {
	ev := evicted
	return session.JournalEntry{
		Transition: stream.Transition{
			Seq:            seq,
			Tick:           seq * 10,
			Direction:      stream.Right,
			Evicted:        &ev,
			Admitted:       admitted,
			EvictedCounts:  stream.Counts{Solid: 3, Decorative: 1},
			AdmittedCounts: stream.Counts{Solid: 4, Decorative: 2},
		},
		Lo:     evicted + 1,
		Hi:     admitted,
		Player: [2]float32{float32(admitted) * 1024, 64},
	}
}

func TestTransitionJournal_RoundTripAcrossHours(t *testing.T) {
	dir := t.TempDir()
	j := NewTransitionJournal(dir)
	clock := time.Date(2026, 3, 1, 9, 59, 0, 0, time.UTC)
	j.w.now = func() time.Time { return clock }

	want := []session.JournalEntry{entry(2, -2, 3), entry(3, -1, 4)}
	if err := j.WriteTransition(want[0]); err != nil {
		t.Fatalf("write: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if err := j.WriteTransition(want[1]); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFiles(JournalDir(dir), TransitionPrefix)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 || filepath.Base(files[0]) != "transitions-2026-03-01-09.jsonl.zst" {
		t.Fatalf("files=%v", files)
	}

	var got []session.JournalEntry
	for _, f := range files {
		if err := ReadTransitions(f, func(e session.JournalEntry) error {
			got = append(got, e)
			return nil
		}); err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	if len(got) != len(want) {
		t.Fatalf("got %d entries", len(got))
	}
	for i := range want {
		g, w := got[i], want[i]
		if g.Seq != w.Seq || g.Admitted != w.Admitted || *g.Evicted != *w.Evicted || g.Direction != w.Direction ||
			g.AdmittedCounts != w.AdmittedCounts || g.Lo != w.Lo || g.Hi != w.Hi || g.Player != w.Player {
			t.Fatalf("entry %d: got %+v want %+v", i, g, w)
		}
	}
}
