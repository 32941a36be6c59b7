package bootstrap

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"sidecraft.ai/internal/sim/catalogs"
	"sidecraft.ai/internal/sim/tuning"
	"sidecraft.ai/internal/sim/world/terrain/gen"
	"sidecraft.ai/internal/sim/world/terrain/store"
)

type countingGen struct {
	inner *gen.Generator
	calls int
}

func (g *countingGen) Generate(xMin, xMax, yMin, yMax int) map[store.SectionKey][]store.Block {
	g.calls++
	return g.inner.Generate(xMin, xMax, yMin, yMax)
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func testSetup(t *testing.T) (Config, *countingGen) {
	t.Helper()
	tu := tuning.Defaults()
	tu.WorldMinChunk, tu.WorldMaxChunk = -5, 5
	tu.ChunkHeight = 96

	cats, err := catalogs.Load(filepath.Join("..", "..", "..", "..", "configs"))
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	pal, err := PaletteFromCatalog(cats.Blocks, tu.SolidThreshold)
	if err != nil {
		t.Fatalf("palette: %v", err)
	}
	cfg := ConfigFromTuning(tu, t.TempDir())
	return cfg, &countingGen{inner: gen.New(GenParams(tu), pal)}
}

func TestOpen_GeneratesOnceThenLoads(t *testing.T) {
	cfg, g := testSetup(t)

	first, res, err := Open(cfg, g, quietLogger())
	if err != nil {
		t.Fatalf("first open: %v", err)
	}
	if res.Source != SourceGenerated || g.calls != 1 {
		t.Fatalf("expected one generation, got source=%s calls=%d", res.Source, g.calls)
	}
	if first.Len() != 11 || !first.Sealed() {
		t.Fatalf("unexpected store: len=%d sealed=%v", first.Len(), first.Sealed())
	}
	if _, err := os.Stat(cfg.SnapshotPath); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}

	second, res, err := Open(cfg, g, quietLogger())
	if err != nil {
		t.Fatalf("second open: %v", err)
	}
	if res.Source != SourceSnapshot || g.calls != 1 {
		t.Fatalf("second open must bypass generation, got source=%s calls=%d", res.Source, g.calls)
	}
	if second.Digest() != first.Digest() {
		t.Fatalf("reloaded world differs: %x vs %x", second.Digest(), first.Digest())
	}
	for i := -5; i <= 5; i++ {
		a, _ := first.Chunk(i)
		b, _ := second.Chunk(i)
		if a.Index() != b.Index() || a.SolidCount() != b.SolidCount() || a.DecorativeCount() != b.DecorativeCount() || a.Digest() != b.Digest() {
			t.Fatalf("chunk %d differs after reload", i)
		}
	}
}

func TestOpen_ShapeMismatchIsFatal(t *testing.T) {
	cfg, g := testSetup(t)
	if _, _, err := Open(cfg, g, quietLogger()); err != nil {
		t.Fatalf("open: %v", err)
	}
	cfg.Shape.Count = 12
	_, _, err := Open(cfg, g, quietLogger())
	if !errors.Is(err, store.ErrShapeMismatch) {
		t.Fatalf("expected ErrShapeMismatch, got %v", err)
	}
	if g.calls != 1 {
		t.Fatalf("mismatch must not regenerate, calls=%d", g.calls)
	}
}

func TestOpen_CorruptSnapshotIsFatal(t *testing.T) {
	cfg, g := testSetup(t)
	if err := os.MkdirAll(filepath.Dir(cfg.SnapshotPath), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(cfg.SnapshotPath, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, _, err := Open(cfg, g, quietLogger())
	if !errors.Is(err, ErrCorruptSnapshot) {
		t.Fatalf("expected ErrCorruptSnapshot, got %v", err)
	}
	if g.calls != 0 {
		t.Fatalf("corrupt snapshot must not regenerate, calls=%d", g.calls)
	}
}

func TestGenerate_CountsMatchContent(t *testing.T) {
	cfg, g := testSetup(t)
	s, err := Generate(cfg, g)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	for _, ch := range s.Chunks() {
		solid := 0
		for _, b := range ch.Blocks() {
			if b.Solid(cfg.Threshold) {
				solid++
			}
		}
		if solid != ch.SolidCount() || ch.Len()-solid != ch.DecorativeCount() {
			t.Fatalf("chunk %d counts drifted", ch.Index())
		}
		if ch.Len() == 0 {
			t.Fatalf("chunk %d is empty", ch.Index())
		}
	}
}
