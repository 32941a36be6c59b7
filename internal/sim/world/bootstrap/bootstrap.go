// Package bootstrap turns configuration into a ready WorldStore: it loads the world snapshot when
// one exists and otherwise generates the world and persists it exactly once.
package bootstrap

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/sirupsen/logrus"

	"sidecraft.ai/internal/persistence/snapshot"
	"sidecraft.ai/internal/sim/world/terrain/store"
)

// ErrCorruptSnapshot is returned when a snapshot exists but cannot be decoded.
var ErrCorruptSnapshot = snapshot.ErrCorrupt

// Generator produces the content of a block range. Implementations must be deterministic.
type Generator interface {
	Generate(xMin, xMax, yMin, yMax int) map[store.SectionKey][]store.Block
}

type Config struct {
	WorldID      string
	SnapshotPath string
	Shape        store.Shape
	Threshold    uint16
	Seed         int64
}

type Source string

const (
	SourceSnapshot  Source = "snapshot"
	SourceGenerated Source = "generated"
)

type Result struct {
	Source  Source
	Path    string
	Chunks  int
	Digest  uint64
	Elapsed time.Duration
	// Snapshot is the persisted form; set for both sources.
	Snapshot snapshot.SnapshotV1
}

// Open returns the sealed world. A missing snapshot triggers generation; an unreadable or
// mismatched one is returned as an error and must be treated as fatal.
func Open(cfg Config, gen Generator, logger logrus.FieldLogger) (*store.WorldStore, Result, error) {
	start := time.Now()
	log := logger.WithFields(logrus.Fields{"world": cfg.WorldID, "snapshot": cfg.SnapshotPath})

	snap, err := snapshot.ReadSnapshot(cfg.SnapshotPath)
	switch {
	case err == nil:
		s, err := store.ImportSnapshot(cfg.Shape, cfg.Threshold, snap)
		if err != nil {
			return nil, Result{}, fmt.Errorf("import snapshot %s: %w", cfg.SnapshotPath, err)
		}
		if snap.Header.WorldID != "" && cfg.WorldID != "" && snap.Header.WorldID != cfg.WorldID {
			return nil, Result{}, fmt.Errorf("snapshot world id mismatch: config=%s snap=%s", cfg.WorldID, snap.Header.WorldID)
		}
		if snap.Seed != cfg.Seed {
			log.WithFields(logrus.Fields{"config_seed": cfg.Seed, "snapshot_seed": snap.Seed}).
				Info("seed differs from config; snapshot seed wins")
		}
		res := Result{Source: SourceSnapshot, Path: cfg.SnapshotPath, Chunks: s.Len(), Digest: s.Digest(), Elapsed: time.Since(start), Snapshot: snap}
		log.WithFields(logrus.Fields{"chunks": res.Chunks, "elapsed": res.Elapsed}).Info("world loaded from snapshot")
		return s, res, nil
	case errors.Is(err, fs.ErrNotExist):
		log.Info("no snapshot; generating world")
	default:
		return nil, Result{}, fmt.Errorf("read snapshot %s: %w", cfg.SnapshotPath, err)
	}

	s, err := Generate(cfg, gen)
	if err != nil {
		return nil, Result{}, err
	}
	snap, err = store.ExportSnapshot(s, snapshot.Header{
		Version:   snapshot.Version,
		WorldID:   cfg.WorldID,
		CreatedAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, Result{}, err
	}
	if err := snapshot.WriteSnapshot(cfg.SnapshotPath, snap); err != nil {
		return nil, Result{}, fmt.Errorf("write snapshot %s: %w", cfg.SnapshotPath, err)
	}
	res := Result{Source: SourceGenerated, Path: cfg.SnapshotPath, Chunks: s.Len(), Digest: s.Digest(), Elapsed: time.Since(start), Snapshot: snap}
	log.WithFields(logrus.Fields{"chunks": res.Chunks, "elapsed": res.Elapsed}).Info("world generated and persisted")
	return s, res, nil
}

// Generate builds a sealed store without touching disk: placeholders for every index, one
// generator call over the full range, merge by index.
func Generate(cfg Config, gen Generator) (*store.WorldStore, error) {
	s, err := store.NewWorldStore(cfg.Shape, cfg.Threshold, cfg.Seed)
	if err != nil {
		return nil, err
	}
	w := cfg.Shape.ChunkWidth
	sections := gen.Generate(cfg.Shape.MinIndex*w, (cfg.Shape.MaxIndex()+1)*w, 0, cfg.Shape.ChunkHeight)
	if err := s.MergeSections(sections); err != nil {
		return nil, fmt.Errorf("merge generated sections: %w", err)
	}
	s.Seal()
	return s, nil
}
