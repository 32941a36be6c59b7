package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RepoTuning(t *testing.T) {
	tu, err := Load(filepath.Join("..", "..", "..", "configs", "tuning.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.ChunkCount() != 62 || tu.VisibleSpan() != 5 {
		t.Fatalf("unexpected geometry: chunks=%d visible=%d", tu.ChunkCount(), tu.VisibleSpan())
	}
	if tu.SolidThreshold != 129 || tu.PhysicsMode != PhysicsSequential {
		t.Fatalf("unexpected values: %+v", tu)
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("seed: 7\nphysics_mode: concurrent\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.Seed != 7 || tu.PhysicsMode != PhysicsConcurrent {
		t.Fatalf("overrides not applied: %+v", tu)
	}
	if tu.ChunkWidth != Defaults().ChunkWidth || tu.Physics.Gravity != Defaults().Physics.Gravity {
		t.Fatalf("defaults lost: %+v", tu)
	}
}

func TestLoad_RejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("visible_min_chunk: 3\nvisible_max_chunk: 1\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error")
	}
	if err := os.WriteFile(path, []byte("physics_mode: parallel\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Fatalf("expected physics_mode error")
	}
}
