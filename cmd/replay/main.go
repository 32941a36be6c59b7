package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	persistlog "sidecraft.ai/internal/persistence/log"
	"sidecraft.ai/internal/persistence/snapshot"
	"sidecraft.ai/internal/sim/tuning"
	"sidecraft.ai/internal/sim/world/terrain/store"
)

func main() {
	var (
		snapPath   = flag.String("snapshot", "", "path to world.snap.zst")
		journalDir = flag.String("journal", "", "journal dir containing transitions-*.jsonl.zst (optional)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		verbose    = flag.Bool("v", false, "log every replayed transition")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	solid, decorative := 0, 0
	for _, c := range snap.Chunks {
		solid += c.Solid
		decorative += c.Decorative
	}
	fmt.Printf("snapshot v%d world=%s created=%s seed=%d chunks=%d [%d,%d] size=%dx%d solid=%d decorative=%d digest=%016x\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.CreatedAt, snap.Seed,
		len(snap.Chunks), snap.MinIndex, snap.MinIndex+snap.ChunkCount-1, snap.ChunkWidth, snap.ChunkHeight,
		solid, decorative, snap.Digest)

	if *journalDir == "" {
		return
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintln(os.Stderr, "load tuning:", err)
			os.Exit(1)
		}
		tune = tuning.Defaults()
	}

	// The snapshot's own shape wins; tuning only supplies the window and lead.
	shape := store.Shape{MinIndex: snap.MinIndex, Count: snap.ChunkCount, ChunkWidth: snap.ChunkWidth, ChunkHeight: snap.ChunkHeight}
	w, err := store.ImportSnapshot(shape, snap.SolidThreshold, snap)
	if err != nil {
		fmt.Fprintln(os.Stderr, "import snapshot:", err)
		os.Exit(1)
	}

	files, err := persistlog.ListFiles(*journalDir, persistlog.TransitionPrefix)
	if err != nil {
		fmt.Fprintln(os.Stderr, "list journal:", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "no journal files found in", *journalDir)
		os.Exit(1)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	if *verbose {
		logger.SetOutput(os.Stderr)
		logger.SetLevel(logrus.DebugLevel)
	}

	r := newReplayer(w, tune.VisibleMinChunk, tune.VisibleMaxChunk, tune.StreamLead, logger)
	for _, path := range files {
		if err := persistlog.ReadTransitions(path, r.Apply); err != nil {
			fmt.Fprintln(os.Stderr, "replay:", err)
			os.Exit(1)
		}
	}
	fmt.Printf("replay ok: runs=%d transitions=%d files=%d\n", r.runs, r.checked, len(files))
}
