package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"sidecraft.ai/internal/persistence/indexdb"
	"sidecraft.ai/internal/persistence/snapshot"
	"sidecraft.ai/internal/sim/catalogs"
	"sidecraft.ai/internal/sim/session"
	"sidecraft.ai/internal/sim/tuning"
	"sidecraft.ai/internal/sim/world/terrain/store"
)

type runtimeIndex interface {
	session.Index
	Close() error
	Stats() indexdb.Stats
	UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error
	UpsertWorld(worldID string, w *store.WorldStore) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

// openRuntimeIndex returns nil when indexing is off. The index is a read model only; the world
// never reads from it.
func openRuntimeIndex(worldDir string, disableDB bool, logger logrus.FieldLogger) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("SC_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		logger.Info("index backend disabled")
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(indexdb.Path(worldDir))
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported SC_INDEX_BACKEND: %s", backend)
	}
}
