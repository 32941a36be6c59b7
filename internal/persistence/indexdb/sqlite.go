package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"sidecraft.ai/internal/persistence/snapshot"
	"sidecraft.ai/internal/sim/catalogs"
	"sidecraft.ai/internal/sim/encoding"
	"sidecraft.ai/internal/sim/session"
	"sidecraft.ai/internal/sim/tuning"
	"sidecraft.ai/internal/sim/world/terrain/store"
)

// SQLiteIndex is a queryable read model of the world: chunk summaries, transitions and snapshot
// records. The JSONL journal stays the source of truth; the index drops writes when behind.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropTransition atomic.Uint64
	dropSnapshot   atomic.Uint64
}

type Stats struct {
	QueueLen            int
	DropTransitionTotal uint64
	DropSnapshotTotal   uint64
}

type reqKind int

const (
	reqTransition reqKind = iota + 1
	reqSnapshot
)

type req struct {
	kind reqKind

	transition session.JournalEntry
	snapshot   snapshotRow
}

type snapshotRow struct {
	Path      string
	WorldID   string
	CreatedAt string
	Seed      int64
	Chunks    int
	Digest    uint64
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 16384),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

// Path is <worldDir>/index/world.sqlite.
func Path(worldDir string) string { return filepath.Join(worldDir, "index", "world.sqlite") }

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			idx INTEGER PRIMARY KEY,
			solid INTEGER NOT NULL,
			decorative INTEGER NOT NULL,
			digest TEXT NOT NULL,
			rle TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS transitions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			seq INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			direction INTEGER NOT NULL,
			evicted INTEGER,
			admitted INTEGER NOT NULL,
			evicted_solid INTEGER NOT NULL,
			evicted_decorative INTEGER NOT NULL,
			admitted_solid INTEGER NOT NULL,
			admitted_decorative INTEGER NOT NULL,
			lo INTEGER NOT NULL,
			hi INTEGER NOT NULL,
			player_x REAL NOT NULL,
			player_y REAL NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_transitions_admitted ON transitions(admitted, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			path TEXT PRIMARY KEY,
			world_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			seed INTEGER NOT NULL,
			chunks INTEGER NOT NULL,
			digest TEXT NOT NULL
		);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueLen:            len(s.ch),
		DropTransitionTotal: s.dropTransition.Load(),
		DropSnapshotTotal:   s.dropSnapshot.Load(),
	}
}

// RecordTransition queues a transition row. It never blocks the tick.
func (s *SQLiteIndex) RecordTransition(e session.JournalEntry) {
	if s == nil || s.closed.Load() {
		return
	}
	select {
	case s.ch <- req{kind: reqTransition, transition: e}:
	default:
		s.dropTransition.Add(1)
	}
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Path:      path,
		WorldID:   snap.Header.WorldID,
		CreatedAt: snap.Header.CreatedAt,
		Seed:      snap.Seed,
		Chunks:    len(snap.Chunks),
		Digest:    snap.Digest,
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertWorld writes the chunk table and world metadata in one transaction. It runs once at
// startup, before any tick, so it writes synchronously.
func (s *SQLiteIndex) UpsertWorld(worldID string, w *store.WorldStore) error {
	if s == nil {
		return nil
	}
	shape := w.Shape()
	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	meta := map[string]string{
		"schema_version":  "1",
		"world_id":        worldID,
		"seed":            strconv.FormatInt(w.Seed(), 10),
		"min_chunk":       strconv.Itoa(shape.MinIndex),
		"chunk_count":     strconv.Itoa(shape.Count),
		"chunk_width":     strconv.Itoa(shape.ChunkWidth),
		"chunk_height":    strconv.Itoa(shape.ChunkHeight),
		"solid_threshold": strconv.Itoa(int(w.Threshold())),
		"world_digest":    fmt.Sprintf("%016x", w.Digest()),
	}
	for k, v := range meta {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES(?,?)`, k, v); err != nil {
			return err
		}
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO chunks(idx,solid,decorative,digest,rle) VALUES(?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, ch := range w.Chunks() {
		rle := encoding.EncodeChunk(ch, shape.ChunkWidth, shape.ChunkHeight)
		if _, err := stmt.Exec(ch.Index(), ch.SolidCount(), ch.DecorativeCount(), fmt.Sprintf("%016x", ch.Digest()), rle); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpsertCatalogs stores the block catalog and the tuning actually applied.
func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	if configDir != "" {
		if b, err := os.ReadFile(filepath.Join(configDir, "blocks.json")); err == nil {
			rows = append(rows, kv{name: "blocks_defs", digest: cats.Blocks.DefsDigest, json: b})
		}
	}
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		rows = append(rows, kv{name: "tuning", digest: hex.EncodeToString(sum[:]), json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertTransition, _ := s.db.Prepare(`INSERT INTO transitions(seq,tick,direction,evicted,admitted,evicted_solid,evicted_decorative,admitted_solid,admitted_decorative,lo,hi,player_x,player_y) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(path,world_id,created_at,seed,chunks,digest) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertTransition != nil {
			_ = insertTransition.Close()
		}
		if insertSnapshot != nil {
			_ = insertSnapshot.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqTransition:
			e := r.transition
			var evicted any
			if e.Evicted != nil {
				evicted = *e.Evicted
			}
			if insertTransition != nil {
				if _, err := tx.Stmt(insertTransition).Exec(
					int64(e.Seq),
					int64(e.Tick),
					int(e.Direction),
					evicted,
					e.Admitted,
					e.EvictedCounts.Solid,
					e.EvictedCounts.Decorative,
					e.AdmittedCounts.Solid,
					e.AdmittedCounts.Decorative,
					e.Lo,
					e.Hi,
					float64(e.Player[0]),
					float64(e.Player[1]),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot != nil {
				if _, err := tx.Stmt(insertSnapshot).Exec(
					sn.Path,
					sn.WorldID,
					sn.CreatedAt,
					sn.Seed,
					sn.Chunks,
					fmt.Sprintf("%016x", sn.Digest),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	commit()
}
