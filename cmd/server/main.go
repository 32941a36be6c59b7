package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"

	"sidecraft.ai/internal/observerproto"
	"sidecraft.ai/internal/persistence/indexdb"
	persistlog "sidecraft.ai/internal/persistence/log"
	"sidecraft.ai/internal/sim/catalogs"
	"sidecraft.ai/internal/sim/physics"
	"sidecraft.ai/internal/sim/session"
	"sidecraft.ai/internal/sim/tuning"
	"sidecraft.ai/internal/sim/world/bootstrap"
	"sidecraft.ai/internal/sim/world/stream"
	"sidecraft.ai/internal/sim/world/terrain/gen"
	"sidecraft.ai/internal/transport/observer"
)

func main() {
	var (
		addr       = flag.String("addr", "127.0.0.1:8080", "http listen address")
		worldID    = flag.String("world", "", "world id (default: tuning world_id)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (catalogs, chunks, transitions, snapshot metadata)")
		mode       = flag.String("physics_mode", "", "sequential or concurrent (default: tuning physics_mode)")
		logLevel   = flag.String("log_level", "info", "log level")
		sentryDSN  = flag.String("sentry_dsn", "", "sentry dsn (or set SENTRY_DSN)")
	)
	flag.Parse()

	logger := logrus.New()
	logger.Formatter = &logrus.TextFormatter{ForceColors: true, FullTimestamp: true}
	if lvl, err := logrus.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(lvl)
	} else {
		logger.Warnf("unknown log level %q; using info", *logLevel)
	}

	dsn := strings.TrimSpace(*sentryDSN)
	if dsn == "" {
		dsn = strings.TrimSpace(os.Getenv("SENTRY_DSN"))
	}
	if dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
			logger.Fatalf("sentry: %v", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Warnf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if *worldID != "" {
		tune.WorldID = *worldID
	}
	if *mode != "" {
		tune.PhysicsMode = *mode
	}
	if err := tune.Validate(); err != nil {
		logger.Fatalf("tuning: %v", err)
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}
	pal, err := bootstrap.PaletteFromCatalog(cats.Blocks, tune.SolidThreshold)
	if err != nil {
		logger.Fatalf("catalogs: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", tune.WorldID)
	if err := os.MkdirAll(worldDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	w, res, err := bootstrap.Open(bootstrap.ConfigFromTuning(tune, worldDir), gen.New(bootstrap.GenParams(tune), pal), logger)
	if err != nil {
		// A snapshot that exists but cannot be read is never regenerated over.
		logger.Fatalf("world: %v", err)
	}

	idx, err := openRuntimeIndex(worldDir, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.WithError(err).Warn("index backend: upsert catalogs")
		}
		if err := idx.UpsertWorld(tune.WorldID, w); err != nil {
			logger.WithError(err).Warn("index backend: upsert world")
		}
		idx.RecordSnapshot(res.Path, res.Snapshot)
	}

	journal := persistlog.NewTransitionJournal(worldDir)
	defer journal.Close()

	// The session hands frames to the engine itself, so the streamer gets no collision set.
	st, err := stream.New(w, nil, stream.Options{Lead: tune.StreamLead, Logger: logger})
	if err != nil {
		logger.Fatalf("stream: %v", err)
	}
	if err := st.Fill(tune.VisibleMinChunk, tune.VisibleMaxChunk); err != nil {
		logger.Fatalf("initial window: %v", err)
	}

	pcfg := physics.ConfigFromTuning(tune)
	spawnChunk := (tune.VisibleMinChunk + tune.VisibleMaxChunk) / 2
	spawnColumn := spawnChunk*tune.ChunkWidth + tune.ChunkWidth/2
	engine := physics.New(pcfg, physics.SpawnPoint(st.Current().Solid, spawnColumn, pcfg))

	sessOpts := session.Options{
		Mode:        tune.PhysicsMode,
		ChunkWidth:  tune.ChunkWidth,
		BlockPixels: tune.BlockPixels,
		TickRateHz:  tune.TickRateHz,
		Logger:      logger,
		Journal:     journal,
	}
	if idx != nil {
		sessOpts.Index = idx
	}
	sess, err := session.New(st, engine, sessOpts)
	if err != nil {
		logger.Fatalf("session: %v", err)
	}

	feed := observer.NewServer(w, bootstrapResponse(tune, cats, w.Seed()), sess.Inputs(), logger)
	sess.SetFeed(feed)
	feed.PublishWindow(sess.State(), st.Current())

	ctx, cancel := signalContext()
	defer cancel()

	sessDone := make(chan error, 1)
	go func() {
		defer cancel()
		err := sess.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			if errors.Is(err, stream.ErrInvariant) {
				sentry.CaptureException(err)
			}
			sessDone <- err
			return
		}
		sessDone <- nil
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, metricsSource{
			worldID: tune.WorldID,
			ticks:   sess.Ticks,
			frame:   st.Current,
			clients: feed.Clients,
			index: func() (indexdb.Stats, bool) {
				if idx == nil {
					return indexdb.Stats{}, false
				}
				return idx.Stats(), true
			},
		})
	})
	if envBool("SC_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/bootstrap", feed.BootstrapHandler())
	mux.HandleFunc("/v1/ws", feed.WSHandler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.WithFields(logrus.Fields{
		"addr":   *addr,
		"world":  tune.WorldID,
		"source": res.Source,
		"mode":   sess.Mode(),
	}).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
	if err := <-sessDone; err != nil {
		_ = journal.Close()
		if idx != nil {
			_ = idx.Close()
		}
		logger.Fatalf("session stopped: %v", err)
	}
}

func bootstrapResponse(t tuning.Tuning, cats *catalogs.Catalogs, seed int64) observerproto.BootstrapResponse {
	palette := cats.Blocks.Palette()
	codes := make([]uint16, 0, len(palette))
	for _, id := range palette {
		code, _ := cats.Blocks.Code(id)
		codes = append(codes, code)
	}
	return observerproto.BootstrapResponse{
		WorldID: t.WorldID,
		WorldParams: observerproto.WorldParams{
			TickRateHz:     t.TickRateHz,
			ChunkWidth:     t.ChunkWidth,
			ChunkHeight:    t.ChunkHeight,
			MinChunk:       t.WorldMinChunk,
			MaxChunk:       t.WorldMaxChunk,
			BlockPixels:    t.BlockPixels,
			SolidThreshold: t.SolidThreshold,
			Seed:           seed,
		},
		BlockPalette: palette,
		BlockCodes:   codes,
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func envBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
