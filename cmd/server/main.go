package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"dronecraft.ai/internal/persistence/archive"
	persistlog "dronecraft.ai/internal/persistence/log"
	"dronecraft.ai/internal/persistence/snapshot"
	"dronecraft.ai/internal/sim/catalogs"
	"dronecraft.ai/internal/sim/debugger"
	"dronecraft.ai/internal/sim/program"
	"dronecraft.ai/internal/sim/tuning"
	"dronecraft.ai/internal/sim/world"
	"dronecraft.ai/internal/transport/observer"
)

func main() {
	var (
		addr        = flag.String("addr", ":8080", "http listen address")
		worldID     = flag.String("world", "world_1", "world id")
		seed        = flag.Int64("seed", 0, "terrain seed override (0 keeps the tuning seed)")
		configDir   = flag.String("configs", "./configs", "config directory")
		dataDir     = flag.String("data", "./data", "runtime data directory")
		tuningPath  = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		programPath = flag.String("program", "", "path to the drone program (default: <configs>/program.json)")
		disableDB   = flag.Bool("disable_db", false, "disable indexing (ticks, debug entries, step results, snapshot metadata)")
		logLevel    = flag.String("log_level", "info", "log level (debug, info, warn, error)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := newLogger(*logLevel)

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.WithError(err).Fatal("load catalogs")
	}

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.WithError(err).Fatal("load tuning")
		}
		logger.WithField("path", tp).Warn("tuning not found; using defaults")
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.Terrain.Seed = *seed
	}

	pp := strings.TrimSpace(*programPath)
	if pp == "" {
		pp = filepath.Join(*configDir, "program.json")
	}
	prog, err := program.Load(pp)
	if err != nil {
		logger.WithError(err).Fatal("load program")
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, *disableDB)
	if err != nil {
		logger.WithError(err).Fatal("open index backend")
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.WithError(err).Warn("index backend: upsert catalogs")
		}
	}

	w, err := world.New(world.ConfigFromTuning(*worldID, tune), cats)
	if err != nil {
		logger.WithError(err).Fatal("world")
	}
	defer w.Close()
	w.SetLogger(logger)
	if err := w.LoadProgram(prog); err != nil {
		logger.WithError(err).Fatal("load program into world")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(worldDir)
	}
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.WithError(err).Fatal("read snapshot")
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.WithError(err).Fatal("import snapshot")
		}
		logger.WithFields(logrus.Fields{"snapshot": filepath.Base(snapshotToLoad), "tick": w.CurrentTick()}).Info("resumed from snapshot")
	}

	ctx, cancel := signalContext()
	defer cancel()

	tickLog := persistlog.NewTickLogger(worldDir)
	debugLog := persistlog.NewDebugLogger(worldDir)
	stepLog := persistlog.NewStepLogger(worldDir)
	defer tickLog.Close()
	defer debugLog.Close()
	defer stepLog.Close()

	sinks := fanout{ticks: []world.TickLogger{tickLog}, debug: []debugger.Sink{debugLog}, steps: []world.StepLogger{stepLog}}
	if idx != nil {
		sinks.ticks = append(sinks.ticks, idx)
		sinks.debug = append(sinks.debug, idx)
		sinks.steps = append(sinks.steps, idx)
	}
	w.SetTickLogger(sinks)
	w.SetDebugSink(sinks)
	w.SetStepLogger(sinks)

	// Snapshot writer.
	snapCh := make(chan snapshot.SnapshotV1, 2)
	w.SetSnapshotSink(snapCh)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case snap := <-snapCh:
				path := filepath.Join(worldDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
				if err := snapshot.WriteSnapshot(path, snap); err != nil {
					logger.WithError(err).Error("snapshot write")
					continue
				}
				if idx != nil {
					idx.RecordSnapshot(path, snap)
				}
				if dst, ok, err := archive.ArchiveCompletedRun(worldDir, path, snap); err != nil {
					logger.WithError(err).Warn("archive run")
				} else if ok {
					logger.WithField("archive", dst).Info("program run complete; snapshot archived")
				}
			}
		}
	}()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.WithError(err).Error("world stopped")
		}
	}()

	mux := http.NewServeMux()
	h := &handlers{world: w, index: idx, log: logger}
	h.register(mux)

	enableAdminHTTP := envBool("DC_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("DC_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		h.registerAdmin(mux)
		obsSrv := observer.NewServer(w, logger)
		mux.HandleFunc("/admin/v1/observer/bootstrap", obsSrv.BootstrapHandler(w.DroneNames))
		mux.HandleFunc("/admin/v1/observer/ws", obsSrv.WSHandler())
	} else {
		logger.Info("admin endpoints disabled (DC_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

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

	logger.WithFields(logrus.Fields{"addr": *addr, "world": *worldID, "program": prog.Name}).Info("listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Fatal("ListenAndServe")
	}
}

func newLogger(level string) *logrus.Logger {
	l := logrus.New()
	l.Out = os.Stdout
	l.Formatter = &logrus.TextFormatter{FullTimestamp: true, TimestampFormat: "15:04:05.000"}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		l.WithField("log_level", level).Warn("unknown log level; using info")
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return l
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

func latestSnapshot(worldDir string) string {
	dir := filepath.Join(worldDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}
