package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"hivemind.ai/internal/persistence/archive"
	"hivemind.ai/internal/persistence/indexdb"
	persistlog "hivemind.ai/internal/persistence/log"
	"hivemind.ai/internal/persistence/r2s3"
	"hivemind.ai/internal/persistence/snapshot"
	"hivemind.ai/internal/sim/diag"
	"hivemind.ai/internal/sim/gridworld"
	"hivemind.ai/internal/sim/scheduler"
	"hivemind.ai/internal/sim/session"
	"hivemind.ai/internal/sim/tuning"
	"hivemind.ai/internal/transport/ws"
)

func main() {
	var (
		url        = flag.String("url", "ws://localhost:8080/v1/ws", "world server ws url")
		name       = flag.String("name", "hivemind", "controller name sent in HELLO")
		token      = flag.String("token", "", "world server token (or set HM_WORLD_TOKEN)")
		local      = flag.Bool("local", false, "run against an embedded grid world instead of dialing a server")
		worldPath  = flag.String("world", "", "world.yaml for -local (default: built-in demo world)")
		ticks      = flag.Uint64("ticks", 0, "stop after this many ticks (0: run until interrupted)")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: built-in tuning)")
		disableDB  = flag.Bool("disable_db", false, "persist state to snapshot files only, without the sqlite index")
		keepArch   = flag.Int("archive_keep", 48, "archived snapshots to retain (0: all)")

		ingestURL   = flag.String("ingest_url", "", "remote ingest endpoint for diagnostics (optional)")
		ingestToken = flag.String("ingest_token", "", "remote ingest token (or set HM_INGEST_TOKEN)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[controller] ", log.LstdFlags|log.Lmicroseconds)

	tune := tuning.Defaults()
	if tp := strings.TrimSpace(*tuningPath); tp != "" {
		t, err := tuning.Load(tp)
		if err != nil {
			logger.Fatalf("load tuning: %v", err)
		}
		tune = t
	}
	tune.Normalize()

	if err := os.MkdirAll(*dataDir, 0o755); err != nil {
		logger.Fatalf("data dir: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	p, err := openPersistence(*dataDir, *disableDB, *keepArch, tune, logger)
	if err != nil {
		logger.Fatalf("persistence: %v", err)
	}
	defer p.Close()

	if u := strings.TrimSpace(*ingestURL); u != "" {
		tok := strings.TrimSpace(*ingestToken)
		if tok == "" {
			tok = strings.TrimSpace(os.Getenv("HM_INGEST_TOKEN"))
		}
		remote, err := indexdb.OpenRemote(indexdb.RemoteConfig{
			Endpoint: u,
			Token:    tok,
			Session:  *name,
			Logger:   log.New(os.Stdout, "[ingest] ", log.LstdFlags),
		})
		if err != nil {
			logger.Fatalf("remote ingest: %v", err)
		}
		p.remote = remote
	}

	sink := diag.Multi(append([]diag.Sink{diag.LogSink{L: log.New(os.Stdout, "[diag] ", log.LstdFlags)}}, p.sinks()...)...)

	if *local {
		cfg, err := gridworld.Load(*worldPath)
		if err != nil {
			logger.Fatalf("load world: %v", err)
		}
		w, err := gridworld.New(cfg)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
		runner := p.runner(scheduler.New(w, tune, sink), sink, logger)
		if err := runner.Open(ctx); err != nil {
			logger.Fatalf("open state: %v", err)
		}
		runLocal(ctx, runner, w, tune.TickRateHz, *ticks, logger)
		return
	}

	tok := strings.TrimSpace(*token)
	if tok == "" {
		tok = strings.TrimSpace(os.Getenv("HM_WORLD_TOKEN"))
	}
	client, err := ws.Dial(ctx, *url, *name, tok, logger)
	if err != nil {
		logger.Fatalf("connect: %v", err)
	}
	defer client.Close()

	runner := p.runner(scheduler.New(client, tune, sink), sink, logger)
	if err := runner.Open(ctx); err != nil {
		logger.Fatalf("open state: %v", err)
	}
	runRemote(ctx, runner, client, *ticks, logger)
}

func runLocal(ctx context.Context, runner *scheduler.Runner, w *gridworld.World, rateHz int, limit uint64, logger *log.Logger) {
	ticker := time.NewTicker(time.Second / time.Duration(max(1, rateHz)))
	defer ticker.Stop()
	for n := uint64(0); limit == 0 || n < limit; n++ {
		if _, err := runner.Tick(ctx, w); err != nil {
			logger.Printf("tick %d: %v", w.Tick(), err)
		}
		w.Step()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func runRemote(ctx context.Context, runner *scheduler.Runner, client *ws.Client, limit uint64, logger *log.Logger) {
	for n := uint64(0); limit == 0 || n < limit; n++ {
		if err := client.Next(ctx); err != nil {
			if ctx.Err() == nil {
				logger.Printf("read tick: %v", err)
			}
			return
		}
		if _, err := runner.Tick(ctx, client); err != nil {
			logger.Printf("tick %d: %v", client.Tick(), err)
		}
		if err := client.Done(); err != nil {
			logger.Printf("tick %d: %v", client.Tick(), err)
			return
		}
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

// persistence bundles every store and log the controller writes to.
type persistence struct {
	tune tuning.Tuning

	idx     *indexdb.SQLiteIndex
	files   *snapshot.FileStore
	archive *archive.Store
	mirror  *r2s3.Mirror
	diagLog *persistlog.DiagnosticsLogger
	tickLog *persistlog.TickLogger
	remote  *indexdb.RemoteIndex
}

func openPersistence(dataDir string, disableDB bool, keepArchives int, tune tuning.Tuning, logger *log.Logger) (*persistence, error) {
	p := &persistence{
		tune:    tune,
		files:   &snapshot.FileStore{Dir: filepath.Join(dataDir, "snapshots"), Keep: tune.KeepStates},
		archive: &archive.Store{Dir: filepath.Join(dataDir, "archive"), Keep: keepArchives},
		diagLog: persistlog.NewDiagnosticsLogger(dataDir),
		tickLog: persistlog.NewTickLogger(dataDir),
	}
	mirror, err := buildArchiveMirror(dataDir, log.New(os.Stdout, "[mirror] ", log.LstdFlags))
	if err != nil {
		p.Close()
		return nil, err
	}
	if mirror != nil {
		p.mirror = mirror
		p.archive.OnArchived = mirror.Enqueue
		logger.Printf("archive mirror enabled")
	}
	if !disableDB {
		idx, err := indexdb.OpenSQLite(filepath.Join(dataDir, "index.sqlite"), tune.KeepStates)
		if err != nil {
			p.Close()
			return nil, err
		}
		p.idx = idx
		logger.Printf("sqlite index enabled")
	}
	return p, nil
}

func (p *persistence) sinks() []diag.Sink {
	out := []diag.Sink{p.diagLog}
	if p.idx != nil {
		out = append(out, p.idx)
	}
	if p.remote != nil {
		out = append(out, p.remote)
	}
	return out
}

// runner wires the stores: the sqlite index (or the snapshot files when it
// is disabled) holds every tick, and the archive gets a copy every
// SnapshotEveryTicks.
func (p *persistence) runner(sched *scheduler.Scheduler, sink diag.Sink, logger *log.Logger) *scheduler.Runner {
	var store scheduler.Store = p.files
	if p.idx != nil {
		store = p.idx
	}
	r := scheduler.NewRunner(sched, store, sink, logger)
	r.Archive = p.archive
	r.ArchiveEvery = uint64(p.tune.SnapshotEveryTicks)
	r.Ticks = p.tickLog
	r.OnTick = func(rep scheduler.Report) { p.record(rep, r.State()) }
	return r
}

func (p *persistence) record(rep scheduler.Report, st *session.State) {
	for _, prod := range rep.Produced {
		row := indexdb.ProductionRow{
			Tick:     rep.Tick,
			Name:     prod.Name,
			Role:     string(prod.Role),
			Zone:     prod.Zone,
			Facility: prod.Facility,
			Body:     indexdb.BodyString(prod.Body),
		}
		if p.idx != nil {
			p.idx.RecordProduction(row)
		}
		if p.remote != nil {
			p.remote.RecordProduction(row)
		}
	}
	if p.remote != nil && rep.Slow && st != nil {
		p.remote.RecordState(indexdb.StateRow{Tick: rep.Tick, Agents: len(st.Agents), Tasks: st.Queues.Count()})
	}
}

func (p *persistence) Close() {
	if p.remote != nil {
		_ = p.remote.Close()
	}
	if p.idx != nil {
		_ = p.idx.Close()
	}
	p.mirror.Close()
	_ = p.diagLog.Close()
	_ = p.tickLog.Close()
}
