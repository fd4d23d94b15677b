package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"storylet.ai/internal/observability"
	"storylet.ai/internal/observerproto"
	"storylet.ai/internal/persistence/indexdb"
	persistlog "storylet.ai/internal/persistence/log"
	"storylet.ai/internal/persistence/snapshot"
	"storylet.ai/internal/sim/catalogs"
	"storylet.ai/internal/sim/director"
	"storylet.ai/internal/sim/session"
	"storylet.ai/internal/sim/tuning"
	"storylet.ai/internal/sim/worldctx"
	"storylet.ai/internal/transport/observer"
)

type runOptions struct {
	ConfigDir     string
	DataDir       string
	World         string
	SessionID     string
	Ticks         int
	SnapshotEvery uint64
	Resume        bool
	Index         bool
	ObserverAddr  string
	StepDelayMS   int
	Tracing       observability.Config
}

func (o runOptions) sessionDir(id string) string {
	return filepath.Join(o.DataDir, "sessions", id)
}

func (o runOptions) worldPath() string {
	if filepath.IsAbs(o.World) {
		return o.World
	}
	return filepath.Join(o.ConfigDir, o.World)
}

func indexPath(sessionDir string) string {
	return filepath.Join(sessionDir, "index", "session.sqlite")
}

// runSummary is what a finished run reports.
type runSummary struct {
	SessionID string
	FromTick  uint64
	Tick      uint64
	Fired     int
	Snapshots []string
}

func run(ctx context.Context, o runOptions, logger *log.Logger) error {
	_, err := runSession(ctx, o, logger)
	return err
}

func runSession(ctx context.Context, o runOptions, logger *log.Logger) (runSummary, error) {
	var sum runSummary

	cfg, err := tuning.Load(filepath.Join(o.ConfigDir, "tuning.yaml"))
	if err != nil {
		return sum, fmt.Errorf("load tuning: %w", err)
	}
	lib, err := catalogs.Load(filepath.Join(o.ConfigDir, "storylets"))
	if err != nil {
		return sum, fmt.Errorf("load storylets: %w", err)
	}
	logger.Printf("library: storylets=%d digest=%.12s config=%s", lib.Len(), lib.Digest(), cfg.Version())

	if o.Resume && o.SessionID == "" {
		return sum, errors.New("-resume needs -session")
	}
	id := o.SessionID
	if id == "" {
		id = session.NewID()
	}
	sum.SessionID = id
	dir := o.sessionDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return sum, err
	}

	prov, err := observability.Setup(ctx, o.Tracing)
	if err != nil {
		return sum, fmt.Errorf("tracing: %w", err)
	}
	defer func() {
		ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := prov.Shutdown(ctx2); err != nil {
			logger.Printf("tracing shutdown: %v", err)
		}
	}()

	steps := &stepSinks{session: id}
	arcs := &arcSinks{session: id}

	stepLog := persistlog.NewStepLogger(dir, id)
	defer stepLog.Close()
	arcLog := persistlog.NewArcLogger(dir, id)
	defer arcLog.Close()
	steps.add(stepLog)
	arcs.add(arcLog)

	// Optional read-model index (does not affect determinism).
	var idx *indexdb.SQLiteIndex
	if o.Index {
		idx, err = indexdb.OpenSQLite(indexPath(dir))
		if err != nil {
			return sum, fmt.Errorf("open index: %w", err)
		}
		defer idx.Close()
		if err := idx.UpsertLibrary(lib, cfg); err != nil {
			logger.Printf("index: upsert library: %v", err)
		}
		steps.add(idx)
		arcs.add(idx)
	}

	dopts := []director.Option{director.WithLogger(logger), director.WithStepLogger(steps)}
	var s *session.Session
	if o.Resume {
		s, err = resumeSession(id, dir, cfg, lib, steps, dopts, logger)
		if err != nil {
			return sum, err
		}
	} else {
		w, err := worldctx.Load(o.worldPath())
		if err != nil {
			return sum, fmt.Errorf("load world: %w", err)
		}
		s = session.New(id, cfg, lib, w, dopts...)
		logger.Printf("session %s: new, world=%s player=%s", id, o.World, w.PlayerID)
	}
	sum.FromTick = s.Tick()

	// mu guards s against observer status reads.
	var mu sync.Mutex
	status := func() observerproto.BootstrapResponse {
		mu.Lock()
		defer mu.Unlock()
		return bootstrap(s, lib)
	}

	var obs *observer.Server
	if o.ObserverAddr != "" {
		obs = observer.NewServer(status, logger)
		steps.add(obs)
		arcs.add(obs)

		ln, err := net.Listen("tcp", o.ObserverAddr)
		if err != nil {
			return sum, fmt.Errorf("observer listen: %w", err)
		}
		srv := &http.Server{
			Handler:           newMux(status, idx, obs),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				logger.Printf("observer: %v", err)
			}
		}()
		defer func() {
			ctx2, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(ctx2)
		}()
		logger.Printf("observer listening on %s", ln.Addr())
	}

	snaps := newSnapshotWriter(filepath.Join(dir, "snapshots"), idx, logger)
	lastSnap := s.Tick()
	takeSnapshot := func() {
		snap, err := snapshot.New(s.ID, s.Director.Snapshot(), s.World, lib.Digest())
		if err != nil {
			logger.Printf("snapshot: %v", err)
			return
		}
		lastSnap = snap.Header.Tick
		snaps.enqueue(snap)
	}

	tracer := prov.Tracer("storylet.ai/cmd/director")
	delay := time.Duration(o.StepDelayMS) * time.Millisecond

loop:
	for i := 0; i < o.Ticks; i++ {
		if ctx.Err() != nil {
			break
		}
		_, span := tracer.Start(ctx, "director.step")
		mu.Lock()
		turn := s.Advance()
		if o.SnapshotEvery > 0 && turn.Step.Tick%o.SnapshotEvery == 0 {
			takeSnapshot()
		}
		mu.Unlock()

		span.SetAttributes(observability.StepAttributes(turn.Entry)...)
		for _, ev := range turn.Step.ArcEvents() {
			_ = arcs.WriteArc(ev)
			span.AddEvent(ev.Kind, trace.WithAttributes(attribute.String("arc.id", ev.ID)))
		}
		span.End()

		if turn.Step.Fired {
			sum.Fired++
			logger.Printf("tick %d: %s roles=%v heat=%.2f phase=%s", turn.Step.Tick, turn.Step.ID, turn.Entry.Roles, turn.Step.Heat, turn.Step.Phase)
		}

		if delay > 0 {
			select {
			case <-ctx.Done():
				break loop
			case <-time.After(delay):
			}
		}
	}

	mu.Lock()
	if o.SnapshotEvery > 0 && s.Tick() > lastSnap {
		takeSnapshot()
	}
	sum.Tick = s.Tick()
	mu.Unlock()
	sum.Snapshots = snaps.close()

	logger.Printf("session %s: ticks %d..%d fired=%d snapshots=%d", id, sum.FromTick, sum.Tick, sum.Fired, len(sum.Snapshots))
	if idx != nil {
		st := idx.Stats()
		logger.Printf("index: queue=%d/%d dropped steps=%d arcs=%d snapshots=%d",
			st.QueueDepth, st.QueueCapacity, st.DropStepTotal, st.DropArcTotal, st.DropSnapshotTotal)
	}

	if obs != nil && ctx.Err() == nil {
		logger.Printf("run complete; observer still serving until interrupted")
		<-ctx.Done()
	}
	return sum, nil
}

// resumeSession restores the latest snapshot and replays the logged steps
// past it, so the session continues from the last logged tick.
func resumeSession(id, dir string, cfg tuning.Config, lib *catalogs.Library, steps *stepSinks, opts []director.Option, logger *log.Logger) (*session.Session, error) {
	path := snapshot.Latest(filepath.Join(dir, "snapshots"))
	if path == "" {
		return nil, fmt.Errorf("no snapshot for session %s", id)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	if snap.Header.SessionID != id {
		return nil, fmt.Errorf("snapshot session mismatch: flag=%s snap=%s", id, snap.Header.SessionID)
	}
	if err := snap.CheckCompatible(cfg.Version(), lib.Digest()); err != nil {
		return nil, err
	}

	w := snap.World
	s := session.Resume(id, snap.Director, cfg, lib, &w, opts...)

	tail, err := persistlog.ReadSteps(dir, snap.Header.Tick+1)
	if err != nil {
		return nil, fmt.Errorf("read step log: %w", err)
	}
	if len(tail) > 0 {
		steps.skipThrough = tail[len(tail)-1].Tick
		n, err := s.Replay(tail)
		if err != nil {
			return nil, fmt.Errorf("catch up after %s: %w", filepath.Base(path), err)
		}
		logger.Printf("session %s: resumed from snapshot=%s, replayed %d logged steps", id, filepath.Base(path), n)
	} else {
		logger.Printf("session %s: resumed from snapshot=%s", id, filepath.Base(path))
	}
	return s, nil
}

func bootstrap(s *session.Session, lib *catalogs.Library) observerproto.BootstrapResponse {
	d := s.Director
	resp := observerproto.BootstrapResponse{
		ProtocolVersion: observerproto.Version,
		SessionID:       s.ID,
		Tick:            d.Tick(),
		Heat:            d.Heat(),
		Phase:           d.Phase().String(),
		QueueLen:        d.QueueLen(),
		ConfigVersion:   d.Config().Version(),
		LibraryDigest:   lib.Digest(),
		Storylets:       lib.Len(),
	}
	for _, p := range d.Pressures() {
		resp.Pressures = append(resp.Pressures, p.ID)
	}
	for _, m := range d.Milestones() {
		resp.Milestones = append(resp.Milestones, m.ID)
	}
	return resp
}
