// Package indexdb keeps a queryable sqlite read model of a session: every
// step, who was cast in what, arc transitions and the snapshots on disk. The
// JSONL step log stays the source of truth; the index may drop writes under
// load.
package indexdb

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"storylet.ai/internal/persistence/snapshot"
	"storylet.ai/internal/sim/director"
	"storylet.ai/internal/sim/storylet"
	"storylet.ai/internal/sim/tuning"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropStep     atomic.Uint64
	dropArc      atomic.Uint64
	dropSnapshot atomic.Uint64
}

type reqKind int

const (
	reqStep reqKind = iota + 1
	reqArc
	reqSnapshot
)

type req struct {
	kind reqKind

	step     director.LogEntry
	arc      director.ArcEvent
	snapshot snapshotRow
}

type snapshotRow struct {
	Tick          uint64
	Path          string
	Session       string
	ConfigVersion string
	LibraryDigest string
	StateDigest   string
	QueueLen      int
	Pressures     int
	Milestones    int
	Actors        int
	Memories      int
}

// Stats reports queue pressure on the writer goroutine.
type Stats struct {
	QueueDepth        int    `json:"queue_depth"`
	QueueCapacity     int    `json:"queue_capacity"`
	DropStepTotal     uint64 `json:"drop_step_total"`
	DropArcTotal      uint64 `json:"drop_arc_total"`
	DropSnapshotTotal uint64 `json:"drop_snapshot_total"`
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
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
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
		`CREATE TABLE IF NOT EXISTS storylets (
			key INTEGER PRIMARY KEY,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			domain TEXT NOT NULL,
			life_stage TEXT NOT NULL,
			heat REAL NOT NULL,
			weight REAL NOT NULL,
			tags_json TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS steps (
			session TEXT NOT NULL,
			tick INTEGER NOT NULL,
			fired INTEGER NOT NULL,
			storylet_id TEXT,
			forced INTEGER NOT NULL,
			from_queue INTEGER NOT NULL,
			heat REAL NOT NULL,
			phase TEXT NOT NULL,
			queue_len INTEGER NOT NULL,
			candidates INTEGER NOT NULL,
			score REAL,
			digest TEXT NOT NULL,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (session, tick)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_steps_storylet ON steps(storylet_id, tick);`,
		`CREATE TABLE IF NOT EXISTS roles (
			session TEXT NOT NULL,
			tick INTEGER NOT NULL,
			role TEXT NOT NULL,
			actor_id TEXT NOT NULL,
			PRIMARY KEY (session, tick, role)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_roles_actor_tick ON roles(actor_id, tick);`,
		`CREATE TABLE IF NOT EXISTS arcs (
			session TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			arc_id TEXT NOT NULL,
			PRIMARY KEY (session, tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_arcs_id_tick ON arcs(arc_id, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			session TEXT NOT NULL,
			config_version TEXT NOT NULL,
			library_digest TEXT NOT NULL,
			state_digest TEXT NOT NULL,
			queue_len INTEGER NOT NULL,
			pressures INTEGER NOT NULL,
			milestones INTEGER NOT NULL,
			actors INTEGER NOT NULL,
			memories INTEGER NOT NULL
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
		QueueDepth:        len(s.ch),
		QueueCapacity:     cap(s.ch),
		DropStepTotal:     s.dropStep.Load(),
		DropArcTotal:      s.dropArc.Load(),
		DropSnapshotTotal: s.dropSnapshot.Load(),
	}
}

// WriteStep queues a step entry. It never blocks; a full queue drops the
// entry and counts it.
func (s *SQLiteIndex) WriteStep(e director.LogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqStep, step: e}:
	default:
		s.dropStep.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteArc(e director.ArcEvent) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqArc, arc: e}:
	default:
		s.dropArc.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	memories := 0
	for _, j := range snap.World.Journals {
		memories += len(j)
	}
	r := snapshotRow{
		Tick:          snap.Header.Tick,
		Path:          path,
		Session:       snap.Header.SessionID,
		ConfigVersion: snap.Header.ConfigVersion,
		LibraryDigest: snap.Header.LibraryDigest,
		StateDigest:   snap.Header.StateDigest,
		QueueLen:      len(snap.Director.Queue),
		Pressures:     len(snap.Director.Pressures),
		Milestones:    len(snap.Director.Milestones),
		Actors:        len(snap.World.Actors),
		Memories:      memories,
	}
	select {
	case s.ch <- req{kind: reqSnapshot, snapshot: r}:
	default:
		s.dropSnapshot.Add(1)
	}
}

// UpsertLibrary stores the compiled storylet table and the tuning in effect.
// It writes synchronously.
func (s *SQLiteIndex) UpsertLibrary(src storylet.Source, cfg tuning.Config) error {
	if s == nil {
		return nil
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}

	ins, err := tx.Prepare(`INSERT OR REPLACE INTO storylets(key,id,name,domain,life_stage,heat,weight,tags_json) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer ins.Close()
	ids := make([]string, 0, src.Len())
	for k := 0; k < src.Len(); k++ {
		st, ok := src.Storylet(storylet.Key(k))
		if !ok {
			continue
		}
		tags, _ := json.Marshal(st.Tags)
		if _, err := ins.Exec(k, st.ID, st.Name, st.Domain.String(), st.LifeStage.String(), float64(st.Heat), float64(st.Weight), string(tags)); err != nil {
			return fmt.Errorf("storylet %s: %w", st.ID, err)
		}
		ids = append(ids, st.ID)
	}
	sort.Strings(ids)

	cat, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer cat.Close()
	idsJSON, _ := json.Marshal(ids)
	if _, err := cat.Exec("storylets", src.Digest(), string(idsJSON), now); err != nil {
		return err
	}
	cfgJSON, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if _, err := cat.Exec("tuning", cfg.Version(), string(cfgJSON), now); err != nil {
		return err
	}
	return tx.Commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertStep, _ := s.db.Prepare(`INSERT OR REPLACE INTO steps(session,tick,fired,storylet_id,forced,from_queue,heat,phase,queue_len,candidates,score,digest,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertRole, _ := s.db.Prepare(`INSERT OR REPLACE INTO roles(session,tick,role,actor_id) VALUES(?,?,?,?)`)
	insertArc, _ := s.db.Prepare(`INSERT OR REPLACE INTO arcs(session,tick,seq,kind,arc_id) VALUES(?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,session,config_version,library_digest,state_digest,queue_len,pressures,milestones,actors,memories) VALUES(?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertStep, insertRole, insertArc, insertSnapshot} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second

		lastArcTick uint64
		arcSeq      int
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
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqStep:
			e := r.step
			if insertStep == nil {
				continue
			}
			raw, _ := json.Marshal(e)
			var (
				id    sql.NullString
				score sql.NullFloat64
			)
			if e.Fired {
				id = sql.NullString{String: e.StoryletID, Valid: true}
			}
			if e.Score != nil {
				score = sql.NullFloat64{Float64: e.Score.TotalScore, Valid: true}
			}
			if _, err := tx.Stmt(insertStep).Exec(
				e.Session,
				int64(e.Tick),
				boolInt(e.Fired),
				id,
				boolInt(e.Forced),
				boolInt(e.FromQueue),
				float64(e.Heat),
				e.Phase.String(),
				e.QueueLen,
				e.Candidates,
				score,
				e.Digest,
				string(raw),
			); err != nil {
				rollback()
				continue
			}
			opCount++

			roles := make([]string, 0, len(e.Roles))
			for role := range e.Roles {
				roles = append(roles, role)
			}
			sort.Strings(roles)
			for _, role := range roles {
				if insertRole == nil {
					break
				}
				if _, err := tx.Stmt(insertRole).Exec(e.Session, int64(e.Tick), role, e.Roles[role]); err != nil {
					rollback()
					break
				}
				opCount++
			}

		case reqArc:
			a := r.arc
			if a.Tick != lastArcTick {
				lastArcTick = a.Tick
				arcSeq = 0
			}
			seq := arcSeq
			arcSeq++
			if insertArc == nil {
				continue
			}
			if _, err := tx.Stmt(insertArc).Exec(a.Session, int64(a.Tick), seq, a.Kind, a.ID); err != nil {
				rollback()
				continue
			}
			opCount++

		case reqSnapshot:
			sn := r.snapshot
			if insertSnapshot == nil {
				continue
			}
			if _, err := tx.Stmt(insertSnapshot).Exec(
				int64(sn.Tick),
				sn.Path,
				sn.Session,
				sn.ConfigVersion,
				sn.LibraryDigest,
				sn.StateDigest,
				sn.QueueLen,
				sn.Pressures,
				sn.Milestones,
				sn.Actors,
				sn.Memories,
			); err != nil {
				rollback()
				continue
			}
			opCount++
		}
		flushIfNeeded()
	}

	commit()
}
