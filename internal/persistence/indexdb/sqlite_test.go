package indexdb

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"storylet.ai/internal/persistence/snapshot"
	"storylet.ai/internal/sim/director"
	"storylet.ai/internal/sim/director/pacing"
	"storylet.ai/internal/sim/director/scoring"
	"storylet.ai/internal/sim/worldctx"
)

func TestSQLiteIndex_QueueDropStats(t *testing.T) {
	s := &SQLiteIndex{ch: make(chan req, 1)}
	s.ch <- req{kind: reqStep, step: director.LogEntry{Tick: 1}}

	_ = s.WriteStep(director.LogEntry{Tick: 2})
	_ = s.WriteArc(director.ArcEvent{Tick: 2})
	s.RecordSnapshot("/tmp/2.snap.zst", snapshot.SnapshotV1{})

	st := s.Stats()
	if st.DropStepTotal != 1 {
		t.Fatalf("DropStepTotal=%d want=1", st.DropStepTotal)
	}
	if st.DropArcTotal != 1 {
		t.Fatalf("DropArcTotal=%d want=1", st.DropArcTotal)
	}
	if st.DropSnapshotTotal != 1 {
		t.Fatalf("DropSnapshotTotal=%d want=1", st.DropSnapshotTotal)
	}
	if st.QueueDepth != 1 || st.QueueCapacity != 1 {
		t.Fatalf("queue stats mismatch: depth=%d cap=%d", st.QueueDepth, st.QueueCapacity)
	}
}

func TestSQLiteIndex_StepsRolesArcsSnapshots(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.db")

	idx, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	entries := []director.LogEntry{
		{Session: "s", Tick: 1, Heat: 0.2, Phase: pacing.LowKey, Digest: "d1"},
		{
			Session: "s", Tick: 2, Fired: true, Key: 4, StoryletID: "workplace_rivalry",
			Roles: map[string]string{"protagonist": "p", "rival": "jonas"},
			Score: &scoring.Candidate{Key: 4, TotalScore: 2.5}, Heat: 0.4, Phase: pacing.Rising, Digest: "d2",
		},
		{
			Session: "s", Tick: 5, Fired: true, Key: 1, StoryletID: "coffee_chat",
			Roles: map[string]string{"friend": "jonas"}, Heat: 0.3, Phase: pacing.Rising, Digest: "d5",
		},
	}
	for _, e := range entries {
		if err := idx.WriteStep(e); err != nil {
			t.Fatalf("WriteStep: %v", err)
		}
	}
	_ = idx.WriteArc(director.ArcEvent{Session: "s", Tick: 2, Kind: director.ArcMilestoneAdvanced, ID: "promotion"})
	_ = idx.WriteArc(director.ArcEvent{Session: "s", Tick: 2, Kind: director.ArcPressureResolved, ID: "feud"})

	snap := snapshot.SnapshotV1{
		Header:   snapshot.Header{Version: snapshot.Version, SessionID: "s", Tick: 5, StateDigest: "d5"},
		Director: director.State{Tick: 5},
		World: worldctx.Context{
			Actors:   map[worldctx.ActorID]*worldctx.Actor{"p": {ID: "p"}, "jonas": {ID: "jonas"}},
			Journals: map[worldctx.ActorID][]worldctx.Memory{"p": {{Tick: 2}, {Tick: 5}}},
		},
	}
	idx.RecordSnapshot("/abs/5.snap.zst", snap)
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := OpenReader(path)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer db.Close()
	ctx := context.Background()

	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM steps WHERE session='s'`).Scan(&n); err != nil || n != 3 {
		t.Fatalf("steps=%d err=%v want 3", n, err)
	}
	var id sql.NullString
	if err := db.QueryRow(`SELECT storylet_id FROM steps WHERE tick=1`).Scan(&id); err != nil || id.Valid {
		t.Fatalf("idle step storylet=%v err=%v", id, err)
	}

	hist, err := ActorHistory(ctx, db, "s", "jonas")
	if err != nil {
		t.Fatalf("ActorHistory: %v", err)
	}
	if len(hist) != 2 || hist[0].Role != "rival" || hist[0].StoryletID != "workplace_rivalry" || hist[1].Tick != 5 {
		t.Fatalf("history=%+v", hist)
	}

	counts, err := FiringCounts(ctx, db, "s")
	if err != nil {
		t.Fatalf("FiringCounts: %v", err)
	}
	if counts["workplace_rivalry"] != 1 || counts["coffee_chat"] != 1 || len(counts) != 2 {
		t.Fatalf("counts=%v", counts)
	}

	var kind string
	if err := db.QueryRow(`SELECT kind FROM arcs WHERE tick=2 AND seq=1`).Scan(&kind); err != nil || kind != director.ArcPressureResolved {
		t.Fatalf("arc seq 1 kind=%q err=%v", kind, err)
	}

	tick, p, ok, err := LatestSnapshot(ctx, db, "s")
	if err != nil || !ok || tick != 5 || p != "/abs/5.snap.zst" {
		t.Fatalf("latest=(%d,%q,%v,%v)", tick, p, ok, err)
	}
	var actors, memories int
	if err := db.QueryRow(`SELECT actors, memories FROM snapshots WHERE tick=5`).Scan(&actors, &memories); err != nil {
		t.Fatalf("snapshot row: %v", err)
	}
	if actors != 2 || memories != 2 {
		t.Fatalf("actors=%d memories=%d", actors, memories)
	}
	if _, _, ok, _ := LatestSnapshot(ctx, db, "other"); ok {
		t.Fatalf("unexpected snapshot for unknown session")
	}
}
