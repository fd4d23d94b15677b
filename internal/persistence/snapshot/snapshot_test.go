package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"storylet.ai/internal/sim/director"
	"storylet.ai/internal/sim/director/arcs"
	"storylet.ai/internal/sim/director/cooldown"
	"storylet.ai/internal/sim/director/pacing"
	"storylet.ai/internal/sim/director/queue"
	"storylet.ai/internal/sim/storylet"
	"storylet.ai/internal/sim/worldctx"
)

func testState() director.State {
	return director.State{
		Tick:      42,
		Pacing:    pacing.State{Heat: 0.55, Phase: pacing.Rising, PhaseEnteredTick: 30},
		Cooldowns: []cooldown.Entry{{Key: 3, ReadyAt: 50}, {Key: 3, Actor: "p", ReadyAt: 60}},
		LastFired: cooldown.FiredState{
			Storylets: []cooldown.KeyTick{{Key: 3, Tick: 40}},
			Domains:   []cooldown.DomainTick{{Domain: storylet.DomainCareer, Tick: 40}},
			Tags:      []cooldown.TagTick{{Tag: "office", Tick: 40}},
		},
		Queue: []queue.Event{
			{Key: 5, ScheduledTick: 44, Priority: 2, Source: queue.SourceFollowUp, Seq: 7},
			{Key: 6, ScheduledTick: 43, Priority: 9, Forced: true, Source: queue.SourceMilestone, Origin: "promotion", Seq: 8},
		},
		QueueSeq:      9,
		Pressures:     []arcs.Pressure{{ID: "debt", Domain: storylet.DomainWealth, Tags: []string{"money"}, Severity: 0.4, CreatedTick: 10}},
		Milestones:    []arcs.Milestone{{ID: "promotion", Domain: storylet.DomainCareer, Progress: 2, Target: 3}},
		ConfigVersion: "v-test",
	}
}

func testWorld() *worldctx.Context {
	w := &worldctx.Context{
		Seed:      7,
		PlayerID:  "p",
		LifeStage: "adult",
		Actors: map[worldctx.ActorID]*worldctx.Actor{
			"p": {ID: "p", Name: "Pat", Mood: 0.2, Visible: true},
			"j": {ID: "j", Name: "Jo", Stats: map[string]float32{"ambition": 0.8}, Visible: true},
		},
		Known: []worldctx.ActorID{"j"},
	}
	w.SetRelationship("p", "j", worldctx.Relationship{Resentment: 4, Familiarity: 6})
	w.Record("j", worldctx.Memory{Tick: 12, Tags: []string{"betrayal"}, Participants: []worldctx.ActorID{"p", "j"}, Intensity: -0.8})
	w.SetFlag("office_party", true)
	return w
}

func TestWriteReadSnapshot_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	st := testState()
	snap, err := New("session-1", st, testWorld(), "lib-digest")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	path := Path(filepath.Join(dir, "snapshots"), st.Tick)
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.Header != snap.Header {
		t.Fatalf("header=%+v want %+v", got.Header, snap.Header)
	}
	if !got.Verify() {
		t.Fatalf("state digest mismatch after round trip")
	}
	if director.StateDigest(got.Director) != director.StateDigest(st) {
		t.Fatalf("director state changed")
	}
	if got.Director.Queue[1].Source != queue.SourceMilestone || got.Director.Queue[1].Origin != "promotion" {
		t.Fatalf("queue[1]=%+v", got.Director.Queue[1])
	}
	if got.Director.Pacing.Phase != pacing.Rising {
		t.Fatalf("phase=%v want %v", got.Director.Pacing.Phase, pacing.Rising)
	}

	w := &got.World
	if w.PlayerID != "p" || w.Seed != 7 {
		t.Fatalf("world header: player=%q seed=%d", w.PlayerID, w.Seed)
	}
	if r := w.Relationship("p", "j"); r.Resentment != 4 || r.Familiarity != 6 {
		t.Fatalf("relationship=%+v", r)
	}
	if m := w.MemoriesOf("j"); len(m) != 1 || !m[0].HasTag("betrayal") {
		t.Fatalf("journal=%+v", m)
	}
	if !w.WorldFlags["office_party"] {
		t.Fatalf("flag lost")
	}
}

func TestNew_CopiesWorld(t *testing.T) {
	w := testWorld()
	snap, err := New("s", testState(), w, "")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	w.Actors["j"].Mood = -1
	w.SetFlag("office_party", false)
	if snap.World.Actors["j"].Mood != 0 || !snap.World.WorldFlags["office_party"] {
		t.Fatalf("snapshot aliases the live world")
	}
}

func TestReadHeader(t *testing.T) {
	dir := t.TempDir()
	snap, err := New("session-2", testState(), nil, "lib")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	path := Path(dir, 42)
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	h, err := ReadHeader(path)
	if err != nil {
		t.Fatalf("header: %v", err)
	}
	if h.SessionID != "session-2" || h.Tick != 42 || h.LibraryDigest != "lib" || h.ConfigVersion != "v-test" {
		t.Fatalf("header=%+v", h)
	}
}

func TestReadSnapshot_RejectsVersion(t *testing.T) {
	dir := t.TempDir()
	snap, _ := New("s", testState(), nil, "")
	snap.Header.Version = 99
	path := Path(dir, 1)
	if err := WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := ReadSnapshot(path); !errors.Is(err, ErrVersion) {
		t.Fatalf("err=%v want ErrVersion", err)
	}
}

func TestLatest(t *testing.T) {
	dir := t.TempDir()
	if got := Latest(dir); got != "" {
		t.Fatalf("empty dir: got %q", got)
	}
	for _, name := range []string{"9.snap.zst", "120.snap.zst", "15.snap.zst", "notes.txt", "x.snap.zst"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if got, want := Latest(dir), filepath.Join(dir, "120.snap.zst"); got != want {
		t.Fatalf("latest=%q want %q", got, want)
	}
}

func TestCheckCompatible(t *testing.T) {
	snap, err := New("s", testState(), nil, "lib")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := snap.CheckCompatible("v-test", "lib"); err != nil {
		t.Fatalf("compatible snapshot rejected: %v", err)
	}
	if err := snap.CheckCompatible("v-other", "lib"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("config change err=%v want ErrMismatch", err)
	}
	if err := snap.CheckCompatible("v-test", "lib-2"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("library change err=%v want ErrMismatch", err)
	}
	snap.Director.QueueSeq++
	if err := snap.CheckCompatible("v-test", "lib"); !errors.Is(err, ErrMismatch) {
		t.Fatalf("tampered state err=%v want ErrMismatch", err)
	}
}
