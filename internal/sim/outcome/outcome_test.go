package outcome

import (
	"testing"

	"storylet.ai/internal/sim/storylet"
	"storylet.ai/internal/sim/worldctx"
)

type recordingScheduler struct {
	keys  []storylet.Key
	ticks []uint64
}

func (r *recordingScheduler) ScheduleOutcomeFollowUps(key storylet.Key, tick uint64) int {
	r.keys = append(r.keys, key)
	r.ticks = append(r.ticks, tick)
	return 1
}

func testWorld() *worldctx.Context {
	w := &worldctx.Context{
		PlayerID: "p",
		Actors: map[worldctx.ActorID]*worldctx.Actor{
			"p": {ID: "p", Mood: 0.9},
			"r": {ID: "r"},
		},
		Known: []worldctx.ActorID{"r"},
	}
	w.SetRelationship("r", "p", worldctx.Relationship{Resentment: 9})
	return w
}

func TestApply(t *testing.T) {
	w := testWorld()
	s := &storylet.CompiledStorylet{
		Key: 5,
		ID:  "feud",
		Outcome: storylet.Outcome{
			StatDeltas:         map[string]float32{"career": -3, "health": 2},
			RelationshipDeltas: []storylet.RelationshipDelta{{Role: "rival", Axis: storylet.AxisResentment, Delta: 2}},
			MoodDelta:          0.5,
			SetFlags:           map[string]bool{"feud_started": true},
			Memories: []storylet.MemorySpec{
				{Tag: "rivalry", Intensity: -0.5, Roles: []string{"player", "rival"}},
				{Tag: "ghost", Roles: []string{"witness"}},
			},
			FollowUps: []storylet.FollowUp{{Key: 6, DelayTicks: 3}},
		},
	}
	sched := &recordingScheduler{}
	res := Apply(w, s, map[string]worldctx.ActorID{"rival": "r"}, 40, sched)

	p, _ := w.Player()
	if p.Stats["career"] != -3 || p.Stats["health"] != 2 || res.StatsChanged != 2 {
		t.Fatalf("stats=%v res=%+v", p.Stats, res)
	}
	if p.Mood != MoodLimit {
		t.Fatalf("mood=%v want clamp to %v", p.Mood, MoodLimit)
	}
	if got := w.Relationship("r", "p").Resentment; got != AxisLimit {
		t.Fatalf("r->p resentment=%v want %v", got, AxisLimit)
	}
	if got := w.Relationship("p", "r").Resentment; got != 2 {
		t.Fatalf("p->r resentment=%v want 2", got)
	}
	if !w.WorldFlags["feud_started"] {
		t.Fatalf("flag not set")
	}
	if res.Memories != 1 || len(w.MemoriesOf("p")) != 1 || len(w.MemoriesOf("r")) != 1 {
		t.Fatalf("memories res=%d p=%v r=%v", res.Memories, w.MemoriesOf("p"), w.MemoriesOf("r"))
	}
	m := w.MemoriesOf("r")[0]
	if m.Tick != 40 || !m.Involves("p") || !m.HasTag("rivalry") {
		t.Fatalf("memory=%+v", m)
	}
	if res.FollowUps != 1 || len(sched.keys) != 1 || sched.keys[0] != 5 || sched.ticks[0] != 40 {
		t.Fatalf("follow ups res=%d sched=%+v", res.FollowUps, sched)
	}
}

func TestApply_UncastRoleSkipped(t *testing.T) {
	w := testWorld()
	s := &storylet.CompiledStorylet{Outcome: storylet.Outcome{
		RelationshipDeltas: []storylet.RelationshipDelta{{Role: "friend", Axis: storylet.AxisTrust, Delta: 1}},
		Memories:           []storylet.MemorySpec{{Tag: "quiet"}},
	}}
	res := Apply(w, s, nil, 1, nil)
	if res.Relationships != 0 {
		t.Fatalf("uncast role changed relationships")
	}
	if res.Memories != 1 || len(w.MemoriesOf("p")) != 1 {
		t.Fatalf("memory without roles belongs to the protagonist")
	}
	if got := Apply(nil, s, nil, 1, nil); got != (Result{}) {
		t.Fatalf("nil world result=%+v", got)
	}
}
