package casting

import (
	"testing"

	"storylet.ai/internal/sim/storylet"
	"storylet.ai/internal/sim/tuning"
	"storylet.ai/internal/sim/worldctx"
)

func testWorld(actors ...worldctx.ActorID) *worldctx.Context {
	w := &worldctx.Context{
		Seed:     11,
		PlayerID: "p",
		Actors:   map[worldctx.ActorID]*worldctx.Actor{"p": {ID: "p"}},
	}
	for _, id := range actors {
		w.Actors[id] = &worldctx.Actor{ID: id}
		w.Known = append(w.Known, id)
	}
	return w
}

func rivalStorylet(roles ...storylet.RoleSlot) *storylet.CompiledStorylet {
	if len(roles) == 0 {
		roles = []storylet.RoleSlot{{Name: "rival", Required: true}}
	}
	return &storylet.CompiledStorylet{Key: 3, ID: "feud", Roles: roles}
}

func TestArchetypeOf(t *testing.T) {
	cases := map[string]Archetype{
		"player":           Protagonist,
		"self":             Protagonist,
		"rival":            Rival,
		"old_enemy":        Rival,
		"best_friend":      Friend,
		"crush":            Romance,
		"mentor":           Mentor,
		"neighbor":         Generic,
		"blind-date":       Romance,
		"old ally":         Friend,
		"candidate":        Generic,
		"tally_clerk":      Generic,
		"business_partner": Generic,
	}
	for role, want := range cases {
		if got := ArchetypeOf(role); got != want {
			t.Fatalf("ArchetypeOf(%q)=%v want %v", role, got, want)
		}
	}
}

func TestAssignRoles_MemoryTipsRival(t *testing.T) {
	w := testWorld("a", "b")
	w.SetRelationship("a", "p", worldctx.Relationship{Resentment: 2})
	w.SetRelationship("b", "p", worldctx.Relationship{Resentment: 5})
	w.Record("b", worldctx.Memory{Tick: 95, Tags: []string{"betrayal"}, Participants: []worldctx.ActorID{"b", "p"}, Intensity: 0.8})

	e := New(tuning.Defaults().Casting)
	got, ok := e.AssignRoles(Request{Storylet: rivalStorylet(), World: w, Tick: 100})
	if !ok || got["rival"] != "b" {
		t.Fatalf("rival=%v ok=%v want b", got["rival"], ok)
	}

	// Memory alone overturns a small raw lead.
	w.SetRelationship("a", "p", worldctx.Relationship{Resentment: 5})
	w.SetRelationship("b", "p", worldctx.Relationship{Resentment: 4})
	got, ok = e.AssignRoles(Request{Storylet: rivalStorylet(), World: w, Tick: 100})
	if !ok || got["rival"] != "b" {
		t.Fatalf("rival=%v want b via betrayal memory", got["rival"])
	}
	if bonus := e.MemoryAffinity(Rival, "b", w, 100); bonus <= 1 {
		t.Fatalf("memory bonus=%v want > 1", bonus)
	}
}

func TestMemoryAffinity_RecencyAndParticipants(t *testing.T) {
	w := testWorld("b")
	w.Record("b", worldctx.Memory{Tick: 100, Tags: []string{"betrayal"}, Participants: []worldctx.ActorID{"b", "p"}, Intensity: -1})
	w.Record("b", worldctx.Memory{Tick: 100, Tags: []string{"betrayal"}, Participants: []worldctx.ActorID{"b", "x"}, Intensity: 1})
	cfg := tuning.Defaults().Casting
	e := New(cfg)

	fresh := e.MemoryAffinity(Rival, "b", w, 100)
	want := 1.5 * 1 * cfg.MemoryAffinityScale * (1 + cfg.MemoryRecencyBoost)
	if fresh != want {
		t.Fatalf("fresh=%v want %v", fresh, want)
	}
	old := e.MemoryAffinity(Rival, "b", w, 100+cfg.MemoryRecencyTicks)
	if old != 1.5*cfg.MemoryAffinityScale {
		t.Fatalf("old=%v want no recency boost", old)
	}
	if f := e.MemoryAffinity(Friend, "b", w, 100); f >= 0 {
		t.Fatalf("betrayal should push away from friend, got %v", f)
	}
}

func TestAssignRoles_RequiredFailsOptionalSkips(t *testing.T) {
	w := testWorld("a")
	e := New(tuning.Defaults().Casting)
	s := rivalStorylet(
		storylet.RoleSlot{Name: "rival", Required: true},
		storylet.RoleSlot{Name: "friend", Required: true},
	)
	if _, ok := e.AssignRoles(Request{Storylet: s, World: w, Tick: 1}); ok {
		t.Fatalf("two required roles with one actor should fail")
	}
	s = rivalStorylet(
		storylet.RoleSlot{Name: "witness"},
		storylet.RoleSlot{Name: "rival", Required: true},
	)
	got, ok := e.AssignRoles(Request{Storylet: s, World: w, Tick: 1})
	if !ok || got["rival"] != "a" {
		t.Fatalf("required role must be cast first, got %v", got)
	}
	if _, cast := got["witness"]; cast {
		t.Fatalf("optional role should stay empty, got %v", got)
	}
}

func TestAssignRoles_NoReuseAndExclusion(t *testing.T) {
	w := testWorld("a", "b", "c")
	w.SetRelationship("a", "p", worldctx.Relationship{Affection: 9})
	e := New(tuning.Defaults().Casting)
	s := rivalStorylet(
		storylet.RoleSlot{Name: "friend", Required: true},
		storylet.RoleSlot{Name: "ally", Required: true},
	)
	got, ok := e.AssignRoles(Request{Storylet: s, World: w, Tick: 1})
	if !ok || got["friend"] != "a" || got["ally"] == "a" || got["ally"] == "" {
		t.Fatalf("assignments=%v", got)
	}
	got, ok = e.AssignRoles(Request{Storylet: s, World: w, Tick: 1, Exclude: func(id worldctx.ActorID) bool { return id == "a" }})
	if !ok || got["friend"] == "a" || got["ally"] == "a" {
		t.Fatalf("excluded actor was cast: %v", got)
	}
	for _, id := range got.Actors() {
		if id == w.PlayerID {
			t.Fatalf("protagonist cast in a non-protagonist role")
		}
	}
}

func TestAssignRoles_TieBreakDeterministic(t *testing.T) {
	w := testWorld("a", "b", "c", "d")
	e := New(tuning.Defaults().Casting)
	s := rivalStorylet()
	seen := map[worldctx.ActorID]bool{}
	for tick := uint64(0); tick < 64; tick++ {
		first, ok := e.AssignRoles(Request{Storylet: s, World: w, Tick: tick})
		if !ok {
			t.Fatalf("tick %d: cast failed", tick)
		}
		again, _ := e.AssignRoles(Request{Storylet: s, World: w, Tick: tick})
		if first["rival"] != again["rival"] {
			t.Fatalf("tick %d: tie-break not deterministic", tick)
		}
		seen[first["rival"]] = true
	}
	if len(seen) < 2 {
		t.Fatalf("tie-break always picked %v", seen)
	}
}

func TestAssignRoles_MinCandidateScore(t *testing.T) {
	w := testWorld("a")
	w.SetRelationship("a", "p", worldctx.Relationship{Trust: 9, Affection: 9})
	cfg := tuning.Defaults().Casting
	cfg.MinCandidateScore = 0
	e := New(cfg)
	if _, ok := e.AssignRoles(Request{Storylet: rivalStorylet(), World: w, Tick: 1}); ok {
		t.Fatalf("a trusted friend should not qualify as rival")
	}
}

func TestAssignRoles_Protagonist(t *testing.T) {
	w := testWorld("a")
	e := New(tuning.Defaults().Casting)
	s := rivalStorylet(storylet.RoleSlot{Name: "self", Required: true})
	got, ok := e.AssignRoles(Request{Storylet: s, World: w, Tick: 1})
	if !ok || got["self"] != "p" {
		t.Fatalf("self=%v want p", got["self"])
	}
	if _, ok := e.AssignRoles(Request{Storylet: s, World: w, Tick: 1, Pool: []worldctx.ActorID{"a"}}); ok {
		t.Fatalf("protagonist role must not be filled outside the pool")
	}
}

func betrayalReq(role string, min float32) storylet.RelationshipReq {
	r := storylet.AnyRange()
	r.Min = min
	return storylet.RelationshipReq{From: role, To: storylet.RolePlayer, Axis: storylet.AxisResentment, Range: r}
}

func TestAssignRoles_SkipsCandidateFailingRelationshipPrereq(t *testing.T) {
	w := testWorld("a", "b")
	w.SetRelationship("a", "p", worldctx.Relationship{Resentment: 3.9, Trust: -3, Affection: -3})
	w.SetRelationship("b", "p", worldctx.Relationship{Resentment: 5})
	w.Record("a", worldctx.Memory{Tick: 1, Tags: []string{"rivalry"}, Participants: []worldctx.ActorID{"a", "p"}, Intensity: 1})

	e := New(tuning.Defaults().Casting)
	s := rivalStorylet()
	if got, ok := e.AssignRoles(Request{Storylet: s, World: w, Tick: 2}); !ok || got["rival"] != "a" {
		t.Fatalf("without prerequisites rival=%v want a", got["rival"])
	}

	s.Prereqs.Relationships = []storylet.RelationshipReq{betrayalReq("rival", 4)}
	got, ok := e.AssignRoles(Request{Storylet: s, World: w, Tick: 2})
	if !ok || got["rival"] != "b" {
		t.Fatalf("rival=%v ok=%v want b", got["rival"], ok)
	}

	w.SetRelationship("b", "p", worldctx.Relationship{Resentment: 3})
	if got, ok := e.AssignRoles(Request{Storylet: s, World: w, Tick: 2}); ok {
		t.Fatalf("no actor meets the prerequisite, got %v", got)
	}
}

func TestAssignRoles_BacktracksAcrossPrereqRoles(t *testing.T) {
	w := testWorld("a", "b", "c")
	w.SetRelationship("a", "p", worldctx.Relationship{Resentment: 6})
	w.SetRelationship("b", "p", worldctx.Relationship{Resentment: 4.5})
	w.SetRelationship("c", "b", worldctx.Relationship{Trust: 3})

	trusts := storylet.AnyRange()
	trusts.Min = 2
	s := rivalStorylet(
		storylet.RoleSlot{Name: "witness"},
		storylet.RoleSlot{Name: "rival", Required: true},
		storylet.RoleSlot{Name: "friend", Required: true},
	)
	s.Prereqs.Relationships = []storylet.RelationshipReq{
		betrayalReq("rival", 4),
		{From: "friend", To: "rival", Axis: storylet.AxisTrust, Range: trusts},
	}

	e := New(tuning.Defaults().Casting)
	got, ok := e.AssignRoles(Request{Storylet: s, World: w, Tick: 1})
	if !ok {
		t.Fatalf("cast failed")
	}
	if got["rival"] != "b" || got["friend"] != "c" || got["witness"] != "a" {
		t.Fatalf("assignments=%v want rival=b friend=c witness=a", got)
	}
}
