package catalogs

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storylet.ai/internal/sim/storylet"
)

func TestLoad_RepoLibrary(t *testing.T) {
	lib, err := Load("../../../configs/storylets")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if lib.Len() == 0 {
		t.Fatalf("empty library")
	}
	ids := lib.IDs()
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Fatalf("keys not in id order: %q before %q", ids[i-1], ids[i])
		}
	}
	k, ok := lib.KeyByID("workplace_rivalry")
	if !ok {
		t.Fatalf("workplace_rivalry missing")
	}
	s, _ := lib.Storylet(k)
	if len(s.Outcome.FollowUps) != 1 {
		t.Fatalf("follow-ups=%d want 1", len(s.Outcome.FollowUps))
	}
	next, _ := lib.Storylet(s.Outcome.FollowUps[0].Key)
	if next.ID != "rival_confrontation" {
		t.Fatalf("follow-up resolved to %q", next.ID)
	}
	if len(lib.Digest()) != 64 {
		t.Fatalf("digest=%q", lib.Digest())
	}
}

func TestLoad_MissingDirIsEmpty(t *testing.T) {
	lib, err := Load(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if lib.Len() != 0 {
		t.Fatalf("len=%d want 0", lib.Len())
	}
}

func TestLoad_SchemaRejectsBadDomain(t *testing.T) {
	dir := t.TempDir()
	raw := `{"id":"x","domain":"space","heat":1,"weight":1}`
	if err := os.WriteFile(filepath.Join(dir, "x.json"), []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, err := Load(dir)
	if err == nil || !strings.Contains(err.Error(), "x.json") {
		t.Fatalf("err=%v want schema failure naming x.json", err)
	}
}

func TestLoad_SchemaRejectsHeatOutOfRange(t *testing.T) {
	dir := t.TempDir()
	raw := `{"id":"hot","domain":"daily","heat":11,"weight":1}`
	if err := os.WriteFile(filepath.Join(dir, "hot.json"), []byte(raw), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected heat 11 to be rejected")
	}
}

func TestCompile_UnknownFollowUp(t *testing.T) {
	_, err := Compile([]StoryletDef{{
		ID: "a", Domain: "daily", Heat: 1, Weight: 1,
		Outcome: OutcomeDef{FollowUps: []FollowUpDef{{Storylet: "ghost"}}},
	}})
	if !errors.Is(err, ErrUnknownFollowUp) {
		t.Fatalf("err=%v want ErrUnknownFollowUp", err)
	}
}

func TestCompile_DuplicateID(t *testing.T) {
	_, err := Compile([]StoryletDef{
		{ID: "a", Domain: "daily", Heat: 1, Weight: 1},
		{ID: "a", Domain: "career", Heat: 1, Weight: 1},
	})
	if err == nil {
		t.Fatalf("expected duplicate id error")
	}
}

func TestCompile_UndeclaredRole(t *testing.T) {
	_, err := Compile([]StoryletDef{{
		ID: "a", Domain: "conflict", Heat: 5, Weight: 1,
		Prerequisites: PrereqDef{Relationships: []RelationshipReqDef{{From: "rival", To: "player", Axis: "trust"}}},
	}})
	if err == nil {
		t.Fatalf("expected undeclared role error")
	}
}

func TestIndexes(t *testing.T) {
	lib, err := Compile([]StoryletDef{
		{ID: "c_any", Domain: "daily", Heat: 1, Weight: 1, Tags: []string{"quiet", "home", "quiet"}},
		{ID: "a_adult", Domain: "career", LifeStage: "adult", Heat: 5, Weight: 1, Tags: []string{"ambition"}},
		{ID: "b_teen", Domain: "daily", LifeStage: "teen", Heat: 2, Weight: 1, Tags: []string{"home"}},
	})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	adult := lib.CandidatesForLifeStage(storylet.LifeStageAdult)
	if len(adult) != 2 || adult[0] != 0 || adult[1] != 2 {
		t.Fatalf("adult=%v want [0 2]", adult)
	}
	teen := lib.CandidatesForLifeStage(storylet.LifeStageTeen)
	if len(teen) != 2 || teen[0] != 1 || teen[1] != 2 {
		t.Fatalf("teen=%v want [1 2]", teen)
	}
	if got := lib.ForDomain(storylet.DomainDaily); len(got) != 2 {
		t.Fatalf("daily=%v", got)
	}
	if got := lib.ForTag("home"); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Fatalf("home=%v want [1 2]", got)
	}
	s, _ := lib.Storylet(2)
	if len(s.Tags) != 2 || s.Tags[0] != "home" || s.Tags[1] != "quiet" {
		t.Fatalf("tags=%v want sorted dedup", s.Tags)
	}
	if _, ok := lib.Storylet(99); ok {
		t.Fatalf("out of range key should miss")
	}
}

func TestCompile_OpenBoundsAreInfinite(t *testing.T) {
	lo := float32(3)
	lib, err := Compile([]StoryletDef{{
		ID: "a", Domain: "career", Heat: 1, Weight: 1,
		Prerequisites: PrereqDef{Stats: []BoundDef{{Name: "career", Min: &lo}}},
	}})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	s, _ := lib.Storylet(0)
	r := s.Prereqs.Stats[0].Range
	if !r.Contains(1e9) || r.Contains(2.9) {
		t.Fatalf("range=%+v", r)
	}
}
