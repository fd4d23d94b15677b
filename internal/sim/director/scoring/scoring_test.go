package scoring

import (
	"math"
	"testing"

	"storylet.ai/internal/sim/catalogs"
	"storylet.ai/internal/sim/director/arcs"
	"storylet.ai/internal/sim/director/cooldown"
	"storylet.ai/internal/sim/director/pacing"
	"storylet.ai/internal/sim/storylet"
	"storylet.ai/internal/sim/tuning"
	"storylet.ai/internal/sim/worldctx"
)

func testEngine(t *testing.T, defs ...catalogs.StoryletDef) (*Engine, *catalogs.Library) {
	t.Helper()
	lib, err := catalogs.Compile(defs)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return New(lib, tuning.Defaults().Scoring), lib
}

func TestJitter_BoundedAndDistinct(t *testing.T) {
	for seed := int64(-3); seed < 3; seed++ {
		for tick := uint64(0); tick < 50; tick++ {
			seen := map[float64]storylet.Key{}
			for k := storylet.Key(0); k < 64; k++ {
				j := Jitter(seed, k, tick)
				if j < 0 || j >= 0.01 {
					t.Fatalf("jitter(%d,%d,%d)=%v outside [0,0.01)", seed, k, tick, j)
				}
				if other, dup := seen[j]; dup {
					t.Fatalf("keys %d and %d share jitter %v", other, k, j)
				}
				seen[j] = k
			}
		}
	}
	if Jitter(1, 2, 3) != Jitter(1, 2, 3) {
		t.Fatalf("jitter not deterministic")
	}
}

func TestScore_Components(t *testing.T) {
	e, lib := testEngine(t,
		catalogs.StoryletDef{ID: "deal", Domain: "career", Heat: 8, Weight: 2, Tags: []string{"ambitious", "tension"}},
	)
	w := &worldctx.Context{
		PlayerID: "p",
		Actors: map[worldctx.ActorID]*worldctx.Actor{
			"p": {ID: "p", Traits: map[string]float32{"ambitious": 1}},
		},
	}
	book := arcs.New()
	book.AddPressure(arcs.Pressure{ID: "p1", Tags: []string{"tension"}, Severity: 1})
	book.AddMilestone(arcs.Milestone{ID: "m1", Domain: storylet.DomainCareer, Target: 3})

	c, ok := e.Score(0, Input{Tick: 10, Seed: 5, Phase: pacing.Peak, World: w, Arcs: book, LastFired: cooldown.NewLastFired()})
	if !ok {
		t.Fatalf("score failed")
	}
	cfg := tuning.Defaults().Scoring
	if c.BaseWeight != 2*cfg.BaseWeightMultiplier {
		t.Fatalf("base=%v", c.BaseWeight)
	}
	if c.HeatAlignment != pacing.HeatAlignment(pacing.Peak, 8) {
		t.Fatalf("alignment=%v", c.HeatAlignment)
	}
	if c.ContextBonus != cfg.ContextBonusPerTrait {
		t.Fatalf("context=%v want %v", c.ContextBonus, cfg.ContextBonusPerTrait)
	}
	if c.PressureBonus != math.Min(cfg.PressureBonusPerSeverity, cfg.PressureBonusCap) {
		t.Fatalf("pressure=%v", c.PressureBonus)
	}
	if c.MilestoneBonus != cfg.MilestoneBonusEach {
		t.Fatalf("milestone=%v", c.MilestoneBonus)
	}
	want := c.BaseWeight * c.HeatAlignment * (1 + c.ContextBonus + c.PressureBonus + c.MilestoneBonus)
	if math.Abs(c.TotalScore-want) > 1e-12 || c.PacingPenalty != 0 {
		t.Fatalf("total=%v want %v", c.TotalScore, want)
	}
	if c.SelectionScore != c.TotalScore+c.Jitter {
		t.Fatalf("selection score mismatch")
	}
	if _, ok := e.Score(storylet.Key(lib.Len()), Input{}); ok {
		t.Fatalf("unknown key should not score")
	}
}

func TestScore_PacingPenaltyDecays(t *testing.T) {
	e, lib := testEngine(t, catalogs.StoryletDef{ID: "a", Domain: "daily", Heat: 2, Weight: 10})
	s, _ := lib.Storylet(0)
	lf := cooldown.NewLastFired()
	lf.Record(s, 100)
	cfg := tuning.Defaults().Scoring

	at := func(tick uint64) float64 {
		c, _ := e.Score(0, Input{Tick: tick, LastFired: lf})
		return c.PacingPenalty
	}
	if got := at(100); math.Abs(got-(cfg.RecencyPenalty+cfg.DomainRecencyPenalty)) > 1e-12 {
		t.Fatalf("penalty at fire tick=%v", got)
	}
	half := 100 + cfg.RecencyWindowTicks/2
	if got := at(half); math.Abs(got-cfg.RecencyPenalty/2) > 1e-9 {
		t.Fatalf("penalty halfway=%v want %v", got, cfg.RecencyPenalty/2)
	}
	if got := at(100 + cfg.RecencyWindowTicks); got != 0 {
		t.Fatalf("penalty after window=%v", got)
	}
}

func TestScore_TotalNeverNegative(t *testing.T) {
	e, lib := testEngine(t, catalogs.StoryletDef{ID: "a", Domain: "daily", Heat: 2, Weight: 0.01})
	s, _ := lib.Storylet(0)
	lf := cooldown.NewLastFired()
	lf.Record(s, 5)
	c, _ := e.Score(0, Input{Tick: 5, LastFired: lf})
	if c.TotalScore != 0 {
		t.Fatalf("total=%v want clamp to 0", c.TotalScore)
	}
}

func TestSelect_Fairness(t *testing.T) {
	cands := []Candidate{
		{Key: 0, TotalScore: 10, SelectionScore: 10},
		{Key: 1, TotalScore: 0.1, SelectionScore: 0.1},
	}
	high := 0
	const trials = 2000
	for tick := uint64(0); tick < trials; tick++ {
		c, ok := Select(cands, 0.05, 99, tick)
		if !ok {
			t.Fatalf("no selection at tick %d", tick)
		}
		if c.Key == 0 {
			high++
		}
	}
	if float64(high)/trials <= 0.8 {
		t.Fatalf("high-score candidate won %d/%d", high, trials)
	}
}

func TestSelect_MinScoreAndZeroWeight(t *testing.T) {
	cands := []Candidate{
		{Key: 4, TotalScore: 0.01, SelectionScore: 0.011},
		{Key: 2, TotalScore: 0, SelectionScore: 0},
		{Key: 3, TotalScore: 0, SelectionScore: 0},
	}
	if _, ok := Select(cands, 0.05, 1, 1); ok {
		t.Fatalf("nothing meets min score")
	}
	c, ok := Select(cands[1:], 0, 1, 1)
	if !ok || c.Key != 2 {
		t.Fatalf("zero weight should fall back to first by key, got %+v", c)
	}
}

func TestSelect_Deterministic(t *testing.T) {
	cands := []Candidate{
		{Key: 0, TotalScore: 1, SelectionScore: 1.004},
		{Key: 1, TotalScore: 1, SelectionScore: 1.002},
		{Key: 2, TotalScore: 1, SelectionScore: 1.009},
	}
	a, _ := Select(cands, 0, 42, 17)
	b, _ := Select([]Candidate{cands[2], cands[0], cands[1]}, 0, 42, 17)
	if a.Key != b.Key {
		t.Fatalf("selection depends on input order: %d vs %d", a.Key, b.Key)
	}
}

func TestPickTop(t *testing.T) {
	c, ok := PickTop([]Candidate{{Key: 3, SelectionScore: 2}, {Key: 1, SelectionScore: 5}, {Key: 0, SelectionScore: 5}})
	if !ok || c.Key != 0 {
		t.Fatalf("top=%+v want key 0", c)
	}
	if _, ok := PickTop(nil); ok {
		t.Fatalf("empty should miss")
	}
}
