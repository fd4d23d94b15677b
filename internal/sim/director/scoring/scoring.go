// Package scoring turns eligible storylets into fully decomposed scores and
// picks a winner deterministically.
package scoring

import (
	"sort"

	"storylet.ai/internal/sim/director/arcs"
	"storylet.ai/internal/sim/director/cooldown"
	"storylet.ai/internal/sim/director/pacing"
	"storylet.ai/internal/sim/logic/mathx"
	"storylet.ai/internal/sim/logic/rng"
	"storylet.ai/internal/sim/storylet"
	"storylet.ai/internal/sim/tuning"
	"storylet.ai/internal/sim/worldctx"
)

// JitterScale bounds jitter to [0, JitterScale).
const JitterScale = 0.01

// Hash lanes keep the jitter and selection streams independent.
const (
	laneJitter    = 0x6a09e667
	laneSelection = 0xbb67ae85
)

// Candidate keeps every score component so a step can be explained after the
// fact.
type Candidate struct {
	Key            storylet.Key `json:"key"`
	BaseWeight     float64      `json:"base_weight"`
	HeatAlignment  float64      `json:"heat_alignment"`
	ContextBonus   float64      `json:"context_bonus"`
	PressureBonus  float64      `json:"pressure_bonus"`
	MilestoneBonus float64      `json:"milestone_bonus"`
	PacingPenalty  float64      `json:"pacing_penalty"`
	TotalScore     float64      `json:"total_score"`
	Jitter         float64      `json:"jitter"`
	SelectionScore float64      `json:"selection_score"`
	Queued         bool         `json:"queued,omitempty"`
}

type Input struct {
	Tick      uint64
	Seed      int64
	Phase     pacing.Phase
	World     *worldctx.Context
	LastFired *cooldown.LastFired
	Arcs      *arcs.Book
}

type Engine struct {
	src storylet.Source
	cfg tuning.Scoring
}

func New(src storylet.Source, cfg tuning.Scoring) *Engine {
	return &Engine{src: src, cfg: cfg}
}

// Jitter is a deterministic value in [0, 0.01) for (seed, key, tick).
func Jitter(seed int64, key storylet.Key, tick uint64) float64 {
	return mathx.Unit(mathx.Hash3(seed, uint64(key), tick, laneJitter)) * JitterScale
}

// Score computes one candidate. ok is false for unknown keys.
func (e *Engine) Score(key storylet.Key, in Input) (Candidate, bool) {
	s, ok := e.src.Storylet(key)
	if !ok {
		return Candidate{}, false
	}
	c := Candidate{Key: key}
	c.BaseWeight = float64(s.Weight) * e.cfg.BaseWeightMultiplier
	c.HeatAlignment = pacing.HeatAlignment(in.Phase, s.Heat)
	c.ContextBonus = e.contextBonus(s, in.World)
	if in.Arcs != nil {
		c.PressureBonus = in.Arcs.PressureBonus(s, e.cfg.PressureBonusPerSeverity, e.cfg.PressureBonusCap)
		c.MilestoneBonus = in.Arcs.MilestoneBonus(s, e.cfg.MilestoneBonusEach, e.cfg.MilestoneBonusCap)
	}
	c.PacingPenalty = e.pacingPenalty(s, in.LastFired, in.Tick)

	total := c.BaseWeight*c.HeatAlignment*(1+c.ContextBonus+c.PressureBonus+c.MilestoneBonus) - c.PacingPenalty
	if total < 0 || total != total {
		total = 0
	}
	c.TotalScore = total
	c.Jitter = Jitter(in.Seed, key, in.Tick)
	c.SelectionScore = c.TotalScore + c.Jitter
	return c, true
}

// ScoreAll scores keys and returns the candidates in ascending key order.
func (e *Engine) ScoreAll(keys []storylet.Key, in Input) []Candidate {
	out := make([]Candidate, 0, len(keys))
	for _, k := range keys {
		if c, ok := e.Score(k, in); ok {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// contextBonus rewards storylets whose tags name a protagonist trait.
func (e *Engine) contextBonus(s *storylet.CompiledStorylet, w *worldctx.Context) float64 {
	if w == nil || e.cfg.ContextBonusPerTrait == 0 {
		return 0
	}
	sum := 0.0
	for _, tag := range s.Tags {
		if v, ok := w.PlayerTrait(tag); ok {
			sum += float64(v) * e.cfg.ContextBonusPerTrait
		}
	}
	return mathx.Clamp64(sum, -e.cfg.ContextBonusCap, e.cfg.ContextBonusCap)
}

func (e *Engine) pacingPenalty(s *storylet.CompiledStorylet, lf *cooldown.LastFired, tick uint64) float64 {
	if lf == nil {
		return 0
	}
	pen := 0.0
	if last, ok := lf.Storylet(s.Key); ok && e.cfg.RecencyWindowTicks > 0 {
		since := mathx.TicksSince(tick, last)
		if since < e.cfg.RecencyWindowTicks {
			pen += e.cfg.RecencyPenalty * (1 - float64(since)/float64(e.cfg.RecencyWindowTicks))
		}
	}
	if lf.DomainWithin(s.Domain, tick, e.cfg.DomainRecencyTicks) {
		pen += e.cfg.DomainRecencyPenalty
	}
	return pen
}

// Viable keeps candidates whose total meets minScore, in ascending key order.
func Viable(cands []Candidate, minScore float64) []Candidate {
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		if c.TotalScore >= minScore {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// NewRand seeds the selection stream for (seed, tick).
func NewRand(seed int64, tick uint64) *rng.Rand {
	return rng.New(mathx.Hash2(seed, tick, laneSelection))
}

// Draw picks an index by weighted draw over selection scores. A zero total
// weight falls back to index 0. ok is false only for an empty slice.
func Draw(cands []Candidate, r *rng.Rand) (int, bool) {
	if len(cands) == 0 {
		return 0, false
	}
	total := 0.0
	for _, c := range cands {
		if c.SelectionScore > 0 {
			total += c.SelectionScore
		}
	}
	if total <= 0 {
		return 0, true
	}
	x := r.Float64() * total
	acc := 0.0
	for i, c := range cands {
		if c.SelectionScore <= 0 {
			continue
		}
		acc += c.SelectionScore
		if x < acc {
			return i, true
		}
	}
	return len(cands) - 1, true
}

// Select filters by minScore and draws once with the (seed, tick) stream.
func Select(cands []Candidate, minScore float64, seed int64, tick uint64) (Candidate, bool) {
	v := Viable(cands, minScore)
	i, ok := Draw(v, NewRand(seed, tick))
	if !ok {
		return Candidate{}, false
	}
	return v[i], true
}

// PickTop returns the highest selection score, ties to the lower key.
func PickTop(cands []Candidate) (Candidate, bool) {
	if len(cands) == 0 {
		return Candidate{}, false
	}
	best := cands[0]
	for _, c := range cands[1:] {
		if c.SelectionScore > best.SelectionScore || (c.SelectionScore == best.SelectionScore && c.Key < best.Key) {
			best = c
		}
	}
	return best, true
}
