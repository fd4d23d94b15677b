// Package eligibility narrows the storylet library to the candidates that may
// fire this tick, in four recorded stages.
package eligibility

import (
	"storylet.ai/internal/sim/director/arcs"
	"storylet.ai/internal/sim/director/cooldown"
	"storylet.ai/internal/sim/director/pacing"
	"storylet.ai/internal/sim/storylet"
	"storylet.ai/internal/sim/tuning"
	"storylet.ai/internal/sim/worldctx"
)

// CandidateSet keeps the surviving keys after each stage for introspection.
type CandidateSet struct {
	Indexed    []storylet.Key `json:"indexed"`
	Structural []storylet.Key `json:"structural"`
	Rested     []storylet.Key `json:"rested"`
	Paced      []storylet.Key `json:"paced"`
}

// Final is the set that survived every stage.
func (c CandidateSet) Final() []storylet.Key {
	return c.Paced
}

type Input struct {
	Tick      uint64
	World     *worldctx.Context
	Phase     pacing.Phase
	Cooldowns *cooldown.Tracker
	LastFired *cooldown.LastFired
	Arcs      *arcs.Book
}

type Pipeline struct {
	src     storylet.Source
	variety tuning.Variety
}

func New(src storylet.Source, variety tuning.Variety) *Pipeline {
	return &Pipeline{src: src, variety: variety}
}

func (p *Pipeline) Run(in Input) CandidateSet {
	var cs CandidateSet
	cs.Indexed = p.Index(in.World)
	cs.Structural = p.filter(cs.Indexed, func(s *storylet.CompiledStorylet) bool {
		return CheckPrerequisites(s, in.World, in.Tick)
	})
	cs.Rested = p.filter(cs.Structural, func(s *storylet.CompiledStorylet) bool {
		return p.Rested(s, in)
	})
	cs.Paced = p.filter(cs.Rested, func(s *storylet.CompiledStorylet) bool {
		return Paced(s, in.Phase, in.Arcs)
	})
	return cs
}

func (p *Pipeline) filter(keys []storylet.Key, keep func(*storylet.CompiledStorylet) bool) []storylet.Key {
	out := make([]storylet.Key, 0, len(keys))
	for _, k := range keys {
		s, ok := p.src.Storylet(k)
		if !ok {
			continue
		}
		if keep(s) {
			out = append(out, k)
		}
	}
	return out
}

// Index is the prefilter: the life-stage index, narrowed by the focus
// override's required tags (all must match) and allowed domains (any).
func (p *Pipeline) Index(w *worldctx.Context) []storylet.Key {
	if w == nil {
		return nil
	}
	keys := append([]storylet.Key(nil), p.src.CandidatesForLifeStage(w.Stage())...)
	for _, tag := range w.Focus.RequiredTags {
		keys = storylet.Intersect(keys, p.src.ForTag(tag))
	}
	if domains := w.FocusDomains(); len(domains) > 0 {
		lists := make([][]storylet.Key, 0, len(domains))
		for _, d := range domains {
			lists = append(lists, p.src.ForDomain(d))
		}
		keys = storylet.Intersect(keys, storylet.Union(lists...))
	}
	return keys
}

// Rested applies cooldowns and variety windows.
func (p *Pipeline) Rested(s *storylet.CompiledStorylet, in Input) bool {
	if in.Cooldowns != nil {
		var actors []string
		if in.World != nil && in.World.PlayerID != "" {
			actors = []string{string(in.World.PlayerID)}
		}
		if !in.Cooldowns.Ready(s.Key, actors, in.Tick) {
			return false
		}
	}
	lf := in.LastFired
	if lf == nil {
		return true
	}
	if lf.StoryletWithin(s.Key, in.Tick, p.variety.StoryletWindowTicks) {
		return false
	}
	if lf.DomainWithin(s.Domain, in.Tick, p.variety.DomainWindowTicks) {
		return false
	}
	for _, tag := range s.Tags {
		if tag == storylet.TagForced {
			continue
		}
		if lf.TagWithin(tag, in.Tick, p.variety.TagWindowTicks) {
			return false
		}
	}
	return true
}

// Paced is the hard heat gate for the current phase.
func Paced(s *storylet.CompiledStorylet, phase pacing.Phase, book *arcs.Book) bool {
	pressure := book != nil && book.AnyMatching(s)
	return pacing.IsHeatAppropriate(phase, s.Heat, pressure, s.IsForced())
}
