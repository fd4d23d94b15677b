// Package worldctx is the read-only view of the simulated world that a single
// director step consumes. The world simulation that produces it lives outside
// this module; fixtures under configs/worlds use the JSON form directly.
package worldctx

import (
	"sort"

	"storylet.ai/internal/sim/storylet"
)

type ActorID string

// Relationship is one directed vector. Components are roughly -10..10.
type Relationship struct {
	Affection   float32 `json:"affection"`
	Trust       float32 `json:"trust"`
	Attraction  float32 `json:"attraction"`
	Familiarity float32 `json:"familiarity"`
	Resentment  float32 `json:"resentment"`
}

func (r Relationship) Get(a storylet.Axis) float32 {
	switch a {
	case storylet.AxisAffection:
		return r.Affection
	case storylet.AxisTrust:
		return r.Trust
	case storylet.AxisAttraction:
		return r.Attraction
	case storylet.AxisFamiliarity:
		return r.Familiarity
	case storylet.AxisResentment:
		return r.Resentment
	default:
		return 0
	}
}

func (r *Relationship) Add(a storylet.Axis, d float32) {
	switch a {
	case storylet.AxisAffection:
		r.Affection += d
	case storylet.AxisTrust:
		r.Trust += d
	case storylet.AxisAttraction:
		r.Attraction += d
	case storylet.AxisFamiliarity:
		r.Familiarity += d
	case storylet.AxisResentment:
		r.Resentment += d
	}
}

type Actor struct {
	ID        ActorID            `json:"id"`
	Name      string             `json:"name"`
	LifeStage string             `json:"life_stage,omitempty"`
	Stats     map[string]float32 `json:"stats,omitempty"`
	Traits    map[string]float32 `json:"traits,omitempty"`
	Mood      float32            `json:"mood"`
	Visible   bool               `json:"visible"`
}

// Memory is one journal entry. Intensity is -1..1.
type Memory struct {
	Tick         uint64    `json:"tick"`
	Tags         []string  `json:"tags"`
	Participants []ActorID `json:"participants"`
	Intensity    float32   `json:"intensity"`
}

func (m Memory) HasTag(tag string) bool {
	for _, t := range m.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

func (m Memory) Involves(id ActorID) bool {
	for _, p := range m.Participants {
		if p == id {
			return true
		}
	}
	return false
}

type Legacy struct {
	HasHeir    bool `json:"has_heir"`
	Generation int  `json:"generation"`
}

// Focus narrows the index prefilter for one step.
type Focus struct {
	RequiredTags   []string `json:"required_tags,omitempty"`
	AllowedDomains []string `json:"allowed_domains,omitempty"`
}

type Context struct {
	Seed        int64                                `json:"seed"`
	PlayerID    ActorID                              `json:"player_id"`
	LifeStage   string                               `json:"life_stage"`
	Actors      map[ActorID]*Actor                   `json:"actors"`
	Known       []ActorID                            `json:"known"`
	Relations   map[ActorID]map[ActorID]Relationship `json:"relations,omitempty"`
	Journals    map[ActorID][]Memory                 `json:"journals,omitempty"`
	WorldFlags  map[string]bool                      `json:"world_flags,omitempty"`
	GlobalFlags map[string]bool                      `json:"global_flags,omitempty"`
	Legacy      Legacy                               `json:"legacy"`
	Focus       Focus                                `json:"focus"`
}

func (c *Context) Stage() storylet.LifeStage {
	s, ok := storylet.ParseLifeStage(c.LifeStage)
	if !ok {
		return storylet.LifeStageAny
	}
	return s
}

func (c *Context) Actor(id ActorID) (*Actor, bool) {
	a, ok := c.Actors[id]
	return a, ok && a != nil
}

func (c *Context) Player() (*Actor, bool) {
	return c.Actor(c.PlayerID)
}

// Relationship returns from's view of to; the zero vector when unknown.
func (c *Context) Relationship(from, to ActorID) Relationship {
	if m, ok := c.Relations[from]; ok {
		return m[to]
	}
	return Relationship{}
}

func (c *Context) MemoriesOf(id ActorID) []Memory {
	return c.Journals[id]
}

// KnownActors returns the non-protagonist actors the protagonist knows or can
// currently see, restricted to those in Actors, sorted and deduplicated.
func (c *Context) KnownActors() []ActorID {
	seen := map[ActorID]bool{}
	out := make([]ActorID, 0, len(c.Known))
	add := func(id ActorID) {
		if id == c.PlayerID || seen[id] {
			return
		}
		if _, ok := c.Actor(id); !ok {
			return
		}
		seen[id] = true
		out = append(out, id)
	}
	for _, id := range c.Known {
		add(id)
	}
	for id, a := range c.Actors {
		if a != nil && a.Visible {
			add(id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func (c *Context) PlayerStat(name string) float32 {
	if p, ok := c.Player(); ok {
		return p.Stats[name]
	}
	return 0
}

func (c *Context) PlayerTrait(name string) (float32, bool) {
	p, ok := c.Player()
	if !ok {
		return 0, false
	}
	v, ok := p.Traits[name]
	return v, ok
}

// PlayerHasMemory reports whether the protagonist journal holds tag no older
// than within ticks (0 = any age).
func (c *Context) PlayerHasMemory(tag string, within, nowTick uint64) bool {
	for _, m := range c.Journals[c.PlayerID] {
		if !m.HasTag(tag) {
			continue
		}
		if within == 0 {
			return true
		}
		if m.Tick <= nowTick && nowTick-m.Tick <= within {
			return true
		}
	}
	return false
}

func (c *Context) FocusDomains() []storylet.Domain {
	out := make([]storylet.Domain, 0, len(c.Focus.AllowedDomains))
	for _, s := range c.Focus.AllowedDomains {
		if d, ok := storylet.ParseDomain(s); ok {
			out = append(out, d)
		}
	}
	return out
}
