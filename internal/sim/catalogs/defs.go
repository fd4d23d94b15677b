package catalogs

import (
	"fmt"
	"math"
	"sort"

	"storylet.ai/internal/sim/storylet"
)

// StoryletDef is the authored JSON form of one storylet.
type StoryletDef struct {
	ID            string      `json:"id"`
	Name          string      `json:"name,omitempty"`
	Tags          []string    `json:"tags,omitempty"`
	Domain        string      `json:"domain"`
	LifeStage     string      `json:"life_stage,omitempty"`
	Heat          float32     `json:"heat"`
	Weight        float32     `json:"weight"`
	Roles         []RoleDef   `json:"roles,omitempty"`
	Prerequisites PrereqDef   `json:"prerequisites"`
	Cooldown      CooldownDef `json:"cooldown"`
	Outcome       OutcomeDef  `json:"outcome"`
}

type RoleDef struct {
	Name     string `json:"name"`
	Required bool   `json:"required,omitempty"`
}

type BoundDef struct {
	Name string   `json:"name"`
	Min  *float32 `json:"min,omitempty"`
	Max  *float32 `json:"max,omitempty"`
}

type RelationshipReqDef struct {
	From string   `json:"from"`
	To   string   `json:"to"`
	Axis string   `json:"axis"`
	Min  *float32 `json:"min,omitempty"`
	Max  *float32 `json:"max,omitempty"`
}

type MemoryReqDef struct {
	Tag         string `json:"tag"`
	WithinTicks uint64 `json:"within_ticks,omitempty"`
}

type PrereqDef struct {
	Stats          []BoundDef           `json:"stats,omitempty"`
	Traits         []BoundDef           `json:"traits,omitempty"`
	Relationships  []RelationshipReqDef `json:"relationships,omitempty"`
	MemoryRequired []MemoryReqDef       `json:"memory_required,omitempty"`
	MemoryExcluded []MemoryReqDef       `json:"memory_excluded,omitempty"`
	WorldFlags     map[string]bool      `json:"world_flags,omitempty"`
	GlobalFlags    map[string]bool      `json:"global_flags,omitempty"`
	LifeStages     []string             `json:"life_stages,omitempty"`
	RequiresHeir   bool                 `json:"requires_heir,omitempty"`
	MinGeneration  int                  `json:"min_generation,omitempty"`
	MinTick        uint64               `json:"min_tick,omitempty"`
}

type CooldownDef struct {
	GlobalTicks   uint64 `json:"global_ticks,omitempty"`
	PerActorTicks uint64 `json:"per_actor_ticks,omitempty"`
}

type RelationshipDeltaDef struct {
	Role  string  `json:"role"`
	Axis  string  `json:"axis"`
	Delta float32 `json:"delta"`
}

type MemoryDef struct {
	Tag       string   `json:"tag"`
	Intensity float32  `json:"intensity,omitempty"`
	Roles     []string `json:"roles,omitempty"`
}

type FollowUpDef struct {
	Storylet   string `json:"storylet"`
	DelayTicks uint64 `json:"delay_ticks,omitempty"`
	Priority   int    `json:"priority,omitempty"`
	Forced     bool   `json:"forced,omitempty"`
}

type OutcomeDef struct {
	Stats         map[string]float32     `json:"stats,omitempty"`
	Relationships []RelationshipDeltaDef `json:"relationships,omitempty"`
	Mood          float32                `json:"mood,omitempty"`
	SetFlags      map[string]bool        `json:"set_flags,omitempty"`
	Memories      []MemoryDef            `json:"memories,omitempty"`
	FollowUps     []FollowUpDef          `json:"follow_ups,omitempty"`
}

func bound(lo, hi *float32) storylet.Range {
	r := storylet.AnyRange()
	if lo != nil {
		r.Min = *lo
	}
	if hi != nil {
		r.Max = *hi
	}
	return r
}

func flagReqs(m map[string]bool) []storylet.FlagReq {
	if len(m) == 0 {
		return nil
	}
	out := make([]storylet.FlagReq, 0, len(m))
	for k, v := range m {
		out = append(out, storylet.FlagReq{Flag: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Flag < out[j].Flag })
	return out
}

func statReqs(defs []BoundDef) []storylet.StatReq {
	out := make([]storylet.StatReq, 0, len(defs))
	for _, d := range defs {
		out = append(out, storylet.StatReq{Name: d.Name, Range: bound(d.Min, d.Max)})
	}
	return out
}

func memoryReqs(defs []MemoryReqDef) []storylet.MemoryReq {
	out := make([]storylet.MemoryReq, 0, len(defs))
	for _, d := range defs {
		out = append(out, storylet.MemoryReq{Tag: d.Tag, WithinTicks: d.WithinTicks})
	}
	return out
}

// compile turns a def into its runtime form. keys resolves follow-up ids.
func compile(key storylet.Key, d StoryletDef, keys map[string]storylet.Key) (storylet.CompiledStorylet, error) {
	s := storylet.CompiledStorylet{
		Key:    key,
		ID:     d.ID,
		Name:   d.Name,
		Heat:   d.Heat,
		Weight: d.Weight,
		Cooldown: storylet.CooldownSpec{
			GlobalTicks:   d.Cooldown.GlobalTicks,
			PerActorTicks: d.Cooldown.PerActorTicks,
		},
	}
	if s.Name == "" {
		s.Name = d.ID
	}
	if math.IsNaN(float64(d.Heat)) || d.Heat < 0 || d.Heat > 10 {
		return s, fmt.Errorf("heat %v outside [0,10]", d.Heat)
	}
	if math.IsNaN(float64(d.Weight)) || d.Weight < 0 {
		return s, fmt.Errorf("weight %v must be >= 0", d.Weight)
	}

	dom, ok := storylet.ParseDomain(d.Domain)
	if !ok || dom == storylet.DomainNone {
		return s, fmt.Errorf("unknown domain %q", d.Domain)
	}
	s.Domain = dom

	s.LifeStage = storylet.LifeStageAny
	if d.LifeStage != "" {
		ls, ok := storylet.ParseLifeStage(d.LifeStage)
		if !ok {
			return s, fmt.Errorf("unknown life_stage %q", d.LifeStage)
		}
		s.LifeStage = ls
	}

	seen := map[string]bool{}
	for _, t := range d.Tags {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		s.Tags = append(s.Tags, t)
	}
	sort.Strings(s.Tags)

	roleNames := map[string]bool{}
	for _, r := range storylet.ProtagonistRoles {
		roleNames[r] = true
	}
	for _, r := range d.Roles {
		if r.Name == "" {
			return s, fmt.Errorf("role with empty name")
		}
		if roleNames[r.Name] {
			return s, fmt.Errorf("duplicate or reserved role %q", r.Name)
		}
		roleNames[r.Name] = true
		s.Roles = append(s.Roles, storylet.RoleSlot{Name: r.Name, Required: r.Required})
	}

	p := d.Prerequisites
	s.Prereqs = storylet.Prerequisites{
		Stats:          statReqs(p.Stats),
		Traits:         statReqs(p.Traits),
		MemoryRequired: memoryReqs(p.MemoryRequired),
		MemoryExcluded: memoryReqs(p.MemoryExcluded),
		WorldFlags:     flagReqs(p.WorldFlags),
		GlobalFlags:    flagReqs(p.GlobalFlags),
		RequiresHeir:   p.RequiresHeir,
		MinGeneration:  p.MinGeneration,
		MinTick:        p.MinTick,
	}
	for _, r := range p.Relationships {
		ax, ok := storylet.ParseAxis(r.Axis)
		if !ok {
			return s, fmt.Errorf("unknown axis %q", r.Axis)
		}
		if !roleNames[r.From] || !roleNames[r.To] {
			return s, fmt.Errorf("relationship %s->%s names an undeclared role", r.From, r.To)
		}
		s.Prereqs.Relationships = append(s.Prereqs.Relationships, storylet.RelationshipReq{
			From: r.From, To: r.To, Axis: ax, Range: bound(r.Min, r.Max),
		})
	}
	for _, name := range p.LifeStages {
		ls, ok := storylet.ParseLifeStage(name)
		if !ok {
			return s, fmt.Errorf("unknown life stage %q", name)
		}
		s.Prereqs.LifeStages = append(s.Prereqs.LifeStages, ls)
	}

	o := d.Outcome
	s.Outcome = storylet.Outcome{
		StatDeltas: o.Stats,
		MoodDelta:  o.Mood,
		SetFlags:   o.SetFlags,
	}
	for _, r := range o.Relationships {
		ax, ok := storylet.ParseAxis(r.Axis)
		if !ok {
			return s, fmt.Errorf("unknown axis %q", r.Axis)
		}
		if !roleNames[r.Role] {
			return s, fmt.Errorf("outcome names undeclared role %q", r.Role)
		}
		s.Outcome.RelationshipDeltas = append(s.Outcome.RelationshipDeltas, storylet.RelationshipDelta{Role: r.Role, Axis: ax, Delta: r.Delta})
	}
	for _, m := range o.Memories {
		s.Outcome.Memories = append(s.Outcome.Memories, storylet.MemorySpec{Tag: m.Tag, Intensity: m.Intensity, Roles: m.Roles})
	}
	for _, f := range o.FollowUps {
		k, ok := keys[f.Storylet]
		if !ok {
			return s, fmt.Errorf("%w: %q", ErrUnknownFollowUp, f.Storylet)
		}
		s.Outcome.FollowUps = append(s.Outcome.FollowUps, storylet.FollowUp{
			Key: k, DelayTicks: f.DelayTicks, Priority: f.Priority, Forced: f.Forced,
		})
	}
	return s, nil
}
