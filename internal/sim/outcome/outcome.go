// Package outcome applies a fired storylet's outcome template to a world
// context. The director never mutates the world itself; hosts call Apply after
// each firing.
package outcome

import (
	"sort"

	"storylet.ai/internal/sim/logic/mathx"
	"storylet.ai/internal/sim/storylet"
	"storylet.ai/internal/sim/worldctx"
)

// Relationship axes and mood are kept inside these bounds.
const (
	AxisLimit = 10
	MoodLimit = 1
)

// Scheduler receives the outcome's declared follow-ups.
type Scheduler interface {
	ScheduleOutcomeFollowUps(key storylet.Key, tick uint64) int
}

// Result summarizes what Apply changed.
type Result struct {
	StatsChanged  int `json:"stats_changed"`
	Relationships int `json:"relationships"`
	Memories      int `json:"memories"`
	FlagsSet      int `json:"flags_set"`
	FollowUps     int `json:"follow_ups"`
}

// resolve maps a role name to an actor. Protagonist names always resolve.
func resolve(w *worldctx.Context, roles map[string]worldctx.ActorID, role string) (worldctx.ActorID, bool) {
	if storylet.IsProtagonist(role) {
		return w.PlayerID, w.PlayerID != ""
	}
	id, ok := roles[role]
	return id, ok && id != ""
}

// Apply mutates w with s's outcome. Roles left uncast are skipped. Relationship
// deltas change both directions between the protagonist and the role's actor.
// Each memory is recorded in the journal of every resolved participant.
func Apply(w *worldctx.Context, s *storylet.CompiledStorylet, roles map[string]worldctx.ActorID, tick uint64, sched Scheduler) Result {
	var res Result
	if w == nil || s == nil {
		return res
	}
	o := s.Outcome

	if p, ok := w.Player(); ok {
		if len(o.StatDeltas) > 0 && p.Stats == nil {
			p.Stats = map[string]float32{}
		}
		names := make([]string, 0, len(o.StatDeltas))
		for name := range o.StatDeltas {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			p.Stats[name] += o.StatDeltas[name]
			res.StatsChanged++
		}
		p.Mood = mathx.Clamp32(p.Mood+o.MoodDelta, -MoodLimit, MoodLimit)
	}

	for _, d := range o.RelationshipDeltas {
		id, ok := resolve(w, roles, d.Role)
		if !ok || id == w.PlayerID {
			continue
		}
		bump(w, id, w.PlayerID, d.Axis, d.Delta)
		bump(w, w.PlayerID, id, d.Axis, d.Delta)
		res.Relationships++
	}

	flags := make([]string, 0, len(o.SetFlags))
	for f := range o.SetFlags {
		flags = append(flags, f)
	}
	sort.Strings(flags)
	for _, f := range flags {
		w.SetFlag(f, o.SetFlags[f])
		res.FlagsSet++
	}

	for _, md := range o.Memories {
		parts := participants(w, roles, md.Roles)
		if len(parts) == 0 {
			continue
		}
		for _, owner := range parts {
			w.Record(owner, worldctx.Memory{
				Tick:         tick,
				Tags:         []string{md.Tag},
				Participants: append([]worldctx.ActorID(nil), parts...),
				Intensity:    mathx.Clamp32(md.Intensity, -1, 1),
			})
		}
		res.Memories++
	}

	if sched != nil && len(o.FollowUps) > 0 {
		res.FollowUps = sched.ScheduleOutcomeFollowUps(s.Key, tick)
	}
	return res
}

func bump(w *worldctx.Context, from, to worldctx.ActorID, axis storylet.Axis, delta float32) {
	r := w.Relationship(from, to)
	r.Add(axis, delta)
	r.Affection = mathx.Clamp32(r.Affection, -AxisLimit, AxisLimit)
	r.Trust = mathx.Clamp32(r.Trust, -AxisLimit, AxisLimit)
	r.Attraction = mathx.Clamp32(r.Attraction, -AxisLimit, AxisLimit)
	r.Familiarity = mathx.Clamp32(r.Familiarity, -AxisLimit, AxisLimit)
	r.Resentment = mathx.Clamp32(r.Resentment, -AxisLimit, AxisLimit)
	w.SetRelationship(from, to, r)
}

// participants resolves memory roles in order, deduplicated. No roles means
// the protagonist alone.
func participants(w *worldctx.Context, roles map[string]worldctx.ActorID, names []string) []worldctx.ActorID {
	if len(names) == 0 {
		names = []string{storylet.RolePlayer}
	}
	seen := map[worldctx.ActorID]bool{}
	var out []worldctx.ActorID
	for _, n := range names {
		id, ok := resolve(w, roles, n)
		if !ok || seen[id] {
			continue
		}
		if _, exists := w.Actor(id); !exists {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
