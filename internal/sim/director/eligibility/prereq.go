package eligibility

import (
	"sort"

	"storylet.ai/internal/sim/storylet"
	"storylet.ai/internal/sim/worldctx"
)

// CheckPrerequisites evaluates every structural predicate of s against world
// at tick. Non-protagonist roles named in relationship requirements are
// satisfied if some assignment of distinct known actors meets them all.
func CheckPrerequisites(s *storylet.CompiledStorylet, w *worldctx.Context, tick uint64) bool {
	if w == nil {
		return false
	}
	if s.LifeStage != storylet.LifeStageAny && s.LifeStage != w.Stage() {
		return false
	}
	pr := &s.Prereqs
	if pr.MinTick > 0 && tick < pr.MinTick {
		return false
	}
	if len(pr.LifeStages) > 0 {
		stage := w.Stage()
		ok := false
		for _, ls := range pr.LifeStages {
			if ls == stage {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if pr.RequiresHeir && !w.Legacy.HasHeir {
		return false
	}
	if pr.MinGeneration > 0 && w.Legacy.Generation < pr.MinGeneration {
		return false
	}
	for _, r := range pr.Stats {
		if !r.Range.Contains(w.PlayerStat(r.Name)) {
			return false
		}
	}
	for _, r := range pr.Traits {
		v, _ := w.PlayerTrait(r.Name)
		if !r.Range.Contains(v) {
			return false
		}
	}
	for _, f := range pr.WorldFlags {
		if w.WorldFlags[f.Flag] != f.Value {
			return false
		}
	}
	for _, f := range pr.GlobalFlags {
		if w.GlobalFlags[f.Flag] != f.Value {
			return false
		}
	}
	for _, m := range pr.MemoryRequired {
		if !w.PlayerHasMemory(m.Tag, m.WithinTicks, tick) {
			return false
		}
	}
	for _, m := range pr.MemoryExcluded {
		if w.PlayerHasMemory(m.Tag, m.WithinTicks, tick) {
			return false
		}
	}
	if len(pr.Relationships) > 0 && !relationshipsSatisfiable(pr.Relationships, w) {
		return false
	}
	return true
}

func relationshipsSatisfiable(reqs []storylet.RelationshipReq, w *worldctx.Context) bool {
	seen := map[string]bool{}
	var roles []string
	for _, r := range reqs {
		for _, name := range []string{r.From, r.To} {
			if storylet.IsProtagonist(name) || seen[name] {
				continue
			}
			seen[name] = true
			roles = append(roles, name)
		}
	}
	sort.Strings(roles)

	pool := w.KnownActors()
	bound := map[string]worldctx.ActorID{}
	used := map[worldctx.ActorID]bool{}

	resolve := func(role string) (worldctx.ActorID, bool) {
		if storylet.IsProtagonist(role) {
			return w.PlayerID, true
		}
		id, ok := bound[role]
		return id, ok
	}
	// consistent checks every requirement whose roles are all bound.
	consistent := func() bool {
		for _, r := range reqs {
			from, ok1 := resolve(r.From)
			to, ok2 := resolve(r.To)
			if !ok1 || !ok2 {
				continue
			}
			if !r.Range.Contains(w.Relationship(from, to).Get(r.Axis)) {
				return false
			}
		}
		return true
	}

	var try func(i int) bool
	try = func(i int) bool {
		if i == len(roles) {
			return true
		}
		for _, id := range pool {
			if used[id] {
				continue
			}
			bound[roles[i]] = id
			used[id] = true
			if consistent() && try(i+1) {
				return true
			}
			delete(bound, roles[i])
			used[id] = false
		}
		return false
	}
	if !consistent() {
		return false
	}
	return try(0)
}
