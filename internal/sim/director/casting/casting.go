// Package casting fills a storylet's role slots with concrete actors.
package casting

import (
	"math"
	"sort"
	"strconv"
	"strings"

	"storylet.ai/internal/sim/logic/mathx"
	"storylet.ai/internal/sim/logic/rng"
	"storylet.ai/internal/sim/storylet"
	"storylet.ai/internal/sim/tuning"
	"storylet.ai/internal/sim/worldctx"
)

type Archetype uint8

const (
	Generic Archetype = iota
	Protagonist
	Rival
	Friend
	Romance
	Mentor
)

var archetypeNames = [...]string{
	Generic:     "generic",
	Protagonist: "protagonist",
	Rival:       "rival",
	Friend:      "friend",
	Romance:     "romance",
	Mentor:      "mentor",
}

func (a Archetype) String() string {
	if int(a) < len(archetypeNames) {
		return archetypeNames[a]
	}
	return "unknown"
}

func parseArchetype(s string) (Archetype, bool) {
	for i, n := range archetypeNames {
		if n == s {
			return Archetype(i), true
		}
	}
	return Generic, false
}

// roleHints are matched in order. A name carrying any of a hint's unless
// words skips that hint.
var roleHints = []struct {
	arch   Archetype
	words  []string
	unless []string
}{
	{Rival, []string{"rival", "enemy", "antagonist", "nemesis"}, nil},
	{Friend, []string{"friend", "ally", "confidant"}, nil},
	{Romance, []string{"romance", "lover", "partner", "crush", "date"}, []string{"business", "work", "trading", "sparring"}},
	{Mentor, []string{"mentor", "teacher", "coach", "elder"}, nil},
}

// ArchetypeOf maps a role name to the weighting used to cast it. Hint words
// match whole words of the name split on '_', '-' and spaces.
func ArchetypeOf(role string) Archetype {
	if storylet.IsProtagonist(role) {
		return Protagonist
	}
	tokens := strings.FieldsFunc(strings.ToLower(role), func(r rune) bool {
		return r == '_' || r == '-' || r == ' '
	})
	has := func(words []string) bool {
		for _, w := range words {
			for _, tok := range tokens {
				if tok == w {
					return true
				}
			}
		}
		return false
	}
	for _, h := range roleHints {
		if has(h.words) && !has(h.unless) {
			return h.arch
		}
	}
	return Generic
}

// DefaultAffinity maps memory tags to per-archetype weights. Positive values
// pull an actor toward the archetype, negative values push away.
func DefaultAffinity() map[string]map[string]float64 {
	return map[string]map[string]float64{
		"betrayal":    {"rival": 1.5, "friend": -1, "romance": -1},
		"jealousy":    {"rival": 1, "romance": -0.5},
		"humiliation": {"rival": 1},
		"rivalry":     {"rival": 1},
		"support":     {"friend": 1, "mentor": 0.5, "rival": -0.75},
		"bonding":     {"friend": 1, "romance": 0.25, "rival": -0.5},
		"confession":  {"romance": 1.5},
		"intimacy":    {"romance": 1.5, "friend": 0.25},
		"guidance":    {"mentor": 1.5},
		"lesson":      {"mentor": 1},
	}
}

// Assignments maps role name to the actor cast in it.
type Assignments map[string]worldctx.ActorID

// Actors lists the cast actors sorted by role name.
func (a Assignments) Actors() []worldctx.ActorID {
	roles := make([]string, 0, len(a))
	for r := range a {
		roles = append(roles, r)
	}
	sort.Strings(roles)
	out := make([]worldctx.ActorID, 0, len(roles))
	for _, r := range roles {
		out = append(out, a[r])
	}
	return out
}

type Request struct {
	Storylet *storylet.CompiledStorylet
	World    *worldctx.Context
	Tick     uint64

	// Pool restricts casting to these actors. Nil means the protagonist plus
	// every known actor.
	Pool []worldctx.ActorID

	// Exclude removes actors from consideration, e.g. per-actor cooldowns.
	Exclude func(worldctx.ActorID) bool
}

type Engine struct {
	cfg      tuning.Casting
	affinity map[string][]weight
}

type weight struct {
	arch Archetype
	w    float64
}

func New(cfg tuning.Casting) *Engine {
	table := cfg.MemoryAffinity
	if table == nil {
		table = DefaultAffinity()
	}
	aff := map[string][]weight{}
	for tag, row := range table {
		for name, w := range row {
			a, ok := parseArchetype(name)
			if !ok {
				continue
			}
			aff[tag] = append(aff[tag], weight{arch: a, w: w})
		}
	}
	return &Engine{cfg: cfg, affinity: aff}
}

func (e *Engine) pool(req Request) []worldctx.ActorID {
	w := req.World
	var ids []worldctx.ActorID
	if req.Pool != nil {
		ids = append(ids, req.Pool...)
	} else {
		ids = append(ids, w.PlayerID)
		ids = append(ids, w.KnownActors()...)
	}
	seen := map[worldctx.ActorID]bool{}
	out := make([]worldctx.ActorID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if _, ok := w.Actor(id); !ok {
			continue
		}
		if req.Exclude != nil && req.Exclude(id) {
			continue
		}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// AssignRoles casts required slots first, then optional ones, each in
// declaration order except that roles named in relationship prerequisites go
// ahead of the rest. No actor fills two roles and no binding may break a
// relationship prerequisite whose roles are all bound; when the best-scoring
// candidate would, the next one is tried, backtracking over earlier roles.
// ok is false when a required slot has no viable candidate.
func (e *Engine) AssignRoles(req Request) (Assignments, bool) {
	s := req.Storylet
	if s == nil || req.World == nil {
		return nil, false
	}
	c := &cast{
		e:     e,
		req:   req,
		pool:  e.pool(req),
		reqs:  s.Prereqs.Relationships,
		slots: castOrder(s),
		used:  map[worldctx.ActorID]bool{},
		out:   Assignments{},
	}
	if !c.consistent() || !c.fill(0) {
		return nil, false
	}
	return c.out, true
}

func castOrder(s *storylet.CompiledStorylet) []storylet.RoleSlot {
	named := map[string]bool{}
	for _, r := range s.Prereqs.Relationships {
		named[r.From] = true
		named[r.To] = true
	}
	slots := make([]storylet.RoleSlot, 0, len(s.Roles))
	for _, required := range []bool{true, false} {
		for _, first := range []bool{true, false} {
			for _, r := range s.Roles {
				if r.Required == required && (named[r.Name] && !storylet.IsProtagonist(r.Name)) == first {
					slots = append(slots, r)
				}
			}
		}
	}
	return slots
}

type cast struct {
	e     *Engine
	req   Request
	pool  []worldctx.ActorID
	reqs  []storylet.RelationshipReq
	slots []storylet.RoleSlot
	used  map[worldctx.ActorID]bool
	out   Assignments
}

func (c *cast) resolve(role string) (worldctx.ActorID, bool) {
	if storylet.IsProtagonist(role) {
		return c.req.World.PlayerID, true
	}
	id, ok := c.out[role]
	return id, ok
}

// consistent checks every relationship prerequisite whose roles are bound.
func (c *cast) consistent() bool {
	w := c.req.World
	for _, r := range c.reqs {
		from, ok1 := c.resolve(r.From)
		to, ok2 := c.resolve(r.To)
		if !ok1 || !ok2 {
			continue
		}
		if !r.Range.Contains(w.Relationship(from, to).Get(r.Axis)) {
			return false
		}
	}
	return true
}

func (c *cast) fill(i int) bool {
	if i == len(c.slots) {
		return true
	}
	slot := c.slots[i]
	for _, id := range c.e.ranked(c.req, c.pool, c.used, slot.Name, ArchetypeOf(slot.Name)) {
		c.out[slot.Name] = id
		c.used[id] = true
		if c.consistent() && c.fill(i+1) {
			return true
		}
		delete(c.out, slot.Name)
		c.used[id] = false
	}
	if slot.Required {
		return false
	}
	return c.fill(i + 1)
}

// ranked lists the viable candidates for role, best first. Among candidates
// tied on the top score the seeded tie-break pick leads.
func (e *Engine) ranked(req Request, pool []worldctx.ActorID, used map[worldctx.ActorID]bool, role string, arch Archetype) []worldctx.ActorID {
	w := req.World
	if arch == Protagonist {
		for _, id := range pool {
			if id == w.PlayerID && !used[id] {
				return []worldctx.ActorID{id}
			}
		}
		return nil
	}

	type scored struct {
		id    worldctx.ActorID
		score float64
	}
	var cands []scored
	best := math.Inf(-1)
	for _, id := range pool {
		if used[id] || id == w.PlayerID {
			continue
		}
		sc := e.Score(arch, id, w, req.Tick)
		if sc < e.cfg.MinCandidateScore {
			continue
		}
		cands = append(cands, scored{id: id, score: sc})
		if sc > best {
			best = sc
		}
	}
	if len(cands) == 0 {
		return nil
	}
	var ties []worldctx.ActorID
	for _, c := range cands {
		if mathx.ApproxEqual(c.score, best, e.cfg.TieEpsilon) {
			ties = append(ties, c.id)
		}
	}
	pick := ties[0]
	if len(ties) > 1 {
		var key storylet.Key
		if req.Storylet != nil {
			key = req.Storylet.Key
		}
		r := rng.New(TieSeed(w.Seed, req.Tick, key, role))
		pick = ties[r.Intn(len(ties))]
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].score != cands[j].score {
			return cands[i].score > cands[j].score
		}
		return cands[i].id < cands[j].id
	})
	out := make([]worldctx.ActorID, 0, len(cands))
	out = append(out, pick)
	for _, c := range cands {
		if c.id != pick {
			out = append(out, c.id)
		}
	}
	return out
}

// TieSeed derives the tie-break stream from (tick, storylet key, role) XORed
// into the world seed.
func TieSeed(seed int64, tick uint64, key storylet.Key, role string) uint64 {
	h := mathx.HashString(strconv.FormatUint(tick, 10) + "|" + strconv.FormatUint(uint64(key), 10) + "|" + role)
	return uint64(seed) ^ h
}

// Score rates actor id for an archetype: relationship weighting toward the
// protagonist, a mood term, and the memory affinity bonus.
func (e *Engine) Score(arch Archetype, id worldctx.ActorID, w *worldctx.Context, tick uint64) float64 {
	r := w.Relationship(id, w.PlayerID)
	aff := float64(r.Affection)
	trust := float64(r.Trust)
	attr := float64(r.Attraction)
	fam := float64(r.Familiarity)
	res := float64(r.Resentment)

	var base float64
	switch arch {
	case Rival:
		base = res - 0.5*trust - 0.5*aff
	case Friend:
		base = 0.6*aff + 0.4*fam + 0.5*trust - 0.6*res
	case Romance:
		base = 0.5*aff + attr - 0.3*res
	case Mentor:
		base = trust + 0.3*fam
	default:
		base = 0.5*aff + 0.3*trust
	}
	if a, ok := w.Actor(id); ok {
		base += e.cfg.MoodWeight * float64(a.Mood)
	}
	return base + e.MemoryAffinity(arch, id, w, tick)
}

// MemoryAffinity sums affinity-table weights over the actor's memories that
// involve the protagonist, scaled by |intensity| and boosted for recent ones.
func (e *Engine) MemoryAffinity(arch Archetype, id worldctx.ActorID, w *worldctx.Context, tick uint64) float64 {
	sum := 0.0
	for _, m := range w.MemoriesOf(id) {
		if !m.Involves(w.PlayerID) || !m.Involves(id) {
			continue
		}
		intensity := math.Abs(float64(m.Intensity))
		recency := 1.0
		if win := e.cfg.MemoryRecencyTicks; win > 0 {
			age := mathx.TicksSince(tick, m.Tick)
			if age < win {
				recency += e.cfg.MemoryRecencyBoost * (1 - float64(age)/float64(win))
			}
		}
		for _, tag := range m.Tags {
			for _, wt := range e.affinity[tag] {
				if wt.arch == arch {
					sum += wt.w * intensity * e.cfg.MemoryAffinityScale * recency
				}
			}
		}
	}
	return sum
}
