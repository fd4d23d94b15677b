// Package arcs holds long-running narrative threads: pressures that build
// until a matching storylet releases them, and milestones that matching
// storylets advance toward a payoff.
package arcs

import (
	"sort"

	"storylet.ai/internal/sim/logic/mathx"
	"storylet.ai/internal/sim/storylet"
)

type Pressure struct {
	ID          string          `json:"id"`
	Domain      storylet.Domain `json:"domain"`
	Tags        []string        `json:"tags,omitempty"`
	Severity    float32         `json:"severity"`
	CreatedTick uint64          `json:"created_tick"`
	// ExpiresTick of 0 never expires.
	ExpiresTick uint64 `json:"expires_tick,omitempty"`

	Relief          storylet.Key `json:"relief,omitempty"`
	HasRelief       bool         `json:"has_relief,omitempty"`
	ReliefScheduled bool         `json:"relief_scheduled,omitempty"`
}

type Milestone struct {
	ID       string          `json:"id"`
	Domain   storylet.Domain `json:"domain"`
	Tags     []string        `json:"tags,omitempty"`
	Progress int             `json:"progress"`
	Target   int             `json:"target"`
	// Deadline of 0 never lapses.
	Deadline uint64 `json:"deadline,omitempty"`

	Payoff    storylet.Key `json:"payoff,omitempty"`
	HasPayoff bool         `json:"has_payoff,omitempty"`
}

// matches is the shared overlap rule: same domain, or any shared tag.
func matches(d storylet.Domain, tags []string, s *storylet.CompiledStorylet) bool {
	if d != storylet.DomainNone && s.Domain == d {
		return true
	}
	for _, t := range tags {
		if s.HasTag(t) {
			return true
		}
	}
	return false
}

func (p *Pressure) Matches(s *storylet.CompiledStorylet) bool {
	return matches(p.Domain, p.Tags, s)
}

func (m *Milestone) Advances(s *storylet.CompiledStorylet) bool {
	return matches(m.Domain, m.Tags, s)
}

// Book is the set of active pressures and milestones, each kept sorted by ID.
type Book struct {
	pressures  []Pressure
	milestones []Milestone
}

func New() *Book {
	return &Book{}
}

func Import(ps []Pressure, ms []Milestone) *Book {
	b := New()
	for _, p := range ps {
		b.AddPressure(p)
	}
	for _, m := range ms {
		b.AddMilestone(m)
	}
	return b
}

func normTags(tags []string) []string {
	out := append([]string(nil), tags...)
	sort.Strings(out)
	return out
}

// AddPressure opens p, replacing any pressure with the same ID.
func (b *Book) AddPressure(p Pressure) {
	p.Tags = normTags(p.Tags)
	p.Severity = mathx.Clamp32(p.Severity, 0, 1)
	for i := range b.pressures {
		if b.pressures[i].ID == p.ID {
			b.pressures[i] = p
			return
		}
	}
	b.pressures = append(b.pressures, p)
	sort.Slice(b.pressures, func(i, j int) bool { return b.pressures[i].ID < b.pressures[j].ID })
}

func (b *Book) ResolvePressure(id string) bool {
	for i := range b.pressures {
		if b.pressures[i].ID == id {
			b.pressures = append(b.pressures[:i], b.pressures[i+1:]...)
			return true
		}
	}
	return false
}

// AddMilestone tracks m, replacing any milestone with the same ID. A target
// below 1 is treated as 1.
func (b *Book) AddMilestone(m Milestone) {
	m.Tags = normTags(m.Tags)
	if m.Target < 1 {
		m.Target = 1
	}
	for i := range b.milestones {
		if b.milestones[i].ID == m.ID {
			b.milestones[i] = m
			return
		}
	}
	b.milestones = append(b.milestones, m)
	sort.Slice(b.milestones, func(i, j int) bool { return b.milestones[i].ID < b.milestones[j].ID })
}

func (b *Book) Pressures() []Pressure {
	out := make([]Pressure, len(b.pressures))
	for i, p := range b.pressures {
		p.Tags = append([]string(nil), p.Tags...)
		out[i] = p
	}
	return out
}

func (b *Book) Milestones() []Milestone {
	out := make([]Milestone, len(b.milestones))
	for i, m := range b.milestones {
		m.Tags = append([]string(nil), m.Tags...)
		out[i] = m
	}
	return out
}

// TickResult reports what one bookkeeping pass changed.
type TickResult struct {
	NeedRelief       []Pressure
	ExpiredPressures []string
	LapsedMilestones []string
}

// Tick grows every pressure by growth, drops expired pressures and lapsed
// milestones, and returns pressures that crossed threshold and still need
// their relief storylet scheduled. Those are marked scheduled.
func (b *Book) Tick(tick uint64, growth, threshold float32) TickResult {
	var res TickResult
	keep := b.pressures[:0]
	for _, p := range b.pressures {
		if p.ExpiresTick != 0 && tick >= p.ExpiresTick {
			res.ExpiredPressures = append(res.ExpiredPressures, p.ID)
			continue
		}
		p.Severity = mathx.Clamp32(p.Severity+growth, 0, 1)
		if p.HasRelief && !p.ReliefScheduled && p.Severity >= threshold {
			p.ReliefScheduled = true
			res.NeedRelief = append(res.NeedRelief, p)
		}
		keep = append(keep, p)
	}
	b.pressures = keep

	keepM := b.milestones[:0]
	for _, m := range b.milestones {
		if m.Deadline != 0 && tick > m.Deadline {
			res.LapsedMilestones = append(res.LapsedMilestones, m.ID)
			continue
		}
		keepM = append(keepM, m)
	}
	b.milestones = keepM
	return res
}

// AnyMatching reports whether an active pressure justifies a pacing exception
// for s.
func (b *Book) AnyMatching(s *storylet.CompiledStorylet) bool {
	for i := range b.pressures {
		if b.pressures[i].Matches(s) {
			return true
		}
	}
	return false
}

func (b *Book) PressureBonus(s *storylet.CompiledStorylet, perSeverity, limit float64) float64 {
	sum := 0.0
	for i := range b.pressures {
		if b.pressures[i].Matches(s) {
			sum += float64(b.pressures[i].Severity) * perSeverity
		}
	}
	return mathx.Clamp64(sum, 0, limit)
}

// MilestoneBonus never exceeds 1.0 (+100%) regardless of limit.
func (b *Book) MilestoneBonus(s *storylet.CompiledStorylet, each, limit float64) float64 {
	if limit > 1 {
		limit = 1
	}
	sum := 0.0
	for i := range b.milestones {
		if b.milestones[i].Advances(s) {
			sum += each
		}
	}
	return mathx.Clamp64(sum, 0, limit)
}

// FireResult is the arc bookkeeping produced by one firing.
type FireResult struct {
	ResolvedPressures []string
	Advanced          []string
	Completed         []Milestone
}

// OnFired resolves every pressure s matches and advances every milestone it
// overlaps. Completed milestones are removed and returned for payoff.
func (b *Book) OnFired(s *storylet.CompiledStorylet) FireResult {
	var res FireResult
	keep := b.pressures[:0]
	for _, p := range b.pressures {
		if p.Matches(s) {
			res.ResolvedPressures = append(res.ResolvedPressures, p.ID)
			continue
		}
		keep = append(keep, p)
	}
	b.pressures = keep

	keepM := b.milestones[:0]
	for _, m := range b.milestones {
		if m.Advances(s) {
			m.Progress++
			res.Advanced = append(res.Advanced, m.ID)
			if m.Progress >= m.Target {
				res.Completed = append(res.Completed, m)
				continue
			}
		}
		keepM = append(keepM, m)
	}
	b.milestones = keepM
	return res
}
