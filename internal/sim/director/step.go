package director

import (
	"sort"

	"storylet.ai/internal/sim/director/arcs"
	"storylet.ai/internal/sim/director/casting"
	"storylet.ai/internal/sim/director/eligibility"
	"storylet.ai/internal/sim/director/pacing"
	"storylet.ai/internal/sim/director/queue"
	"storylet.ai/internal/sim/director/scoring"
	"storylet.ai/internal/sim/logic/mathx"
	"storylet.ai/internal/sim/storylet"
	"storylet.ai/internal/sim/worldctx"
)

// StepResult explains one step. Key, ID, Roles and Winner are meaningful only
// when Fired is true.
type StepResult struct {
	Tick  uint64
	Fired bool

	Key       storylet.Key
	ID        string
	Forced    bool
	FromQueue bool
	Roles     casting.Assignments
	Winner    scoring.Candidate

	Eligibility eligibility.CandidateSet
	Candidates  []scoring.Candidate

	// CastFailures lists winners that were drawn but could not be cast.
	CastFailures []storylet.Key

	Heat         float32
	Phase        pacing.Phase
	PhaseChanged bool
	QueueLen     int

	ReliefScheduled     []string
	ExpiredPressures    []string
	LapsedMilestones    []string
	ResolvedPressures   []string
	AdvancedMilestones  []string
	CompletedMilestones []string

	// Dropped are queued events discarded this step as stale or unknown.
	Dropped []queue.Event
}

// Step runs one director tick against w. Ticks are expected to increase; the
// director never mutates w.
func (d *Director) Step(tick uint64, w *worldctx.Context) StepResult {
	d.tick = tick
	res := StepResult{Tick: tick}

	res.PhaseChanged = d.pacing.OnTickStart(&d.pace, tick)
	d.cooldowns.Prune(tick)
	d.tickArcs(tick, &res)

	var seed int64
	if w != nil {
		seed = w.Seed
	}

	d.stepForced(tick, w, seed, &res)
	if !res.Fired {
		d.stepRegular(tick, w, seed, &res)
	}

	res.Heat = d.pace.Heat
	res.Phase = d.pace.Phase
	res.QueueLen = d.queue.Len()
	if d.stepLogger != nil {
		if err := d.stepLogger.WriteStep(res.Entry(d.Digest())); err != nil {
			d.logf("step log: %v", err)
		}
	}
	return res
}

func (d *Director) tickArcs(tick uint64, res *StepResult) {
	pc := d.cfg.Pressure
	tr := d.book.Tick(tick, pc.GrowthPerTick, pc.ReliefThreshold)
	for _, p := range tr.NeedRelief {
		if d.SchedulePressureRelief(p.Relief, tick, pc.ReliefPriority, p.ID) {
			res.ReliefScheduled = append(res.ReliefScheduled, p.ID)
			d.logf("tick %d: pressure %s reached %.2f, relief scheduled", tick, p.ID, p.Severity)
		}
	}
	res.ExpiredPressures = tr.ExpiredPressures
	res.LapsedMilestones = tr.LapsedMilestones
}

// requeue puts an unfired event back unless it has gone stale.
func (d *Director) requeue(e queue.Event, tick uint64, res *StepResult) {
	if mathx.TicksSince(tick, e.ScheduledTick) > d.cfg.Queue.StaleAfterTicks {
		res.Dropped = append(res.Dropped, e)
		d.logf("tick %d: dropped stale %s event key=%d", tick, e.Source, e.Key)
		return
	}
	evicted, didEvict, accepted := d.queue.Requeue(e)
	if didEvict {
		res.Dropped = append(res.Dropped, evicted)
	}
	if !accepted {
		d.logf("tick %d: requeue rejected key=%d", tick, e.Key)
	}
}

// stepForced fires the first castable forced event. The rest go back.
func (d *Director) stepForced(tick uint64, w *worldctx.Context, seed int64, res *StepResult) {
	for _, e := range d.queue.PopForcedReady(tick) {
		if res.Fired {
			d.requeue(e, tick, res)
			continue
		}
		s, ok := d.src.Storylet(e.Key)
		if !ok {
			res.Dropped = append(res.Dropped, e)
			continue
		}
		if !d.cooldowns.ReadyGlobal(e.Key, tick) {
			d.requeue(e, tick, res)
			continue
		}
		roles, ok := d.CastRoles(e.Key, w, tick)
		if !ok {
			res.CastFailures = append(res.CastFailures, e.Key)
			d.requeue(e, tick, res)
			continue
		}
		c, _ := d.scorer.Score(e.Key, d.scoringInput(tick, seed, w))
		c.Queued = true
		res.Forced = true
		res.FromQueue = true
		d.fire(s, roles, c, tick, w, res)
	}
}

func (d *Director) scoringInput(tick uint64, seed int64, w *worldctx.Context) scoring.Input {
	return scoring.Input{
		Tick:      tick,
		Seed:      seed,
		Phase:     d.pace.Phase,
		World:     w,
		LastFired: d.lastFired,
		Arcs:      d.book,
	}
}

// stepRegular merges ready queued events with fresh pipeline candidates,
// scores them, and draws until a winner can be cast.
func (d *Director) stepRegular(tick uint64, w *worldctx.Context, seed int64, res *StepResult) {
	queued := map[storylet.Key]queue.Event{}
	var pending []queue.Event
	for _, e := range d.queue.PopReady(tick) {
		if _, ok := d.src.Storylet(e.Key); !ok {
			res.Dropped = append(res.Dropped, e)
			continue
		}
		if _, dup := queued[e.Key]; dup || !d.cooldowns.ReadyGlobal(e.Key, tick) {
			pending = append(pending, e)
			continue
		}
		queued[e.Key] = e
	}

	res.Eligibility = d.pipeline.Run(eligibility.Input{
		Tick:      tick,
		World:     w,
		Phase:     d.pace.Phase,
		Cooldowns: d.cooldowns,
		LastFired: d.lastFired,
		Arcs:      d.book,
	})
	keys := res.Eligibility.Final()
	if len(queued) > 0 {
		qk := make([]storylet.Key, 0, len(queued))
		for k := range queued {
			qk = append(qk, k)
		}
		sort.Slice(qk, func(i, j int) bool { return qk[i] < qk[j] })
		keys = storylet.Union(keys, qk)
	}

	cands := d.scorer.ScoreAll(keys, d.scoringInput(tick, seed, w))
	for i := range cands {
		if _, ok := queued[cands[i].Key]; ok {
			cands[i].Queued = true
		}
	}
	res.Candidates = cands

	// Queued events already passed their own gate when they were scheduled.
	pool := make([]scoring.Candidate, 0, len(cands))
	for _, c := range cands {
		if c.Queued || c.TotalScore >= d.cfg.Scoring.MinViableScore {
			pool = append(pool, c)
		}
	}

	r := scoring.NewRand(seed, tick)
	for len(pool) > 0 && !res.Fired {
		i, ok := scoring.Draw(pool, r)
		if !ok {
			break
		}
		c := pool[i]
		roles, ok := d.CastRoles(c.Key, w, tick)
		if !ok {
			res.CastFailures = append(res.CastFailures, c.Key)
			pool = append(pool[:i], pool[i+1:]...)
			continue
		}
		s, _ := d.src.Storylet(c.Key)
		if e, ok := queued[c.Key]; ok {
			res.FromQueue = true
			delete(queued, e.Key)
		}
		d.fire(s, roles, c, tick, w, res)
	}

	for _, e := range queued {
		pending = append(pending, e)
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].Seq < pending[j].Seq })
	for _, e := range pending {
		d.requeue(e, tick, res)
	}
}

// fire commits a firing: heat gain, cooldowns for the protagonist and the
// cast, variety windows, and arc progress with payoff scheduling.
func (d *Director) fire(s *storylet.CompiledStorylet, roles casting.Assignments, c scoring.Candidate, tick uint64, w *worldctx.Context, res *StepResult) {
	res.Fired = true
	res.Key = s.Key
	res.ID = s.ID
	res.Roles = roles
	res.Winner = c

	if d.pacing.OnEventFired(&d.pace, s.Heat, tick) {
		res.PhaseChanged = true
	}

	var actors []string
	if w != nil && w.PlayerID != "" {
		actors = append(actors, string(w.PlayerID))
	}
	for _, id := range roles.Actors() {
		if w == nil || id != w.PlayerID {
			actors = append(actors, string(id))
		}
	}
	d.cooldowns.Mark(s.Key, tick, s.Cooldown, actors)
	d.lastFired.Record(s, tick)

	fr := d.book.OnFired(s)
	res.ResolvedPressures = fr.ResolvedPressures
	res.AdvancedMilestones = fr.Advanced
	for _, m := range fr.Completed {
		res.CompletedMilestones = append(res.CompletedMilestones, m.ID)
		d.payoff(m, tick)
	}
}

func (d *Director) payoff(m arcs.Milestone, tick uint64) {
	if !m.HasPayoff {
		return
	}
	mc := d.cfg.Milestone
	if d.ScheduleMilestone(m.Payoff, tick+1, mc.PayoffPriority, mc.PayoffForced, m.ID) {
		d.logf("tick %d: milestone %s complete, payoff key=%d scheduled", tick, m.ID, m.Payoff)
	}
}
