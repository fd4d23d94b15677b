// Package director orchestrates one narrative step per tick: pacing, arc
// bookkeeping, forced and queued events, the eligibility pipeline, scoring,
// selection, casting and state update.
//
// A Director is single-threaded. Hosts serialise calls; nothing here does I/O
// except through the optional loggers.
package director

import (
	"log"

	"storylet.ai/internal/sim/director/arcs"
	"storylet.ai/internal/sim/director/casting"
	"storylet.ai/internal/sim/director/cooldown"
	"storylet.ai/internal/sim/director/eligibility"
	"storylet.ai/internal/sim/director/pacing"
	"storylet.ai/internal/sim/director/queue"
	"storylet.ai/internal/sim/director/scoring"
	"storylet.ai/internal/sim/storylet"
	"storylet.ai/internal/sim/tuning"
	"storylet.ai/internal/sim/worldctx"
)

// StepLogger receives one entry per step. Implemented in
// internal/persistence/log.
type StepLogger interface {
	WriteStep(entry LogEntry) error
}

type Option func(*Director)

// WithLogger sets the diagnostic logger. Nil is silent.
func WithLogger(l *log.Logger) Option {
	return func(d *Director) { d.logger = l }
}

// WithStepLogger records every step, including its state digest.
func WithStepLogger(l StepLogger) Option {
	return func(d *Director) { d.stepLogger = l }
}

type Director struct {
	cfg tuning.Config
	src storylet.Source

	pacing   pacing.Engine
	pipeline *eligibility.Pipeline
	scorer   *scoring.Engine
	caster   *casting.Engine

	// Runtime state; exported whole by Snapshot.
	tick      uint64
	pace      pacing.State
	cooldowns *cooldown.Tracker
	lastFired *cooldown.LastFired
	queue     *queue.Queue
	book      *arcs.Book

	logger     *log.Logger
	stepLogger StepLogger
}

func build(cfg tuning.Config, src storylet.Source, opts []Option) *Director {
	d := &Director{
		cfg:      cfg,
		src:      src,
		pacing:   pacing.New(cfg.Pacing),
		pipeline: eligibility.New(src, cfg.Variety),
		scorer:   scoring.New(src, cfg.Scoring),
		caster:   casting.New(cfg.Casting),
	}
	for _, o := range opts {
		if o != nil {
			o(d)
		}
	}
	return d
}

// New starts a fresh session at tick 0.
func New(cfg tuning.Config, src storylet.Source, opts ...Option) *Director {
	d := build(cfg, src, opts)
	d.pace = d.pacing.Initial(0)
	d.cooldowns = cooldown.New()
	d.lastFired = cooldown.NewLastFired()
	d.queue = queue.New(cfg.Queue.Capacity)
	d.book = arcs.New()
	return d
}

// Restore resumes from st. Out-of-range values are normalised and the state is
// re-stamped with cfg's version.
func Restore(st State, cfg tuning.Config, src storylet.Source, opts ...Option) *Director {
	d := build(cfg, src, opts)
	st = st.Clone()
	if st.ConfigVersion != "" && st.ConfigVersion != cfg.Version() {
		d.logf("restore: config version %s differs from snapshot %s", cfg.Version(), st.ConfigVersion)
	}
	d.tick = st.Tick
	d.pace = st.Pacing
	d.pace.Heat = d.pacing.Clamp(d.pace.Heat)
	if _, ok := pacing.ParsePhase(d.pace.Phase.String()); !ok {
		d.pace.Phase = pacing.LowKey
	}
	if d.pace.PhaseEnteredTick > d.tick {
		d.pace.PhaseEnteredTick = d.tick
	}
	d.cooldowns = cooldown.FromEntries(st.Cooldowns)
	d.lastFired = cooldown.ImportLastFired(st.LastFired)
	d.queue = queue.Restore(cfg.Queue.Capacity, st.Queue, st.QueueSeq)
	d.book = arcs.Import(st.Pressures, st.Milestones)
	return d
}

// Snapshot exports a deep copy of the current state.
func (d *Director) Snapshot() State {
	return State{
		Tick:          d.tick,
		Pacing:        d.pace,
		Cooldowns:     d.cooldowns.Entries(),
		LastFired:     d.lastFired.Export(),
		Queue:         d.queue.Events(),
		QueueSeq:      d.queue.NextSeq(),
		Pressures:     d.book.Pressures(),
		Milestones:    d.book.Milestones(),
		ConfigVersion: d.cfg.Version(),
	}
}

func (d *Director) logf(format string, args ...any) {
	if d.logger != nil {
		d.logger.Printf(format, args...)
	}
}

func (d *Director) Tick() uint64 {
	return d.tick
}

func (d *Director) Heat() float32 {
	return d.pace.Heat
}

func (d *Director) Phase() pacing.Phase {
	return d.pace.Phase
}

func (d *Director) QueueLen() int {
	return d.queue.Len()
}

// QueuedEvents lists pending events in insertion order.
func (d *Director) QueuedEvents() []queue.Event {
	return d.queue.Events()
}

func (d *Director) Pressures() []arcs.Pressure {
	return d.book.Pressures()
}

func (d *Director) Milestones() []arcs.Milestone {
	return d.book.Milestones()
}

func (d *Director) Config() tuning.Config {
	return d.cfg
}

func (d *Director) Source() storylet.Source {
	return d.src
}

// AddPressure opens or replaces a pressure. CreatedTick defaults to the
// current tick.
func (d *Director) AddPressure(p arcs.Pressure) {
	if p.CreatedTick == 0 {
		p.CreatedTick = d.tick
	}
	d.book.AddPressure(p)
}

func (d *Director) ResolvePressure(id string) bool {
	return d.book.ResolvePressure(id)
}

func (d *Director) AddMilestone(m arcs.Milestone) {
	d.book.AddMilestone(m)
}

func (d *Director) schedule(e queue.Event) bool {
	if _, ok := d.src.Storylet(e.Key); !ok {
		return false
	}
	evicted, didEvict, accepted := d.queue.Push(e)
	if didEvict {
		d.logf("queue full: evicted %s key=%d priority=%d", evicted.Source, evicted.Key, evicted.Priority)
	}
	return accepted
}

// ScheduleFollowUp queues key to become ready delay ticks after tick.
func (d *Director) ScheduleFollowUp(key storylet.Key, tick, delay uint64, priority int, forced bool) bool {
	return d.schedule(queue.Event{Key: key, ScheduledTick: tick + delay, Priority: priority, Forced: forced, Source: queue.SourceFollowUp})
}

// ScheduleMilestone queues a milestone payoff for at.
func (d *Director) ScheduleMilestone(key storylet.Key, at uint64, priority int, forced bool, milestone string) bool {
	return d.schedule(queue.Event{Key: key, ScheduledTick: at, Priority: priority, Forced: forced, Source: queue.SourceMilestone, Origin: milestone})
}

// SchedulePressureRelief queues a pressure's relief storylet for at.
func (d *Director) SchedulePressureRelief(key storylet.Key, at uint64, priority int, pressure string) bool {
	return d.schedule(queue.Event{Key: key, ScheduledTick: at, Priority: priority, Source: queue.SourcePressureRelief, Origin: pressure})
}

// ScheduleOutcomeFollowUps queues the follow-ups key's outcome declares,
// relative to tick. It returns how many were accepted.
func (d *Director) ScheduleOutcomeFollowUps(key storylet.Key, tick uint64) int {
	s, ok := d.src.Storylet(key)
	if !ok {
		return 0
	}
	n := 0
	for _, f := range s.Outcome.FollowUps {
		if d.ScheduleFollowUp(f.Key, tick, f.DelayTicks, f.Priority, f.Forced) {
			n++
		}
	}
	return n
}

// CastRoles assigns key's roles, skipping actors still on key's per-actor
// cooldown.
func (d *Director) CastRoles(key storylet.Key, w *worldctx.Context, tick uint64) (casting.Assignments, bool) {
	s, ok := d.src.Storylet(key)
	if !ok || w == nil {
		return nil, false
	}
	return d.caster.AssignRoles(casting.Request{
		Storylet: s,
		World:    w,
		Tick:     tick,
		Exclude: func(id worldctx.ActorID) bool {
			return id != w.PlayerID && !d.cooldowns.ReadyFor(key, string(id), tick)
		},
	})
}
