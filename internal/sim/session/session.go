// Package session binds a director to the world it narrates: each turn steps
// the director and applies the fired storylet's outcome back to the world.
package session

import (
	"github.com/google/uuid"

	"storylet.ai/internal/sim/director"
	"storylet.ai/internal/sim/outcome"
	"storylet.ai/internal/sim/storylet"
	"storylet.ai/internal/sim/tuning"
	"storylet.ai/internal/sim/worldctx"
)

// Turn is the result of one Advance. Entry carries the digest taken before
// the outcome was applied, matching what the step log records.
type Turn struct {
	Step    director.StepResult
	Entry   director.LogEntry
	Applied outcome.Result
}

type Session struct {
	ID       string
	Source   storylet.Source
	World    *worldctx.Context
	Director *director.Director
}

func NewID() string {
	return uuid.NewString()
}

// New starts a session at tick 0. An empty id gets a fresh one.
func New(id string, cfg tuning.Config, src storylet.Source, w *worldctx.Context, opts ...director.Option) *Session {
	if id == "" {
		id = NewID()
	}
	return &Session{ID: id, Source: src, World: w, Director: director.New(cfg, src, opts...)}
}

// Resume continues a session from a saved director state and world.
func Resume(id string, st director.State, cfg tuning.Config, src storylet.Source, w *worldctx.Context, opts ...director.Option) *Session {
	return &Session{ID: id, Source: src, World: w, Director: director.Restore(st, cfg, src, opts...)}
}

func (s *Session) Tick() uint64 {
	return s.Director.Tick()
}

// Advance steps the next tick and applies any firing to the world.
func (s *Session) Advance() Turn {
	tick := s.Director.Tick() + 1
	t := Turn{Step: s.Director.Step(tick, s.World)}
	t.Entry = t.Step.Entry(s.Director.Digest())
	t.Entry.Session = s.ID
	if !t.Step.Fired {
		return t
	}
	st, ok := s.Source.Storylet(t.Step.Key)
	if !ok {
		return t
	}
	t.Applied = outcome.Apply(s.World, st, t.Step.Roles, tick, s.Director)
	return t
}

// Run advances n ticks, calling fn after each turn when it is non-nil.
func (s *Session) Run(n int, fn func(Turn)) {
	for i := 0; i < n; i++ {
		t := s.Advance()
		if fn != nil {
			fn(t)
		}
	}
}
