// Package pacing regulates narrative heat and the five-phase intensity cycle.
package pacing

import (
	"fmt"

	"storylet.ai/internal/sim/logic/mathx"
	"storylet.ai/internal/sim/tuning"
)

type Phase uint8

const (
	LowKey Phase = iota
	Rising
	Peak
	Fallout
	Recovery
)

var phaseNames = [...]string{
	LowKey:   "low_key",
	Rising:   "rising",
	Peak:     "peak",
	Fallout:  "fallout",
	Recovery: "recovery",
}

func (p Phase) String() string {
	if int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return "unknown"
}

func ParsePhase(s string) (Phase, bool) {
	for i, n := range phaseNames {
		if n == s {
			return Phase(i), true
		}
	}
	return LowKey, false
}

func (p Phase) MarshalText() ([]byte, error) {
	if int(p) >= len(phaseNames) {
		return nil, fmt.Errorf("pacing: bad phase %d", p)
	}
	return []byte(phaseNames[p]), nil
}

func (p *Phase) UnmarshalText(b []byte) error {
	v, ok := ParsePhase(string(b))
	if !ok {
		return fmt.Errorf("pacing: unknown phase %q", b)
	}
	*p = v
	return nil
}

// adjacency lists every transition the cycle allows.
var adjacency = map[Phase][]Phase{
	LowKey:   {Rising},
	Rising:   {Peak, LowKey},
	Peak:     {Fallout},
	Fallout:  {Peak, Recovery},
	Recovery: {Rising, LowKey},
}

// Adjacent reports whether from -> to is a legal single transition.
func Adjacent(from, to Phase) bool {
	for _, p := range adjacency[from] {
		if p == to {
			return true
		}
	}
	return false
}

type State struct {
	Heat             float32 `json:"heat"`
	Phase            Phase   `json:"phase"`
	PhaseEnteredTick uint64  `json:"phase_entered_tick"`
}

type Engine struct {
	cfg tuning.Pacing
}

func New(cfg tuning.Pacing) Engine {
	if cfg.MinPhaseDuration < 1 {
		cfg.MinPhaseDuration = 1
	}
	return Engine{cfg: cfg}
}

func (e Engine) Initial(tick uint64) State {
	return State{Heat: e.Clamp(e.cfg.InitialHeat), Phase: LowKey, PhaseEnteredTick: tick}
}

func (e Engine) Clamp(h float32) float32 {
	if h != h {
		return e.cfg.MinHeat
	}
	return mathx.Clamp32(h, e.cfg.MinHeat, e.cfg.MaxHeat)
}

// OnTickStart applies one tick of decay and re-evaluates the phase. It
// returns true when the phase changed.
func (e Engine) OnTickStart(s *State, tick uint64) bool {
	s.Heat = e.Clamp(s.Heat - e.cfg.DecayPerTick)
	return e.Evaluate(s, tick)
}

// OnEventFired adds storyHeat*gain_factor and re-evaluates the phase.
func (e Engine) OnEventFired(s *State, storyHeat float32, tick uint64) bool {
	s.Heat = e.Clamp(s.Heat + storyHeat*e.cfg.GainFactor)
	return e.Evaluate(s, tick)
}

// Evaluate performs at most one transition, and only once the current phase
// has been held for min_phase_duration ticks.
func (e Engine) Evaluate(s *State, tick uint64) bool {
	if mathx.TicksSince(tick, s.PhaseEnteredTick) < e.cfg.MinPhaseDuration {
		return false
	}
	next, ok := Next(s.Phase, s.Heat, e.cfg.Thresholds)
	if !ok {
		return false
	}
	s.Phase = next
	s.PhaseEnteredTick = tick
	return true
}

// Next is the transition table. ok is false when the phase holds.
func Next(p Phase, heat float32, th tuning.Thresholds) (Phase, bool) {
	switch p {
	case LowKey:
		if heat >= th.RisingEnter {
			return Rising, true
		}
	case Rising:
		if heat >= th.PeakEnter {
			return Peak, true
		}
		if heat < th.RisingExit {
			return LowKey, true
		}
	case Peak:
		if heat < th.PeakExit {
			return Fallout, true
		}
	case Fallout:
		if heat >= th.FalloutReescalate {
			return Peak, true
		}
		if heat < th.RecoveryEnter {
			return Recovery, true
		}
	case Recovery:
		if heat >= th.RecoveryReescalate {
			return Rising, true
		}
		if heat < th.RecoveryExit {
			return LowKey, true
		}
	}
	return p, false
}

type band struct{ lo, hi float32 }

var expected = [...]band{
	LowKey:   {0, 3},
	Rising:   {3, 6},
	Peak:     {7, 10},
	Fallout:  {3, 6},
	Recovery: {0, 3},
}

// HeatAlignment is the soft scoring multiplier, in [0.5, 2.0]. Inside the
// phase band it peaks at the band centre; outside it falls off with distance.
func HeatAlignment(p Phase, storyHeat float32) float64 {
	if int(p) >= len(expected) {
		return 1
	}
	b := expected[p]
	h := float64(storyHeat)
	lo, hi := float64(b.lo), float64(b.hi)
	if h >= lo && h <= hi {
		half := (hi - lo) / 2
		if half <= 0 {
			return 2
		}
		c := lo + half
		d := h - c
		if d < 0 {
			d = -d
		}
		return 2 - 0.5*d/half
	}
	var d float64
	if h < lo {
		d = lo - h
	} else {
		d = h - hi
	}
	return mathx.Clamp64(1.5-0.35*d, 0.5, 1.5)
}

type window struct {
	min, max                 float32
	pressureMin, pressureMax float32
}

var gates = [...]window{
	LowKey:   {min: 0, max: 6, pressureMin: 0, pressureMax: 8},
	Rising:   {min: 0, max: 8, pressureMin: 0, pressureMax: 10},
	Peak:     {min: 3, max: 10, pressureMin: 0, pressureMax: 10},
	Fallout:  {min: 0, max: 7, pressureMin: 0, pressureMax: 9},
	Recovery: {min: 0, max: 5, pressureMin: 0, pressureMax: 7},
}

// IsHeatAppropriate is the hard pacing gate. Forced storylets always pass; an
// active matching pressure widens the phase window.
func IsHeatAppropriate(p Phase, storyHeat float32, pressure, forced bool) bool {
	if forced {
		return true
	}
	if int(p) >= len(gates) {
		return true
	}
	g := gates[p]
	if pressure {
		return storyHeat >= g.pressureMin && storyHeat <= g.pressureMax
	}
	return storyHeat >= g.min && storyHeat <= g.max
}
