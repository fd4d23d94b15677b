package director

import (
	"storylet.ai/internal/sim/director/arcs"
	"storylet.ai/internal/sim/director/cooldown"
	"storylet.ai/internal/sim/director/pacing"
	"storylet.ai/internal/sim/director/queue"
)

// State is everything a director carries between steps, in plain serialisable
// form. It is what snapshots persist and what Restore accepts.
type State struct {
	Tick   uint64       `json:"tick"`
	Pacing pacing.State `json:"pacing"`

	Cooldowns []cooldown.Entry    `json:"cooldowns,omitempty"`
	LastFired cooldown.FiredState `json:"last_fired"`

	Queue    []queue.Event `json:"queue,omitempty"`
	QueueSeq uint64        `json:"queue_seq"`

	Pressures  []arcs.Pressure  `json:"pressures,omitempty"`
	Milestones []arcs.Milestone `json:"milestones,omitempty"`

	ConfigVersion string `json:"config_version"`
}

// Clone deep-copies s.
func (s State) Clone() State {
	out := s
	out.Cooldowns = append([]cooldown.Entry(nil), s.Cooldowns...)
	out.LastFired = cooldown.FiredState{
		Storylets: append([]cooldown.KeyTick(nil), s.LastFired.Storylets...),
		Domains:   append([]cooldown.DomainTick(nil), s.LastFired.Domains...),
		Tags:      append([]cooldown.TagTick(nil), s.LastFired.Tags...),
	}
	out.Queue = append([]queue.Event(nil), s.Queue...)
	out.Pressures = nil
	for _, p := range s.Pressures {
		p.Tags = append([]string(nil), p.Tags...)
		out.Pressures = append(out.Pressures, p)
	}
	out.Milestones = nil
	for _, m := range s.Milestones {
		m.Tags = append([]string(nil), m.Tags...)
		out.Milestones = append(out.Milestones, m)
	}
	return out
}
