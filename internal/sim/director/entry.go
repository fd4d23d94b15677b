package director

import (
	"storylet.ai/internal/sim/director/pacing"
	"storylet.ai/internal/sim/director/scoring"
	"storylet.ai/internal/sim/storylet"
)

// LogEntry is the replayable record of one step.
type LogEntry struct {
	Session string `json:"session,omitempty"`
	Tick    uint64 `json:"tick"`
	Fired   bool   `json:"fired"`

	Key        storylet.Key       `json:"key,omitempty"`
	StoryletID string             `json:"storylet_id,omitempty"`
	Forced     bool               `json:"forced,omitempty"`
	FromQueue  bool               `json:"from_queue,omitempty"`
	Roles      map[string]string  `json:"roles,omitempty"`
	Score      *scoring.Candidate `json:"score,omitempty"`

	Candidates int          `json:"candidates"`
	Heat       float32      `json:"heat"`
	Phase      pacing.Phase `json:"phase"`
	QueueLen   int          `json:"queue_len"`
	Digest     string       `json:"digest"`
}

// Entry converts r into a log entry stamped with a state digest.
func (r StepResult) Entry(digest string) LogEntry {
	e := LogEntry{
		Tick:       r.Tick,
		Fired:      r.Fired,
		Candidates: len(r.Candidates),
		Heat:       r.Heat,
		Phase:      r.Phase,
		QueueLen:   r.QueueLen,
		Digest:     digest,
	}
	if r.Fired {
		e.Key = r.Key
		e.StoryletID = r.ID
		e.Forced = r.Forced
		e.FromQueue = r.FromQueue
		w := r.Winner
		e.Score = &w
		if len(r.Roles) > 0 {
			e.Roles = make(map[string]string, len(r.Roles))
			for role, id := range r.Roles {
				e.Roles[role] = string(id)
			}
		}
	}
	return e
}

// ArcEvent is one pressure or milestone transition within a step.
type ArcEvent struct {
	Session string `json:"session,omitempty"`
	Tick    uint64 `json:"tick"`
	Kind    string `json:"kind"`
	ID      string `json:"id"`
}

const (
	ArcReliefScheduled   = "relief_scheduled"
	ArcPressureExpired   = "pressure_expired"
	ArcPressureResolved  = "pressure_resolved"
	ArcMilestoneAdvanced = "milestone_advanced"
	ArcMilestoneComplete = "milestone_completed"
	ArcMilestoneLapsed   = "milestone_lapsed"
)

// ArcEvents flattens r's arc bookkeeping in a fixed kind order.
func (r StepResult) ArcEvents() []ArcEvent {
	var out []ArcEvent
	add := func(kind string, ids []string) {
		for _, id := range ids {
			out = append(out, ArcEvent{Tick: r.Tick, Kind: kind, ID: id})
		}
	}
	add(ArcReliefScheduled, r.ReliefScheduled)
	add(ArcPressureExpired, r.ExpiredPressures)
	add(ArcPressureResolved, r.ResolvedPressures)
	add(ArcMilestoneAdvanced, r.AdvancedMilestones)
	add(ArcMilestoneComplete, r.CompletedMilestones)
	add(ArcMilestoneLapsed, r.LapsedMilestones)
	return out
}
