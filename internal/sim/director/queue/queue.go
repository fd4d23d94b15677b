// Package queue is the bounded priority queue of scheduled and forced
// storylet events.
package queue

import (
	"fmt"
	"sort"

	"storylet.ai/internal/sim/storylet"
)

type Source uint8

const (
	SourceFollowUp Source = iota
	SourceMilestone
	SourcePressureRelief
)

var sourceNames = [...]string{
	SourceFollowUp:       "follow_up",
	SourceMilestone:      "milestone",
	SourcePressureRelief: "pressure_relief",
}

func (s Source) String() string {
	if int(s) < len(sourceNames) {
		return sourceNames[s]
	}
	return "unknown"
}

func (s Source) MarshalText() ([]byte, error) {
	if int(s) >= len(sourceNames) {
		return nil, fmt.Errorf("queue: bad source %d", s)
	}
	return []byte(sourceNames[s]), nil
}

func (s *Source) UnmarshalText(b []byte) error {
	for i, n := range sourceNames {
		if n == string(b) {
			*s = Source(i)
			return nil
		}
	}
	return fmt.Errorf("queue: unknown source %q", b)
}

type Event struct {
	Key           storylet.Key `json:"key"`
	ScheduledTick uint64       `json:"scheduled_tick"`
	Priority      int          `json:"priority"`
	Forced        bool         `json:"forced,omitempty"`
	Source        Source       `json:"source"`

	// Origin names the milestone or pressure that scheduled the event.
	Origin string `json:"origin,omitempty"`

	// Seq is the insertion order; lower is older.
	Seq uint64 `json:"seq"`
}

func (e Event) Ready(tick uint64) bool {
	return tick >= e.ScheduledTick
}

type Queue struct {
	capacity int
	events   []Event
	nextSeq  uint64
}

func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{capacity: capacity}
}

// Restore rebuilds a queue from exported events. Events beyond capacity are
// evicted with the normal policy.
func Restore(capacity int, events []Event, nextSeq uint64) *Queue {
	q := New(capacity)
	q.nextSeq = nextSeq
	for _, e := range events {
		if e.Seq >= q.nextSeq {
			q.nextSeq = e.Seq + 1
		}
		q.insert(e)
	}
	return q
}

func (q *Queue) Len() int {
	return len(q.events)
}

func (q *Queue) Capacity() int {
	return q.capacity
}

// NextSeq is persisted with the queue so restored sessions keep ordering ages.
func (q *Queue) NextSeq() uint64 {
	return q.nextSeq
}

// worse reports whether a should be evicted before b.
func worse(a, b Event) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	return a.Seq < b.Seq
}

// Push stamps e with a fresh sequence number and inserts it. When the queue is
// full the lowest-priority, then oldest, event is evicted; that may be e
// itself, in which case accepted is false.
func (q *Queue) Push(e Event) (evicted Event, didEvict, accepted bool) {
	e.Seq = q.nextSeq
	q.nextSeq++
	return q.insert(e)
}

// Requeue puts back an event taken by PopReady, keeping its original age.
func (q *Queue) Requeue(e Event) (evicted Event, didEvict, accepted bool) {
	return q.insert(e)
}

func (q *Queue) insert(e Event) (Event, bool, bool) {
	if len(q.events) < q.capacity {
		q.events = append(q.events, e)
		return Event{}, false, true
	}
	victim := -1
	for i, x := range q.events {
		if victim < 0 || worse(x, q.events[victim]) {
			victim = i
		}
	}
	if worse(e, q.events[victim]) {
		return e, true, false
	}
	out := q.events[victim]
	q.events[victim] = e
	return out, true, true
}

func (q *Queue) pop(tick uint64, forced bool) []Event {
	var ready []Event
	keep := q.events[:0]
	for _, e := range q.events {
		if e.Forced == forced && e.Ready(tick) {
			ready = append(ready, e)
			continue
		}
		keep = append(keep, e)
	}
	q.events = keep
	sortReady(ready)
	return ready
}

// PopReady removes and returns every non-forced event due at tick, ordered by
// priority desc, key asc, then age.
func (q *Queue) PopReady(tick uint64) []Event {
	return q.pop(tick, false)
}

// PopForcedReady is PopReady for forced events. Callers drain it first.
func (q *Queue) PopForcedReady(tick uint64) []Event {
	return q.pop(tick, true)
}

func sortReady(es []Event) {
	sort.Slice(es, func(i, j int) bool {
		a, b := es[i], es[j]
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return a.Seq < b.Seq
	})
}

// Events returns a copy of the queue in insertion order.
func (q *Queue) Events() []Event {
	out := append([]Event(nil), q.events...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out
}

// Peek returns the events due at tick without removing them, in pop order.
func (q *Queue) Peek(tick uint64) []Event {
	var out []Event
	for _, e := range q.events {
		if e.Ready(tick) {
			out = append(out, e)
		}
	}
	sortReady(out)
	return out
}
