// Package cooldown tracks when storylets may fire again (cooldowns) and when
// storylets, domains and tags last fired (variety windows).
package cooldown

import (
	"sort"

	"storylet.ai/internal/sim/logic/mathx"
	"storylet.ai/internal/sim/storylet"
)

type actorKey struct {
	key   storylet.Key
	actor string
}

// Tracker holds ready-at ticks. Marking never moves a ready-at backwards.
type Tracker struct {
	global   map[storylet.Key]uint64
	perActor map[actorKey]uint64
}

// Entry is the serialisable form of one cooldown. Actor is empty for global
// entries.
type Entry struct {
	Key     storylet.Key `json:"key"`
	Actor   string       `json:"actor,omitempty"`
	ReadyAt uint64       `json:"ready_at"`
}

func New() *Tracker {
	return &Tracker{
		global:   map[storylet.Key]uint64{},
		perActor: map[actorKey]uint64{},
	}
}

func maxReady(cur uint64, ok bool, v uint64) uint64 {
	if ok && cur > v {
		return cur
	}
	return v
}

// Mark starts the cooldowns spec defines for key fired at tick. Per-actor
// cooldowns apply to every actor in actors.
func (t *Tracker) Mark(key storylet.Key, tick uint64, spec storylet.CooldownSpec, actors []string) {
	if spec.GlobalTicks > 0 {
		cur, ok := t.global[key]
		t.global[key] = maxReady(cur, ok, tick+spec.GlobalTicks)
	}
	if spec.PerActorTicks > 0 {
		for _, a := range actors {
			if a == "" {
				continue
			}
			k := actorKey{key: key, actor: a}
			cur, ok := t.perActor[k]
			t.perActor[k] = maxReady(cur, ok, tick+spec.PerActorTicks)
		}
	}
}

func (t *Tracker) ReadyGlobal(key storylet.Key, tick uint64) bool {
	at, ok := t.global[key]
	return !ok || tick >= at
}

func (t *Tracker) ReadyFor(key storylet.Key, actor string, tick uint64) bool {
	at, ok := t.perActor[actorKey{key: key, actor: actor}]
	return !ok || tick >= at
}

// Ready is true only when the global cooldown and every listed actor's
// cooldown have elapsed.
func (t *Tracker) Ready(key storylet.Key, actors []string, tick uint64) bool {
	if !t.ReadyGlobal(key, tick) {
		return false
	}
	for _, a := range actors {
		if !t.ReadyFor(key, a, tick) {
			return false
		}
	}
	return true
}

func (t *Tracker) ReadyAt(key storylet.Key) (uint64, bool) {
	at, ok := t.global[key]
	return at, ok
}

// Prune drops entries that are already ready at tick.
func (t *Tracker) Prune(tick uint64) {
	for k, at := range t.global {
		if tick >= at {
			delete(t.global, k)
		}
	}
	for k, at := range t.perActor {
		if tick >= at {
			delete(t.perActor, k)
		}
	}
}

func (t *Tracker) Len() int {
	return len(t.global) + len(t.perActor)
}

// Entries returns a canonical listing: global entries by key, then per-actor
// entries by key and actor.
func (t *Tracker) Entries() []Entry {
	out := make([]Entry, 0, t.Len())
	for k, at := range t.global {
		out = append(out, Entry{Key: k, ReadyAt: at})
	}
	for k, at := range t.perActor {
		out = append(out, Entry{Key: k.key, Actor: k.actor, ReadyAt: at})
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if (a.Actor == "") != (b.Actor == "") {
			return a.Actor == ""
		}
		if a.Key != b.Key {
			return a.Key < b.Key
		}
		return a.Actor < b.Actor
	})
	return out
}

func FromEntries(entries []Entry) *Tracker {
	t := New()
	for _, e := range entries {
		if e.Actor == "" {
			cur, ok := t.global[e.Key]
			t.global[e.Key] = maxReady(cur, ok, e.ReadyAt)
			continue
		}
		k := actorKey{key: e.Key, actor: e.Actor}
		cur, ok := t.perActor[k]
		t.perActor[k] = maxReady(cur, ok, e.ReadyAt)
	}
	return t
}

// LastFired remembers the most recent firing tick per storylet, domain and
// tag.
type LastFired struct {
	storylets map[storylet.Key]uint64
	domains   map[storylet.Domain]uint64
	tags      map[string]uint64
}

type FiredState struct {
	Storylets []KeyTick    `json:"storylets,omitempty"`
	Domains   []DomainTick `json:"domains,omitempty"`
	Tags      []TagTick    `json:"tags,omitempty"`
}

type KeyTick struct {
	Key  storylet.Key `json:"key"`
	Tick uint64       `json:"tick"`
}

type DomainTick struct {
	Domain storylet.Domain `json:"domain"`
	Tick   uint64          `json:"tick"`
}

type TagTick struct {
	Tag  string `json:"tag"`
	Tick uint64 `json:"tick"`
}

func NewLastFired() *LastFired {
	return &LastFired{
		storylets: map[storylet.Key]uint64{},
		domains:   map[storylet.Domain]uint64{},
		tags:      map[string]uint64{},
	}
}

func (l *LastFired) Record(s *storylet.CompiledStorylet, tick uint64) {
	l.storylets[s.Key] = tick
	l.domains[s.Domain] = tick
	for _, tag := range s.Tags {
		l.tags[tag] = tick
	}
}

func (l *LastFired) Storylet(key storylet.Key) (uint64, bool) {
	t, ok := l.storylets[key]
	return t, ok
}

func (l *LastFired) Domain(d storylet.Domain) (uint64, bool) {
	t, ok := l.domains[d]
	return t, ok
}

func (l *LastFired) Tag(tag string) (uint64, bool) {
	t, ok := l.tags[tag]
	return t, ok
}

func within(last uint64, ok bool, tick, window uint64) bool {
	return ok && window > 0 && mathx.TicksSince(tick, last) < window
}

func (l *LastFired) StoryletWithin(key storylet.Key, tick, window uint64) bool {
	last, ok := l.storylets[key]
	return within(last, ok, tick, window)
}

func (l *LastFired) DomainWithin(d storylet.Domain, tick, window uint64) bool {
	last, ok := l.domains[d]
	return within(last, ok, tick, window)
}

func (l *LastFired) TagWithin(tag string, tick, window uint64) bool {
	last, ok := l.tags[tag]
	return within(last, ok, tick, window)
}

func (l *LastFired) Export() FiredState {
	var st FiredState
	for k, t := range l.storylets {
		st.Storylets = append(st.Storylets, KeyTick{Key: k, Tick: t})
	}
	for d, t := range l.domains {
		st.Domains = append(st.Domains, DomainTick{Domain: d, Tick: t})
	}
	for g, t := range l.tags {
		st.Tags = append(st.Tags, TagTick{Tag: g, Tick: t})
	}
	sort.Slice(st.Storylets, func(i, j int) bool { return st.Storylets[i].Key < st.Storylets[j].Key })
	sort.Slice(st.Domains, func(i, j int) bool { return st.Domains[i].Domain < st.Domains[j].Domain })
	sort.Slice(st.Tags, func(i, j int) bool { return st.Tags[i].Tag < st.Tags[j].Tag })
	return st
}

func ImportLastFired(st FiredState) *LastFired {
	l := NewLastFired()
	for _, e := range st.Storylets {
		l.storylets[e.Key] = e.Tick
	}
	for _, e := range st.Domains {
		l.domains[e.Domain] = e.Tick
	}
	for _, e := range st.Tags {
		l.tags[e.Tag] = e.Tick
	}
	return l
}
