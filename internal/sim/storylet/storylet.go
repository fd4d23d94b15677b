// Package storylet defines the compiled, read-only shape of narrative fragments
// and the Source interface the director consumes them through.
//
// A Key is a dense index into one compiled library. Keys are cheap to copy and
// are what every short-lived structure (candidate sets, scores, queue entries)
// holds; the storylet itself stays owned by the Source.
package storylet

import (
	"math"
	"sort"
)

type Key uint32

// TagForced marks a storylet that ignores the pacing gate.
const TagForced = "forced"

type Domain uint8

const (
	DomainNone Domain = iota
	DomainDaily
	DomainRomance
	DomainFamily
	DomainFriendship
	DomainCareer
	DomainConflict
	DomainHealth
	DomainWealth
	DomainEducation
	DomainLegacy
)

var domainNames = [...]string{
	DomainNone:       "none",
	DomainDaily:      "daily",
	DomainRomance:    "romance",
	DomainFamily:     "family",
	DomainFriendship: "friendship",
	DomainCareer:     "career",
	DomainConflict:   "conflict",
	DomainHealth:     "health",
	DomainWealth:     "wealth",
	DomainEducation:  "education",
	DomainLegacy:     "legacy",
}

func (d Domain) String() string {
	if int(d) < len(domainNames) {
		return domainNames[d]
	}
	return "unknown"
}

func ParseDomain(s string) (Domain, bool) {
	for i, n := range domainNames {
		if n == s {
			return Domain(i), true
		}
	}
	return DomainNone, false
}

type LifeStage uint8

const (
	LifeStageAny LifeStage = iota
	LifeStageChild
	LifeStageTeen
	LifeStageYoungAdult
	LifeStageAdult
	LifeStageElder
)

// LifeStages lists the concrete stages (LifeStageAny excluded).
var LifeStages = []LifeStage{LifeStageChild, LifeStageTeen, LifeStageYoungAdult, LifeStageAdult, LifeStageElder}

var lifeStageNames = [...]string{
	LifeStageAny:        "any",
	LifeStageChild:      "child",
	LifeStageTeen:       "teen",
	LifeStageYoungAdult: "young_adult",
	LifeStageAdult:      "adult",
	LifeStageElder:      "elder",
}

func (s LifeStage) String() string {
	if int(s) < len(lifeStageNames) {
		return lifeStageNames[s]
	}
	return "unknown"
}

func ParseLifeStage(s string) (LifeStage, bool) {
	for i, n := range lifeStageNames {
		if n == s {
			return LifeStage(i), true
		}
	}
	return LifeStageAny, false
}

// Axis is one component of a relationship vector.
type Axis uint8

const (
	AxisAffection Axis = iota
	AxisTrust
	AxisAttraction
	AxisFamiliarity
	AxisResentment
)

var axisNames = [...]string{
	AxisAffection:   "affection",
	AxisTrust:       "trust",
	AxisAttraction:  "attraction",
	AxisFamiliarity: "familiarity",
	AxisResentment:  "resentment",
}

func (a Axis) String() string {
	if int(a) < len(axisNames) {
		return axisNames[a]
	}
	return "unknown"
}

func ParseAxis(s string) (Axis, bool) {
	for i, n := range axisNames {
		if n == s {
			return Axis(i), true
		}
	}
	return AxisAffection, false
}

// RolePlayer names the protagonist in prerequisites and outcomes.
const RolePlayer = "player"

// ProtagonistRoles are the role names that always resolve to the protagonist.
var ProtagonistRoles = []string{RolePlayer, "self", "protagonist"}

func IsProtagonist(role string) bool {
	for _, r := range ProtagonistRoles {
		if r == role {
			return true
		}
	}
	return false
}

type RoleSlot struct {
	Name     string
	Required bool
}

// Range is an inclusive [Min,Max] bound. Unset ends are infinite.
type Range struct {
	Min float32
	Max float32
}

func AnyRange() Range {
	return Range{Min: float32(math.Inf(-1)), Max: float32(math.Inf(1))}
}

func (r Range) Contains(v float32) bool {
	return v >= r.Min && v <= r.Max
}

type StatReq struct {
	Name  string
	Range Range
}

type RelationshipReq struct {
	From  string
	To    string
	Axis  Axis
	Range Range
}

// MemoryReq matches a protagonist memory carrying Tag. WithinTicks == 0 means
// any age.
type MemoryReq struct {
	Tag         string
	WithinTicks uint64
}

type FlagReq struct {
	Flag  string
	Value bool
}

type Prerequisites struct {
	Stats          []StatReq
	Traits         []StatReq
	Relationships  []RelationshipReq
	MemoryRequired []MemoryReq
	MemoryExcluded []MemoryReq
	WorldFlags     []FlagReq
	GlobalFlags    []FlagReq
	LifeStages     []LifeStage

	// Legacy / late-game.
	RequiresHeir  bool
	MinGeneration int
	MinTick       uint64
}

type CooldownSpec struct {
	GlobalTicks   uint64
	PerActorTicks uint64
}

type RelationshipDelta struct {
	Role  string
	Axis  Axis
	Delta float32
}

type MemorySpec struct {
	Tag       string
	Intensity float32
	Roles     []string
}

type FollowUp struct {
	Key        Key
	DelayTicks uint64
	Priority   int
	Forced     bool
}

type Outcome struct {
	StatDeltas         map[string]float32
	RelationshipDeltas []RelationshipDelta
	MoodDelta          float32
	SetFlags           map[string]bool
	Memories           []MemorySpec
	FollowUps          []FollowUp
}

// CompiledStorylet is immutable once a library is built. Callers must not
// modify the slices or maps it exposes.
type CompiledStorylet struct {
	Key       Key
	ID        string
	Name      string
	Tags      []string
	Domain    Domain
	LifeStage LifeStage
	Heat      float32
	Weight    float32
	Roles     []RoleSlot
	Prereqs   Prerequisites
	Cooldown  CooldownSpec
	Outcome   Outcome
}

// HasTag relies on Tags being sorted.
func (s *CompiledStorylet) HasTag(tag string) bool {
	i := sort.SearchStrings(s.Tags, tag)
	return i < len(s.Tags) && s.Tags[i] == tag
}

func (s *CompiledStorylet) IsForced() bool {
	return s.HasTag(TagForced)
}

// Source is the read-only library the director runs against. Implementations
// must be immutable for their lifetime and return key lists in ascending order.
type Source interface {
	Storylet(key Key) (*CompiledStorylet, bool)
	CandidatesForLifeStage(stage LifeStage) []Key
	ForDomain(d Domain) []Key
	ForTag(tag string) []Key
	KeyByID(id string) (Key, bool)
	Len() int
	Digest() string
}
