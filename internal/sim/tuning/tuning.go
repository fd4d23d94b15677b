package tuning

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrInvalid = errors.New("invalid tuning")

// Config is the immutable director configuration. Load once, share by value.
type Config struct {
	Pacing    Pacing    `yaml:"pacing"`
	Scoring   Scoring   `yaml:"scoring"`
	Variety   Variety   `yaml:"variety"`
	Queue     Queue     `yaml:"queue"`
	Pressure  Pressure  `yaml:"pressure"`
	Milestone Milestone `yaml:"milestone"`
	Casting   Casting   `yaml:"casting"`
}

type Pacing struct {
	MinHeat          float32 `yaml:"min_heat"`
	MaxHeat          float32 `yaml:"max_heat"`
	InitialHeat      float32 `yaml:"initial_heat"`
	DecayPerTick     float32 `yaml:"decay_per_tick"`
	GainFactor       float32 `yaml:"gain_factor"`
	MinPhaseDuration uint64  `yaml:"min_phase_duration"`

	Thresholds Thresholds `yaml:"thresholds"`
}

// Thresholds drive the phase cycle. "enter" values are compared with >=,
// "exit" values with <.
type Thresholds struct {
	RisingEnter        float32 `yaml:"rising_enter"`
	RisingExit         float32 `yaml:"rising_exit"`
	PeakEnter          float32 `yaml:"peak_enter"`
	PeakExit           float32 `yaml:"peak_exit"`
	FalloutReescalate  float32 `yaml:"fallout_reescalate"`
	RecoveryEnter      float32 `yaml:"recovery_enter"`
	RecoveryExit       float32 `yaml:"recovery_exit"`
	RecoveryReescalate float32 `yaml:"recovery_reescalate"`
}

type Scoring struct {
	BaseWeightMultiplier     float64 `yaml:"base_weight_multiplier"`
	RecencyPenalty           float64 `yaml:"recency_penalty"`
	RecencyWindowTicks       uint64  `yaml:"recency_window_ticks"`
	DomainRecencyPenalty     float64 `yaml:"domain_recency_penalty"`
	DomainRecencyTicks       uint64  `yaml:"domain_recency_ticks"`
	PressureBonusPerSeverity float64 `yaml:"pressure_bonus_per_severity"`
	PressureBonusCap         float64 `yaml:"pressure_bonus_cap"`
	MilestoneBonusEach       float64 `yaml:"milestone_bonus_each"`
	MilestoneBonusCap        float64 `yaml:"milestone_bonus_cap"`
	ContextBonusPerTrait     float64 `yaml:"context_bonus_per_trait"`
	ContextBonusCap          float64 `yaml:"context_bonus_cap"`
	MinViableScore           float64 `yaml:"min_viable_score"`
}

// Variety windows suppress repeats independently of cooldowns.
type Variety struct {
	StoryletWindowTicks uint64 `yaml:"storylet_window_ticks"`
	DomainWindowTicks   uint64 `yaml:"domain_window_ticks"`
	TagWindowTicks      uint64 `yaml:"tag_window_ticks"`
}

type Queue struct {
	Capacity        int    `yaml:"capacity"`
	StaleAfterTicks uint64 `yaml:"stale_after_ticks"`
}

type Pressure struct {
	GrowthPerTick   float32 `yaml:"growth_per_tick"`
	ReliefThreshold float32 `yaml:"relief_threshold"`
	ReliefPriority  int     `yaml:"relief_priority"`
}

type Milestone struct {
	PayoffPriority int  `yaml:"payoff_priority"`
	PayoffForced   bool `yaml:"payoff_forced"`
}

type Casting struct {
	MoodWeight          float64 `yaml:"mood_weight"`
	MemoryAffinityScale float64 `yaml:"memory_affinity_scale"`
	MemoryRecencyTicks  uint64  `yaml:"memory_recency_ticks"`
	MemoryRecencyBoost  float64 `yaml:"memory_recency_boost"`
	MinCandidateScore   float64 `yaml:"min_candidate_score"`
	TieEpsilon          float64 `yaml:"tie_epsilon"`

	// MemoryAffinity maps a memory tag to per-archetype weights
	// (rival, friend, romance, mentor, generic). Nil uses the built-in table.
	MemoryAffinity map[string]map[string]float64 `yaml:"memory_affinity,omitempty"`
}

func Defaults() Config {
	return Config{
		Pacing: Pacing{
			MinHeat:          0,
			MaxHeat:          100,
			InitialHeat:      10,
			DecayPerTick:     0.5,
			GainFactor:       3,
			MinPhaseDuration: 3,
			Thresholds: Thresholds{
				RisingEnter:        30,
				RisingExit:         20,
				PeakEnter:          70,
				PeakExit:           55,
				FalloutReescalate:  70,
				RecoveryEnter:      35,
				RecoveryExit:       15,
				RecoveryReescalate: 45,
			},
		},
		Scoring: Scoring{
			BaseWeightMultiplier:     1,
			RecencyPenalty:           2,
			RecencyWindowTicks:       20,
			DomainRecencyPenalty:     0.5,
			DomainRecencyTicks:       3,
			PressureBonusPerSeverity: 0.5,
			PressureBonusCap:         1,
			MilestoneBonusEach:       0.25,
			MilestoneBonusCap:        1,
			ContextBonusPerTrait:     0.1,
			ContextBonusCap:          0.5,
			MinViableScore:           0.05,
		},
		Variety: Variety{
			StoryletWindowTicks: 10,
			DomainWindowTicks:   2,
			TagWindowTicks:      3,
		},
		Queue: Queue{
			Capacity:        32,
			StaleAfterTicks: 30,
		},
		Pressure: Pressure{
			GrowthPerTick:   0.01,
			ReliefThreshold: 0.8,
			ReliefPriority:  5,
		},
		Milestone: Milestone{
			PayoffPriority: 10,
			PayoffForced:   true,
		},
		Casting: Casting{
			MoodWeight:          0.25,
			MemoryAffinityScale: 1,
			MemoryRecencyTicks:  50,
			MemoryRecencyBoost:  0.5,
			MinCandidateScore:   -100,
			TieEpsilon:          1e-6,
		},
	}
}

// Load reads tuning.yaml on top of Defaults, so a file only needs to name the
// values it changes.
func Load(path string) (Config, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (c Config) Validate() error {
	p := c.Pacing
	if p.MaxHeat <= p.MinHeat {
		return fmt.Errorf("%w: max_heat %v must exceed min_heat %v", ErrInvalid, p.MaxHeat, p.MinHeat)
	}
	if p.InitialHeat < p.MinHeat || p.InitialHeat > p.MaxHeat {
		return fmt.Errorf("%w: initial_heat %v outside [%v,%v]", ErrInvalid, p.InitialHeat, p.MinHeat, p.MaxHeat)
	}
	if p.DecayPerTick < 0 || p.GainFactor < 0 {
		return fmt.Errorf("%w: decay_per_tick and gain_factor must be >= 0", ErrInvalid)
	}
	if p.MinPhaseDuration < 1 {
		return fmt.Errorf("%w: min_phase_duration must be >= 1", ErrInvalid)
	}
	th := p.Thresholds
	if th.RisingExit > th.RisingEnter || th.PeakExit > th.PeakEnter || th.RecoveryExit > th.RecoveryReescalate {
		return fmt.Errorf("%w: exit thresholds must not exceed their enter thresholds", ErrInvalid)
	}
	if c.Queue.Capacity <= 0 {
		return fmt.Errorf("%w: queue.capacity must be > 0", ErrInvalid)
	}
	if c.Scoring.BaseWeightMultiplier < 0 {
		return fmt.Errorf("%w: base_weight_multiplier must be >= 0", ErrInvalid)
	}
	if c.Pressure.ReliefThreshold < 0 || c.Pressure.ReliefThreshold > 1 {
		return fmt.Errorf("%w: relief_threshold must be in [0,1]", ErrInvalid)
	}
	if c.Casting.TieEpsilon < 0 {
		return fmt.Errorf("%w: tie_epsilon must be >= 0", ErrInvalid)
	}
	return nil
}

// Version is a short digest of the effective configuration. Snapshots carry it
// so a resumed session can tell it is running under different tuning.
func (c Config) Version() string {
	b, err := yaml.Marshal(c)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}
