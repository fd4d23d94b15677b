// Package config reads host settings from the environment. Command-line flags
// default to these values, so either source can drive a run.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"

	"storylet.ai/internal/observability"
)

// Director configures cmd/director.
type Director struct {
	ConfigDir string `env:"CONFIG_DIR" envDefault:"./configs"`
	DataDir   string `env:"DATA_DIR" envDefault:"./data"`
	World     string `env:"WORLD" envDefault:"worlds/office_drama.json"`
	SessionID string `env:"SESSION_ID"`

	Ticks         int    `env:"TICKS" envDefault:"500"`
	SnapshotEvery uint64 `env:"SNAPSHOT_EVERY" envDefault:"100"`
	Resume        bool   `env:"RESUME"`

	Index        bool   `env:"INDEX" envDefault:"true"`
	ObserverAddr string `env:"OBSERVER_ADDR"`
	// StepDelayMS paces the loop for live observers; 0 runs flat out.
	StepDelayMS int `env:"STEP_DELAY_MS"`

	Tracing observability.Config `envPrefix:"OTEL_"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadDirector parses Director settings under the STORYLET_ prefix.
func LoadDirector() (Director, error) {
	var d Director
	if err := env.ParseWithOptions(&d, env.Options{Prefix: "STORYLET_"}); err != nil {
		return d, fmt.Errorf("parse env: %w", err)
	}
	if d.Ticks < 0 {
		return d, fmt.Errorf("STORYLET_TICKS must be >= 0, got %d", d.Ticks)
	}
	return d, nil
}
