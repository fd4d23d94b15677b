// Package directortest drives complete sessions against the shipped configs.
// Tests here use only exported APIs, the way a host would.
package directortest

import (
	"path/filepath"
	"testing"

	"storylet.ai/internal/sim/catalogs"
	"storylet.ai/internal/sim/director"
	"storylet.ai/internal/sim/session"
	"storylet.ai/internal/sim/storylet"
	"storylet.ai/internal/sim/tuning"
	"storylet.ai/internal/sim/worldctx"
)

// ConfigDir is the repository configs/ directory relative to this package.
const ConfigDir = "../../../configs"

// Fixture is a loaded tuning file, storylet library and world fixture.
type Fixture struct {
	Cfg       tuning.Config
	Lib       *catalogs.Library
	WorldPath string
}

func Load(t testing.TB) Fixture {
	t.Helper()
	cfg, err := tuning.Load(filepath.Join(ConfigDir, "tuning.yaml"))
	if err != nil {
		t.Fatalf("tuning: %v", err)
	}
	lib, err := catalogs.Load(filepath.Join(ConfigDir, "storylets"))
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	return Fixture{Cfg: cfg, Lib: lib, WorldPath: filepath.Join(ConfigDir, "worlds", "office_drama.json")}
}

// World loads a fresh copy of the world fixture.
func (f Fixture) World(t testing.TB) *worldctx.Context {
	t.Helper()
	w, err := worldctx.Load(f.WorldPath)
	if err != nil {
		t.Fatalf("world: %v", err)
	}
	return w
}

func (f Fixture) Key(t testing.TB, id string) storylet.Key {
	t.Helper()
	k, ok := f.Lib.KeyByID(id)
	if !ok {
		t.Fatalf("unknown storylet %q", id)
	}
	return k
}

func (f Fixture) NewSession(t testing.TB, id string, opts ...director.Option) *session.Session {
	t.Helper()
	return session.New(id, f.Cfg, f.Lib, f.World(t), opts...)
}

// Run advances s n ticks and returns every turn.
func Run(s *session.Session, n int) []session.Turn {
	out := make([]session.Turn, 0, n)
	s.Run(n, func(t session.Turn) { out = append(out, t) })
	return out
}

// Recorder is an in-memory director.StepLogger.
type Recorder struct {
	Entries []director.LogEntry
}

func (r *Recorder) WriteStep(e director.LogEntry) error {
	r.Entries = append(r.Entries, e)
	return nil
}
