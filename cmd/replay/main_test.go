package main

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	persistlog "storylet.ai/internal/persistence/log"
	"storylet.ai/internal/persistence/snapshot"
	"storylet.ai/internal/sim/catalogs"
	"storylet.ai/internal/sim/director"
	"storylet.ai/internal/sim/session"
	"storylet.ai/internal/sim/tuning"
	"storylet.ai/internal/sim/worldctx"
)

func configDirForReplayTests(t *testing.T) string {
	t.Helper()
	dir, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, "configs")
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			t.Fatalf("could not locate go.mod from %s", dir)
		}
		dir = parent
	}
}

// recordSession runs ticks steps, logging each and snapshotting at snapAt.
func recordSession(t *testing.T, configs, dir string, ticks int, snapAt uint64) {
	t.Helper()
	cfg, err := tuning.Load(filepath.Join(configs, "tuning.yaml"))
	if err != nil {
		t.Fatalf("tuning: %v", err)
	}
	lib, err := catalogs.Load(filepath.Join(configs, "storylets"))
	if err != nil {
		t.Fatalf("catalogs: %v", err)
	}
	w, err := worldctx.Load(filepath.Join(configs, "worlds", "office_drama.json"))
	if err != nil {
		t.Fatalf("world: %v", err)
	}

	steps := persistlog.NewStepLogger(dir, "rec")
	s := session.New("rec", cfg, lib, w, director.WithStepLogger(steps))
	s.Run(ticks, func(turn session.Turn) {
		if turn.Step.Tick != snapAt {
			return
		}
		snap, err := snapshot.New(s.ID, s.Director.Snapshot(), s.World, lib.Digest())
		if err != nil {
			t.Fatalf("snapshot: %v", err)
		}
		if err := snapshot.WriteSnapshot(snapshot.Path(filepath.Join(dir, "snapshots"), snapAt), snap); err != nil {
			t.Fatalf("write snapshot: %v", err)
		}
	})
	if err := steps.Close(); err != nil {
		t.Fatalf("close steps: %v", err)
	}
}

func TestReplay_ReproducesLog(t *testing.T) {
	configs := configDirForReplayTests(t)
	dir := t.TempDir()
	recordSession(t, configs, dir, 90, 40)

	res, err := replay(replayOptions{SessionDir: dir, ConfigDir: configs}, io.Discard)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if res.FromTick != 40 || res.Checked != 50 {
		t.Fatalf("from=%d checked=%d want 40/50", res.FromTick, res.Checked)
	}

	res, err = replay(replayOptions{SessionDir: dir, ConfigDir: configs, ToTick: 60}, io.Discard)
	if err != nil {
		t.Fatalf("replay to 60: %v", err)
	}
	if res.Checked != 20 {
		t.Fatalf("checked=%d want 20", res.Checked)
	}
}

func TestReplay_ReportsDivergence(t *testing.T) {
	configs := configDirForReplayTests(t)
	dir := t.TempDir()
	recordSession(t, configs, dir, 60, 20)

	entries, err := persistlog.ReadSteps(dir, 0)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	files, err := persistlog.Files(filepath.Join(dir, "steps"), "steps")
	if err != nil || len(files) == 0 {
		t.Fatalf("files=%v err=%v", files, err)
	}
	for _, f := range files {
		if err := os.Remove(f); err != nil {
			t.Fatalf("remove: %v", err)
		}
	}

	// Rewrite the log with one digest altered past the snapshot.
	entries[29].Digest = "tampered"
	steps := persistlog.NewStepLogger(dir, "rec")
	for _, e := range entries {
		if err := steps.WriteStep(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := steps.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	res, err := replay(replayOptions{SessionDir: dir, ConfigDir: configs}, io.Discard)
	var div *session.Divergence
	if !errors.As(err, &div) {
		t.Fatalf("err=%v want divergence", err)
	}
	if div.Tick != 30 || div.Field != "digest" {
		t.Fatalf("divergence=%+v want digest at tick 30", div)
	}
	if res.Checked != 9 {
		t.Fatalf("checked=%d want 9", res.Checked)
	}
}

func TestReplay_NoSnapshot(t *testing.T) {
	if _, err := replay(replayOptions{SessionDir: t.TempDir(), ConfigDir: configDirForReplayTests(t)}, io.Discard); err == nil {
		t.Fatalf("expected error")
	}
}
