package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	persistlog "storylet.ai/internal/persistence/log"
	"storylet.ai/internal/persistence/snapshot"
	"storylet.ai/internal/sim/catalogs"
	"storylet.ai/internal/sim/session"
	"storylet.ai/internal/sim/tuning"
)

func main() {
	var (
		sessionDir = flag.String("session_dir", "", "session directory (data/sessions/<id>) holding steps/ and snapshots/")
		snapPath   = flag.String("snapshot", "", "snapshot to start from (default: latest in <session_dir>/snapshots)")
		configDir  = flag.String("configs", "./configs", "config directory")
		toTick     = flag.Uint64("to_tick", 0, "stop after tick (inclusive, optional)")
	)
	flag.Parse()

	if *sessionDir == "" {
		fmt.Fprintln(os.Stderr, "missing -session_dir")
		os.Exit(2)
	}
	res, err := replay(replayOptions{
		SessionDir: *sessionDir,
		Snapshot:   *snapPath,
		ConfigDir:  *configDir,
		ToTick:     *toTick,
	}, os.Stdout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "replay:", err)
		os.Exit(1)
	}
	fmt.Printf("replay ok: checked=%d ticks (from snapshot tick=%d)\n", res.Checked, res.FromTick)
}

type replayOptions struct {
	SessionDir string
	Snapshot   string
	ConfigDir  string
	ToTick     uint64
}

type replayResult struct {
	FromTick uint64
	Checked  int
}

// replay restores a snapshot and re-runs the logged steps after it,
// failing at the first step that does not reproduce.
func replay(o replayOptions, out io.Writer) (replayResult, error) {
	var res replayResult

	path := o.Snapshot
	if path == "" {
		path = snapshot.Latest(filepath.Join(o.SessionDir, "snapshots"))
		if path == "" {
			return res, errors.New("no snapshot found")
		}
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		return res, fmt.Errorf("read snapshot: %w", err)
	}
	h := snap.Header
	res.FromTick = h.Tick
	fmt.Fprintf(out, "snapshot v%d session=%s tick=%d queue=%d pressures=%d milestones=%d actors=%d\n",
		h.Version, h.SessionID, h.Tick, len(snap.Director.Queue), len(snap.Director.Pressures),
		len(snap.Director.Milestones), len(snap.World.Actors))

	cfg, err := tuning.Load(filepath.Join(o.ConfigDir, "tuning.yaml"))
	if err != nil {
		return res, fmt.Errorf("load tuning: %w", err)
	}
	lib, err := catalogs.Load(filepath.Join(o.ConfigDir, "storylets"))
	if err != nil {
		return res, fmt.Errorf("load storylets: %w", err)
	}
	if err := snap.CheckCompatible(cfg.Version(), lib.Digest()); err != nil {
		return res, err
	}

	entries, err := persistlog.ReadSteps(o.SessionDir, h.Tick+1)
	if err != nil {
		return res, fmt.Errorf("read steps: %w", err)
	}
	if o.ToTick != 0 {
		n := 0
		for n < len(entries) && entries[n].Tick <= o.ToTick {
			n++
		}
		entries = entries[:n]
	}
	if len(entries) == 0 {
		return res, errors.New("no logged steps after snapshot")
	}

	w := snap.World
	s := session.Resume(h.SessionID, snap.Director, cfg, lib, &w)
	n, err := s.Replay(entries)
	res.Checked = n
	if err != nil {
		return res, err
	}
	return res, nil
}
