package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"storylet.ai/internal/config"
)

func main() {
	env, err := config.LoadDirector()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	var (
		configDir     = flag.String("configs", env.ConfigDir, "config directory (tuning.yaml, storylets/, worlds/)")
		dataDir       = flag.String("data", env.DataDir, "runtime data directory")
		worldPath     = flag.String("world", env.World, "world fixture, relative to -configs unless absolute")
		sessionID     = flag.String("session", env.SessionID, "session id (empty starts a new session)")
		ticks         = flag.Int("ticks", env.Ticks, "ticks to run")
		snapshotEvery = flag.Uint64("snapshot_every", env.SnapshotEvery, "write a snapshot every N ticks (0 disables)")
		resume        = flag.Bool("resume", env.Resume, "resume -session from its latest snapshot and step log")
		index         = flag.Bool("index", env.Index, "maintain the sqlite read-model index")
		observerAddr  = flag.String("observer", env.ObserverAddr, "observer http listen address (empty to disable)")
		stepDelayMS   = flag.Int("step_delay_ms", env.StepDelayMS, "sleep between ticks")
		history       = flag.String("history", "", "print the indexed history of an actor in -session and exit")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[director] ", log.LstdFlags|log.Lmicroseconds)

	opts := runOptions{
		ConfigDir:     *configDir,
		DataDir:       *dataDir,
		World:         *worldPath,
		SessionID:     *sessionID,
		Ticks:         *ticks,
		SnapshotEvery: *snapshotEvery,
		Resume:        *resume,
		Index:         *index,
		ObserverAddr:  *observerAddr,
		StepDelayMS:   *stepDelayMS,
		Tracing:       env.Tracing,
	}

	ctx, cancel := signalContext()
	defer cancel()

	if *history != "" {
		if err := printHistory(ctx, os.Stdout, opts, *history); err != nil {
			logger.Fatalf("history: %v", err)
		}
		return
	}
	if err := run(ctx, opts, logger); err != nil {
		logger.Fatalf("%v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
