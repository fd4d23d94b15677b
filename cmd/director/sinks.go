package main

import (
	"log"
	"sync"

	"storylet.ai/internal/persistence/indexdb"
	"storylet.ai/internal/persistence/snapshot"
	"storylet.ai/internal/sim/director"
)

type arcWriter interface {
	WriteArc(director.ArcEvent) error
}

// stepSinks fans a step out to every sink, stamping the session id. Entries
// at or below skipThrough were already logged by an earlier run.
type stepSinks struct {
	session     string
	skipThrough uint64
	sinks       []director.StepLogger
}

func (m *stepSinks) add(l director.StepLogger) {
	m.sinks = append(m.sinks, l)
}

func (m *stepSinks) WriteStep(e director.LogEntry) error {
	if e.Tick <= m.skipThrough {
		return nil
	}
	e.Session = m.session
	var first error
	for _, l := range m.sinks {
		if err := l.WriteStep(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type arcSinks struct {
	session string
	sinks   []arcWriter
}

func (m *arcSinks) add(w arcWriter) {
	m.sinks = append(m.sinks, w)
}

func (m *arcSinks) WriteArc(e director.ArcEvent) error {
	e.Session = m.session
	var first error
	for _, w := range m.sinks {
		if err := w.WriteArc(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// snapshotWriter persists snapshots off the step loop, in order.
type snapshotWriter struct {
	dir    string
	idx    *indexdb.SQLiteIndex
	logger *log.Logger

	ch chan snapshot.SnapshotV1
	wg sync.WaitGroup

	mu      sync.Mutex
	written []string
}

func newSnapshotWriter(dir string, idx *indexdb.SQLiteIndex, logger *log.Logger) *snapshotWriter {
	w := &snapshotWriter{dir: dir, idx: idx, logger: logger, ch: make(chan snapshot.SnapshotV1, 2)}
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for snap := range w.ch {
			w.write(snap)
		}
	}()
	return w
}

func (w *snapshotWriter) write(snap snapshot.SnapshotV1) {
	path := snapshot.Path(w.dir, snap.Header.Tick)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		w.logger.Printf("snapshot write: %v", err)
		return
	}
	w.idx.RecordSnapshot(path, snap)
	w.mu.Lock()
	w.written = append(w.written, path)
	w.mu.Unlock()
}

func (w *snapshotWriter) enqueue(snap snapshot.SnapshotV1) {
	w.ch <- snap
}

// close waits for pending writes and returns the paths written.
func (w *snapshotWriter) close() []string {
	close(w.ch)
	w.wg.Wait()
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.written...)
}
