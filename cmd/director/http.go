package main

import (
	"fmt"
	"net/http"

	"storylet.ai/internal/persistence/indexdb"
	"storylet.ai/internal/transport/observer"
)

func newMux(status observer.StatusFunc, idx *indexdb.SQLiteIndex, obs *observer.Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(status, idx, obs))
	mux.HandleFunc("/observer/bootstrap", obs.BootstrapHandler())
	mux.HandleFunc("/observer/ws", obs.WSHandler())
	return mux
}

// metricsHandler writes a minimal Prometheus exposition.
func metricsHandler(status observer.StatusFunc, idx *indexdb.SQLiteIndex, obs *observer.Server) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		st := status()
		sid := st.SessionID

		fmt.Fprintf(rw, "# HELP storylet_director_tick Current director tick.\n")
		fmt.Fprintf(rw, "# TYPE storylet_director_tick gauge\n")
		fmt.Fprintf(rw, "storylet_director_tick{session=%q} %d\n", sid, st.Tick)

		fmt.Fprintf(rw, "# HELP storylet_director_heat Narrative heat (0..1).\n")
		fmt.Fprintf(rw, "# TYPE storylet_director_heat gauge\n")
		fmt.Fprintf(rw, "storylet_director_heat{session=%q,phase=%q} %.6f\n", sid, st.Phase, st.Heat)

		fmt.Fprintf(rw, "# HELP storylet_director_queue_len Pending scheduled events.\n")
		fmt.Fprintf(rw, "# TYPE storylet_director_queue_len gauge\n")
		fmt.Fprintf(rw, "storylet_director_queue_len{session=%q} %d\n", sid, st.QueueLen)

		fmt.Fprintf(rw, "# HELP storylet_director_arcs Open pressures and milestones.\n")
		fmt.Fprintf(rw, "# TYPE storylet_director_arcs gauge\n")
		fmt.Fprintf(rw, "storylet_director_arcs{session=%q,kind=%q} %d\n", sid, "pressure", len(st.Pressures))
		fmt.Fprintf(rw, "storylet_director_arcs{session=%q,kind=%q} %d\n", sid, "milestone", len(st.Milestones))

		if obs != nil {
			fmt.Fprintf(rw, "# HELP storylet_observer_subscribers Connected observer clients.\n")
			fmt.Fprintf(rw, "# TYPE storylet_observer_subscribers gauge\n")
			fmt.Fprintf(rw, "storylet_observer_subscribers %d\n", obs.Subscribers())

			fmt.Fprintf(rw, "# HELP storylet_observer_dropped_total Messages dropped for slow observers.\n")
			fmt.Fprintf(rw, "# TYPE storylet_observer_dropped_total counter\n")
			fmt.Fprintf(rw, "storylet_observer_dropped_total %d\n", obs.Dropped())
		}

		if idx != nil {
			s := idx.Stats()
			fmt.Fprintf(rw, "# HELP storylet_index_queue_depth Index writer backlog.\n")
			fmt.Fprintf(rw, "# TYPE storylet_index_queue_depth gauge\n")
			fmt.Fprintf(rw, "storylet_index_queue_depth %d\n", s.QueueDepth)

			fmt.Fprintf(rw, "# HELP storylet_index_dropped_total Index writes dropped because the queue was full.\n")
			fmt.Fprintf(rw, "# TYPE storylet_index_dropped_total counter\n")
			fmt.Fprintf(rw, "storylet_index_dropped_total{kind=%q} %d\n", "step", s.DropStepTotal)
			fmt.Fprintf(rw, "storylet_index_dropped_total{kind=%q} %d\n", "arc", s.DropArcTotal)
			fmt.Fprintf(rw, "storylet_index_dropped_total{kind=%q} %d\n", "snapshot", s.DropSnapshotTotal)
		}
	}
}
