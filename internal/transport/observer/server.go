// Package observer streams a running session to read-only websocket clients.
// The host feeds it through WriteStep and WriteArc; slow clients lose
// messages rather than stalling the director.
package observer

import (
	"context"
	"encoding/json"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"storylet.ai/internal/observerproto"
	"storylet.ai/internal/sim/director"
)

// StatusFunc reports the session state for the bootstrap endpoint. The host
// is responsible for synchronising it with the director.
type StatusFunc func() observerproto.BootstrapResponse

type subscriber struct {
	out       chan []byte
	firedOnly atomic.Bool
	arcs      atomic.Bool
}

func (sub *subscriber) apply(msg observerproto.SubscribeMsg) {
	sub.firedOnly.Store(msg.FiredOnly)
	sub.arcs.Store(msg.Arcs)
}

type Server struct {
	status StatusFunc
	log    *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64

	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	dropped atomic.Uint64
}

func NewServer(status StatusFunc, logger *log.Logger) *Server {
	return &Server{
		status: status,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		subs: map[uint64]*subscriber{},
	}
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

// Subscribers is the number of connected observers.
func (s *Server) Subscribers() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subs)
}

// Dropped counts messages discarded for slow observers.
func (s *Server) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Server) broadcast(b []byte, want func(*subscriber) bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.subs {
		if !want(sub) {
			continue
		}
		select {
		case sub.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

// WriteStep fans a step entry out to every subscriber. It satisfies
// director.StepLogger.
func (s *Server) WriteStep(e director.LogEntry) error {
	if s.Subscribers() == 0 {
		return nil
	}
	b, err := json.Marshal(observerproto.StepMsg{Type: observerproto.TypeStep, ProtocolVersion: observerproto.Version, Entry: e})
	if err != nil {
		return err
	}
	s.broadcast(b, func(sub *subscriber) bool { return e.Fired || !sub.firedOnly.Load() })
	return nil
}

func (s *Server) WriteArc(e director.ArcEvent) error {
	if s.Subscribers() == 0 {
		return nil
	}
	b, err := json.Marshal(observerproto.ArcMsg{Type: observerproto.TypeArc, ProtocolVersion: observerproto.Version, Event: e})
	if err != nil {
		return err
	}
	s.broadcast(b, func(sub *subscriber) bool { return sub.arcs.Load() })
	return nil
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		var resp observerproto.BootstrapResponse
		if s.status != nil {
			resp = s.status()
		}
		resp.ProtocolVersion = observerproto.Version

		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func readSubscribe(conn *websocket.Conn, timeout time.Duration) (observerproto.SubscribeMsg, bool, error) {
	var sub observerproto.SubscribeMsg
	_ = conn.SetReadDeadline(time.Now().Add(timeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return sub, false, err
	}
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false, nil
	}
	return sub, sub.Type == observerproto.TypeSubscribe && sub.ProtocolVersion == observerproto.Version, nil
}

func closeWith(conn *websocket.Conn, code int, text string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(time.Second))
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		first, ok, err := readSubscribe(conn, 5*time.Second)
		if err != nil {
			return
		}
		if !ok {
			closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}

		id := s.nextID.Add(1)
		sub := &subscriber{out: make(chan []byte, 1024)}
		sub.apply(first)
		s.mu.Lock()
		s.subs[id] = sub
		s.mu.Unlock()
		s.logf("observer O%d joined from %s", id, r.RemoteAddr)
		defer func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
			s.logf("observer O%d left", id)
		}()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-sub.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			msg, ok, err := readSubscribe(conn, 60*time.Second)
			if err != nil {
				break
			}
			if ok {
				sub.apply(msg)
			}
		}

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
