// Package observerproto defines the read-only observer protocol: a bootstrap
// JSON endpoint and a websocket stream of step and arc messages.
package observerproto

import "storylet.ai/internal/sim/director"

// Version is the observer protocol version.
const Version = "1.0"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeStep      = "STEP"
	TypeArc       = "ARC"
)

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// FiredOnly skips steps where nothing fired.
	FiredOnly bool `json:"fired_only,omitempty"`
	// Arcs opts in to pressure and milestone transitions.
	Arcs bool `json:"arcs,omitempty"`
}

// HTTP response for GET /observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	Tick            uint64 `json:"tick"`

	Heat     float32 `json:"heat"`
	Phase    string  `json:"phase"`
	QueueLen int     `json:"queue_len"`

	ConfigVersion string `json:"config_version"`
	LibraryDigest string `json:"library_digest"`
	Storylets     int    `json:"storylets"`

	Pressures  []string `json:"pressures,omitempty"`
	Milestones []string `json:"milestones,omitempty"`
}

// Server -> Client. One per director step.
type StepMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Entry           director.LogEntry `json:"entry"`
}

// Server -> Client. One per arc transition, when subscribed.
type ArcMsg struct {
	Type            string            `json:"type"`
	ProtocolVersion string            `json:"protocol_version"`
	Event           director.ArcEvent `json:"event"`
}
