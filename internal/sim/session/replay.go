package session

import (
	"fmt"
	"sort"
	"strings"

	"storylet.ai/internal/sim/director"
)

// Divergence is the first step where a replay disagrees with its log.
type Divergence struct {
	Tick  uint64
	Field string
	Want  string
	Got   string
}

func (d *Divergence) Error() string {
	return fmt.Sprintf("tick %d: %s mismatch: log=%s replay=%s", d.Tick, d.Field, d.Want, d.Got)
}

func rolesString(m map[string]string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(m[k])
	}
	return b.String()
}

// Compare reports the first field where got differs from want.
func Compare(want, got director.LogEntry) *Divergence {
	div := func(field, w, g string) *Divergence {
		return &Divergence{Tick: want.Tick, Field: field, Want: w, Got: g}
	}
	switch {
	case want.Tick != got.Tick:
		return div("tick", fmt.Sprint(want.Tick), fmt.Sprint(got.Tick))
	case want.Fired != got.Fired:
		return div("fired", fmt.Sprint(want.Fired), fmt.Sprint(got.Fired))
	case want.StoryletID != got.StoryletID:
		return div("storylet", want.StoryletID, got.StoryletID)
	case rolesString(want.Roles) != rolesString(got.Roles):
		return div("roles", rolesString(want.Roles), rolesString(got.Roles))
	case want.Digest != got.Digest:
		return div("digest", want.Digest, got.Digest)
	}
	return nil
}

// Replay advances s once per logged entry and checks each step against it.
// Entries must continue from s.Tick(). It returns how many steps matched.
func (s *Session) Replay(entries []director.LogEntry) (int, error) {
	for i, want := range entries {
		if next := s.Tick() + 1; want.Tick != next {
			return i, &Divergence{Tick: want.Tick, Field: "sequence", Want: fmt.Sprint(want.Tick), Got: fmt.Sprint(next)}
		}
		t := s.Advance()
		if d := Compare(want, t.Entry); d != nil {
			return i, d
		}
	}
	return len(entries), nil
}
