// Package diag carries the diagnostic lines the colony core emits instead of
// failing: panics, queue self-heals, corrupt state fallbacks and the like.
package diag

import (
	"fmt"
	"log"
	"strings"
)

type Kind string

const (
	KindPanic        Kind = "PANIC"
	KindSelfHeal     Kind = "SELF_HEAL"
	KindWorldMiss    Kind = "WORLD_MISS"
	KindCorruptState Kind = "CORRUPT_STATE"
	KindCollected    Kind = "COLLECTED"
	KindAdopted      Kind = "ADOPTED"
	KindRosterEmpty  Kind = "ROSTER_EMPTY"
	KindProduced     Kind = "PRODUCED"
	KindProduceFail  Kind = "PRODUCE_REJECTED"
	KindMismatch     Kind = "ROLE_MISMATCH"
)

type Entry struct {
	Tick    uint64 `json:"tick"`
	Kind    Kind   `json:"kind"`
	Zone    string `json:"zone,omitempty"`
	Agent   string `json:"agent,omitempty"`
	Role    string `json:"role,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

func (e Entry) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "tick=%d %s", e.Tick, e.Kind)
	if e.Zone != "" {
		fmt.Fprintf(&b, " zone=%s", e.Zone)
	}
	if e.Role != "" {
		fmt.Fprintf(&b, " role=%s", e.Role)
	}
	if e.Agent != "" {
		fmt.Fprintf(&b, " agent=%s", e.Agent)
	}
	if e.Code != "" {
		fmt.Fprintf(&b, " code=%s", e.Code)
	}
	if e.Message != "" {
		fmt.Fprintf(&b, " %s", e.Message)
	}
	return b.String()
}

// Sink receives diagnostics. Implementations must not block the tick.
type Sink interface {
	Emit(Entry)
}

type SinkFunc func(Entry)

func (f SinkFunc) Emit(e Entry) { f(e) }

// Discard drops everything.
var Discard Sink = SinkFunc(func(Entry) {})

// LogSink prints entries through a standard logger.
type LogSink struct{ L *log.Logger }

func (s LogSink) Emit(e Entry) {
	if s.L == nil {
		return
	}
	switch e.Kind {
	case KindPanic, KindSelfHeal, KindCorruptState, KindRosterEmpty, KindMismatch:
		s.L.Printf("WARN %s", e)
	default:
		s.L.Printf("%s", e)
	}
}

type multi []Sink

func (m multi) Emit(e Entry) {
	for _, s := range m {
		s.Emit(e)
	}
}

// Multi fans out to every non-nil sink.
func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Recorder keeps entries in memory.
type Recorder struct {
	Entries []Entry
}

func (r *Recorder) Emit(e Entry) { r.Entries = append(r.Entries, e) }

func (r *Recorder) Count(k Kind) int {
	n := 0
	for _, e := range r.Entries {
		if e.Kind == k {
			n++
		}
	}
	return n
}
