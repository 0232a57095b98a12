// Package worldtest drives the whole controller against an in-process grid
// world so scenarios can be checked end to end through exported APIs only.
package worldtest

import (
	"testing"

	"hivemind.ai/internal/persistence/snapshot"
	"hivemind.ai/internal/sim/diag"
	"hivemind.ai/internal/sim/gridworld"
	"hivemind.ai/internal/sim/scanner"
	"hivemind.ai/internal/sim/scheduler"
	"hivemind.ai/internal/sim/session"
	"hivemind.ai/internal/sim/tasks"
	"hivemind.ai/internal/sim/tuning"
)

// Harness owns one world, one scheduler and the session state between ticks.
//
// With RoundTrip set, the state is encoded and decoded after every tick, the
// way a host that persists at tick end would see it.
type Harness struct {
	T     *testing.T
	W     *gridworld.World
	Sched *scheduler.Scheduler
	Diag  *diag.Recorder
	State *session.State

	RoundTrip bool
}

func NewHarness(t *testing.T, cfg gridworld.Config, tune tuning.Tuning) *Harness {
	t.Helper()
	w, err := gridworld.New(cfg)
	if err != nil {
		t.Fatalf("gridworld.New: %v", err)
	}
	tune.Normalize()
	rec := &diag.Recorder{}
	return &Harness{
		T:     t,
		W:     w,
		Sched: scheduler.New(w, tune, rec),
		Diag:  rec,
		State: session.NewState(),
	}
}

// Step runs the controller for the current world tick, checks the queue
// invariants, then advances the world.
func (h *Harness) Step() scheduler.Report {
	h.T.Helper()
	rep := h.Sched.Step(h.W, h.State)
	h.CheckInvariants()
	if h.RoundTrip {
		blob, err := snapshot.Encode(h.State, rep.Tick)
		if err != nil {
			h.T.Fatalf("tick %d: encode: %v", rep.Tick, err)
		}
		st, _, err := snapshot.Decode(blob)
		if err != nil {
			h.T.Fatalf("tick %d: decode: %v", rep.Tick, err)
		}
		h.State = st
	}
	h.W.Step()
	return rep
}

func (h *Harness) StepFor(n int) []scheduler.Report {
	h.T.Helper()
	out := make([]scheduler.Report, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, h.Step())
	}
	return out
}

func (h *Harness) Record(name string) *session.AgentRecord {
	h.T.Helper()
	rec := h.State.Agents[name]
	if rec == nil {
		h.T.Fatalf("no record for %s", name)
	}
	return rec
}

// CheckInvariants fails the test when any queue breaks its bounds or any
// assignment is not mirrored on both sides.
func (h *Harness) CheckInvariants() {
	h.T.Helper()
	zones := map[string]int{}
	for i, z := range h.W.Zones() {
		zones[z.Name] = i
	}
	all := h.W.Zones()
	for zone, zq := range h.State.Queues {
		i, ok := zones[zone]
		if !ok {
			continue
		}
		for role, q := range zq {
			if err := tasks.CheckQueue(zone, role, q, scanner.BoundsFor(&all[i], role)); err != nil {
				h.T.Fatalf("tick %d: %v", h.W.Tick(), err)
			}
			for _, task := range q {
				for _, w := range task.Workers {
					rec := h.State.Agents[w]
					if rec == nil || rec.CurrentTask.Key() != task.Key() {
						h.T.Fatalf("tick %d: %s listed on %s/%s but not assigned to it", h.W.Tick(), w, task.Kind, task.TargetID)
					}
				}
			}
		}
	}
	for name, rec := range h.State.Agents {
		if rec.CurrentTask.IsIdle() {
			continue
		}
		task := h.State.Queues.Find(rec.CurrentTask.Key())
		if task == nil || !task.HasWorker(name) {
			h.T.Fatalf("tick %d: %s assigned to %s/%s but not among its workers", h.W.Tick(), name, rec.CurrentTask.Kind, rec.CurrentTask.TargetID)
		}
	}
}
