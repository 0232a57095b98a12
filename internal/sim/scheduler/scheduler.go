// Package scheduler runs one controller tick: on the slow cadence it
// collects dead agents, scans, assigns and produces (in that order), then
// every live agent's state machine runs.
package scheduler

import (
	"hivemind.ai/internal/sim/assigner"
	"hivemind.ai/internal/sim/binding"
	"hivemind.ai/internal/sim/control"
	"hivemind.ai/internal/sim/diag"
	"hivemind.ai/internal/sim/production"
	"hivemind.ai/internal/sim/scanner"
	"hivemind.ai/internal/sim/session"
	"hivemind.ai/internal/sim/tuning"
)

type Scheduler struct {
	tune tuning.Tuning
	sink diag.Sink

	scan    *scanner.Scanner
	assign  *assigner.Assigner
	produce *production.Manager
	control *control.Controller
}

func New(b binding.Binding, tune tuning.Tuning, sink diag.Sink) *Scheduler {
	if sink == nil {
		sink = diag.Discard
	}
	return &Scheduler{
		tune:    tune,
		sink:    sink,
		scan:    scanner.New(tune, sink),
		assign:  assigner.New(),
		produce: production.New(b, tune, sink),
		control: control.New(b, b, tune, sink),
	}
}

// Report is what one tick did.
type Report struct {
	Tick uint64 `json:"tick"`
	Slow bool   `json:"slow"`

	Collected []string              `json:"collected,omitempty"`
	Adopted   []string              `json:"adopted,omitempty"`
	Scan      *scanner.Report       `json:"scan,omitempty"`
	Assign    *assigner.Report      `json:"assign,omitempty"`
	Produced  []production.Produced `json:"produced,omitempty"`
	Decisions []control.Decision    `json:"decisions,omitempty"`
}

// Due reports whether the slow cadence runs at tick. A tick behind the
// last scan means the world restarted under a restored session.
func (s *Scheduler) Due(st *session.State, tick uint64) bool {
	if st.NeedsRebuild || tick < st.LastScanTick {
		return true
	}
	every := uint64(s.tune.ScanEveryTicks)
	if every == 0 {
		every = 1
	}
	return tick >= st.LastScanTick+every
}

// Step runs one tick against w.
func (s *Scheduler) Step(w binding.World, st *session.State) Report {
	return s.StepView(binding.Capture(w), st)
}

// StepView is Step over an already captured view.
func (s *Scheduler) StepView(v *binding.View, st *session.State) Report {
	st.Normalize()
	rep := Report{Tick: v.Tick}

	if s.Due(st, v.Tick) {
		rep.Slow = true
		rep.Collected, rep.Adopted = s.Housekeep(v, st)

		scan := s.scan.Scan(v, st)
		assign := s.assign.Assign(v, st)
		rep.Scan, rep.Assign = &scan, &assign
		rep.Produced = s.produce.Produce(v, st)

		st.LastScanTick = v.Tick
		st.NeedsRebuild = false
	}

	for _, name := range v.AgentNames() {
		if _, ok := st.Agents[name]; !ok {
			continue
		}
		d := s.control.Run(v, st, name)
		if d.Command != control.CmdNone || d.Code != "" {
			rep.Decisions = append(rep.Decisions, d)
		}
	}
	return rep
}

// Housekeep drops records of dead agents and adopts unknown live ones.
func (s *Scheduler) Housekeep(v *binding.View, st *session.State) (collected, adopted []string) {
	collected = st.Collect(v)
	for _, name := range collected {
		s.sink.Emit(diag.Entry{Tick: v.Tick, Kind: diag.KindCollected, Agent: name})
	}
	adopted = st.Adopt(v)
	for _, name := range adopted {
		rec := st.Agents[name]
		s.sink.Emit(diag.Entry{Tick: v.Tick, Kind: diag.KindAdopted, Agent: name, Zone: rec.Zone, Role: string(rec.Role)})
	}
	if len(v.AgentNames()) == 0 {
		s.sink.Emit(diag.Entry{Tick: v.Tick, Kind: diag.KindRosterEmpty, Message: "no live agents"})
	}
	return collected, adopted
}
