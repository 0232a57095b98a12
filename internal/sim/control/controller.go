// Package control drives one agent per call through its action state
// machine. Each run issues at most one side-effecting command; transitions
// that issue nothing chain within the same run, bounded by MaxChainSteps.
package control

import (
	"hivemind.ai/internal/sim/binding"
	"hivemind.ai/internal/sim/diag"
	"hivemind.ai/internal/sim/pathcache"
	"hivemind.ai/internal/sim/session"
	"hivemind.ai/internal/sim/tasks"
	"hivemind.ai/internal/sim/tuning"
)

type Command string

const (
	CmdNone     Command = ""
	CmdHarvest  Command = "harvest"
	CmdAdvance  Command = "advance"
	CmdTransfer Command = "transfer"
	CmdMove     Command = "move"
	CmdSay      Command = "say"
)

// Decision is what one run did for one agent.
type Decision struct {
	Agent   string       `json:"agent"`
	Command Command      `json:"command,omitempty"`
	Code    binding.Code `json:"code,omitempty"`
	// Step is the agent's step after the run ("" when dropped).
	Step session.StepKind `json:"step,omitempty"`
}

type Controller struct {
	cmd   binding.Commander
	paths *pathcache.Cache
	tune  tuning.Tuning
	sink  diag.Sink
}

func New(cmd binding.Commander, finder binding.PathFinder, tune tuning.Tuning, sink diag.Sink) *Controller {
	if sink == nil {
		sink = diag.Discard
	}
	return &Controller{
		cmd:   cmd,
		paths: pathcache.New(cmd, finder),
		tune:  tune,
		sink:  sink,
	}
}

// run carries the per-call context through the handlers.
type run struct {
	v     *binding.View
	st    *session.State
	name  string
	rec   *session.AgentRecord
	agent binding.AgentView
}

// outcome of one handler: either a finished decision or a request to
// evaluate the (changed) state again.
type outcome struct {
	d    Decision
	more bool
}

func again() outcome { return outcome{more: true} }

// Run evaluates the state machine of agent name for the current tick.
// Agents that are not alive, not in the table, or still being produced are
// left alone.
func (c *Controller) Run(v *binding.View, st *session.State, name string) Decision {
	rec := st.Agents[name]
	agent, ok := v.Agent(name)
	if rec == nil || !ok || agent.Producing {
		return Decision{Agent: name}
	}
	if rec.Step == nil {
		rec.Step = session.Step(session.StepHarvesting)
	}
	r := &run{v: v, st: st, name: name, rec: rec, agent: agent}

	limit := c.tune.MaxChainSteps
	if limit < 1 {
		limit = 1
	}
	for i := 0; i < limit; i++ {
		o := c.eval(r)
		if !o.more {
			o.d.Agent = name
			o.d.Step = rec.StepKind()
			return o.d
		}
	}
	return Decision{Agent: name, Step: rec.StepKind()}
}

func (c *Controller) eval(r *run) outcome {
	if r.rec.StepKind() == session.StepPanic {
		code := r.rec.Step.Code
		c.cmd.Say(r.name, string(code))
		r.rec.Step = session.Step(session.StepHarvesting)
		return outcome{d: Decision{Command: CmdSay, Code: code}}
	}

	t := r.rec.CurrentTask
	if t.IsIdle() {
		return c.idle(r)
	}
	if role, ok := t.Role(); !ok || role != r.rec.Role {
		c.emit(r, diag.KindMismatch, "", "task "+string(t.Kind)+" does not fit role")
		r.st.Release(r.name)
		return again()
	}

	switch t.Kind {
	case tasks.KindHarvest:
		return c.harvestTask(r)
	case tasks.KindAdvance:
		return c.advanceTask(r)
	case tasks.KindDeposit:
		return c.depositTask(r)
	}
	return c.idle(r)
}

// idle keeps unassigned agents near the objective.
func (c *Controller) idle(r *run) outcome {
	z, ok := r.v.Zone(r.agent.Zone)
	if !ok || z.Objective == nil {
		return outcome{}
	}
	return c.move(r, z.Objective.Pos)
}

func (c *Controller) harvestTask(r *run) outcome {
	t := r.rec.CurrentTask
	z, ok := r.v.Zone(t.Zone)
	var node binding.Node
	if ok {
		node, ok = z.Node(t.TargetID)
	}
	if !ok {
		c.miss(r, "node "+t.TargetID)
		return outcome{}
	}

	switch r.rec.StepKind() {
	case session.StepDepositing:
		if z.Facility == nil {
			r.st.Release(r.name)
			r.rec.Step = session.Step(session.StepHarvesting)
			return again()
		}
		return c.deposit(r, z.Facility)
	default:
		return c.gather(r, node, session.StepDepositing)
	}
}

func (c *Controller) advanceTask(r *run) outcome {
	t := r.rec.CurrentTask
	z, ok := r.v.Zone(t.Zone)
	if !ok || z.Objective == nil || z.Objective.ID != t.TargetID {
		c.miss(r, "objective "+t.TargetID)
		return outcome{}
	}
	obj := z.Objective

	if r.rec.StepKind() != session.StepAdvancing {
		node, ok := z.NearestNode(r.agent.Pos)
		if !ok {
			if r.agent.CargoUsed > 0 {
				r.rec.Step = session.Step(session.StepAdvancing)
				return again()
			}
			return outcome{}
		}
		return c.gather(r, node, session.StepAdvancing)
	}

	if r.agent.CargoUsed == 0 {
		r.rec.Step = session.Step(session.StepHarvesting)
		return again()
	}
	code := c.cmd.Advance(r.name, obj.ID)
	switch code {
	case binding.CodeOK:
		return outcome{d: Decision{Command: CmdAdvance, Code: code}}
	case binding.CodeNotInRange:
		return c.move(r, obj.Pos)
	case binding.CodeNotEnough:
		r.rec.Step = session.Step(session.StepHarvesting)
		return again()
	}
	// The task is long-lived: panic but keep it.
	c.enterPanic(r, code)
	return outcome{d: Decision{Command: CmdAdvance, Code: code}}
}

func (c *Controller) depositTask(r *run) outcome {
	t := r.rec.CurrentTask
	z, ok := r.v.Zone(t.Zone)
	if !ok || z.Facility == nil || z.Facility.ID != t.TargetID {
		c.miss(r, "facility "+t.TargetID)
		return outcome{}
	}

	if r.rec.StepKind() == session.StepDepositing {
		return c.deposit(r, z.Facility)
	}
	node, ok := z.NearestNode(r.agent.Pos)
	if !ok {
		if r.agent.CargoUsed > 0 {
			r.rec.Step = session.Step(session.StepDepositing)
			return again()
		}
		return outcome{}
	}
	return c.gather(r, node, session.StepDepositing)
}

// gather harvests node until the cargo is full, then switches to whenFull.
func (c *Controller) gather(r *run, node binding.Node, whenFull session.StepKind) outcome {
	if r.rec.StepKind() != session.StepHarvesting {
		r.rec.Step = session.Step(session.StepHarvesting)
	}
	if r.agent.CargoFree == 0 {
		r.rec.Step = session.Step(whenFull)
		return again()
	}

	code := c.cmd.Harvest(r.name, node.ID)
	switch code {
	case binding.CodeOK, binding.CodeTired:
		return outcome{d: Decision{Command: CmdHarvest, Code: code}}
	case binding.CodeNotInRange:
		return c.move(r, node.Pos)
	case binding.CodeFull:
		r.rec.Step = session.Step(whenFull)
		return again()
	case binding.CodeNotEnough:
		// Node exhausted: deliver what we have, otherwise wait for regeneration.
		if r.agent.CargoUsed > 0 {
			r.rec.Step = session.Step(whenFull)
			return again()
		}
		return outcome{d: Decision{Command: CmdHarvest, Code: code}}
	}
	c.enterPanic(r, code)
	return outcome{d: Decision{Command: CmdHarvest, Code: code}}
}

func (c *Controller) deposit(r *run, fac *binding.Facility) outcome {
	if r.agent.CargoUsed == 0 {
		r.rec.Step = session.Step(session.StepHarvesting)
		return again()
	}
	code := c.cmd.Transfer(r.name, fac.ID, binding.ResourceEnergy)
	switch code {
	case binding.CodeOK, binding.CodeFull, binding.CodeTired:
		return outcome{d: Decision{Command: CmdTransfer, Code: code}}
	case binding.CodeNotInRange:
		return c.move(r, fac.Pos)
	}
	c.enterPanic(r, code)
	return outcome{d: Decision{Command: CmdTransfer, Code: code}}
}

// move delegates to the path cache; the current step is kept whatever the
// outcome, so a failed move is simply retried next tick.
func (c *Controller) move(r *run, dest binding.Pos) outcome {
	res := c.paths.MoveToward(r.agent, r.rec, dest, pathcache.Adjacent)
	if !res.Issued {
		return outcome{d: Decision{Code: res.Code}}
	}
	return outcome{d: Decision{Command: CmdMove, Code: res.Code}}
}

func (c *Controller) enterPanic(r *run, code binding.Code) {
	r.rec.Step = session.Panic(code)
	c.emit(r, diag.KindPanic, code, "")
}

// miss handles a task target that no longer resolves: the task goes away,
// every worker of it returns to Idle and the step is dropped.
func (c *Controller) miss(r *run, what string) {
	c.emit(r, diag.KindWorldMiss, "", what+" no longer resolves")
	r.st.ClearTask(r.name)
	r.rec.Step = nil
	r.rec.Path = nil
}

func (c *Controller) emit(r *run, kind diag.Kind, code binding.Code, msg string) {
	c.sink.Emit(diag.Entry{
		Tick:    r.v.Tick,
		Kind:    kind,
		Zone:    r.agent.Zone,
		Agent:   r.name,
		Role:    string(r.rec.Role),
		Code:    string(code),
		Message: msg,
	})
}
