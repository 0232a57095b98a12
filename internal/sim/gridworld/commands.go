package gridworld

import (
	"fmt"

	"hivemind.ai/internal/sim/binding"
)

// actorLocked resolves a live, fully produced agent.
func (w *World) actorLocked(name string) (*agent, *zone, binding.Code) {
	a, ok := w.agents[name]
	if !ok {
		return nil, nil, binding.CodeNotFound
	}
	if w.tick < a.producingUntil {
		return nil, nil, binding.CodeBusy
	}
	return a, w.byName[a.zone], binding.CodeOK
}

func (w *World) Harvest(agentName, nodeID string) binding.Code {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, z, code := w.actorLocked(agentName)
	if code != binding.CodeOK {
		return code
	}
	work := a.parts(binding.PartWork)
	if work == 0 {
		return binding.CodeNoBodyPart
	}
	var n *node
	for _, cand := range z.nodes {
		if cand.id == nodeID {
			n = cand
		}
	}
	if n == nil {
		return binding.CodeInvalidTarget
	}
	if a.pos.Range(n.pos) > harvestRange {
		return binding.CodeNotInRange
	}
	if n.amount == 0 {
		return binding.CodeNotEnough
	}
	free := a.capacity(w.cfg.CarryPerPart) - a.cargo
	if free <= 0 {
		return binding.CodeFull
	}
	got := min(work*w.cfg.HarvestPerWork, n.amount, free)
	n.amount -= got
	a.cargo += got
	return binding.CodeOK
}

func (w *World) Advance(agentName, objectiveID string) binding.Code {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, z, code := w.actorLocked(agentName)
	if code != binding.CodeOK {
		return code
	}
	o := z.objective
	if o == nil || o.id != objectiveID {
		return binding.CodeInvalidTarget
	}
	work := a.parts(binding.PartWork)
	if work == 0 {
		return binding.CodeNoBodyPart
	}
	if a.pos.Range(o.pos) > advanceRange {
		return binding.CodeNotInRange
	}
	if a.cargo == 0 {
		return binding.CodeNotEnough
	}
	spent := min(a.cargo, work*w.cfg.AdvancePerWork)
	a.cargo -= spent
	o.progress += spent
	for o.progress >= w.cfg.ProgressPerLevel*max(1, o.level) {
		o.progress -= w.cfg.ProgressPerLevel * max(1, o.level)
		o.level++
	}
	return binding.CodeOK
}

func (w *World) Transfer(agentName, facilityID string, res binding.Resource) binding.Code {
	w.mu.Lock()
	defer w.mu.Unlock()
	if res != binding.ResourceEnergy {
		return binding.CodeInvalidArgs
	}
	a, z, code := w.actorLocked(agentName)
	if code != binding.CodeOK {
		return code
	}
	f := z.facility
	if f == nil || f.id != facilityID {
		return binding.CodeInvalidTarget
	}
	if a.pos.Range(f.pos) > transferRange {
		return binding.CodeNotInRange
	}
	if a.cargo == 0 {
		return binding.CodeNotEnough
	}
	if f.reserve >= f.cap {
		return binding.CodeFull
	}
	moved := min(a.cargo, f.cap-f.reserve)
	a.cargo -= moved
	f.reserve += moved
	return binding.CodeOK
}

// MoveByPath takes one step along steps. The agent must stand on a waypoint,
// or next to the first one; it then moves to the waypoint that follows.
func (w *World) MoveByPath(agentName string, steps []binding.Pos) binding.Code {
	w.mu.Lock()
	defer w.mu.Unlock()
	a, z, code := w.actorLocked(agentName)
	if code != binding.CodeOK {
		return code
	}
	if len(steps) == 0 {
		return binding.CodeInvalidArgs
	}
	moves := a.parts(binding.PartMove)
	if moves == 0 {
		return binding.CodeNoBodyPart
	}
	if a.fatigue > 0 {
		return binding.CodeTired
	}
	next, ok := nextStep(a.pos, steps)
	if !ok {
		return binding.CodeNotFound
	}
	if z.blocked(next) {
		return binding.CodeBlocked
	}
	a.pos = next
	a.fatigue += 2 * a.load()
	return binding.CodeOK
}

func nextStep(at binding.Pos, steps []binding.Pos) (binding.Pos, bool) {
	for i, p := range steps {
		if p != at {
			continue
		}
		if i+1 < len(steps) {
			return steps[i+1], true
		}
		return binding.Pos{}, false
	}
	if at.IsNear(steps[0]) && at != steps[0] {
		return steps[0], true
	}
	return binding.Pos{}, false
}

// load counts the parts that tire an agent: work always, carry only when
// something is carried.
func (a *agent) load() int {
	n := a.parts(binding.PartWork)
	if a.cargo > 0 {
		n += a.parts(binding.PartCarry)
	}
	return n
}

func (w *World) Produce(facilityID string, body []binding.Part, name string) binding.Code {
	w.mu.Lock()
	defer w.mu.Unlock()
	z, f := w.facilityLocked(facilityID)
	if f == nil {
		return binding.CodeInvalidTarget
	}
	if w.tick < f.busyUntil {
		return binding.CodeBusy
	}
	if name == "" || len(body) == 0 {
		return binding.CodeInvalidArgs
	}
	cost := 0
	for _, p := range body {
		c, ok := w.cfg.PartCosts[string(p)]
		if !ok || !binding.IsKnownPart(p) {
			return binding.CodeInvalidArgs
		}
		cost += c
	}
	if _, exists := w.agents[name]; exists {
		return binding.CodeNameExists
	}
	if cost > f.reserve {
		return binding.CodeNotEnough
	}
	f.reserve -= cost
	done := w.tick + uint64(len(body)*w.cfg.BuildTicksPerPart)
	f.busyUntil = done
	w.agents[name] = &agent{
		name:           name,
		zone:           z.name,
		pos:            spawnPos(z, f.pos),
		body:           append([]binding.Part(nil), body...),
		producingUntil: done,
	}
	return binding.CodeOK
}

func spawnPos(z *zone, at binding.Pos) binding.Pos {
	for _, p := range at.Ring() {
		if !z.blocked(p) {
			return p
		}
	}
	return at
}

func (w *World) Say(agentName, text string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if a, ok := w.agents[agentName]; ok {
		a.said = text
	}
}

func (w *World) FindPath(zoneName string, from, to binding.Pos) ([]binding.Pos, error) {
	w.mu.Lock()
	z, ok := w.byName[zoneName]
	w.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("find path: unknown zone %q", zoneName)
	}
	steps, found := AStar(from, to, z.inBounds, z.blocked)
	if !found {
		return nil, binding.ErrNoPath
	}
	return steps, nil
}
