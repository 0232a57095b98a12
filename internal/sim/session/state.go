// Package session holds the whole mutable state of a controller session: the
// task queues and the agent table. It is passed explicitly through scan,
// assign, produce and control; nothing in here is global.
package session

import (
	"errors"
	"sort"

	"hivemind.ai/internal/sim/binding"
	"hivemind.ai/internal/sim/tasks"
)

// ErrCorruptState marks a persisted state blob that could not be decoded.
var ErrCorruptState = errors.New("corrupt persisted state")

type State struct {
	Queues       tasks.Queues
	Agents       map[string]*AgentRecord
	LastScanTick uint64
	// NeedsRebuild forces the slow cadence on the next tick (cold start).
	NeedsRebuild bool
}

// NewState returns an empty cold-start state.
func NewState() *State {
	return &State{
		Queues:       tasks.Queues{},
		Agents:       map[string]*AgentRecord{},
		NeedsRebuild: true,
	}
}

// Normalize replaces nil maps left by decoding.
func (s *State) Normalize() {
	if s.Queues == nil {
		s.Queues = tasks.Queues{}
	}
	if s.Agents == nil {
		s.Agents = map[string]*AgentRecord{}
	}
	for name, rec := range s.Agents {
		if rec == nil {
			delete(s.Agents, name)
			continue
		}
		if rec.CurrentTask.Kind == "" {
			rec.CurrentTask = tasks.Idle()
		}
	}
}

// AgentNames returns the agent table keys in sorted order.
func (s *State) AgentNames() []string {
	out := make([]string, 0, len(s.Agents))
	for name := range s.Agents {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Release removes name from the workers of its current task and resets the
// agent to Idle. It reports whether the agent had a task.
func (s *State) Release(name string) bool {
	rec := s.Agents[name]
	if rec == nil || rec.CurrentTask.IsIdle() {
		return false
	}
	if t := s.Queues.Find(rec.CurrentTask.Key()); t != nil {
		t.RemoveWorker(name)
	}
	rec.CurrentTask = tasks.Idle()
	return true
}

// ClearTask drops the agent's current task from its queue altogether (its
// target no longer resolves) and resets every worker of it to Idle.
func (s *State) ClearTask(name string) {
	rec := s.Agents[name]
	if rec == nil || rec.CurrentTask.IsIdle() {
		return
	}
	key := rec.CurrentTask.Key()
	if t := s.Queues.Find(key); t != nil {
		for _, w := range t.Workers {
			if other := s.Agents[w]; other != nil && other.CurrentTask.Key() == key {
				other.CurrentTask = tasks.Idle()
			}
		}
		s.Queues.Remove(key)
	}
	rec.CurrentTask = tasks.Idle()
}

// Collect removes records of agents that are no longer alive. It returns the
// removed names in sorted order.
func (s *State) Collect(v *binding.View) []string {
	var dead []string
	for _, name := range s.AgentNames() {
		if v.Alive(name) {
			continue
		}
		s.Release(name)
		delete(s.Agents, name)
		dead = append(dead, name)
	}
	return dead
}

// Adopt creates records for live agents missing from the table, inferring
// the role from the agent name. It returns the adopted names.
func (s *State) Adopt(v *binding.View) []string {
	var adopted []string
	for _, name := range v.AgentNames() {
		if _, ok := s.Agents[name]; ok {
			continue
		}
		a, _ := v.Agent(name)
		s.Agents[name] = NewAgentRecord(tasks.RoleFromName(name), a.Zone, v.Tick)
		adopted = append(adopted, name)
	}
	return adopted
}
