// Package assigner matches idle agents to queued tasks of their role in
// their zone without ever exceeding a task's capacity.
package assigner

import (
	"hivemind.ai/internal/sim/binding"
	"hivemind.ai/internal/sim/session"
	"hivemind.ai/internal/sim/tasks"
)

type Assigner struct{}

func New() *Assigner { return &Assigner{} }

type Report struct {
	Assigned map[string]tasks.Key
	// Reset lists agents whose stale assignment was dropped by reconcile.
	Reset []string
}

// Assign gives every idle live agent the first task (queue order) of its
// role in its zone that still has room. Agents in production are skipped.
func (a *Assigner) Assign(v *binding.View, st *session.State) Report {
	rep := Report{Assigned: map[string]tasks.Key{}}
	rep.Reset = Reconcile(st)

	for _, name := range st.AgentNames() {
		rec := st.Agents[name]
		if !rec.CurrentTask.IsIdle() {
			continue
		}
		agent, ok := v.Agent(name)
		if !ok || agent.Producing {
			continue
		}
		rec.Zone = agent.Zone

		t := st.Queues.FirstWithRoom(agent.Zone, rec.Role)
		if t == nil {
			continue
		}
		t.AddWorker(name)
		rec.CurrentTask = t.Clone()
		rep.Assigned[name] = t.Key()
	}
	return rep
}

// Reconcile makes worker sets and agent records agree again: workers that
// are gone or assigned elsewhere are dropped, tasks over capacity shed their
// excess workers, and agents whose task vanished go back to Idle. It returns
// the agents reset to Idle.
func Reconcile(st *session.State) []string {
	var reset []string
	for _, zone := range st.Queues.ZoneNames() {
		zq := st.Queues[zone]
		for _, role := range tasks.RolePriority {
			list := zq[role]
			for i := range list {
				t := &list[i]
				keep := t.Workers[:0]
				for _, w := range t.Workers {
					rec := st.Agents[w]
					if rec == nil || rec.CurrentTask.Key() != t.Key() {
						continue
					}
					if len(keep) >= t.Capacity {
						rec.CurrentTask = tasks.Idle()
						reset = append(reset, w)
						continue
					}
					keep = append(keep, w)
				}
				t.Workers = keep
			}
		}
	}

	for _, name := range st.AgentNames() {
		rec := st.Agents[name]
		if rec.CurrentTask.IsIdle() {
			continue
		}
		t := st.Queues.Find(rec.CurrentTask.Key())
		if t != nil && t.AddWorker(name) {
			rec.CurrentTask = t.Clone()
			continue
		}
		rec.CurrentTask = tasks.Idle()
		reset = append(reset, name)
	}
	return reset
}
