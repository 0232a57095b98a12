// Package scanner builds and maintains the per-zone task queues from the
// current world view. It touches only the task map.
package scanner

import (
	"errors"
	"sort"

	"hivemind.ai/internal/sim/binding"
	"hivemind.ai/internal/sim/diag"
	"hivemind.ai/internal/sim/session"
	"hivemind.ai/internal/sim/tasks"
	"hivemind.ai/internal/sim/tuning"
)

type Scanner struct {
	tune tuning.Tuning
	sink diag.Sink
}

func New(tune tuning.Tuning, sink diag.Sink) *Scanner {
	if sink == nil {
		sink = diag.Discard
	}
	return &Scanner{tune: tune, sink: sink}
}

// Report summarizes one scan.
type Report struct {
	Created []tasks.Key
	Dropped []tasks.Key
	Rebuilt []RoleQueue
}

type RoleQueue struct {
	Zone string
	Role tasks.Role
}

// HarvestCapacity is 8 minus the impassable tiles around a node.
func HarvestCapacity(z *binding.Zone, at binding.Pos) int {
	n := 8
	for _, p := range at.Ring() {
		if z.Impassable(p) {
			n--
		}
	}
	return n
}

// harvestable is the nodes of z with at least one open tile around them.
func harvestable(z *binding.Zone) []binding.Node {
	out := make([]binding.Node, 0, len(z.Nodes))
	for _, n := range z.Nodes {
		if HarvestCapacity(z, n.Pos) > 0 {
			out = append(out, n)
		}
	}
	return out
}

// BoundsFor is the theoretical maximum queue size of role in z.
func BoundsFor(z *binding.Zone, role tasks.Role) tasks.Bounds {
	switch role {
	case tasks.Harvester:
		return tasks.Bounds{MaxTasks: len(harvestable(z))}
	case tasks.Upgrader:
		if z.Objective != nil {
			return tasks.Bounds{MaxTasks: 1}
		}
	case tasks.SimpleWorker:
		if z.Facility != nil {
			return tasks.Bounds{MaxTasks: 1}
		}
	}
	return tasks.Bounds{}
}

// Scan refreshes the queues of every zone in the view and forgets zones
// the view no longer has.
func (s *Scanner) Scan(v *binding.View, st *session.State) Report {
	var rep Report
	for _, name := range st.Queues.ZoneNames() {
		if _, ok := v.Zone(name); ok {
			continue
		}
		for _, role := range tasks.RolePriority {
			for _, t := range st.Queues[name][role] {
				rep.Dropped = append(rep.Dropped, t.Key())
			}
		}
		delete(st.Queues, name)
		s.sink.Emit(diag.Entry{Tick: v.Tick, Kind: diag.KindWorldMiss, Zone: name, Message: "zone gone"})
	}
	for i := range v.Zones() {
		z := &v.Zones()[i]
		zq := st.Queues.Zone(z.Name)
		for _, role := range tasks.RolePriority {
			q := zq[role]
			q, dropped := dropUnresolved(z, q)
			rep.Dropped = append(rep.Dropped, dropped...)
			for _, k := range dropped {
				s.sink.Emit(diag.Entry{Tick: v.Tick, Kind: diag.KindWorldMiss, Zone: z.Name, Role: string(role), Message: "target gone: " + k.TargetID})
			}

			if err := tasks.CheckQueue(z.Name, role, q, BoundsFor(z, role)); err != nil {
				var ie *tasks.InconsistencyError
				msg := err.Error()
				if errors.As(err, &ie) {
					msg = ie.Reason
				}
				s.sink.Emit(diag.Entry{Tick: v.Tick, Kind: diag.KindSelfHeal, Zone: z.Name, Role: string(role), Message: "rebuilding queue: " + msg})
				rep.Rebuilt = append(rep.Rebuilt, RoleQueue{Zone: z.Name, Role: role})
				q = nil
			}

			var created []tasks.Key
			q, created = s.fill(z, role, q)
			rep.Created = append(rep.Created, created...)
			if len(q) == 0 {
				delete(zq, role)
				continue
			}
			zq[role] = q
		}
	}
	return rep
}

func (s *Scanner) fill(z *binding.Zone, role tasks.Role, q []tasks.Task) ([]tasks.Task, []tasks.Key) {
	var created []tasks.Key
	add := func(t tasks.Task) {
		for _, have := range q {
			if have.Key() == t.Key() {
				return
			}
		}
		q = append(q, t)
		created = append(created, t.Key())
	}

	switch role {
	case tasks.Harvester:
		for _, n := range harvestOrder(z) {
			add(tasks.Harvest(z.Name, n.ID, HarvestCapacity(z, n.Pos)))
		}
	case tasks.Upgrader:
		if z.Objective != nil {
			add(tasks.Advance(z.Name, z.Objective.ID, s.tune.AdvanceCapacity))
		}
	case tasks.SimpleWorker:
		if z.Facility != nil {
			add(tasks.Deposit(z.Name, z.Facility.ID, s.tune.DepositCapacity))
		}
	}
	return q, created
}

// harvestOrder sorts harvestable nodes by range to the facility, then id.
func harvestOrder(z *binding.Zone) []binding.Node {
	nodes := harvestable(z)
	sort.Slice(nodes, func(i, j int) bool {
		if z.Facility != nil {
			ri, rj := nodes[i].Pos.Range(z.Facility.Pos), nodes[j].Pos.Range(z.Facility.Pos)
			if ri != rj {
				return ri < rj
			}
		}
		return nodes[i].ID < nodes[j].ID
	})
	return nodes
}

// dropUnresolved removes tasks whose target is no longer in the zone.
func dropUnresolved(z *binding.Zone, q []tasks.Task) ([]tasks.Task, []tasks.Key) {
	var dropped []tasks.Key
	out := q[:0]
	for _, t := range q {
		if resolves(z, t) {
			out = append(out, t)
			continue
		}
		dropped = append(dropped, t.Key())
	}
	return out, dropped
}

func resolves(z *binding.Zone, t tasks.Task) bool {
	switch t.Kind {
	case tasks.KindHarvest:
		n, ok := z.Node(t.TargetID)
		return ok && HarvestCapacity(z, n.Pos) > 0
	case tasks.KindAdvance:
		return z.Objective != nil && z.Objective.ID == t.TargetID
	case tasks.KindDeposit:
		return z.Facility != nil && z.Facility.ID == t.TargetID
	case tasks.KindIdle, "":
		// Never queued; CheckQueue flags it.
		return true
	}
	return true
}
