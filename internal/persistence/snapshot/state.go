package snapshot

import (
	"fmt"

	"hivemind.ai/internal/sim/binding"
	"hivemind.ai/internal/sim/pathcache"
	"hivemind.ai/internal/sim/session"
	"hivemind.ai/internal/sim/tasks"
)

// Export flattens st into its persisted form.
func Export(st *session.State, tick uint64) StateV1 {
	snap := StateV1{LastScanTick: st.LastScanTick}
	for _, zone := range st.Queues.ZoneNames() {
		zq := st.Queues[zone]
		for _, role := range tasks.RolePriority {
			for _, t := range zq[role] {
				snap.Tasks = append(snap.Tasks, TaskV1{
					Zone:     t.Zone,
					Role:     string(role),
					Kind:     string(t.Kind),
					TargetID: t.TargetID,
					Capacity: t.Capacity,
					Workers:  append([]string(nil), t.Workers...),
				})
			}
		}
	}
	for _, name := range st.AgentNames() {
		rec := st.Agents[name]
		a := AgentV1{
			Name:         name,
			Role:         string(rec.Role),
			Zone:         rec.Zone,
			BornTick:     rec.BornTick,
			TaskKind:     string(rec.CurrentTask.Kind),
			TaskZone:     rec.CurrentTask.Zone,
			TaskTargetID: rec.CurrentTask.TargetID,
			TaskCapacity: rec.CurrentTask.Capacity,
			TaskWorkers:  append([]string(nil), rec.CurrentTask.Workers...),
		}
		if rec.Step != nil {
			a.Step = string(rec.Step.Kind)
			a.PanicCode = string(rec.Step.Code)
		}
		if rec.Path != nil {
			a.Path = &PathV1{
				Encoded:   rec.Path.Encoded,
				Dest:      [2]int{rec.Path.Dest.X, rec.Path.Dest.Y},
				Proximity: string(rec.Path.Proximity),
			}
		}
		snap.Agents = append(snap.Agents, a)
	}
	snap.Header = Header{
		Version: Version,
		Tick:    tick,
		Agents:  len(snap.Agents),
		Zones:   len(st.Queues),
		Tasks:   len(snap.Tasks),
	}
	return snap
}

// Import rebuilds a session state. Queue consistency is not checked here;
// the assigner reconciles records and worker sets on its next run.
func Import(snap StateV1) (*session.State, error) {
	st := session.NewState()
	st.NeedsRebuild = false
	st.LastScanTick = snap.LastScanTick

	for i, tv := range snap.Tasks {
		role, ok := tasks.ParseRole(tv.Role)
		if !ok {
			return nil, fmt.Errorf("task %d: unknown role %q", i, tv.Role)
		}
		t := tasks.Task{Kind: tasks.Kind(tv.Kind), Zone: tv.Zone, TargetID: tv.TargetID, Capacity: tv.Capacity}
		if r, ok := t.Role(); !ok || r != role {
			return nil, fmt.Errorf("task %d: kind %q does not belong to %s", i, tv.Kind, role)
		}
		t.Workers = append([]string(nil), tv.Workers...)
		zq := st.Queues.Zone(tv.Zone)
		zq[role] = append(zq[role], t)
	}

	for _, av := range snap.Agents {
		role, ok := tasks.ParseRole(av.Role)
		if !ok {
			return nil, fmt.Errorf("agent %s: unknown role %q", av.Name, av.Role)
		}
		rec := session.NewAgentRecord(role, av.Zone, av.BornTick)
		if k := tasks.Kind(av.TaskKind); k != "" && k != tasks.KindIdle {
			rec.CurrentTask = tasks.Task{
				Kind:     k,
				Zone:     av.TaskZone,
				TargetID: av.TaskTargetID,
				Capacity: av.TaskCapacity,
				Workers:  append([]string(nil), av.TaskWorkers...),
			}
		}
		switch k := session.StepKind(av.Step); k {
		case "":
		case session.StepHarvesting, session.StepAdvancing, session.StepDepositing:
			rec.Step = session.Step(k)
		case session.StepPanic:
			rec.Step = session.Panic(binding.Code(av.PanicCode))
		default:
			return nil, fmt.Errorf("agent %s: unknown step %q", av.Name, av.Step)
		}
		if av.Path != nil {
			rec.Path = &pathcache.Path{
				Encoded:   av.Path.Encoded,
				Dest:      binding.Pos{X: av.Path.Dest[0], Y: av.Path.Dest[1]},
				Proximity: pathcache.Proximity(av.Path.Proximity),
			}
		}
		st.Agents[av.Name] = rec
	}
	return st, nil
}
