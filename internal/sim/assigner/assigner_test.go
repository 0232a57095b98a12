package assigner

import (
	"fmt"
	"testing"

	"hivemind.ai/internal/sim/binding"
	"hivemind.ai/internal/sim/session"
	"hivemind.ai/internal/sim/tasks"
)

func harvesters(n int, zone string) ([]binding.AgentView, *session.State) {
	st := session.NewState()
	var views []binding.AgentView
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("Harvester%d", i)
		st.Agents[name] = session.NewAgentRecord(tasks.Harvester, zone, 0)
		views = append(views, binding.AgentView{Name: name, Zone: zone})
	}
	return views, st
}

func TestAssign_CapacityLimitsWorkers(t *testing.T) {
	views, st := harvesters(4, "Z1")
	st.Queues.Zone("Z1")[tasks.Harvester] = []tasks.Task{tasks.Harvest("Z1", "n1", 3)}
	v := binding.NewView(1, nil, views)

	rep := New().Assign(v, st)
	if len(rep.Assigned) != 3 {
		t.Fatalf("assigned=%v", rep.Assigned)
	}
	if !st.Agents["Harvester3"].CurrentTask.IsIdle() {
		t.Fatalf("fourth harvester should stay idle")
	}
	task := st.Queues["Z1"][tasks.Harvester][0]
	if len(task.Workers) != 3 {
		t.Fatalf("workers=%v", task.Workers)
	}

	// Repeated cycles never push past capacity.
	for i := 0; i < 5; i++ {
		New().Assign(v, st)
		if n := len(st.Queues["Z1"][tasks.Harvester][0].Workers); n > 3 {
			t.Fatalf("cycle %d: %d workers over capacity 3", i, n)
		}
	}
	if !st.Agents["Harvester3"].CurrentTask.IsIdle() {
		t.Fatalf("fourth harvester assigned on a later cycle")
	}
}

func TestAssign_QueueOrderAndRoleZone(t *testing.T) {
	st := session.NewState()
	st.Queues.Zone("Z1")[tasks.Harvester] = []tasks.Task{
		tasks.Harvest("Z1", "near", 1),
		tasks.Harvest("Z1", "far", 2),
	}
	st.Queues.Zone("Z2")[tasks.Upgrader] = []tasks.Task{tasks.Advance("Z2", "obj", 4)}
	st.Agents["a"] = session.NewAgentRecord(tasks.Harvester, "Z1", 0)
	st.Agents["b"] = session.NewAgentRecord(tasks.Harvester, "Z1", 0)
	st.Agents["u"] = session.NewAgentRecord(tasks.Upgrader, "Z1", 0)
	v := binding.NewView(1, nil, []binding.AgentView{
		{Name: "a", Zone: "Z1"},
		{Name: "b", Zone: "Z1"},
		{Name: "u", Zone: "Z2"},
	})

	New().Assign(v, st)
	if got := st.Agents["a"].CurrentTask.TargetID; got != "near" {
		t.Fatalf("a got %q want near", got)
	}
	if got := st.Agents["b"].CurrentTask.TargetID; got != "far" {
		t.Fatalf("b got %q want far", got)
	}
	// The upgrader moved to Z2; the live zone wins over the record.
	if got := st.Agents["u"]; got.CurrentTask.TargetID != "obj" || got.Zone != "Z2" {
		t.Fatalf("u: %+v", got)
	}
}

func TestAssign_SkipsProducingAndDead(t *testing.T) {
	st := session.NewState()
	st.Queues.Zone("Z1")[tasks.Harvester] = []tasks.Task{tasks.Harvest("Z1", "n1", 8)}
	st.Agents["baby"] = session.NewAgentRecord(tasks.Harvester, "Z1", 0)
	st.Agents["ghost"] = session.NewAgentRecord(tasks.Harvester, "Z1", 0)
	v := binding.NewView(1, nil, []binding.AgentView{{Name: "baby", Zone: "Z1", Producing: true}})

	rep := New().Assign(v, st)
	if len(rep.Assigned) != 0 {
		t.Fatalf("assigned=%v", rep.Assigned)
	}
}

func TestReconcile_RepairsStaleState(t *testing.T) {
	st := session.NewState()
	over := tasks.Harvest("Z1", "n1", 1)
	over.Workers = []string{"a", "b", "gone"}
	st.Queues.Zone("Z1")[tasks.Harvester] = []tasks.Task{over}

	st.Agents["a"] = session.NewAgentRecord(tasks.Harvester, "Z1", 0)
	st.Agents["a"].CurrentTask = tasks.Harvest("Z1", "n1", 1)
	st.Agents["b"] = session.NewAgentRecord(tasks.Harvester, "Z1", 0)
	st.Agents["b"].CurrentTask = tasks.Harvest("Z1", "n1", 1)
	st.Agents["c"] = session.NewAgentRecord(tasks.Harvester, "Z1", 0)
	st.Agents["c"].CurrentTask = tasks.Harvest("Z1", "vanished", 3)

	reset := Reconcile(st)
	task := st.Queues["Z1"][tasks.Harvester][0]
	if len(task.Workers) != 1 || task.Workers[0] != "a" {
		t.Fatalf("workers=%v", task.Workers)
	}
	if !st.Agents["b"].CurrentTask.IsIdle() || !st.Agents["c"].CurrentTask.IsIdle() {
		t.Fatalf("b/c should be idle")
	}
	if len(reset) != 2 {
		t.Fatalf("reset=%v", reset)
	}
	if st.Agents["a"].CurrentTask.IsIdle() {
		t.Fatalf("a lost its task")
	}
}
