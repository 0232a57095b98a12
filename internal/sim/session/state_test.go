package session

import (
	"testing"

	"hivemind.ai/internal/sim/binding"
	"hivemind.ai/internal/sim/tasks"
)

func assigned(st *State, name string, t tasks.Task) {
	p := st.Queues.Find(t.Key())
	p.AddWorker(name)
	st.Agents[name].CurrentTask = p.Clone()
}

func TestRelease(t *testing.T) {
	st := NewState()
	st.Queues.Zone("Z1")[tasks.Harvester] = []tasks.Task{tasks.Harvest("Z1", "n1", 2)}
	st.Agents["h1"] = NewAgentRecord(tasks.Harvester, "Z1", 0)
	assigned(st, "h1", tasks.Harvest("Z1", "n1", 2))

	if !st.Release("h1") {
		t.Fatalf("release should report a task")
	}
	if !st.Agents["h1"].CurrentTask.IsIdle() {
		t.Fatalf("agent not idle")
	}
	if got := st.Queues["Z1"][tasks.Harvester][0].Workers; len(got) != 0 {
		t.Fatalf("worker not removed: %v", got)
	}
	if st.Release("h1") {
		t.Fatalf("second release should be a no-op")
	}
}

func TestClearTask_ResetsAllWorkers(t *testing.T) {
	st := NewState()
	st.Queues.Zone("Z1")[tasks.Harvester] = []tasks.Task{tasks.Harvest("Z1", "n1", 2)}
	for _, n := range []string{"h1", "h2"} {
		st.Agents[n] = NewAgentRecord(tasks.Harvester, "Z1", 0)
		assigned(st, n, tasks.Harvest("Z1", "n1", 2))
	}
	st.ClearTask("h1")
	if len(st.Queues["Z1"][tasks.Harvester]) != 0 {
		t.Fatalf("task should be removed from queue")
	}
	for _, n := range []string{"h1", "h2"} {
		if !st.Agents[n].CurrentTask.IsIdle() {
			t.Fatalf("%s still assigned", n)
		}
	}
}

func TestCollectAndAdopt(t *testing.T) {
	st := NewState()
	st.Queues.Zone("Z1")[tasks.Upgrader] = []tasks.Task{tasks.Advance("Z1", "obj", 4)}
	st.Agents["Upgrader1"] = NewAgentRecord(tasks.Upgrader, "Z1", 0)
	assigned(st, "Upgrader1", tasks.Advance("Z1", "obj", 4))

	v := binding.NewView(9, nil, []binding.AgentView{
		{Name: "Harvester5", Zone: "Z1"},
		{Name: "stray", Zone: "Z2"},
	})
	dead := st.Collect(v)
	if len(dead) != 1 || dead[0] != "Upgrader1" {
		t.Fatalf("dead=%v", dead)
	}
	if w := st.Queues["Z1"][tasks.Upgrader][0].Workers; len(w) != 0 {
		t.Fatalf("dead agent still a worker: %v", w)
	}

	adopted := st.Adopt(v)
	if len(adopted) != 2 {
		t.Fatalf("adopted=%v", adopted)
	}
	if r := st.Agents["Harvester5"]; r.Role != tasks.Harvester || r.Zone != "Z1" || r.BornTick != 9 {
		t.Fatalf("harvester record: %+v", r)
	}
	if r := st.Agents["stray"]; r.Role != tasks.SimpleWorker || !r.CurrentTask.IsIdle() {
		t.Fatalf("stray record: %+v", r)
	}
}

func TestNormalize(t *testing.T) {
	st := &State{Agents: map[string]*AgentRecord{"a": {Role: tasks.Harvester}, "nil": nil}}
	st.Normalize()
	if st.Queues == nil {
		t.Fatalf("queues nil")
	}
	if _, ok := st.Agents["nil"]; ok {
		t.Fatalf("nil record kept")
	}
	if st.Agents["a"].CurrentTask.Kind != tasks.KindIdle {
		t.Fatalf("zero task not normalized: %+v", st.Agents["a"].CurrentTask)
	}
}
