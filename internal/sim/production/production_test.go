package production

import (
	"testing"

	"hivemind.ai/internal/sim/binding"
	"hivemind.ai/internal/sim/diag"
	"hivemind.ai/internal/sim/session"
	"hivemind.ai/internal/sim/tasks"
	"hivemind.ai/internal/sim/tuning"
)

type produceCall struct {
	facility string
	body     []binding.Part
	name     string
}

type fakeCmd struct {
	calls []produceCall
	code  binding.Code
}

func (f *fakeCmd) Produce(facilityID string, body []binding.Part, name string) binding.Code {
	f.calls = append(f.calls, produceCall{facilityID, body, name})
	return f.code
}
func (f *fakeCmd) Harvest(string, string) binding.Code                   { return binding.CodeOK }
func (f *fakeCmd) Advance(string, string) binding.Code                   { return binding.CodeOK }
func (f *fakeCmd) Transfer(string, string, binding.Resource) binding.Code { return binding.CodeOK }
func (f *fakeCmd) MoveByPath(string, []binding.Pos) binding.Code         { return binding.CodeOK }
func (f *fakeCmd) Say(string, string)                                    {}

func zone(reserve int, busy bool) binding.Zone {
	return binding.Zone{
		Name:     "Z1",
		Terrain:  []string{".....", "....."},
		Facility: &binding.Facility{ID: "fac", Pos: binding.Pos{X: 2, Y: 1}, Reserve: reserve, Busy: busy},
	}
}

func stateWithQueues() *session.State {
	st := session.NewState()
	zq := st.Queues.Zone("Z1")
	zq[tasks.Harvester] = []tasks.Task{tasks.Harvest("Z1", "n1", 1)}
	zq[tasks.Upgrader] = []tasks.Task{tasks.Advance("Z1", "obj", 4)}
	return st
}

func TestProduce_BelowThresholdNeverProduces(t *testing.T) {
	cmd := &fakeCmd{code: binding.CodeOK}
	m := New(cmd, tuning.Defaults(), nil)
	st := stateWithQueues()

	for _, reserve := range []int{0, 150, 299} {
		got := m.Produce(binding.NewView(40, []binding.Zone{zone(reserve, false)}, nil), st)
		if len(got) != 0 || len(cmd.calls) != 0 {
			t.Fatalf("reserve %d produced %v", reserve, cmd.calls)
		}
	}
	if len(st.Agents) != 0 {
		t.Fatalf("records created: %v", st.Agents)
	}
}

func TestProduce_BusyFacility(t *testing.T) {
	cmd := &fakeCmd{code: binding.CodeOK}
	m := New(cmd, tuning.Defaults(), nil)
	m.Produce(binding.NewView(40, []binding.Zone{zone(1000, true)}, nil), stateWithQueues())
	if len(cmd.calls) != 0 {
		t.Fatalf("busy facility produced: %v", cmd.calls)
	}
}

func TestProduce_RolePriorityAndRecord(t *testing.T) {
	cmd := &fakeCmd{code: binding.CodeOK}
	var rec diag.Recorder
	m := New(cmd, tuning.Defaults(), &rec)
	st := stateWithQueues()

	got := m.Produce(binding.NewView(40, []binding.Zone{zone(300, false)}, nil), st)
	if len(got) != 1 || got[0].Role != tasks.Harvester || got[0].Name != "Harvester40" {
		t.Fatalf("produced=%+v", got)
	}
	c := cmd.calls[0]
	if c.facility != "fac" || len(c.body) != 3 || c.body[0] != binding.PartMove {
		t.Fatalf("call=%+v", c)
	}
	r := st.Agents["Harvester40"]
	if r == nil || r.Role != tasks.Harvester || !r.CurrentTask.IsIdle() || r.Path != nil || r.Zone != "Z1" {
		t.Fatalf("record=%+v", r)
	}
	if rec.Count(diag.KindProduced) != 1 {
		t.Fatalf("diagnostics=%v", rec.Entries)
	}

	// The idle harvester now covers the only harvest slot: next demand is Upgrader.
	got = m.Produce(binding.NewView(41, []binding.Zone{zone(300, false)}, nil), st)
	if len(got) != 1 || got[0].Role != tasks.Upgrader {
		t.Fatalf("second produce=%+v", got)
	}
}

func TestProduce_NoDemand(t *testing.T) {
	cmd := &fakeCmd{code: binding.CodeOK}
	m := New(cmd, tuning.Defaults(), nil)
	st := session.NewState()
	full := tasks.Harvest("Z1", "n1", 1)
	full.Workers = []string{"h"}
	st.Queues.Zone("Z1")[tasks.Harvester] = []tasks.Task{full}

	m.Produce(binding.NewView(40, []binding.Zone{zone(1000, false)}, nil), st)
	if len(cmd.calls) != 0 {
		t.Fatalf("produced without demand: %v", cmd.calls)
	}
}

func TestProduce_RejectedCreatesNoRecord(t *testing.T) {
	cmd := &fakeCmd{code: binding.CodeNotEnough}
	var rec diag.Recorder
	m := New(cmd, tuning.Defaults(), &rec)
	st := stateWithQueues()

	got := m.Produce(binding.NewView(40, []binding.Zone{zone(300, false)}, nil), st)
	if len(got) != 0 || len(st.Agents) != 0 {
		t.Fatalf("rejected production created %v / %v", got, st.Agents)
	}
	if rec.Count(diag.KindProduceFail) != 1 {
		t.Fatalf("diagnostics=%v", rec.Entries)
	}
}

func TestProduce_NameCollisionGetsSuffix(t *testing.T) {
	cmd := &fakeCmd{code: binding.CodeOK}
	m := New(cmd, tuning.Defaults(), nil)
	m.newSuffix = func() string { return "x1" }
	st := stateWithQueues()
	st.Queues.Zone("Z1")[tasks.Harvester][0].Capacity = 5
	st.Agents["Harvester40"] = session.NewAgentRecord(tasks.Harvester, "Z0", 0)

	got := m.Produce(binding.NewView(40, []binding.Zone{zone(300, false)}, nil), st)
	if len(got) != 1 || got[0].Name != "Harvester40-x1" {
		t.Fatalf("produced=%+v", got)
	}
}

func TestBodyFor(t *testing.T) {
	b := tuning.Defaults().Body
	if got := BodyFor(b, 10000); len(got) != 3 {
		t.Fatalf("base body without extend: %v", got)
	}
	b.Extend = true
	// budget = 800*0.8 = 640; base 200 + 2 groups of 200 = 600.
	if got := BodyFor(b, 800); len(got) != 9 {
		t.Fatalf("extended body: %v (cost %d)", got, Cost(b, got))
	}
	// Never below the base body even when the budget is short.
	if got := BodyFor(b, 100); len(got) != 3 {
		t.Fatalf("short budget body: %v", got)
	}
	b.MaxParts = 5
	if got := BodyFor(b, 100000); len(got) != 3 {
		t.Fatalf("part cap ignored: %v", got)
	}
}
