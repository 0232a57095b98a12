package gridworld

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"hivemind.ai/internal/sim/binding"
)

func testConfig() Config {
	return Config{
		Zones: []ZoneSpec{{
			Name: "z1",
			Terrain: []string{
				".......",
				".#####.",
				".......",
			},
			Nodes:     []NodeSpec{{ID: "n1", Pos: PosSpec{X: 0, Y: 0}, Amount: 10}},
			Objective: &ObjectiveSpec{ID: "o1", Pos: PosSpec{X: 6, Y: 0}, Level: 1},
			Facility:  &FacilitySpec{ID: "f1", Pos: PosSpec{X: 3, Y: 2}, Reserve: 300, ReserveCap: 400},
		}},
		Agents: []AgentSpec{
			{Name: "Harvester1", Zone: "z1", Pos: PosSpec{X: 1, Y: 0}, Body: []string{"move", "carry", "work"}},
		},
	}
}

func newTestWorld(t *testing.T) *World {
	t.Helper()
	w, err := New(testConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w
}

func TestAStar_RoutesAroundWall(t *testing.T) {
	w := newTestWorld(t)
	steps, err := w.FindPath("z1", binding.Pos{X: 1, Y: 2}, binding.Pos{X: 5, Y: 0})
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(steps) == 0 || steps[len(steps)-1] != (binding.Pos{X: 5, Y: 0}) {
		t.Fatalf("path must end on goal: %v", steps)
	}
	prev := binding.Pos{X: 1, Y: 2}
	for _, s := range steps {
		if !prev.IsNear(s) || prev == s {
			t.Fatalf("non-adjacent step %v -> %v in %v", prev, s, steps)
		}
		if s.Y == 1 && s.X >= 1 && s.X <= 5 {
			t.Fatalf("path crosses wall at %v", s)
		}
		prev = s
	}

	again, _ := w.FindPath("z1", binding.Pos{X: 1, Y: 2}, binding.Pos{X: 5, Y: 0})
	if len(again) != len(steps) {
		t.Fatalf("non-deterministic path: %v vs %v", steps, again)
	}
	for i := range steps {
		if steps[i] != again[i] {
			t.Fatalf("non-deterministic path: %v vs %v", steps, again)
		}
	}
}

func TestAStar_GoalOnStructureAllowed(t *testing.T) {
	w := newTestWorld(t)
	steps, err := w.FindPath("z1", binding.Pos{X: 4, Y: 0}, binding.Pos{X: 6, Y: 0})
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if len(steps) != 2 || steps[1] != (binding.Pos{X: 6, Y: 0}) {
		t.Fatalf("steps=%v", steps)
	}
}

func TestAStar_Unreachable(t *testing.T) {
	inBounds := func(p binding.Pos) bool { return p.X >= 0 && p.X < 5 && p.Y >= 0 && p.Y < 5 }
	blocked := func(p binding.Pos) bool { return p.X == 2 }
	if _, ok := AStar(binding.Pos{X: 0, Y: 0}, binding.Pos{X: 4, Y: 4}, inBounds, blocked); ok {
		t.Fatalf("expected no path across a full wall")
	}
	if _, ok := AStar(binding.Pos{}, binding.Pos{X: 9, Y: 9}, inBounds, blocked); ok {
		t.Fatalf("expected no path out of bounds")
	}

	w := newTestWorld(t)
	if _, err := w.FindPath("z1", binding.Pos{}, binding.Pos{X: 40}); !errors.Is(err, binding.ErrNoPath) {
		t.Fatalf("want ErrNoPath, got %v", err)
	}
	if _, err := w.FindPath("nope", binding.Pos{}, binding.Pos{X: 1}); err == nil || errors.Is(err, binding.ErrNoPath) {
		t.Fatalf("unknown zone must be a plain error, got %v", err)
	}
}

func TestHarvestAndTransfer(t *testing.T) {
	w := newTestWorld(t)
	if code := w.Harvest("Harvester1", "n1"); code != binding.CodeOK {
		t.Fatalf("harvest: %s", code)
	}
	if code := w.Harvest("Harvester1", "missing"); code != binding.CodeInvalidTarget {
		t.Fatalf("harvest missing node: %s", code)
	}
	if code := w.Harvest("Ghost", "n1"); code != binding.CodeNotFound {
		t.Fatalf("harvest unknown agent: %s", code)
	}
	for i := 0; i < 10; i++ {
		w.Harvest("Harvester1", "n1")
	}
	if code := w.Harvest("Harvester1", "n1"); code != binding.CodeNotEnough {
		t.Fatalf("depleted node: %s", code)
	}
	a := w.Agents()[0]
	if a.CargoUsed != 10 || a.CargoFree != 40 {
		t.Fatalf("cargo: %+v", a)
	}

	if code := w.Transfer("Harvester1", "f1", binding.ResourceEnergy); code != binding.CodeNotInRange {
		t.Fatalf("transfer out of range: %s", code)
	}
	if code := w.Transfer("Harvester1", "f1", "gold"); code != binding.CodeInvalidArgs {
		t.Fatalf("transfer bad resource: %s", code)
	}
}

func TestAdvanceLevelsUp(t *testing.T) {
	cfg := testConfig()
	cfg.ProgressPerLevel = 4
	cfg.Agents[0].Pos = PosSpec{X: 4, Y: 0}
	cfg.Agents[0].Cargo = 50
	cfg.Agents[0].Body = []string{"move", "carry", "work", "work"}
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < 2; i++ {
		if code := w.Advance("Harvester1", "o1"); code != binding.CodeOK {
			t.Fatalf("advance: %s", code)
		}
	}
	level, progress, _ := w.Objective("z1")
	if level != 2 || progress != 0 {
		t.Fatalf("level=%d progress=%d", level, progress)
	}
}

func TestMoveByPath(t *testing.T) {
	w := newTestWorld(t)
	path := []binding.Pos{{X: 2, Y: 0}, {X: 3, Y: 0}, {X: 4, Y: 0}}

	if code := w.MoveByPath("Harvester1", path); code != binding.CodeOK {
		t.Fatalf("first step: %s", code)
	}
	w.Step()
	if code := w.MoveByPath("Harvester1", path); code != binding.CodeOK {
		t.Fatalf("second step: %s", code)
	}
	if got := w.Agents()[0].Pos; got != (binding.Pos{X: 3, Y: 0}) {
		t.Fatalf("pos=%v", got)
	}
	w.Step()
	if code := w.MoveByPath("Harvester1", []binding.Pos{{X: 0, Y: 2}}); code != binding.CodeNotFound {
		t.Fatalf("detached path: %s", code)
	}
	if code := w.MoveByPath("Harvester1", []binding.Pos{{X: 3, Y: 1}}); code != binding.CodeBlocked {
		t.Fatalf("wall: %s", code)
	}
}

func TestMoveByPath_LoadedAgentTires(t *testing.T) {
	cfg := testConfig()
	cfg.Agents[0].Cargo = 20
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	path := []binding.Pos{{X: 2, Y: 0}, {X: 3, Y: 0}}
	if code := w.MoveByPath("Harvester1", path); code != binding.CodeOK {
		t.Fatalf("move: %s", code)
	}
	w.Step()
	if code := w.MoveByPath("Harvester1", path); code != binding.CodeTired {
		t.Fatalf("want tired, got %s", code)
	}
	w.Step()
	if code := w.MoveByPath("Harvester1", path); code != binding.CodeOK {
		t.Fatalf("rested move: %s", code)
	}
}

func TestProduce(t *testing.T) {
	w := newTestWorld(t)
	body := []binding.Part{binding.PartMove, binding.PartCarry, binding.PartWork}

	if code := w.Produce("f1", body, "Harvester1"); code != binding.CodeNameExists {
		t.Fatalf("collision: %s", code)
	}
	if code := w.Produce("f1", []binding.Part{"wings"}, "X"); code != binding.CodeInvalidArgs {
		t.Fatalf("bad body: %s", code)
	}
	if code := w.Produce("f9", body, "X"); code != binding.CodeInvalidTarget {
		t.Fatalf("bad facility: %s", code)
	}
	if code := w.Produce("f1", body, "Harvester2"); code != binding.CodeOK {
		t.Fatalf("produce: %s", code)
	}
	if code := w.Produce("f1", body, "Harvester3"); code != binding.CodeBusy {
		t.Fatalf("busy facility: %s", code)
	}
	if z := w.Zones()[0]; !z.Facility.Busy || z.Facility.Reserve != 100 {
		t.Fatalf("facility: %+v", z.Facility)
	}

	var spawned binding.AgentView
	for _, a := range w.Agents() {
		if a.Name == "Harvester2" {
			spawned = a
		}
	}
	if !spawned.Producing || spawned.CargoFree != 50 {
		t.Fatalf("spawned: %+v", spawned)
	}
	if code := w.Harvest("Harvester2", "n1"); code != binding.CodeBusy {
		t.Fatalf("producing agent acted: %s", code)
	}
	for i := 0; i < 9; i++ {
		w.Step()
	}
	for _, a := range w.Agents() {
		if a.Producing {
			t.Fatalf("%s still producing at tick %d", a.Name, w.Tick())
		}
	}
	if w.Zones()[0].Facility.Busy {
		t.Fatalf("facility still busy")
	}
	if code := w.Produce("f1", body, "Harvester3"); code != binding.CodeNotEnough {
		t.Fatalf("short reserve: %s", code)
	}
}

func TestStepExpiresAndRegenerates(t *testing.T) {
	cfg := testConfig()
	cfg.Agents[0].TTL = 2
	cfg.Zones[0].Nodes[0].RegenTicks = 3
	cfg.Zones[0].Facility.Regen = 60
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	w.Harvest("Harvester1", "n1")
	w.Step()
	if len(w.Agents()) != 1 {
		t.Fatalf("agent expired early")
	}
	w.Step()
	if len(w.Agents()) != 0 {
		t.Fatalf("agent should have expired")
	}
	w.Step()
	z := w.Zones()[0]
	if z.Nodes[0].Amount != 10 {
		t.Fatalf("node not regenerated: %d", z.Nodes[0].Amount)
	}
	if z.Facility.Reserve != 400 {
		t.Fatalf("reserve=%d", z.Facility.Reserve)
	}
}

func TestLoadYAML(t *testing.T) {
	p := filepath.Join(t.TempDir(), "world.yaml")
	raw := []byte(`
harvest_per_work: 5
zones:
  - name: a
    terrain: ["...", "..."]
    nodes:
      - {id: n1, pos: {x: 0, y: 0}, amount: 100}
    facility: {id: f1, pos: {x: 2, y: 1}, reserve: 500}
agents:
  - {name: Upgrader1, zone: a, pos: {x: 1, y: 1}, body: [move, carry, work]}
`)
	if err := os.WriteFile(p, raw, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HarvestPerWork != 5 || cfg.CarryPerPart != 50 || len(cfg.Zones) != 1 || len(cfg.Agents) != 1 {
		t.Fatalf("cfg: %+v", cfg)
	}
	if cfg.Zones[0].Facility.ReserveCap != 500 {
		t.Fatalf("reserve_cap not normalized: %+v", cfg.Zones[0].Facility)
	}

	bad := []byte("agents:\n  - {name: A, zone: nowhere}\n")
	if err := os.WriteFile(p, bad, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(p); err == nil {
		t.Fatalf("expected unknown zone error")
	}
}

func TestDefaultsNodeCapacity(t *testing.T) {
	w, err := New(Defaults())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	z := w.Zones()[0]
	for _, n := range z.Nodes {
		free := 0
		for _, p := range n.Pos.Ring() {
			if !z.Impassable(p) {
				free++
			}
		}
		if free != 3 {
			t.Fatalf("node %s has %d free tiles", n.ID, free)
		}
	}
}
