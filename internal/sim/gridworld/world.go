// Package gridworld is a small in-process world the colony controller can
// run against: rectangular zones, regenerating resource nodes, one objective
// and one production facility per zone. It implements binding.Binding and is
// safe for concurrent use, so a websocket server can drive it from its own
// goroutine.
package gridworld

import (
	"fmt"
	"sort"
	"sync"

	"hivemind.ai/internal/sim/binding"
)

const (
	harvestRange  = 1
	advanceRange  = 3
	transferRange = 1
)

type World struct {
	mu sync.Mutex

	cfg    Config
	tick   uint64
	zones  []*zone
	byName map[string]*zone
	agents map[string]*agent
}

type zone struct {
	name       string
	terrain    []string
	nodes      []*node
	objective  *objective
	facility   *facility
	structures map[binding.Pos]bool
}

type node struct {
	id         string
	pos        binding.Pos
	amount     int
	max        int
	regenTicks int
}

type objective struct {
	id       string
	pos      binding.Pos
	level    int
	progress int
}

type facility struct {
	id        string
	pos       binding.Pos
	reserve   int
	cap       int
	regen     int
	busyUntil uint64
}

type agent struct {
	name           string
	zone           string
	pos            binding.Pos
	body           []binding.Part
	cargo          int
	fatigue        int
	producingUntil uint64
	expires        uint64
	said           string
}

func New(cfg Config) (*World, error) {
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	w := &World{
		cfg:    cfg,
		byName: map[string]*zone{},
		agents: map[string]*agent{},
	}
	for _, zs := range cfg.Zones {
		z := &zone{
			name:       zs.Name,
			terrain:    append([]string(nil), zs.Terrain...),
			structures: map[binding.Pos]bool{},
		}
		for _, ns := range zs.Nodes {
			z.nodes = append(z.nodes, &node{id: ns.ID, pos: ns.Pos.pos(), amount: ns.Amount, max: ns.Amount, regenTicks: ns.RegenTicks})
			z.structures[ns.Pos.pos()] = true
		}
		if o := zs.Objective; o != nil {
			z.objective = &objective{id: o.ID, pos: o.Pos.pos(), level: o.Level}
			z.structures[o.Pos.pos()] = true
		}
		if f := zs.Facility; f != nil {
			z.facility = &facility{id: f.ID, pos: f.Pos.pos(), reserve: f.Reserve, cap: f.ReserveCap, regen: f.Regen}
			z.structures[f.Pos.pos()] = true
		}
		w.zones = append(w.zones, z)
		w.byName[z.name] = z
	}
	for _, as := range cfg.Agents {
		a := &agent{name: as.Name, zone: as.Zone, pos: as.Pos.pos(), cargo: as.Cargo}
		for _, p := range as.Body {
			a.body = append(a.body, binding.Part(p))
		}
		if as.TTL > 0 {
			a.expires = uint64(as.TTL)
		}
		if capacity := a.capacity(cfg.CarryPerPart); a.cargo > capacity {
			a.cargo = capacity
		}
		w.agents[a.name] = a
	}
	return w, nil
}

func (w *World) TickRateHz() int { return w.cfg.TickRateHz }

func (w *World) Tick() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tick
}

func (w *World) Zones() []binding.Zone {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]binding.Zone, 0, len(w.zones))
	for _, z := range w.zones {
		bz := binding.Zone{
			Name:    z.name,
			Terrain: append([]string(nil), z.terrain...),
			Nodes:   make([]binding.Node, 0, len(z.nodes)),
		}
		for _, n := range z.nodes {
			bz.Nodes = append(bz.Nodes, binding.Node{ID: n.id, Pos: n.pos, Amount: n.amount})
		}
		if o := z.objective; o != nil {
			bz.Objective = &binding.Objective{ID: o.id, Pos: o.pos, Level: o.level}
		}
		if f := z.facility; f != nil {
			bz.Facility = &binding.Facility{ID: f.id, Pos: f.pos, Busy: w.tick < f.busyUntil, Reserve: f.reserve, ReserveCap: f.cap}
		}
		out = append(out, bz)
	}
	return out
}

// Agents returns every live agent in name order.
func (w *World) Agents() []binding.AgentView {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]binding.AgentView, 0, len(w.agents))
	for _, a := range w.agents {
		out = append(out, w.viewLocked(a))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (w *World) viewLocked(a *agent) binding.AgentView {
	capacity := a.capacity(w.cfg.CarryPerPart)
	return binding.AgentView{
		Name:      a.name,
		Zone:      a.zone,
		Pos:       a.pos,
		CargoUsed: a.cargo,
		CargoFree: capacity - a.cargo,
		Producing: w.tick < a.producingUntil,
	}
}

// Step advances the world one tick: facilities refill, nodes regenerate,
// fatigue wears off and expired agents are removed.
func (w *World) Step() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tick++
	for _, z := range w.zones {
		if f := z.facility; f != nil && f.regen > 0 {
			f.reserve = min(f.cap, f.reserve+f.regen)
		}
		for _, n := range z.nodes {
			if n.regenTicks > 0 && w.tick%uint64(n.regenTicks) == 0 {
				n.amount = n.max
			}
		}
	}
	for name, a := range w.agents {
		if a.expires > 0 && w.tick >= a.expires {
			delete(w.agents, name)
			continue
		}
		a.fatigue = max(0, a.fatigue-2*a.parts(binding.PartMove))
	}
}

// Kill removes an agent immediately.
func (w *World) Kill(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.agents, name)
}

// Said returns the last text an agent said.
func (w *World) Said(name string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	if a, ok := w.agents[name]; ok {
		return a.said
	}
	return ""
}

// Objective reports the level and progress of a zone's objective.
func (w *World) Objective(zoneName string) (level, progress int, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	z, found := w.byName[zoneName]
	if !found || z.objective == nil {
		return 0, 0, false
	}
	return z.objective.level, z.objective.progress, true
}

// SetReserve overwrites a facility's reserve, clamped to its cap.
func (w *World) SetReserve(facilityID string, reserve int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, f := w.facilityLocked(facilityID)
	if f == nil {
		return fmt.Errorf("unknown facility %q", facilityID)
	}
	f.reserve = max(0, min(f.cap, reserve))
	return nil
}

func (w *World) facilityLocked(id string) (*zone, *facility) {
	for _, z := range w.zones {
		if z.facility != nil && z.facility.id == id {
			return z, z.facility
		}
	}
	return nil, nil
}

func (z *zone) blocked(p binding.Pos) bool {
	if z.structures[p] {
		return true
	}
	bz := binding.Zone{Terrain: z.terrain}
	return bz.Impassable(p)
}

func (z *zone) inBounds(p binding.Pos) bool {
	bz := binding.Zone{Terrain: z.terrain}
	return bz.InBounds(p)
}

func (a *agent) parts(p binding.Part) int {
	n := 0
	for _, b := range a.body {
		if b == p {
			n++
		}
	}
	return n
}

func (a *agent) capacity(perPart int) int { return a.parts(binding.PartCarry) * perPart }
