// Package production decides, per zone, whether a facility should produce a
// new agent and of which role.
package production

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"hivemind.ai/internal/sim/binding"
	"hivemind.ai/internal/sim/diag"
	"hivemind.ai/internal/sim/session"
	"hivemind.ai/internal/sim/tasks"
	"hivemind.ai/internal/sim/tuning"
)

type Manager struct {
	cmd  binding.Commander
	tune tuning.Tuning
	sink diag.Sink

	newSuffix func() string
}

func New(cmd binding.Commander, tune tuning.Tuning, sink diag.Sink) *Manager {
	if sink == nil {
		sink = diag.Discard
	}
	return &Manager{
		cmd:       cmd,
		tune:      tune,
		sink:      sink,
		newSuffix: func() string { return strings.SplitN(uuid.NewString(), "-", 2)[0] },
	}
}

type Produced struct {
	Name     string
	Role     tasks.Role
	Zone     string
	Facility string
	Body     []binding.Part
}

// Produce runs one production decision per zone with a facility.
func (m *Manager) Produce(v *binding.View, st *session.State) []Produced {
	var out []Produced
	for i := range v.Zones() {
		z := &v.Zones()[i]
		fac := z.Facility
		if fac == nil || fac.Busy || fac.Reserve < m.tune.ProduceThreshold {
			continue
		}
		role, ok := Demand(st, z.Name)
		if !ok {
			continue
		}

		body := BodyFor(m.tune.Body, fac.Reserve)
		name := m.uniqueName(role, v, st)
		code := m.cmd.Produce(fac.ID, body, name)
		if code != binding.CodeOK {
			m.sink.Emit(diag.Entry{Tick: v.Tick, Kind: diag.KindProduceFail, Zone: z.Name, Role: string(role), Agent: name, Code: string(code)})
			continue
		}

		st.Agents[name] = session.NewAgentRecord(role, z.Name, v.Tick)
		m.sink.Emit(diag.Entry{Tick: v.Tick, Kind: diag.KindProduced, Zone: z.Name, Role: string(role), Agent: name, Message: fmt.Sprintf("facility=%s body=%v", fac.ID, body)})
		out = append(out, Produced{Name: name, Role: role, Zone: z.Name, Facility: fac.ID, Body: body})
	}
	return out
}

// Demand walks the zone's queues in role priority and returns the role of
// the first task that still needs workers. Idle agents of that role already
// in the zone (for example ones still being produced) fill the spare slots
// first, so the same gap does not trigger production twice.
func Demand(st *session.State, zone string) (tasks.Role, bool) {
	zq := st.Queues[zone]
	if zq == nil {
		return "", false
	}
	pending := map[tasks.Role]int{}
	for _, rec := range st.Agents {
		if rec.Zone == zone && rec.CurrentTask.IsIdle() {
			pending[rec.Role]++
		}
	}
	for _, role := range tasks.RolePriority {
		spare := 0
		for _, t := range zq[role] {
			if t.HasRoom() {
				spare += t.Capacity - len(t.Workers)
			}
		}
		if spare > pending[role] {
			return role, true
		}
	}
	return "", false
}

func (m *Manager) uniqueName(role tasks.Role, v *binding.View, st *session.State) string {
	name := fmt.Sprintf("%s%d", role, v.Tick)
	for taken(name, v, st) {
		name = fmt.Sprintf("%s%d-%s", role, v.Tick, m.newSuffix())
	}
	return name
}

func taken(name string, v *binding.View, st *session.State) bool {
	if _, ok := st.Agents[name]; ok {
		return true
	}
	return v.Alive(name)
}
