// Package tasks defines the closed set of assignable task kinds, the worker
// roles that take them, and the per-zone queues they live in.
package tasks

import "sort"

type Kind string

const (
	KindIdle    Kind = "IDLE"
	KindHarvest Kind = "HARVEST_RESOURCE"
	KindAdvance Kind = "ADVANCE_OBJECTIVE"
	KindDeposit Kind = "DEPOSIT_RESOURCE"
)

// Task is a unit of assignable work. The zero value is Idle.
//
// Workers is kept sorted and duplicate-free; it holds agent names.
type Task struct {
	Kind     Kind
	Zone     string
	TargetID string
	Capacity int
	Workers  []string
}

// Key identifies a queued task independently of its worker set.
type Key struct {
	Kind     Kind
	Zone     string
	TargetID string
}

func Idle() Task { return Task{Kind: KindIdle} }

func Harvest(zone, nodeID string, capacity int) Task {
	return Task{Kind: KindHarvest, Zone: zone, TargetID: nodeID, Capacity: capacity}
}

func Advance(zone, objectiveID string, capacity int) Task {
	return Task{Kind: KindAdvance, Zone: zone, TargetID: objectiveID, Capacity: capacity}
}

func Deposit(zone, facilityID string, capacity int) Task {
	return Task{Kind: KindDeposit, Zone: zone, TargetID: facilityID, Capacity: capacity}
}

func (t Task) IsIdle() bool { return t.Kind == KindIdle || t.Kind == "" }

func (t Task) Key() Key { return Key{Kind: t.Kind, Zone: t.Zone, TargetID: t.TargetID} }

// Role reports which worker class may take t. Idle has no role.
func (t Task) Role() (Role, bool) {
	switch t.Kind {
	case KindHarvest:
		return Harvester, true
	case KindAdvance:
		return Upgrader, true
	case KindDeposit:
		return SimpleWorker, true
	case KindIdle, "":
		return "", false
	}
	return "", false
}

func (t Task) HasRoom() bool { return len(t.Workers) < t.Capacity }

func (t Task) HasWorker(name string) bool {
	i := sort.SearchStrings(t.Workers, name)
	return i < len(t.Workers) && t.Workers[i] == name
}

// AddWorker adds name if there is room. It reports whether name is a worker
// afterwards.
func (t *Task) AddWorker(name string) bool {
	i := sort.SearchStrings(t.Workers, name)
	if i < len(t.Workers) && t.Workers[i] == name {
		return true
	}
	if !t.HasRoom() {
		return false
	}
	t.Workers = append(t.Workers, "")
	copy(t.Workers[i+1:], t.Workers[i:])
	t.Workers[i] = name
	return true
}

func (t *Task) RemoveWorker(name string) bool {
	i := sort.SearchStrings(t.Workers, name)
	if i >= len(t.Workers) || t.Workers[i] != name {
		return false
	}
	t.Workers = append(t.Workers[:i], t.Workers[i+1:]...)
	return true
}

// Clone returns a copy that does not share the worker slice.
func (t Task) Clone() Task {
	c := t
	if t.Workers != nil {
		c.Workers = append([]string(nil), t.Workers...)
	}
	return c
}
