// Package binding describes the world-binding collaborator the colony core
// talks to: read-only zone/agent views plus the command surface (harvest,
// advance, transfer, move, produce) and the external path-finding service.
//
// Everything in here is owned by the world; the core never mutates it.
package binding

import "errors"

// ErrNoPath is returned by a PathFinder when the destination is unreachable.
var ErrNoPath = errors.New("no path")

// Part is one unit of an agent body.
type Part string

const (
	PartMove  Part = "move"
	PartCarry Part = "carry"
	PartWork  Part = "work"
)

func IsKnownPart(p Part) bool {
	switch p {
	case PartMove, PartCarry, PartWork:
		return true
	}
	return false
}

// Resource kinds carried by agents. Only one exists today.
type Resource string

const ResourceEnergy Resource = "energy"

// World is the per-tick read side of the binding.
type World interface {
	Tick() uint64
	Zones() []Zone
	Agents() []AgentView
}

// Commander issues side-effecting commands. Every call returns the world's
// result code synchronously.
type Commander interface {
	Harvest(agent, nodeID string) Code
	Advance(agent, objectiveID string) Code
	Transfer(agent, facilityID string, res Resource) Code
	MoveByPath(agent string, steps []Pos) Code
	Produce(facilityID string, body []Part, name string) Code
	Say(agent, text string)
}

// PathFinder is the external path-finding service. The returned steps exclude
// from and end on to.
type PathFinder interface {
	FindPath(zone string, from, to Pos) ([]Pos, error)
}

// Binding bundles the three collaborator roles.
type Binding interface {
	World
	Commander
	PathFinder
}
