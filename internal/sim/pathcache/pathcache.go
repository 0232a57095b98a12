// Package pathcache gets one agent to, or next to, a destination while
// recomputing paths as rarely as possible. Paths are opaque to everything
// outside this package.
package pathcache

import (
	"errors"

	"hivemind.ai/internal/sim/binding"
	"hivemind.ai/internal/sim/encoding"
)

type Proximity string

const (
	Exact    Proximity = "EXACT"
	Adjacent Proximity = "ADJACENT"
)

// Satisfied reports whether pos is close enough to dest.
func (p Proximity) Satisfied(pos, dest binding.Pos) bool {
	if p == Exact {
		return pos == dest
	}
	return pos.IsNear(dest)
}

// Path is a cached movement plan. Dest and Proximity record what it was
// computed for; a request for anything else is a cache miss.
type Path struct {
	Encoded   string
	Dest      binding.Pos
	Proximity Proximity
}

// Holder owns at most one cached path.
type Holder interface {
	CachedPath() *Path
	SetCachedPath(*Path)
}

// Result describes what MoveToward did.
type Result struct {
	Arrived bool
	Issued  bool
	Fresh   bool
	Code    binding.Code
}

type Cache struct {
	cmd    binding.Commander
	finder binding.PathFinder
}

func New(cmd binding.Commander, finder binding.PathFinder) *Cache {
	return &Cache{cmd: cmd, finder: finder}
}

// MoveToward issues at most one move command bringing agent toward dest.
//
// A cached path survives only an OK or tired result; any other result drops
// it so the next tick plans again from wherever the agent ended up.
func (c *Cache) MoveToward(agent binding.AgentView, h Holder, dest binding.Pos, prox Proximity) Result {
	if prox.Satisfied(agent.Pos, dest) {
		h.SetCachedPath(nil)
		return Result{Arrived: true}
	}

	p := h.CachedPath()
	fresh := false
	if p == nil || p.Dest != dest || p.Proximity != prox {
		np, code := c.plan(agent, dest, prox)
		if np == nil {
			h.SetCachedPath(nil)
			return Result{Code: code}
		}
		p, fresh = np, true
	}

	steps, err := encoding.DecodePath(p.Encoded)
	if err != nil || len(steps) == 0 {
		h.SetCachedPath(nil)
		return Result{Code: binding.CodeInvalidArgs}
	}

	code := c.cmd.MoveByPath(agent.Name, steps)
	switch code {
	case binding.CodeOK, binding.CodeTired:
		h.SetCachedPath(p)
	default:
		h.SetCachedPath(nil)
	}
	return Result{Issued: true, Fresh: fresh, Code: code}
}

func (c *Cache) plan(agent binding.AgentView, dest binding.Pos, prox Proximity) (*Path, binding.Code) {
	steps, err := c.finder.FindPath(agent.Zone, agent.Pos, dest)
	if err != nil {
		if errors.Is(err, binding.ErrNoPath) {
			return nil, binding.CodeNoPath
		}
		return nil, binding.CodeInternal
	}
	steps = Trim(steps, dest, prox)
	if len(steps) == 0 {
		return nil, binding.CodeNoPath
	}
	enc, err := encoding.EncodePath(steps)
	if err != nil {
		return nil, binding.CodeInvalidArgs
	}
	return &Path{Encoded: enc, Dest: dest, Proximity: prox}, binding.CodeOK
}

// Trim drops the final waypoint of an Adjacent plan so the agent halts one
// tile short. A plan that already stops short of dest is left alone.
func Trim(steps []binding.Pos, dest binding.Pos, prox Proximity) []binding.Pos {
	if prox != Adjacent || len(steps) == 0 {
		return steps
	}
	if steps[len(steps)-1] != dest {
		return steps
	}
	return steps[:len(steps)-1]
}
