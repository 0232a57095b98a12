package binding

import "sort"

type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Range is the Chebyshev distance (diagonal moves cost one).
func (p Pos) Range(q Pos) int {
	dx := abs(p.X - q.X)
	dy := abs(p.Y - q.Y)
	if dx > dy {
		return dx
	}
	return dy
}

func (p Pos) IsNear(q Pos) bool { return p.Range(q) <= 1 }

// Ring returns the eight tiles around p in a fixed order.
func (p Pos) Ring() [8]Pos {
	return [8]Pos{
		{p.X - 1, p.Y - 1}, {p.X, p.Y - 1}, {p.X + 1, p.Y - 1},
		{p.X - 1, p.Y}, {p.X + 1, p.Y},
		{p.X - 1, p.Y + 1}, {p.X, p.Y + 1}, {p.X + 1, p.Y + 1},
	}
}

type Node struct {
	ID     string `json:"id"`
	Pos    Pos    `json:"pos"`
	Amount int    `json:"amount"`
}

type Objective struct {
	ID    string `json:"id"`
	Pos   Pos    `json:"pos"`
	Level int    `json:"level"`
}

type Facility struct {
	ID         string `json:"id"`
	Pos        Pos    `json:"pos"`
	Busy       bool   `json:"busy"`
	Reserve    int    `json:"reserve"`
	ReserveCap int    `json:"reserve_cap"`
}

// Zone is a bounded area of the world. Terrain rows use '#' for impassable
// tiles; anything outside the rows is impassable too.
type Zone struct {
	Name      string     `json:"name"`
	Terrain   []string   `json:"terrain"`
	Nodes     []Node     `json:"nodes"`
	Objective *Objective `json:"objective,omitempty"`
	Facility  *Facility  `json:"facility,omitempty"`
}

func (z *Zone) InBounds(p Pos) bool {
	if p.Y < 0 || p.Y >= len(z.Terrain) {
		return false
	}
	return p.X >= 0 && p.X < len(z.Terrain[p.Y])
}

func (z *Zone) Impassable(p Pos) bool {
	if !z.InBounds(p) {
		return true
	}
	return z.Terrain[p.Y][p.X] == '#'
}

func (z *Zone) Node(id string) (Node, bool) {
	for _, n := range z.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// NearestNode picks the node closest to p, ties broken by id.
func (z *Zone) NearestNode(p Pos) (Node, bool) {
	if len(z.Nodes) == 0 {
		return Node{}, false
	}
	nodes := append([]Node(nil), z.Nodes...)
	sort.Slice(nodes, func(i, j int) bool {
		ri, rj := nodes[i].Pos.Range(p), nodes[j].Pos.Range(p)
		if ri != rj {
			return ri < rj
		}
		return nodes[i].ID < nodes[j].ID
	})
	return nodes[0], true
}

// AgentView is what the world reports about one live agent.
type AgentView struct {
	Name      string `json:"name"`
	Zone      string `json:"zone"`
	Pos       Pos    `json:"pos"`
	CargoUsed int    `json:"cargo_used"`
	CargoFree int    `json:"cargo_free"`
	Producing bool   `json:"producing"`
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
