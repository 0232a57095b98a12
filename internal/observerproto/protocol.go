// Package observerproto holds the read-only observer feed messages. It is
// versioned separately from the controller protocol.
package observerproto

import "hivemind.ai/internal/sim/binding"

const Version = "0.1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeFrame     = "FRAME"
)

// SubscribeMsg is the first message on an observer connection. It can be
// re-sent to change the zone filter; an empty filter means every zone.
type SubscribeMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	Zones           []string `json:"zones,omitempty"`
}

// BootstrapResponse is served at GET /admin/v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string     `json:"protocol_version"`
	Tick            uint64     `json:"tick"`
	TickRateHz      int        `json:"tick_rate_hz"`
	Zones           []ZoneInfo `json:"zones"`
}

// ZoneInfo is the static part of a zone; frames leave terrain out.
type ZoneInfo struct {
	Name    string   `json:"name"`
	Width   int      `json:"width"`
	Height  int      `json:"height"`
	Terrain []string `json:"terrain"`
}

// FrameMsg is pushed after every world step.
type FrameMsg struct {
	Type            string       `json:"type"`
	ProtocolVersion string       `json:"protocol_version"`
	Tick            uint64       `json:"tick"`
	Zones           []ZoneFrame  `json:"zones"`
	Agents          []AgentFrame `json:"agents"`
}

type ZoneFrame struct {
	Name      string             `json:"name"`
	Nodes     []binding.Node     `json:"nodes"`
	Objective *binding.Objective `json:"objective,omitempty"`
	Facility  *binding.Facility  `json:"facility,omitempty"`
}

type AgentFrame struct {
	Name      string      `json:"name"`
	Zone      string      `json:"zone"`
	Pos       binding.Pos `json:"pos"`
	Cargo     int         `json:"cargo"`
	Producing bool        `json:"producing,omitempty"`
}

func ZoneInfoOf(z binding.Zone) ZoneInfo {
	width := 0
	for _, row := range z.Terrain {
		width = max(width, len(row))
	}
	return ZoneInfo{Name: z.Name, Width: width, Height: len(z.Terrain), Terrain: z.Terrain}
}

// Frame builds the frame for one world state. keep filters zones (and the
// agents in them); nil keeps everything.
func Frame(tick uint64, zones []binding.Zone, agents []binding.AgentView, keep func(zone string) bool) FrameMsg {
	f := FrameMsg{Type: TypeFrame, ProtocolVersion: Version, Tick: tick, Zones: []ZoneFrame{}, Agents: []AgentFrame{}}
	for _, z := range zones {
		if keep != nil && !keep(z.Name) {
			continue
		}
		f.Zones = append(f.Zones, ZoneFrame{Name: z.Name, Nodes: z.Nodes, Objective: z.Objective, Facility: z.Facility})
	}
	for _, a := range agents {
		if keep != nil && !keep(a.Zone) {
			continue
		}
		f.Agents = append(f.Agents, AgentFrame{Name: a.Name, Zone: a.Zone, Pos: a.Pos, Cargo: a.CargoUsed, Producing: a.Producing})
	}
	return f
}
