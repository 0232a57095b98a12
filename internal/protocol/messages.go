package protocol

import "hivemind.ai/internal/sim/binding"

// HELLO (controller -> server)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ClientName      string `json:"client_name"`
	Token           string `json:"token,omitempty"`
}

// WELCOME (server -> controller)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	TickRateHz      int    `json:"tick_rate_hz"`
	Tick            uint64 `json:"tick"`
}

// TICK (server -> controller): the whole world view for one tick.
type TickMsg struct {
	Type            string              `json:"type"`
	ProtocolVersion string              `json:"protocol_version"`
	Tick            uint64              `json:"tick"`
	Zones           []binding.Zone      `json:"zones"`
	Agents          []binding.AgentView `json:"agents"`
}

// Call methods.
const (
	MethodHarvest  = "harvest"
	MethodAdvance  = "advance"
	MethodTransfer = "transfer"
	MethodMove     = "move_by_path"
	MethodProduce  = "produce"
	MethodSay      = "say"
	MethodFindPath = "find_path"
)

// CALL (controller -> server)
type CallMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ID              uint64   `json:"id"`
	Tick            uint64   `json:"tick"`
	Method          string   `json:"method"`
	Args            CallArgs `json:"args"`
}

// CallArgs is the union of every method's arguments.
type CallArgs struct {
	Agent    string        `json:"agent,omitempty"`
	Target   string        `json:"target,omitempty"`
	Resource string        `json:"resource,omitempty"`
	Steps    []binding.Pos `json:"steps,omitempty"`
	Body     []string      `json:"body,omitempty"`
	Name     string        `json:"name,omitempty"`
	Text     string        `json:"text,omitempty"`
	Zone     string        `json:"zone,omitempty"`
	From     *binding.Pos  `json:"from,omitempty"`
	To       *binding.Pos  `json:"to,omitempty"`
}

// REPLY (server -> controller)
type ReplyMsg struct {
	Type            string        `json:"type"`
	ProtocolVersion string        `json:"protocol_version"`
	ID              uint64        `json:"id"`
	Code            string        `json:"code"`
	Steps           []binding.Pos `json:"steps,omitempty"`
	Message         string        `json:"message,omitempty"`
}

// DONE (controller -> server): the controller is finished with Tick.
type DoneMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	Tick            uint64 `json:"tick"`
}
