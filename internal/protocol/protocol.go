// Package protocol defines the websocket frames spoken between a world
// server and a remote controller. The server pushes one TICK per world tick;
// the controller answers with CALLs (each acknowledged by a REPLY) and
// closes the tick with DONE.
package protocol

import "encoding/json"

const Version = "1.0"

// Frame types.
const (
	TypeHello   = "HELLO"
	TypeWelcome = "WELCOME"
	TypeTick    = "TICK"
	TypeCall    = "CALL"
	TypeReply   = "REPLY"
	TypeDone    = "DONE"
)

// BaseMessage lets us route unknown JSON frames by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
