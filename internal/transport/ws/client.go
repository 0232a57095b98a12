package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"hivemind.ai/internal/protocol"
	"hivemind.ai/internal/sim/binding"
)

// Client is the controller side of the lockstep protocol. Between Next and
// Done it behaves as a binding.Binding for the tick it last received.
type Client struct {
	conn    *websocket.Conn
	log     *log.Logger
	session string

	tick   uint64
	zones  []binding.Zone
	agents []binding.AgentView
	nextID uint64
	err    error
}

// Dial connects to a world server and completes the HELLO/WELCOME handshake.
func Dial(ctx context.Context, url, name, token string, logger *log.Logger) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}
	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      name,
		Token:           token,
	}
	if err := writeJSON(conn, hello); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send HELLO: %w", err)
	}
	var welcome protocol.WelcomeMsg
	if err := readFrame(conn, protocol.TypeWelcome, &welcome); err != nil {
		conn.Close()
		return nil, fmt.Errorf("read WELCOME: %w", err)
	}
	if logger != nil {
		logger.Printf("WELCOME session=%s tick=%d tick_rate=%d", welcome.SessionID, welcome.Tick, welcome.TickRateHz)
	}
	return &Client{conn: conn, log: logger, session: welcome.SessionID, tick: welcome.Tick}, nil
}

func (c *Client) Session() string { return c.session }

// Next blocks until the server pushes the next TICK.
func (c *Client) Next(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var msg protocol.TickMsg
	if err := readFrame(c.conn, protocol.TypeTick, &msg); err != nil {
		return err
	}
	c.tick = msg.Tick
	c.zones = msg.Zones
	c.agents = msg.Agents
	c.err = nil
	return nil
}

// Done releases the current tick to the server. It reports the first
// transport error seen by a command during the tick, if any.
func (c *Client) Done() error {
	err := writeJSON(c.conn, protocol.DoneMsg{
		Type:            protocol.TypeDone,
		ProtocolVersion: protocol.Version,
		Tick:            c.tick,
	})
	if c.err != nil {
		return c.err
	}
	return err
}

func (c *Client) Close() error {
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline())
	return c.conn.Close()
}

func (c *Client) Tick() uint64                { return c.tick }
func (c *Client) Zones() []binding.Zone       { return c.zones }
func (c *Client) Agents() []binding.AgentView { return c.agents }

func (c *Client) Harvest(agent, nodeID string) binding.Code {
	return c.code(protocol.MethodHarvest, protocol.CallArgs{Agent: agent, Target: nodeID})
}

func (c *Client) Advance(agent, objectiveID string) binding.Code {
	return c.code(protocol.MethodAdvance, protocol.CallArgs{Agent: agent, Target: objectiveID})
}

func (c *Client) Transfer(agent, facilityID string, res binding.Resource) binding.Code {
	return c.code(protocol.MethodTransfer, protocol.CallArgs{Agent: agent, Target: facilityID, Resource: string(res)})
}

func (c *Client) MoveByPath(agent string, steps []binding.Pos) binding.Code {
	if len(steps) == 0 {
		return binding.CodeInvalidArgs
	}
	return c.code(protocol.MethodMove, protocol.CallArgs{Agent: agent, Steps: steps})
}

func (c *Client) Produce(facilityID string, body []binding.Part, name string) binding.Code {
	parts := make([]string, len(body))
	for i, p := range body {
		parts[i] = string(p)
	}
	return c.code(protocol.MethodProduce, protocol.CallArgs{Target: facilityID, Body: parts, Name: name})
}

func (c *Client) Say(agent, text string) {
	c.code(protocol.MethodSay, protocol.CallArgs{Agent: agent, Text: text})
}

func (c *Client) FindPath(zone string, from, to binding.Pos) ([]binding.Pos, error) {
	reply, err := c.call(protocol.MethodFindPath, protocol.CallArgs{Zone: zone, From: &from, To: &to})
	if err != nil {
		return nil, err
	}
	switch binding.Code(reply.Code) {
	case binding.CodeOK:
		return reply.Steps, nil
	case binding.CodeNoPath:
		return nil, binding.ErrNoPath
	}
	return nil, fmt.Errorf("find_path: %s %s", reply.Code, reply.Message)
}

// code maps a reply onto a command result. Transport failures surface as
// E_INTERNAL so the controller treats them like any other unexpected code.
func (c *Client) code(method string, args protocol.CallArgs) binding.Code {
	reply, err := c.call(method, args)
	if err != nil {
		return binding.CodeInternal
	}
	code := binding.Code(reply.Code)
	if !binding.IsKnownCode(code) {
		if c.log != nil {
			c.log.Printf("%s: server code %s %s", method, reply.Code, reply.Message)
		}
		return binding.CodeInternal
	}
	return code
}

func (c *Client) call(method string, args protocol.CallArgs) (protocol.ReplyMsg, error) {
	if c.err != nil {
		return protocol.ReplyMsg{}, c.err
	}
	c.nextID++
	id := c.nextID
	call := protocol.CallMsg{
		Type:            protocol.TypeCall,
		ProtocolVersion: protocol.Version,
		ID:              id,
		Tick:            c.tick,
		Method:          method,
		Args:            args,
	}
	if err := writeJSON(c.conn, call); err != nil {
		c.err = fmt.Errorf("send CALL %s: %w", method, err)
		return protocol.ReplyMsg{}, c.err
	}
	var reply protocol.ReplyMsg
	if err := readFrame(c.conn, protocol.TypeReply, &reply); err != nil {
		c.err = fmt.Errorf("read REPLY %s: %w", method, err)
		return protocol.ReplyMsg{}, c.err
	}
	if reply.ID != id {
		c.err = fmt.Errorf("REPLY id %d, want %d", reply.ID, id)
		return protocol.ReplyMsg{}, c.err
	}
	return reply, nil
}

var errUnexpectedFrame = errors.New("unexpected frame")

func readFrame(conn *websocket.Conn, typ string, v any) error {
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return err
	}
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return err
	}
	if base.Type != typ {
		return fmt.Errorf("%w: got %s, want %s", errUnexpectedFrame, base.Type, typ)
	}
	return json.Unmarshal(msg, v)
}
