package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"hivemind.ai/internal/protocol"
	"hivemind.ai/internal/sim/binding"
)

// Backend is a world that can be driven remotely one tick at a time.
type Backend interface {
	binding.Binding
	Step()
}

// Server exposes a Backend to a single remote controller in lockstep: the
// world only advances after the controller sends DONE for the current tick,
// and never faster than tickRateHz (0 means as fast as the controller goes).
type Server struct {
	backend    Backend
	tickRateHz int
	log        *log.Logger
	schemas    *protocol.Schemas

	busy     atomic.Bool
	upgrader websocket.Upgrader
}

func NewServer(b Backend, tickRateHz int, logger *log.Logger) (*Server, error) {
	schemas, err := protocol.LoadSchemas()
	if err != nil {
		return nil, err
	}
	return &Server{
		backend:    b,
		tickRateHz: tickRateHz,
		log:        logger,
		schemas:    schemas,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}, nil
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		if !s.busy.CompareAndSwap(false, true) {
			closeWith(conn, protocol.ErrWorldBusy)
			return
		}
		defer s.busy.Store(false)

		session, ok := s.handshake(conn)
		if !ok {
			return
		}
		s.printf("controller attached session=%s", session)
		err = s.serve(r.Context(), conn)
		s.printf("controller detached session=%s err=%v", session, err)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (string, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}
	if err := s.schemas.Validate(msg); err != nil {
		closeWith(conn, protocol.ErrProtoBadRequest)
		return "", false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil || hello.Type != protocol.TypeHello {
		closeWith(conn, protocol.ErrProtoBadRequest)
		return "", false
	}
	if hello.ProtocolVersion != protocol.Version {
		closeWith(conn, protocol.ErrProtoVersion)
		return "", false
	}

	session := uuid.NewString()
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       session,
		TickRateHz:      s.tickRateHz,
		Tick:            s.backend.Tick(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		return "", false
	}
	return session, true
}

func (s *Server) serve(ctx context.Context, conn *websocket.Conn) error {
	var pace <-chan time.Time
	if s.tickRateHz > 0 {
		ticker := time.NewTicker(time.Second / time.Duration(s.tickRateHz))
		defer ticker.Stop()
		pace = ticker.C
	}

	for {
		tick := s.backend.Tick()
		if err := writeJSON(conn, s.tickMsg(tick)); err != nil {
			return err
		}
		if err := s.serveTick(conn, tick); err != nil {
			return err
		}
		if pace != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-pace:
			}
		}
		s.backend.Step()
	}
}

// serveTick answers CALLs until the controller sends DONE for tick.
func (s *Server) serveTick(conn *websocket.Conn, tick uint64) error {
	for {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeDone:
			var done protocol.DoneMsg
			if err := json.Unmarshal(msg, &done); err == nil && done.Tick == tick {
				return nil
			}
		case protocol.TypeCall:
			var call protocol.CallMsg
			_ = json.Unmarshal(msg, &call)
			var reply protocol.ReplyMsg
			verr := s.schemas.Validate(msg)
			switch {
			case base.ProtocolVersion != protocol.Version:
				reply = replyCode(call.ID, protocol.ErrProtoVersion, "")
			case verr != nil:
				reply = replyCode(call.ID, protocol.ErrProtoBadRequest, verr.Error())
			case call.Tick != tick:
				reply = replyCode(call.ID, protocol.ErrStale, "")
			default:
				reply = Dispatch(s.backend, call)
			}
			if err := writeJSON(conn, reply); err != nil {
				return err
			}
		}
	}
}

func (s *Server) tickMsg(tick uint64) protocol.TickMsg {
	return protocol.TickMsg{
		Type:            protocol.TypeTick,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Zones:           s.backend.Zones(),
		Agents:          s.backend.Agents(),
	}
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), deadline())
}

func deadline() time.Time { return time.Now().Add(time.Second) }

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
