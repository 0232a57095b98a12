// Package observer streams read-only world frames to viewers over
// websocket. Observers never issue commands.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"hivemind.ai/internal/observerproto"
	"hivemind.ai/internal/sim/binding"
)

// Source is the world the feed reads from.
type Source interface {
	binding.World
	TickRateHz() int
}

const (
	maxObservers = 64
	outBuffer    = 8
)

type subscriber struct {
	id    string
	zones map[string]bool
	out   chan []byte
}

func (s *subscriber) keep(zone string) bool {
	return len(s.zones) == 0 || s.zones[zone]
}

type Server struct {
	src Source
	log *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu   sync.Mutex
	subs map[string]*subscriber
}

func NewServer(src Source, logger *log.Logger) *Server {
	return &Server{
		src:  src,
		log:  logger,
		subs: map[string]*subscriber{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Observers reports the number of connected observers.
func (s *Server) Observers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.subs)
}

// Dropped counts frames skipped because an observer was not keeping up.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// Publish sends the current world state to every observer. Slow observers
// miss frames instead of stalling the caller.
func (s *Server) Publish() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) == 0 {
		return
	}
	tick, zones, agents := s.src.Tick(), s.src.Zones(), s.src.Agents()
	for _, sub := range s.subs {
		b, err := json.Marshal(observerproto.Frame(tick, zones, agents, sub.keep))
		if err != nil {
			continue
		}
		select {
		case sub.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		resp := observerproto.BootstrapResponse{
			ProtocolVersion: observerproto.Version,
			Tick:            s.src.Tick(),
			TickRateHz:      s.src.TickRateHz(),
		}
		for _, z := range s.src.Zones() {
			resp.Zones = append(resp.Zones, observerproto.ZoneInfoOf(z))
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		sub, ok, err := readSubscribe(conn)
		if err != nil {
			return
		}
		if !ok {
			closeWith(conn, websocket.ClosePolicyViolation, "expected SUBSCRIBE")
			return
		}

		me := &subscriber{
			id:    fmt.Sprintf("O%d", s.nextID.Add(1)),
			zones: zoneSet(sub.Zones),
			out:   make(chan []byte, outBuffer),
		}
		if !s.join(me) {
			closeWith(conn, websocket.CloseTryAgainLater, "server busy")
			return
		}
		defer s.leave(me.id)
		s.printf("observer %s joined zones=%v", me.id, sub.Zones)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-me.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			sub, ok, err := readSubscribe(conn)
			if err != nil {
				break
			}
			if !ok {
				continue
			}
			s.mu.Lock()
			me.zones = zoneSet(sub.Zones)
			s.mu.Unlock()
		}

		cancel()
		closeWith(conn, websocket.CloseNormalClosure, "bye")

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func (s *Server) join(sub *subscriber) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subs) >= maxObservers {
		return false
	}
	s.subs[sub.id] = sub
	return true
}

func (s *Server) leave(id string) {
	s.mu.Lock()
	delete(s.subs, id)
	s.mu.Unlock()
	s.printf("observer %s left", id)
}

func (s *Server) printf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

// readSubscribe reads one frame. err is a transport failure; ok is false
// for a frame that is not a valid SUBSCRIBE.
func readSubscribe(conn *websocket.Conn) (observerproto.SubscribeMsg, bool, error) {
	var sub observerproto.SubscribeMsg
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return sub, false, err
	}
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false, nil
	}
	if sub.Type != observerproto.TypeSubscribe || sub.ProtocolVersion != observerproto.Version {
		return sub, false, nil
	}
	return sub, true, nil
}

func zoneSet(zones []string) map[string]bool {
	if len(zones) == 0 {
		return nil
	}
	out := make(map[string]bool, len(zones))
	for _, z := range zones {
		out[z] = true
	}
	return out
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
