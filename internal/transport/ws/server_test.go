package ws

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"hivemind.ai/internal/protocol"
	"hivemind.ai/internal/sim/binding"
)

type fakeBackend struct {
	mu    sync.Mutex
	tick  uint64
	calls []string
}

func (f *fakeBackend) Tick() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tick
}

func (f *fakeBackend) Zones() []binding.Zone {
	return []binding.Zone{{Name: "z1", Terrain: []string{"...", "..."}, Nodes: []binding.Node{{ID: "n1", Pos: binding.Pos{X: 2, Y: 1}, Amount: 100}}}}
}

func (f *fakeBackend) Agents() []binding.AgentView {
	return []binding.AgentView{{Name: "Harvester1", Zone: "z1", CargoFree: 50}}
}

func (f *fakeBackend) record(s string) {
	f.mu.Lock()
	f.calls = append(f.calls, s)
	f.mu.Unlock()
}

func (f *fakeBackend) Harvest(agent, node string) binding.Code {
	f.record("harvest " + agent + " " + node)
	return binding.CodeNotInRange
}
func (f *fakeBackend) Advance(agent, obj string) binding.Code { return binding.CodeOK }
func (f *fakeBackend) Transfer(agent, fac string, r binding.Resource) binding.Code {
	return binding.CodeFull
}
func (f *fakeBackend) MoveByPath(agent string, steps []binding.Pos) binding.Code {
	f.record("move " + agent)
	return binding.CodeOK
}
func (f *fakeBackend) Produce(fac string, body []binding.Part, name string) binding.Code {
	f.record("produce " + fac + " " + name)
	return binding.CodeBusy
}
func (f *fakeBackend) Say(agent, text string) { f.record("say " + agent + " " + text) }
func (f *fakeBackend) FindPath(zone string, from, to binding.Pos) ([]binding.Pos, error) {
	if to.X > 10 {
		return nil, binding.ErrNoPath
	}
	return []binding.Pos{to}, nil
}
func (f *fakeBackend) Step() {
	f.mu.Lock()
	f.tick++
	f.mu.Unlock()
}

func newTestServer(t *testing.T, b Backend) string {
	t.Helper()
	srv, err := NewServer(b, 0, nil)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return "ws" + strings.TrimPrefix(hs.URL, "http")
}

func TestClientServerLockstep(t *testing.T) {
	b := &fakeBackend{tick: 7}
	url := newTestServer(t, b)
	ctx := context.Background()

	c, err := Dial(ctx, url, "test", "", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer c.Close()
	if c.Session() == "" {
		t.Fatalf("expected session id")
	}

	if err := c.Next(ctx); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if c.Tick() != 7 || len(c.Zones()) != 1 || len(c.Agents()) != 1 {
		t.Fatalf("tick view: tick=%d zones=%d agents=%d", c.Tick(), len(c.Zones()), len(c.Agents()))
	}
	if got := c.Harvest("Harvester1", "n1"); got != binding.CodeNotInRange {
		t.Fatalf("Harvest: %s", got)
	}
	if got := c.Transfer("Harvester1", "f1", binding.ResourceEnergy); got != binding.CodeFull {
		t.Fatalf("Transfer: %s", got)
	}
	if got := c.Produce("f1", []binding.Part{binding.PartWork, binding.PartCarry, binding.PartMove}, "Harvester7"); got != binding.CodeBusy {
		t.Fatalf("Produce: %s", got)
	}
	steps, err := c.FindPath("z1", binding.Pos{}, binding.Pos{X: 2, Y: 1})
	if err != nil || len(steps) != 1 || steps[0] != (binding.Pos{X: 2, Y: 1}) {
		t.Fatalf("FindPath: %v %v", steps, err)
	}
	if _, err := c.FindPath("z1", binding.Pos{}, binding.Pos{X: 20}); !errors.Is(err, binding.ErrNoPath) {
		t.Fatalf("FindPath unreachable: %v", err)
	}
	if got := c.MoveByPath("Harvester1", nil); got != binding.CodeInvalidArgs {
		t.Fatalf("empty move: %s", got)
	}
	c.Say("Harvester1", "hi")
	if err := c.Done(); err != nil {
		t.Fatalf("Done: %v", err)
	}

	if err := c.Next(ctx); err != nil {
		t.Fatalf("Next: %v", err)
	}
	if c.Tick() != 8 {
		t.Fatalf("tick after Done: %d", c.Tick())
	}

	b.mu.Lock()
	calls := strings.Join(b.calls, ",")
	b.mu.Unlock()
	if calls != "harvest Harvester1 n1,produce f1 Harvester7,say Harvester1 hi" {
		t.Fatalf("calls: %s", calls)
	}
}

func TestServerRejectsSecondController(t *testing.T) {
	url := newTestServer(t, &fakeBackend{})
	ctx := context.Background()

	first, err := Dial(ctx, url, "first", "", nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer first.Close()

	if _, err := Dial(ctx, url, "second", "", nil); err == nil {
		t.Fatalf("expected second controller to be rejected")
	}
}

func TestDispatchUnknownMethod(t *testing.T) {
	r := Dispatch(&fakeBackend{}, protocol.CallMsg{ID: 3, Method: "teleport"})
	if r.ID != 3 || r.Code != protocol.ErrUnknownMethod {
		t.Fatalf("reply: %+v", r)
	}
	r = Dispatch(&fakeBackend{}, protocol.CallMsg{ID: 4, Method: protocol.MethodFindPath})
	if r.Code != string(binding.CodeInvalidArgs) {
		t.Fatalf("find_path without args: %+v", r)
	}
}
