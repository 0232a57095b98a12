package pathcache

import (
	"testing"

	"hivemind.ai/internal/sim/binding"
)

type holder struct{ p *Path }

func (h *holder) CachedPath() *Path     { return h.p }
func (h *holder) SetCachedPath(p *Path) { h.p = p }

type fakeWorld struct {
	finds    int
	moves    [][]binding.Pos
	moveCode binding.Code
	path     []binding.Pos
	findErr  error
}

func (f *fakeWorld) FindPath(zone string, from, to binding.Pos) ([]binding.Pos, error) {
	f.finds++
	if f.findErr != nil {
		return nil, f.findErr
	}
	return append([]binding.Pos(nil), f.path...), nil
}

func (f *fakeWorld) MoveByPath(agent string, steps []binding.Pos) binding.Code {
	f.moves = append(f.moves, steps)
	return f.moveCode
}

func (f *fakeWorld) Harvest(string, string) binding.Code                   { return binding.CodeOK }
func (f *fakeWorld) Advance(string, string) binding.Code                   { return binding.CodeOK }
func (f *fakeWorld) Transfer(string, string, binding.Resource) binding.Code { return binding.CodeOK }
func (f *fakeWorld) Produce(string, []binding.Part, string) binding.Code   { return binding.CodeOK }
func (f *fakeWorld) Say(string, string)                                    {}

func straight(n int) []binding.Pos {
	out := make([]binding.Pos, 0, n)
	for i := 1; i <= n; i++ {
		out = append(out, binding.Pos{X: i, Y: 0})
	}
	return out
}

func agentAt(x, y int) binding.AgentView {
	return binding.AgentView{Name: "a", Zone: "Z1", Pos: binding.Pos{X: x, Y: y}}
}

func TestMoveToward_AdjacentTrimsFinalWaypoint(t *testing.T) {
	fw := &fakeWorld{moveCode: binding.CodeOK, path: straight(5)}
	c := New(fw, fw)
	h := &holder{}

	res := c.MoveToward(agentAt(0, 0), h, binding.Pos{X: 5, Y: 0}, Adjacent)
	if !res.Issued || !res.Fresh || res.Code != binding.CodeOK {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(fw.moves) != 1 || len(fw.moves[0]) != 4 {
		t.Fatalf("expected 4 steps after trim, got %v", fw.moves)
	}
	if last := fw.moves[0][3]; last != (binding.Pos{X: 4, Y: 0}) {
		t.Fatalf("last step=%v", last)
	}
	if h.p == nil {
		t.Fatalf("path should be cached after OK")
	}
}

func TestMoveToward_ReusesCache(t *testing.T) {
	fw := &fakeWorld{moveCode: binding.CodeOK, path: straight(5)}
	c := New(fw, fw)
	h := &holder{}
	dest := binding.Pos{X: 5, Y: 0}

	c.MoveToward(agentAt(0, 0), h, dest, Adjacent)
	res := c.MoveToward(agentAt(1, 0), h, dest, Adjacent)
	if !res.Issued || res.Fresh {
		t.Fatalf("second move should reuse the cache: %+v", res)
	}
	if fw.finds != 1 {
		t.Fatalf("path computed %d times", fw.finds)
	}
}

func TestMoveToward_TiredKeepsOtherCodesInvalidate(t *testing.T) {
	fw := &fakeWorld{moveCode: binding.CodeTired, path: straight(5)}
	c := New(fw, fw)
	h := &holder{}
	dest := binding.Pos{X: 5, Y: 0}

	c.MoveToward(agentAt(0, 0), h, dest, Exact)
	if h.p == nil {
		t.Fatalf("tired must keep the cache")
	}

	fw.moveCode = binding.CodeBlocked
	res := c.MoveToward(agentAt(0, 0), h, dest, Exact)
	if res.Code != binding.CodeBlocked || h.p != nil {
		t.Fatalf("blocked must invalidate: res=%+v cached=%v", res, h.p)
	}

	fw.moveCode = binding.CodeOK
	c.MoveToward(agentAt(0, 0), h, dest, Exact)
	if fw.finds != 2 {
		t.Fatalf("expected recompute after invalidation, finds=%d", fw.finds)
	}
}

func TestMoveToward_ArrivedIsIdempotent(t *testing.T) {
	fw := &fakeWorld{moveCode: binding.CodeOK, path: straight(5)}
	c := New(fw, fw)
	h := &holder{p: &Path{Encoded: "stale", Dest: binding.Pos{X: 5}, Proximity: Adjacent}}

	for i := 0; i < 2; i++ {
		res := c.MoveToward(agentAt(4, 1), h, binding.Pos{X: 5, Y: 0}, Adjacent)
		if !res.Arrived || res.Issued {
			t.Fatalf("call %d: %+v", i, res)
		}
		if h.p != nil {
			t.Fatalf("call %d: cache not cleared", i)
		}
	}
	if len(fw.moves) != 0 || fw.finds != 0 {
		t.Fatalf("no command expected: moves=%v finds=%d", fw.moves, fw.finds)
	}

	res := c.MoveToward(agentAt(5, 0), h, binding.Pos{X: 5, Y: 0}, Exact)
	if !res.Arrived {
		t.Fatalf("exact arrival: %+v", res)
	}
}

func TestMoveToward_DestinationChangeIsCacheMiss(t *testing.T) {
	fw := &fakeWorld{moveCode: binding.CodeOK, path: straight(5)}
	c := New(fw, fw)
	h := &holder{}

	c.MoveToward(agentAt(0, 0), h, binding.Pos{X: 5, Y: 0}, Adjacent)
	fw.path = []binding.Pos{{X: 0, Y: 1}, {X: 0, Y: 2}, {X: 0, Y: 3}}
	res := c.MoveToward(agentAt(0, 0), h, binding.Pos{X: 0, Y: 3}, Adjacent)
	if !res.Fresh || fw.finds != 2 {
		t.Fatalf("expected replanning for a new destination: %+v finds=%d", res, fw.finds)
	}
}

func TestMoveToward_NoPath(t *testing.T) {
	fw := &fakeWorld{moveCode: binding.CodeOK, findErr: binding.ErrNoPath}
	c := New(fw, fw)
	h := &holder{}
	res := c.MoveToward(agentAt(0, 0), h, binding.Pos{X: 9, Y: 9}, Adjacent)
	if res.Issued || res.Code != binding.CodeNoPath || h.p != nil {
		t.Fatalf("unexpected: %+v", res)
	}
}

func TestTrim(t *testing.T) {
	dest := binding.Pos{X: 3, Y: 0}
	if got := Trim(straight(3), dest, Exact); len(got) != 3 {
		t.Fatalf("exact must not trim: %v", got)
	}
	if got := Trim(straight(2), dest, Adjacent); len(got) != 2 {
		t.Fatalf("plan stopping short must not trim: %v", got)
	}
	if got := Trim(straight(3), dest, Adjacent); len(got) != 2 {
		t.Fatalf("adjacent must drop dest: %v", got)
	}
}
