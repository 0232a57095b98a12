package gridworld

import (
	"container/heap"

	"hivemind.ai/internal/sim/binding"
)

// AStar finds a shortest 8-connected path across a zone. blocked reports
// tiles that cannot be entered; the goal tile itself is always allowed so
// callers can plan onto a structure and stop short of it. The returned steps
// exclude from and end on to. ok is false when to is unreachable.
func AStar(from, to binding.Pos, inBounds, blocked func(binding.Pos) bool) ([]binding.Pos, bool) {
	if from == to {
		return nil, true
	}
	if !inBounds(to) {
		return nil, false
	}

	open := &openSet{}
	heap.Init(open)
	cameFrom := map[binding.Pos]binding.Pos{}
	g := map[binding.Pos]int{from: 0}
	closed := map[binding.Pos]bool{}
	seq := 0
	heap.Push(open, &item{pos: from, f: from.Range(to), h: from.Range(to), seq: seq})

	for open.Len() > 0 {
		cur := heap.Pop(open).(*item).pos
		if cur == to {
			return rebuild(cameFrom, from, to), true
		}
		if closed[cur] {
			continue
		}
		closed[cur] = true

		for _, next := range cur.Ring() {
			if !inBounds(next) || closed[next] {
				continue
			}
			if next != to && blocked(next) {
				continue
			}
			tentative := g[cur] + 1
			if old, seen := g[next]; seen && tentative >= old {
				continue
			}
			g[next] = tentative
			cameFrom[next] = cur
			seq++
			heap.Push(open, &item{pos: next, f: tentative + next.Range(to), h: next.Range(to), seq: seq})
		}
	}
	return nil, false
}

func rebuild(cameFrom map[binding.Pos]binding.Pos, from, to binding.Pos) []binding.Pos {
	var rev []binding.Pos
	for p := to; p != from; p = cameFrom[p] {
		rev = append(rev, p)
	}
	out := make([]binding.Pos, len(rev))
	for i := range rev {
		out[i] = rev[len(rev)-1-i]
	}
	return out
}

type item struct {
	pos   binding.Pos
	f, h  int
	seq   int
	index int
}

// openSet is a min-heap on f, then h, then insertion order, so equal-cost
// searches always return the same path.
type openSet []*item

func (s openSet) Len() int { return len(s) }
func (s openSet) Less(i, j int) bool {
	if s[i].f != s[j].f {
		return s[i].f < s[j].f
	}
	if s[i].h != s[j].h {
		return s[i].h < s[j].h
	}
	return s[i].seq < s[j].seq
}
func (s openSet) Swap(i, j int) {
	s[i], s[j] = s[j], s[i]
	s[i].index = i
	s[j].index = j
}
func (s *openSet) Push(x any) {
	it := x.(*item)
	it.index = len(*s)
	*s = append(*s, it)
}
func (s *openSet) Pop() any {
	old := *s
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*s = old[:n-1]
	return it
}
