package binding

import "sort"

// View is an indexed, read-only capture of the world for one tick.
type View struct {
	Tick uint64

	zones   []Zone
	zoneIdx map[string]int
	agents  map[string]AgentView
	names   []string
}

func Capture(w World) *View {
	return NewView(w.Tick(), w.Zones(), w.Agents())
}

func NewView(tick uint64, zones []Zone, agents []AgentView) *View {
	v := &View{
		Tick:    tick,
		zones:   append([]Zone(nil), zones...),
		zoneIdx: make(map[string]int, len(zones)),
		agents:  make(map[string]AgentView, len(agents)),
		names:   make([]string, 0, len(agents)),
	}
	sort.Slice(v.zones, func(i, j int) bool { return v.zones[i].Name < v.zones[j].Name })
	for i := range v.zones {
		v.zoneIdx[v.zones[i].Name] = i
	}
	for _, a := range agents {
		if _, dup := v.agents[a.Name]; dup {
			continue
		}
		v.agents[a.Name] = a
		v.names = append(v.names, a.Name)
	}
	sort.Strings(v.names)
	return v
}

// Zones returns the zones in name order.
func (v *View) Zones() []Zone { return v.zones }

func (v *View) Zone(name string) (*Zone, bool) {
	i, ok := v.zoneIdx[name]
	if !ok {
		return nil, false
	}
	return &v.zones[i], true
}

func (v *View) Agent(name string) (AgentView, bool) {
	a, ok := v.agents[name]
	return a, ok
}

// AgentNames returns live agent names in sorted order.
func (v *View) AgentNames() []string { return v.names }

func (v *View) Alive(name string) bool {
	_, ok := v.agents[name]
	return ok
}
