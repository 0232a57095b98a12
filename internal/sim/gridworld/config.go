package gridworld

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"hivemind.ai/internal/sim/binding"
)

type Config struct {
	TickRateHz int `yaml:"tick_rate_hz"`

	HarvestPerWork    int            `yaml:"harvest_per_work"`
	AdvancePerWork    int            `yaml:"advance_per_work"`
	CarryPerPart      int            `yaml:"carry_per_part"`
	ProgressPerLevel  int            `yaml:"progress_per_level"`
	BuildTicksPerPart int            `yaml:"build_ticks_per_part"`
	PartCosts         map[string]int `yaml:"part_costs"`

	Zones  []ZoneSpec  `yaml:"zones"`
	Agents []AgentSpec `yaml:"agents"`
}

type PosSpec struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

func (p PosSpec) pos() binding.Pos { return binding.Pos{X: p.X, Y: p.Y} }

type ZoneSpec struct {
	Name      string         `yaml:"name"`
	Terrain   []string       `yaml:"terrain"`
	Nodes     []NodeSpec     `yaml:"nodes"`
	Objective *ObjectiveSpec `yaml:"objective,omitempty"`
	Facility  *FacilitySpec  `yaml:"facility,omitempty"`
}

type NodeSpec struct {
	ID     string  `yaml:"id"`
	Pos    PosSpec `yaml:"pos"`
	Amount int     `yaml:"amount"`
	// Amount is restored every RegenTicks ticks; 0 disables regeneration.
	RegenTicks int `yaml:"regen_ticks"`
}

type ObjectiveSpec struct {
	ID    string  `yaml:"id"`
	Pos   PosSpec `yaml:"pos"`
	Level int     `yaml:"level"`
}

type FacilitySpec struct {
	ID         string  `yaml:"id"`
	Pos        PosSpec `yaml:"pos"`
	Reserve    int     `yaml:"reserve"`
	ReserveCap int     `yaml:"reserve_cap"`
	// Reserve gained per tick.
	Regen int `yaml:"regen"`
}

type AgentSpec struct {
	Name  string   `yaml:"name"`
	Zone  string   `yaml:"zone"`
	Pos   PosSpec  `yaml:"pos"`
	Body  []string `yaml:"body"`
	Cargo int      `yaml:"cargo"`
	// Ticks until the agent expires; 0 lives forever.
	TTL int `yaml:"ttl"`
}

func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, cfg.Validate()
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	cfg.Zones, cfg.Agents = nil, nil
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("world.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("world.yaml: %w", err)
	}
	return cfg, nil
}

// Defaults is a single 12x8 zone with two nodes, an objective, a facility
// and one starting harvester.
func Defaults() Config {
	return Config{
		TickRateHz:        5,
		HarvestPerWork:    2,
		AdvancePerWork:    1,
		CarryPerPart:      50,
		ProgressPerLevel:  1000,
		BuildTicksPerPart: 3,
		PartCosts:         map[string]int{"move": 50, "carry": 50, "work": 100},
		Zones: []ZoneSpec{{
			Name: "home",
			Terrain: []string{
				"############",
				"#..........#",
				"#.##.......#",
				"#..........#",
				"#......##..#",
				"#..........#",
				"#..........#",
				"############",
			},
			Nodes: []NodeSpec{
				{ID: "n1", Pos: PosSpec{X: 2, Y: 1}, Amount: 3000, RegenTicks: 300},
				{ID: "n2", Pos: PosSpec{X: 10, Y: 6}, Amount: 3000, RegenTicks: 300},
			},
			Objective: &ObjectiveSpec{ID: "core", Pos: PosSpec{X: 9, Y: 2}, Level: 1},
			Facility:  &FacilitySpec{ID: "spawn1", Pos: PosSpec{X: 5, Y: 5}, Reserve: 300, ReserveCap: 300, Regen: 1},
		}},
		Agents: []AgentSpec{
			{Name: "Harvester1", Zone: "home", Pos: PosSpec{X: 5, Y: 4}, Body: []string{"move", "carry", "work"}},
		},
	}
}

func (c *Config) Normalize() {
	d := Defaults()
	if c.TickRateHz <= 0 {
		c.TickRateHz = d.TickRateHz
	}
	if c.HarvestPerWork <= 0 {
		c.HarvestPerWork = d.HarvestPerWork
	}
	if c.AdvancePerWork <= 0 {
		c.AdvancePerWork = d.AdvancePerWork
	}
	if c.CarryPerPart <= 0 {
		c.CarryPerPart = d.CarryPerPart
	}
	if c.ProgressPerLevel <= 0 {
		c.ProgressPerLevel = d.ProgressPerLevel
	}
	if c.BuildTicksPerPart <= 0 {
		c.BuildTicksPerPart = d.BuildTicksPerPart
	}
	if c.PartCosts == nil {
		c.PartCosts = d.PartCosts
	}
	for i := range c.Zones {
		if f := c.Zones[i].Facility; f != nil && f.ReserveCap < f.Reserve {
			f.ReserveCap = f.Reserve
		}
	}
}

func (c Config) Validate() error {
	zones := map[string]ZoneSpec{}
	for _, z := range c.Zones {
		if z.Name == "" {
			return fmt.Errorf("zone with empty name")
		}
		if _, dup := zones[z.Name]; dup {
			return fmt.Errorf("duplicate zone %q", z.Name)
		}
		zones[z.Name] = z
		ids := map[string]bool{}
		for _, n := range z.Nodes {
			if n.ID == "" || ids[n.ID] {
				return fmt.Errorf("zone %s: bad or duplicate node id %q", z.Name, n.ID)
			}
			ids[n.ID] = true
		}
	}
	names := map[string]bool{}
	for _, a := range c.Agents {
		if a.Name == "" || names[a.Name] {
			return fmt.Errorf("bad or duplicate agent name %q", a.Name)
		}
		names[a.Name] = true
		if _, ok := zones[a.Zone]; !ok {
			return fmt.Errorf("agent %s: unknown zone %q", a.Name, a.Zone)
		}
		for _, p := range a.Body {
			if !binding.IsKnownPart(binding.Part(p)) {
				return fmt.Errorf("agent %s: unknown body part %q", a.Name, p)
			}
		}
	}
	for p := range c.PartCosts {
		if !binding.IsKnownPart(binding.Part(p)) {
			return fmt.Errorf("part_costs: unknown part %q", p)
		}
	}
	return nil
}
