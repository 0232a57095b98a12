package tuning

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Tuning struct {
	TickRateHz int `yaml:"tick_rate_hz"`

	// Slow cadence: scan, assign and produce run every N ticks.
	ScanEveryTicks   int `yaml:"scan_every_ticks"`
	ProduceThreshold int `yaml:"produce_threshold"`
	AdvanceCapacity  int `yaml:"advance_capacity"`
	DepositCapacity  int `yaml:"deposit_capacity"`

	// Upper bound on command-free state transitions chained in one tick.
	MaxChainSteps int `yaml:"max_chain_steps"`

	SnapshotEveryTicks int `yaml:"snapshot_every_ticks"`
	KeepStates         int `yaml:"keep_states"`

	Body Body `yaml:"body"`
}

type Body struct {
	Base   []string `yaml:"base"`
	Extend bool     `yaml:"extend"`
	// Fraction of the facility reserve (per mille) an extended body may cost.
	BudgetPermille int            `yaml:"budget_permille"`
	MaxParts       int            `yaml:"max_parts"`
	PartCosts      map[string]int `yaml:"part_costs"`
}

func Defaults() Tuning {
	return Tuning{
		TickRateHz:         5,
		ScanEveryTicks:     20,
		ProduceThreshold:   300,
		AdvanceCapacity:    4,
		DepositCapacity:    2,
		MaxChainSteps:      3,
		SnapshotEveryTicks: 500,
		KeepStates:         200,
		Body: Body{
			Base:           []string{"move", "carry", "work"},
			BudgetPermille: 800,
			MaxParts:       50,
			PartCosts:      map[string]int{"move": 50, "carry": 50, "work": 100},
		},
	}
}

// Load reads a tuning file over the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

// Normalize fills zero values with defaults.
func (t *Tuning) Normalize() {
	d := Defaults()
	if t.TickRateHz <= 0 {
		t.TickRateHz = d.TickRateHz
	}
	if t.ScanEveryTicks <= 0 {
		t.ScanEveryTicks = d.ScanEveryTicks
	}
	if t.ProduceThreshold <= 0 {
		t.ProduceThreshold = d.ProduceThreshold
	}
	if t.AdvanceCapacity <= 0 {
		t.AdvanceCapacity = d.AdvanceCapacity
	}
	if t.DepositCapacity <= 0 {
		t.DepositCapacity = d.DepositCapacity
	}
	if t.MaxChainSteps <= 0 {
		t.MaxChainSteps = d.MaxChainSteps
	}
	if t.KeepStates <= 0 {
		t.KeepStates = d.KeepStates
	}
	if len(t.Body.Base) == 0 {
		t.Body.Base = d.Body.Base
	}
	if t.Body.BudgetPermille <= 0 {
		t.Body.BudgetPermille = d.Body.BudgetPermille
	}
	if t.Body.MaxParts <= 0 {
		t.Body.MaxParts = d.Body.MaxParts
	}
	if t.Body.PartCosts == nil {
		t.Body.PartCosts = d.Body.PartCosts
	}
}

func (t Tuning) Validate() error {
	if t.Body.MaxParts < len(t.Body.Base) {
		return fmt.Errorf("body.max_parts %d below base body size %d", t.Body.MaxParts, len(t.Body.Base))
	}
	for _, p := range t.Body.Base {
		if _, ok := t.Body.PartCosts[p]; !ok {
			return fmt.Errorf("body.base: part %q has no cost", p)
		}
	}
	if t.Body.BudgetPermille > 1000 {
		return fmt.Errorf("body.budget_permille %d above 1000", t.Body.BudgetPermille)
	}
	return nil
}
