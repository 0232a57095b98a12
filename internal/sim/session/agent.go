package session

import (
	"hivemind.ai/internal/sim/binding"
	"hivemind.ai/internal/sim/pathcache"
	"hivemind.ai/internal/sim/tasks"
)

type StepKind string

const (
	StepHarvesting StepKind = "HARVESTING"
	StepAdvancing  StepKind = "ADVANCING"
	StepDepositing StepKind = "DEPOSITING"
	StepPanic      StepKind = "PANIC"
)

// ActionStep is the state of an agent's per-tick state machine. Movement is
// not a step of its own: it rides along whichever step needed it.
type ActionStep struct {
	Kind StepKind
	Code binding.Code // Panic only
}

func Step(k StepKind) *ActionStep { return &ActionStep{Kind: k} }

func Panic(code binding.Code) *ActionStep { return &ActionStep{Kind: StepPanic, Code: code} }

// AgentRecord is the persistent per-agent state.
type AgentRecord struct {
	Role        tasks.Role
	Zone        string
	CurrentTask tasks.Task
	Step        *ActionStep
	Path        *pathcache.Path
	BornTick    uint64
}

func NewAgentRecord(role tasks.Role, zone string, tick uint64) *AgentRecord {
	return &AgentRecord{
		Role:        role,
		Zone:        zone,
		CurrentTask: tasks.Idle(),
		BornTick:    tick,
	}
}

func (r *AgentRecord) CachedPath() *pathcache.Path     { return r.Path }
func (r *AgentRecord) SetCachedPath(p *pathcache.Path) { r.Path = p }

// StepKind returns the current step kind, or "" when no step is set.
func (r *AgentRecord) StepKind() StepKind {
	if r.Step == nil {
		return ""
	}
	return r.Step.Kind
}
