package production

import (
	"hivemind.ai/internal/sim/binding"
	"hivemind.ai/internal/sim/tuning"
)

// extensionGroup is appended repeatedly when a body may grow past the base.
var extensionGroup = []binding.Part{binding.PartWork, binding.PartCarry, binding.PartMove}

// BodyFor returns the body to produce given the facility reserve. The base
// body is always returned as is; with extension enabled whole groups are
// added while they fit the budget and the part cap.
func BodyFor(b tuning.Body, reserve int) []binding.Part {
	body := make([]binding.Part, 0, len(b.Base))
	for _, p := range b.Base {
		body = append(body, binding.Part(p))
	}
	if !b.Extend {
		return body
	}

	budget := reserve * b.BudgetPermille / 1000
	cost := Cost(b, body)
	group := Cost(b, extensionGroup)
	if group <= 0 {
		return body
	}
	for len(body)+len(extensionGroup) <= b.MaxParts && cost+group <= budget {
		body = append(body, extensionGroup...)
		cost += group
	}
	return body
}

func Cost(b tuning.Body, parts []binding.Part) int {
	n := 0
	for _, p := range parts {
		n += b.PartCosts[string(p)]
	}
	return n
}
