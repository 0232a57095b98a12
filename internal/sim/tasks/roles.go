package tasks

import "strings"

// Role is the worker class of an agent.
type Role string

const (
	SimpleWorker Role = "SimpleWorker"
	Upgrader     Role = "Upgrader"
	Harvester    Role = "Harvester"
)

// RolePriority is the declared order in which roles are served: income
// first, then the objective, then hauling.
var RolePriority = []Role{Harvester, Upgrader, SimpleWorker}

func ParseRole(s string) (Role, bool) {
	for _, r := range RolePriority {
		if strings.EqualFold(s, string(r)) {
			return r, true
		}
	}
	return "", false
}

// RoleFromName infers the role of an agent from its produced name
// ("Harvester1234"). Unknown prefixes fall back to SimpleWorker.
func RoleFromName(name string) Role {
	for _, r := range RolePriority {
		if strings.HasPrefix(name, string(r)) {
			return r
		}
	}
	return SimpleWorker
}
