package tasks

import (
	"errors"
	"fmt"
)

var ErrQueueInconsistent = errors.New("queue inconsistent")

// InconsistencyError describes why a role queue failed CheckQueue.
type InconsistencyError struct {
	Zone   string
	Role   Role
	Reason string
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("zone %s role %s: %s", e.Zone, e.Role, e.Reason)
}

func (e *InconsistencyError) Unwrap() error { return ErrQueueInconsistent }

// Bounds is the theoretical maximum a role queue may hold for a zone.
type Bounds struct {
	MaxTasks int
}

// CheckQueue verifies the queue invariant for one role of one zone: no more
// tasks than the zone can supply, no duplicate targets, every task of the
// role's kind, and no task over capacity.
func CheckQueue(zone string, role Role, queue []Task, b Bounds) error {
	fail := func(format string, args ...any) error {
		return &InconsistencyError{Zone: zone, Role: role, Reason: fmt.Sprintf(format, args...)}
	}
	if len(queue) > b.MaxTasks {
		return fail("%d tasks queued, at most %d possible", len(queue), b.MaxTasks)
	}
	seen := make(map[Key]struct{}, len(queue))
	for _, t := range queue {
		r, ok := t.Role()
		if !ok || r != role {
			return fail("task %s/%s does not belong to role", t.Kind, t.TargetID)
		}
		if _, dup := seen[t.Key()]; dup {
			return fail("duplicate task for %s", t.TargetID)
		}
		seen[t.Key()] = struct{}{}
		if t.Capacity <= 0 {
			return fail("task %s has capacity %d", t.TargetID, t.Capacity)
		}
		if len(t.Workers) > t.Capacity {
			return fail("task %s has %d workers over capacity %d", t.TargetID, len(t.Workers), t.Capacity)
		}
	}
	return nil
}
